// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

// Package errors provides structured error types for the virtual Hue bridge.
//
// This package defines custom error types that provide better error handling,
// inspection, and debugging capabilities compared to plain string errors.
//
// # Example Usage
//
//	err := errors.NewDiscoveryError("bind multicast socket", fmt.Errorf("address in use"))
//	if errors.IsDiscoveryError(err) {
//	    log.Printf("Discovery failed: %v", err)
//	}
//
//	var discoveryErr *errors.DiscoveryError
//	if errors.As(err, &discoveryErr) {
//	    log.Printf("Failed operation: %s", discoveryErr.Op)
//	}
package errors

import (
	"errors"
	"fmt"
)

// DiscoveryError represents an error during SSDP or mDNS discovery operations.
type DiscoveryError struct {
	Op  string // Operation being performed (e.g., "bind multicast socket", "send response")
	Err error  // Underlying error
}

func (e *DiscoveryError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("discovery %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("discovery %s failed", e.Op)
}

func (e *DiscoveryError) Unwrap() error {
	return e.Err
}

// NewDiscoveryError creates a new discovery error.
func NewDiscoveryError(op string, err error) *DiscoveryError {
	return &DiscoveryError{Op: op, Err: err}
}

// IsDiscoveryError checks if an error is a DiscoveryError.
func IsDiscoveryError(err error) bool {
	var de *DiscoveryError
	return errors.As(err, &de)
}

// StorageError represents an error during attribute persistence operations.
type StorageError struct {
	Op       string // Operation being performed (e.g., "read record", "write record")
	DeviceID string // Device ID involved in the operation (if applicable)
	Err      error  // Underlying error
}

func (e *StorageError) Error() string {
	if e.DeviceID != "" {
		return fmt.Sprintf("storage %s (device=%s): %v", e.Op, e.DeviceID, e.Err)
	}
	if e.Err != nil {
		return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("storage %s failed", e.Op)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// NewStorageError creates a new storage error.
func NewStorageError(op string, deviceID string, err error) *StorageError {
	return &StorageError{Op: op, DeviceID: deviceID, Err: err}
}

// IsStorageError checks if an error is a StorageError.
func IsStorageError(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}

// ConfigError represents a configuration error.
type ConfigError struct {
	Field string // Configuration field that caused the error
	Value string // Invalid value (optional, may be redacted for sensitive fields)
	Err   error  // Underlying error or description
}

func (e *ConfigError) Error() string {
	if e.Value != "" {
		return fmt.Sprintf("config error in field %q (value=%q): %v", e.Field, e.Value, e.Err)
	}
	if e.Err != nil {
		return fmt.Sprintf("config error in field %q: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("config error in field %q", e.Field)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// NewConfigError creates a new configuration error.
func NewConfigError(field string, value string, err error) *ConfigError {
	return &ConfigError{Field: field, Value: value, Err: err}
}

// IsConfigError checks if an error is a ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// SyncError represents an error while relaying state between the bridge
// and the automation host.
type SyncError struct {
	Op       string // Operation being performed (e.g., "publish state", "apply inbound")
	DeviceID string // Device ID involved
	Err      error  // Underlying error
}

func (e *SyncError) Error() string {
	if e.DeviceID != "" {
		return fmt.Sprintf("sync %s (device=%s): %v", e.Op, e.DeviceID, e.Err)
	}
	if e.Err != nil {
		return fmt.Sprintf("sync %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("sync %s failed", e.Op)
}

func (e *SyncError) Unwrap() error {
	return e.Err
}

// NewSyncError creates a new sync error.
func NewSyncError(op string, deviceID string, err error) *SyncError {
	return &SyncError{Op: op, DeviceID: deviceID, Err: err}
}

// IsSyncError checks if an error is a SyncError.
func IsSyncError(err error) bool {
	var se *SyncError
	return errors.As(err, &se)
}

// NetworkError represents a network-related error.
type NetworkError struct {
	Op   string // Operation being performed (e.g., "listen", "unicast reply")
	Addr string // Network address (if applicable)
	Err  error  // Underlying error
}

func (e *NetworkError) Error() string {
	if e.Addr != "" {
		return fmt.Sprintf("network %s (%s): %v", e.Op, e.Addr, e.Err)
	}
	if e.Err != nil {
		return fmt.Sprintf("network %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("network %s failed", e.Op)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// NewNetworkError creates a new network error.
func NewNetworkError(op string, addr string, err error) *NetworkError {
	return &NetworkError{Op: op, Addr: addr, Err: err}
}

// IsNetworkError checks if an error is a NetworkError.
func IsNetworkError(err error) bool {
	var ne *NetworkError
	return errors.As(err, &ne)
}

// NotificationError represents an error sending notifications.
type NotificationError struct {
	Type string // Notification type (e.g., "slack")
	Err  error  // Underlying error
}

func (e *NotificationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("notification %s: %v", e.Type, e.Err)
	}
	return fmt.Sprintf("notification %s failed", e.Type)
}

func (e *NotificationError) Unwrap() error {
	return e.Err
}

// NewNotificationError creates a new notification error.
func NewNotificationError(notifType string, err error) *NotificationError {
	return &NotificationError{Type: notifType, Err: err}
}

// IsNotificationError checks if an error is a NotificationError.
func IsNotificationError(err error) bool {
	var ne *NotificationError
	return errors.As(err, &ne)
}

// Sentinel errors for common conditions
var (
	// ErrDeviceNotFound indicates a device id is not in the registry
	ErrDeviceNotFound = errors.New("device not found")

	// ErrTimeout indicates an operation timed out
	ErrTimeout = errors.New("operation timeout")

	// ErrCircuitBreakerOpen indicates the history circuit breaker is open
	ErrCircuitBreakerOpen = errors.New("circuit breaker open")

	// ErrInvalidConfig indicates invalid configuration
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrConnectionClosed indicates a connection was closed
	ErrConnectionClosed = errors.New("connection closed")

	// ErrInvalidSearch indicates a discovery packet that is not a valid search
	ErrInvalidSearch = errors.New("invalid search request")
)
