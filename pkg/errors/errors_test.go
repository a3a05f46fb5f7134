// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestDiscoveryError(t *testing.T) {
	baseErr := fmt.Errorf("address in use")
	err := NewDiscoveryError("join multicast group", baseErr)

	errMsg := err.Error()
	if !strings.Contains(errMsg, "discovery") || !strings.Contains(errMsg, "join multicast group") {
		t.Errorf("Error() = %q, want message containing 'discovery' and the operation", errMsg)
	}

	if !errors.Is(err, baseErr) {
		t.Error("errors.Is() should find wrapped error")
	}

	if !IsDiscoveryError(err) {
		t.Error("IsDiscoveryError() should return true for DiscoveryError")
	}

	var de *DiscoveryError
	if !errors.As(err, &de) {
		t.Error("errors.As() should extract DiscoveryError")
	}
	if de.Op != "join multicast group" {
		t.Errorf("DiscoveryError.Op = %q, want %q", de.Op, "join multicast group")
	}
}

func TestStorageError(t *testing.T) {
	baseErr := fmt.Errorf("disk full")
	err := NewStorageError("write record", "device-123", baseErr)

	errMsg := err.Error()
	if !strings.Contains(errMsg, "storage") || !strings.Contains(errMsg, "write record") || !strings.Contains(errMsg, "device-123") {
		t.Errorf("Error() = %q, want message containing 'storage', the op and the device id", errMsg)
	}

	if !errors.Is(err, baseErr) {
		t.Error("errors.Is() should find wrapped error")
	}

	var se *StorageError
	if !errors.As(err, &se) {
		t.Error("errors.As() should extract StorageError")
	}
	if se.DeviceID != "device-123" {
		t.Errorf("StorageError.DeviceID = %q, want %q", se.DeviceID, "device-123")
	}
}

func TestConfigError(t *testing.T) {
	baseErr := fmt.Errorf("invalid format")
	err := NewConfigError("history.url", "invalid://url", baseErr)

	errMsg := err.Error()
	if !strings.Contains(errMsg, "config") || !strings.Contains(errMsg, "history.url") {
		t.Errorf("Error() = %q, want message containing 'config' and 'history.url'", errMsg)
	}

	if !IsConfigError(err) {
		t.Error("IsConfigError() should return true for ConfigError")
	}
}

func TestSyncError(t *testing.T) {
	baseErr := fmt.Errorf("broker unavailable")
	err := NewSyncError("publish message", "device-456", baseErr)

	errMsg := err.Error()
	if !strings.Contains(errMsg, "sync") || !strings.Contains(errMsg, "publish message") || !strings.Contains(errMsg, "device-456") {
		t.Errorf("Error() = %q, want message containing 'sync', the op and the device id", errMsg)
	}

	if !IsSyncError(err) {
		t.Error("IsSyncError() should return true for SyncError")
	}

	var se *SyncError
	if !errors.As(err, &se) {
		t.Error("errors.As() should extract SyncError")
	}
	if se.DeviceID != "device-456" {
		t.Errorf("SyncError.DeviceID = %q, want %q", se.DeviceID, "device-456")
	}
}

func TestNetworkError(t *testing.T) {
	baseErr := fmt.Errorf("connection refused")
	err := NewNetworkError("send response", "192.168.1.100:1900", baseErr)

	errMsg := err.Error()
	if !strings.Contains(errMsg, "network") || !strings.Contains(errMsg, "send response") || !strings.Contains(errMsg, "192.168.1.100:1900") {
		t.Errorf("Error() = %q, want message containing 'network', the op and the address", errMsg)
	}

	if !IsNetworkError(err) {
		t.Error("IsNetworkError() should return true for NetworkError")
	}
}

func TestNotificationError(t *testing.T) {
	baseErr := fmt.Errorf("webhook failed")
	err := NewNotificationError("slack", baseErr)

	errMsg := err.Error()
	if !strings.Contains(errMsg, "notification") || !strings.Contains(errMsg, "slack") {
		t.Errorf("Error() = %q, want message containing 'notification' and 'slack'", errMsg)
	}

	if !IsNotificationError(err) {
		t.Error("IsNotificationError() should return true for NotificationError")
	}
}

func TestSentinelErrors(t *testing.T) {
	testCases := []struct {
		name string
		err  error
	}{
		{"ErrDeviceNotFound", ErrDeviceNotFound},
		{"ErrTimeout", ErrTimeout},
		{"ErrCircuitBreakerOpen", ErrCircuitBreakerOpen},
		{"ErrInvalidConfig", ErrInvalidConfig},
		{"ErrConnectionClosed", ErrConnectionClosed},
		{"ErrInvalidSearch", ErrInvalidSearch},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if tc.err.Error() == "" {
				t.Errorf("%s has empty error message", tc.name)
			}

			wrapped := fmt.Errorf("operation failed: %w", tc.err)
			if !errors.Is(wrapped, tc.err) {
				t.Errorf("errors.Is() should find wrapped %s", tc.name)
			}
		})
	}
}

func TestErrorWrapping(t *testing.T) {
	baseErr := fmt.Errorf("base error")
	networkErr := NewNetworkError("send response", "10.0.0.1:1900", baseErr)
	discoveryErr := NewDiscoveryError("respond", networkErr)

	if !errors.Is(discoveryErr, baseErr) {
		t.Error("errors.Is() should find base error through chain")
	}

	var ne *NetworkError
	if !errors.As(discoveryErr, &ne) {
		t.Error("errors.As() should find NetworkError in chain")
	}

	var de *DiscoveryError
	if !errors.As(discoveryErr, &de) {
		t.Error("errors.As() should find DiscoveryError at top of chain")
	}
}

func TestErrorsWithoutUnderlyingError(t *testing.T) {
	if NewDiscoveryError("scan", nil).Error() == "" {
		t.Error("DiscoveryError without underlying error should have message")
	}
	if NewStorageError("write", "", nil).Error() == "" {
		t.Error("StorageError without underlying error should have message")
	}
	if NewSyncError("publish", "", nil).Error() == "" {
		t.Error("SyncError without underlying error should have message")
	}
}

func TestIsHelperWithWrongType(t *testing.T) {
	genericErr := fmt.Errorf("generic error")

	if IsDiscoveryError(genericErr) {
		t.Error("IsDiscoveryError() should return false for generic error")
	}
	if IsStorageError(genericErr) {
		t.Error("IsStorageError() should return false for generic error")
	}
	if IsConfigError(genericErr) {
		t.Error("IsConfigError() should return false for generic error")
	}
	if IsSyncError(genericErr) {
		t.Error("IsSyncError() should return false for generic error")
	}
	if IsNetworkError(genericErr) {
		t.Error("IsNetworkError() should return false for generic error")
	}
	if IsNotificationError(genericErr) {
		t.Error("IsNotificationError() should return false for generic error")
	}
}
