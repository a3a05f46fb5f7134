// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

// Package interfaces defines abstract interfaces for core system components.
// This package promotes loose coupling and testability by allowing
// dependency injection and easy mocking in tests.
package interfaces

import (
	"context"
	"time"
)

// KeyValueStore is the persistence contract backing the attribute store.
// Implementations must provide atomic get/set per key.
type KeyValueStore interface {
	// Get returns the raw record for a device id, and whether it exists.
	Get(id string) ([]byte, bool, error)

	// Set stores the raw record for a device id.
	Set(id string, value []byte) error
}

// StateChange represents one committed attribute transition.
// Attribute fields are redeclared here to avoid circular dependencies.
type StateChange struct {
	DeviceID   string
	DeviceName string
	Source     string // "api" or "host"
	Timestamp  time.Time
	On         bool
	Bri        int
	Hue        int
	Sat        int
	Ct         int
	ColorMode  string
}

// HistoryStorage defines the interface for recording state transitions.
type HistoryStorage interface {
	// WriteTransition writes a single state transition to storage
	WriteTransition(ctx context.Context, change *StateChange) error

	// Flush ensures all pending writes are completed
	Flush()

	// Close gracefully shuts down the storage connection
	Close()

	// Health checks if the storage backend is healthy
	Health(ctx context.Context) error
}
