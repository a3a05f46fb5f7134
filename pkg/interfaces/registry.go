// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

package interfaces

// Device is one virtual light exposed by the bridge.
type Device struct {
	ID    string // normalized identifier (no dots, trimmed)
	Name  string // display name shown to the voice assistant
	Topic string // host-side label applied when relaying messages
}

// Registry enumerates the configured virtual devices.
// The read path must be safe for concurrent use.
type Registry interface {
	// List returns all devices in configuration order.
	List() []Device

	// Lookup returns the device with the given normalized id.
	Lookup(id string) (Device, bool)
}
