// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

// Package registry provides the read-only view of configured virtual devices.
//
// Device identifiers are normalized (dots stripped, whitespace trimmed) so
// they stay compatible with the UUID-shaped strings Hue clients expect.
// The registry is hot-swappable: a configuration reload replaces the whole
// device set atomically while readers keep a consistent view.
package registry

import (
	"strings"
	"sync"

	"github.com/soothill/hue-bridge-emulator/pkg/interfaces"
)

// NormalizeID strips dots and surrounding whitespace from a device id.
func NormalizeID(id string) string {
	return strings.TrimSpace(strings.ReplaceAll(id, ".", ""))
}

// Registry holds the configured virtual devices.
type Registry struct {
	mu      sync.RWMutex // Protects devices and index
	devices []interfaces.Device
	index   map[string]interfaces.Device
}

// New creates a registry from raw device definitions.
// Ids are normalized; definitions with empty normalized ids are dropped.
func New(devices []interfaces.Device) *Registry {
	r := &Registry{}
	r.Replace(devices)
	return r
}

// Replace swaps in a new device set, preserving the given order.
func (r *Registry) Replace(devices []interfaces.Device) {
	normalized := make([]interfaces.Device, 0, len(devices))
	index := make(map[string]interfaces.Device, len(devices))

	for _, d := range devices {
		id := NormalizeID(d.ID)
		if id == "" {
			continue
		}
		dev := interfaces.Device{ID: id, Name: d.Name, Topic: d.Topic}
		normalized = append(normalized, dev)
		index[id] = dev
	}

	r.mu.Lock()
	r.devices = normalized
	r.index = index
	r.mu.Unlock()
}

// List returns all devices in configuration order.
func (r *Registry) List() []interfaces.Device {
	r.mu.RLock()
	defer r.mu.RUnlock()

	devices := make([]interfaces.Device, len(r.devices))
	copy(devices, r.devices)
	return devices
}

// Lookup returns the device with the given normalized id.
func (r *Registry) Lookup(id string) (interfaces.Device, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	dev, ok := r.index[NormalizeID(id)]
	return dev, ok
}

// Count returns the number of configured devices.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.devices)
}
