// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

// Package storage provides attribute persistence backends and the InfluxDB
// state history recorder.
package storage

import (
	"sync"
)

// MemoryStore is an in-process key/value store. It is the default attribute
// backend when no store directory is configured, and the backend of choice
// in tests.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string][]byte
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string][]byte),
	}
}

// Get returns the stored record for a device id, and whether it exists.
func (m *MemoryStore) Get(id string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.records[id]
	if !ok {
		return nil, false, nil
	}

	out := make([]byte, len(data))
	copy(out, data)
	return out, true, nil
}

// Set stores a record for a device id.
func (m *MemoryStore) Set(id string, value []byte) error {
	data := make([]byte, len(value))
	copy(data, value)

	m.mu.Lock()
	m.records[id] = data
	m.mu.Unlock()
	return nil
}

// Len returns the number of stored records.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}
