// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

package state

import (
	"encoding/json"
	"sync"

	"github.com/soothill/hue-bridge-emulator/pkg/errors"
	"github.com/soothill/hue-bridge-emulator/pkg/interfaces"
	"github.com/soothill/hue-bridge-emulator/pkg/logger"
)

// Store merges and persists attribute records through a key/value backend.
//
// Get never fails: an unknown or unreadable record yields the default set.
// Set is serialized per device id so no two read-merge-write cycles for the
// same light interleave; writes to different lights proceed in parallel.
type Store struct {
	kv interfaces.KeyValueStore

	mu    sync.Mutex // Protects locks map
	locks map[string]*sync.Mutex
}

// NewStore creates a store over the given key/value backend.
func NewStore(kv interfaces.KeyValueStore) *Store {
	return &Store{
		kv:    kv,
		locks: make(map[string]*sync.Mutex),
	}
}

// Get returns the persisted record for a device id, or the defaults if the
// device was never written. The result never aliases stored data.
func (s *Store) Get(id string) Attributes {
	return s.load(id)
}

// Set merges a partial update into the current record, persists the result
// and returns the record as re-read from the backend.
func (s *Store) Set(id string, u Update) (Attributes, error) {
	lock := s.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	merged := Merge(s.load(id), u)

	data, err := json.Marshal(merged)
	if err != nil {
		return Attributes{}, errors.NewStorageError("encode record", id, err)
	}

	if err := s.kv.Set(id, data); err != nil {
		return Attributes{}, errors.NewStorageError("write record", id, err)
	}

	// Re-read so the caller observes what was actually persisted.
	return s.load(id), nil
}

// load reads and decodes one record, falling back to defaults.
func (s *Store) load(id string) Attributes {
	data, found, err := s.kv.Get(id)
	if err != nil {
		logger.Warn().Err(err).Str("device_id", id).Msg("Failed to read attribute record, using defaults")
		return Defaults()
	}
	if !found {
		return Defaults()
	}

	attrs := Defaults()
	if err := json.Unmarshal(data, &attrs); err != nil {
		logger.Warn().Err(err).Str("device_id", id).Msg("Corrupt attribute record, using defaults")
		return Defaults()
	}
	return attrs
}

// lockFor returns the mutex serializing writes for one device id.
func (s *Store) lockFor(id string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	lock, ok := s.locks[id]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[id] = lock
	}
	return lock
}
