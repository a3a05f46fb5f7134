// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/soothill/hue-bridge-emulator/pkg/logger"
)

const (
	defaultStoreDir = "/var/lib/hue-bridge-emulator"
	stateFilePrefix = "state_"
	stateFileExt    = ".json"
)

// FileStore persists one JSON file per device so attribute state survives
// restarts. Writes go through a temporary file and rename so a crash never
// leaves a half-written record behind.
type FileStore struct {
	dir string
	mu  sync.Mutex
}

// NewFileStore creates a file store rooted at dir, creating it if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		dir = defaultStoreDir
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	logger.Info().Str("dir", dir).Msg("Using file-backed attribute store")
	return &FileStore{dir: dir}, nil
}

// Get returns the stored record for a device id, and whether it exists.
func (fs *FileStore) Get(id string) ([]byte, bool, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	data, err := os.ReadFile(fs.filename(id))
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read state file: %w", err)
	}
	return data, true, nil
}

// Set stores a record for a device id.
func (fs *FileStore) Set(id string, value []byte) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	filename := fs.filename(id)
	tmp := filename + ".tmp"

	if err := os.WriteFile(tmp, value, 0644); err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}
	if err := os.Rename(tmp, filename); err != nil {
		return fmt.Errorf("failed to commit state file: %w", err)
	}

	logger.Debug().
		Str("device_id", id).
		Str("filename", filepath.Base(filename)).
		Msg("Persisted attribute record")

	return nil
}

// ListDeviceIDs returns the ids of all persisted devices.
func (fs *FileStore) ListDeviceIDs() ([]string, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	files, err := filepath.Glob(filepath.Join(fs.dir, stateFilePrefix+"*"+stateFileExt))
	if err != nil {
		return nil, fmt.Errorf("failed to list state files: %w", err)
	}

	ids := make([]string, 0, len(files))
	for _, file := range files {
		base := filepath.Base(file)
		id := strings.TrimSuffix(strings.TrimPrefix(base, stateFilePrefix), stateFileExt)
		if id != "" {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// filename returns the path of the state file for a device id.
// Device ids are normalized upstream so they are safe as path components.
func (fs *FileStore) filename(id string) string {
	return filepath.Join(fs.dir, stateFilePrefix+id+stateFileExt)
}
