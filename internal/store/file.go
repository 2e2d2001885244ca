package store

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// FileStore is a KeyValueStore backed by a single JSON file in the data
// directory. All mutations are written through synchronously; the engine's
// callers run on one goroutine but the mutex keeps the store safe for the
// HTTP handlers too.
type FileStore struct {
	path   string
	logger *slog.Logger

	mu      sync.Mutex
	entries map[string]string
}

// NewFileStore opens (or creates) the store file at path. A corrupt file is
// logged and replaced with an empty store rather than failing startup.
func NewFileStore(path string, logger *slog.Logger) (*FileStore, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	fs := &FileStore{
		path:    path,
		logger:  logger,
		entries: make(map[string]string),
	}

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		// Fresh install, nothing to load.
	case err != nil:
		return nil, fmt.Errorf("failed to read store file: %w", err)
	default:
		if jsonErr := json.Unmarshal(data, &fs.entries); jsonErr != nil {
			logger.Warn("store file corrupt, starting from empty state",
				slog.String("path", path),
				slog.String("error", jsonErr.Error()),
			)
			fs.entries = make(map[string]string)
		}
	}

	return fs, nil
}

// Get returns the stored value and whether the key was present
func (fs *FileStore) Get(key string) (string, bool) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	value, ok := fs.entries[key]
	return value, ok
}

// Set stores the value under key and flushes to disk
func (fs *FileStore) Set(key, value string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	fs.entries[key] = value
	return fs.flushLocked()
}

// Remove deletes the key and flushes to disk
func (fs *FileStore) Remove(key string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if _, ok := fs.entries[key]; !ok {
		return nil
	}
	delete(fs.entries, key)
	return fs.flushLocked()
}

// flushLocked writes the store atomically: temp file then rename, so a crash
// mid-write never leaves a truncated store behind.
func (fs *FileStore) flushLocked() error {
	data, err := json.MarshalIndent(fs.entries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal store: %w", err)
	}

	tmp := fs.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("failed to write store file: %w", err)
	}
	if err := os.Rename(tmp, fs.path); err != nil {
		return fmt.Errorf("failed to replace store file: %w", err)
	}
	return nil
}
