package store

import "sync"

// MemoryStore is an in-memory KeyValueStore used by tests and by components
// that want throwaway state.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]string
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]string)}
}

// Get returns the stored value and whether the key was present
func (ms *MemoryStore) Get(key string) (string, bool) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	value, ok := ms.entries[key]
	return value, ok
}

// Set stores the value under key
func (ms *MemoryStore) Set(key, value string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	ms.entries[key] = value
	return nil
}

// Remove deletes the key
func (ms *MemoryStore) Remove(key string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	delete(ms.entries, key)
	return nil
}
