// Package persist stores named state blobs. Each blob is a whole JSON
// document overwritten on every save, mirroring the web client's local
// storage model: one blob for auth state, one for chat state, rehydrated
// wholesale at startup.
package persist

import (
	"encoding/json"
	"sync"
)

// Storage keys for the two independent state blobs.
const (
	AuthKey = "auth-storage"
	ChatKey = "chat-storage"
)

// Store saves and loads named blobs. Save fully replaces the previous value;
// Load reports found=false when the key has never been written.
type Store interface {
	Save(key string, value any) error
	Load(key string, into any) (bool, error)
}

// MemoryStore keeps blobs in-process. Used in tests and as a throwaway
// profile when no data directory is configured.
type MemoryStore struct {
	mu    sync.RWMutex
	blobs map[string]json.RawMessage
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blobs: make(map[string]json.RawMessage)}
}

// Save serializes value and replaces the blob under key.
func (m *MemoryStore) Save(key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.blobs[key] = raw
	m.mu.Unlock()
	return nil
}

// Load unmarshals the blob under key into the target.
func (m *MemoryStore) Load(key string, into any) (bool, error) {
	m.mu.RLock()
	raw, ok := m.blobs[key]
	m.mu.RUnlock()
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, into); err != nil {
		return false, err
	}
	return true, nil
}
