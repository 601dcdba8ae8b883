// Package memory stores document content in-memory for development and
// testing.
package memory

import (
	"context"
	"fmt"
	"sync"
)

// Store keeps documents in a map and returns pseudo URIs.
type Store struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewStore creates an in-memory content store.
func NewStore() *Store {
	return &Store{data: make(map[string][]byte)}
}

// Put stores the bytes under key.
func (s *Store) Put(_ context.Context, key string, data []byte) (string, error) {
	s.mu.Lock()
	s.data[key] = append([]byte(nil), data...)
	s.mu.Unlock()
	return fmt.Sprintf("memory://%s", key), nil
}

// Get returns a copy of the stored bytes.
func (s *Store) Get(key string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.data[key]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), data...), true
}

// Len reports how many keys are stored.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}
