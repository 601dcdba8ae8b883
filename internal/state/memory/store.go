// Package memory provides an in-memory StateStore for development and
// testing.
package memory

import (
	"context"
	"sync"

	"github.com/sayouzone/edgar-harvester/internal/edgar"
)

// Store keeps the processed set and failure ledger in process memory.
// It honors the StateStore contract except cross-process durability.
type Store struct {
	mu        sync.RWMutex
	processed map[edgar.FilingKey]struct{}
	failures  []edgar.FailureRecord
}

// NewStore constructs an empty Store.
func NewStore() *Store {
	return &Store{processed: make(map[edgar.FilingKey]struct{})}
}

// Load is a no-op; the store has no backing file.
func (s *Store) Load(_ context.Context) error { return nil }

// Contains reports membership in the processed set.
func (s *Store) Contains(_ context.Context, key edgar.FilingKey) (bool, error) {
	s.mu.RLock()
	_, ok := s.processed[key]
	s.mu.RUnlock()
	return ok, nil
}

// MarkProcessed adds the key; marking twice is a no-op.
func (s *Store) MarkProcessed(_ context.Context, key edgar.FilingKey) error {
	s.mu.Lock()
	s.processed[key] = struct{}{}
	s.mu.Unlock()
	return nil
}

// RecordFailure appends to the in-memory ledger.
func (s *Store) RecordFailure(_ context.Context, rec edgar.FailureRecord) error {
	s.mu.Lock()
	s.failures = append(s.failures, rec)
	s.mu.Unlock()
	return nil
}

// Flush is a no-op.
func (s *Store) Flush(_ context.Context) error { return nil }

// Close is a no-op.
func (s *Store) Close() error { return nil }

// Failures returns a copy of the recorded ledger.
func (s *Store) Failures() []edgar.FailureRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]edgar.FailureRecord, len(s.failures))
	copy(out, s.failures)
	return out
}

// Size reports how many keys are marked processed.
func (s *Store) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.processed)
}
