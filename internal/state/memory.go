package state

import (
	"context"
	"sync"

	"noisewatch/internal/models"
)

// MemoryStore is an in-process Store for tests and single-node runs.
// A single mutex serializes all updates, which trivially satisfies the
// per-device read-modify-write contract.
type MemoryStore struct {
	mu     sync.Mutex
	states map[string]models.AlertState
	closed bool
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		states: make(map[string]models.AlertState),
	}
}

func (s *MemoryStore) Get(ctx context.Context, deviceID string) (models.AlertState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return models.AlertState{}, ErrStoreClosed
	}
	return s.states[deviceID], nil
}

func (s *MemoryStore) Update(ctx context.Context, deviceID string, fn UpdateFunc) (models.AlertState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return models.AlertState{}, ErrStoreClosed
	}

	next, err := fn(s.states[deviceID])
	if err != nil {
		return models.AlertState{}, err
	}

	s.states[deviceID] = next
	return next, nil
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	return nil
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
