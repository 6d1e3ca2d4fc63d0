// Package memory provides the in-process snapshot store used when no
// external store is configured, and in tests.
package memory

import (
	"context"
	"sync"

	"crmscan/internal/cache"
)

// Store implements cache.Store with a mutex-guarded map.
type Store struct {
	mu     sync.RWMutex
	values map[string][]byte
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{values: make(map[string][]byte)}
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	if !ok {
		return nil, cache.ErrNotFound
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := make([]byte, len(value))
	copy(v, value)
	s.values[key] = v
	return nil
}
