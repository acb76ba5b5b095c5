// Package marker stores the device-local "anonymous visitor confirmed" flag.
package marker

import (
	"context"
	"sync"
)

// Key and Value match what the forum client keeps in browser local storage.
const (
	Key   = "discourse-user-consent-confirmed"
	Value = "1"
)

// Store is device-scoped durable key/value storage. Implementations report
// failures as consent.ErrLocalStorageUnavailable; callers map any error to
// "not confirmed".
type Store interface {
	Present(ctx context.Context) (bool, error)
	Set(ctx context.Context) error
	Clear(ctx context.Context) error
}

type memoryStore struct {
	mu    sync.Mutex
	value string
}

func NewMemoryStore() Store {
	return &memoryStore{}
}

func (s *memoryStore) Present(context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value == Value, nil
}

func (s *memoryStore) Set(context.Context) error {
	s.mu.Lock()
	s.value = Value
	s.mu.Unlock()
	return nil
}

func (s *memoryStore) Clear(context.Context) error {
	s.mu.Lock()
	s.value = ""
	s.mu.Unlock()
	return nil
}
