package memory

import (
	"bytes"
	"context"
	"sort"
	"sync"

	"walletflow/internal/kv"
)

var _ kv.Store = (*Store)(nil)

// Store keeps entries in process memory. It is the default backend for
// throwaway sessions and the double used by tests.
type Store struct {
	mu    sync.Mutex
	items map[string][]byte
}

func New() *Store {
	return &Store{items: map[string][]byte{}}
}

// NewWithEntries seeds the store, copying every value.
func NewWithEntries(entries map[string][]byte) *Store {
	s := New()
	for k, v := range entries {
		s.items[k] = bytes.Clone(v)
	}
	return s
}

// Get returns a copy of the value stored at key.
func (s *Store) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.items[key]
	if !ok {
		return nil, false, nil
	}
	return bytes.Clone(v), true, nil
}

func (s *Store) Set(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[key] = bytes.Clone(value)
	return nil
}

func (s *Store) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = map[string][]byte{}
	return nil
}

// Keys lists the stored keys in sorted order.
func (s *Store) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.items))
	for k := range s.items {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
