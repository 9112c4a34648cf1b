package store

import (
	"context"
	"sync"

	"github.com/go-askgate/askgate/internal/token"
)

// MemoryStore is an in-process Store for tests and development. It does not
// survive restarts.
type MemoryStore struct {
	mu        sync.RWMutex
	tokens    map[string]token.Record
	verifiers map[string]string
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tokens:    make(map[string]token.Record),
		verifiers: make(map[string]string),
	}
}

func (s *MemoryStore) Token(_ context.Context, key string) (*token.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.tokens[key]
	if !ok {
		return nil, ErrNotFound
	}
	// Copy so callers cannot mutate the stored record in place.
	out := rec
	return &out, nil
}

func (s *MemoryStore) SaveToken(_ context.Context, key string, rec *token.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tokens[key] = *rec
	return nil
}

func (s *MemoryStore) DeleteToken(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.tokens, key)
	return nil
}

func (s *MemoryStore) Verifier(_ context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.verifiers[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (s *MemoryStore) SaveVerifier(_ context.Context, key, verifier string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.verifiers[key] = verifier
	return nil
}

func (s *MemoryStore) DeleteVerifier(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.verifiers, key)
	return nil
}

func (s *MemoryStore) Reset(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tokens = make(map[string]token.Record)
	s.verifiers = make(map[string]string)
	return nil
}

func (s *MemoryStore) Close() error { return nil }
