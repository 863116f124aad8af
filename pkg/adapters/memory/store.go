// Package memory provides an in-memory SessionStore for tests and
// single-process deployments.
package memory

import (
	"context"
	"sync"

	"github.com/agrivaani/agrivaani/pkg/domain"
)

// Store implements ports.SessionStore in memory.
// Safe for concurrent use.
type Store struct {
	data map[string]*domain.Session
	mu   sync.RWMutex
}

// NewStore creates a new in-memory store.
func NewStore() *Store {
	return &Store{
		data: make(map[string]*domain.Session),
	}
}

// clone deep copies a session so callers and the store never share slices.
func clone(sess *domain.Session) *domain.Session {
	copied := *sess
	if sess.Answers != nil {
		copied.Answers = make([]domain.AnswerRecord, len(sess.Answers))
		copy(copied.Answers, sess.Answers)
	}
	if sess.RecentTurns != nil {
		copied.RecentTurns = make([]domain.TurnRecord, len(sess.RecentTurns))
		copy(copied.RecentTurns, sess.RecentTurns)
	}
	return &copied
}

// Save persists the session in memory.
func (s *Store) Save(ctx context.Context, sess *domain.Session) error {
	copied := clone(sess)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[sess.Key] = copied
	return nil
}

// Load retrieves the session. The returned value is a copy so the caller
// cannot mutate store state by pointer.
func (s *Store) Load(ctx context.Context, key string) (*domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.data[key]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return clone(sess), nil
}

// Delete removes the session.
func (s *Store) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

// List returns the keys of stored sessions.
func (s *Store) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	return keys, nil
}

// Len reports how many sessions are stored. Useful in tests.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}
