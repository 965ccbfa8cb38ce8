// Package memorystore provides the in-memory sessions.Store used by
// single-instance deployments and tests.
package memorystore

import (
	"context"
	"sync"
	"time"

	"github.com/agentgate/mcp-gateway-go/sessions"
)

// Store keeps the session table in a map guarded by a RWMutex.
type Store struct {
	mu    sync.RWMutex
	table map[string]sessions.Session
}

var _ sessions.Store = (*Store)(nil)

// New builds an empty store.
func New() *Store {
	return &Store{table: make(map[string]sessions.Session)}
}

func (s *Store) Put(ctx context.Context, sess sessions.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.table[sess.ID] = sess
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (sessions.Session, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.table[id]
	return sess, ok, nil
}

func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.table[id]; !ok {
		return false, nil
	}
	delete(s.table, id)
	return true, nil
}

func (s *Store) List(ctx context.Context) ([]sessions.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]sessions.Session, 0, len(s.table))
	for _, sess := range s.table {
		out = append(out, sess)
	}
	return out, nil
}

func (s *Store) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.table), nil
}

func (s *Store) Clear(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.table)
	s.table = make(map[string]sessions.Session)
	return n, nil
}

func (s *Store) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, sess := range s.table {
		if sess.LoginTime.Before(cutoff) {
			delete(s.table, id)
			removed++
		}
	}
	return removed, nil
}
