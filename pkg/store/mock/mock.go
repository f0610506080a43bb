// Package mock provides an in-memory test double for store.TurnStore.
package mock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/auricle-ai/auricle/pkg/store"
)

// TurnStore is an in-memory implementation of store.TurnStore.
type TurnStore struct {
	mu sync.Mutex

	// BeginErr, AppendErr, and PingErr, when non-nil, are returned from the
	// corresponding methods.
	BeginErr  error
	AppendErr error
	PingErr   error

	sessions int
	turns    map[string][]store.Turn
	closed   bool
}

// NewTurnStore returns an empty in-memory store.
func NewTurnStore() *TurnStore {
	return &TurnStore{turns: make(map[string][]store.Turn)}
}

// BeginSession implements store.TurnStore.
func (s *TurnStore) BeginSession(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.BeginErr != nil {
		return "", s.BeginErr
	}
	s.sessions++
	id := fmt.Sprintf("session-%d", s.sessions)
	s.turns[id] = nil
	return id, nil
}

// AppendTurn implements store.TurnStore.
func (s *TurnStore) AppendTurn(ctx context.Context, t store.Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.AppendErr != nil {
		return s.AppendErr
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	s.turns[t.SessionID] = append(s.turns[t.SessionID], t)
	return nil
}

// RecentTurns implements store.TurnStore.
func (s *TurnStore) RecentTurns(ctx context.Context, sessionID string, limit int) ([]store.Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := s.turns[sessionID]
	if limit > 0 && len(all) > limit {
		all = all[len(all)-limit:]
	}
	out := make([]store.Turn, len(all))
	copy(out, all)
	return out, nil
}

// Ping implements store.TurnStore.
func (s *TurnStore) Ping(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.PingErr
}

// Close implements store.TurnStore.
func (s *TurnStore) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

// Closed reports whether Close was called.
func (s *TurnStore) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Turns returns a snapshot of all turns recorded for the session.
func (s *TurnStore) Turns(sessionID string) []store.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]store.Turn, len(s.turns[sessionID]))
	copy(out, s.turns[sessionID])
	return out
}

// Ensure TurnStore implements store.TurnStore at compile time.
var _ store.TurnStore = (*TurnStore)(nil)
