// Package postgres provides a PostgreSQL-backed implementation of
// store.TurnStore.
//
// The schema is two append-only tables managed by [Migrate], which runs
// automatically in [NewStore] and is idempotent (CREATE TABLE IF NOT EXISTS).
//
// Usage:
//
//	st, err := postgres.NewStore(ctx, dsn)
//	if err != nil { … }
//	defer st.Close()
//
//	sessionID, _ := st.BeginSession(ctx)
//	_ = st.AppendTurn(ctx, store.Turn{SessionID: sessionID, Role: "user", Content: "what time is it"})
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/auricle-ai/auricle/pkg/store"
)

// Compile-time interface check.
var _ store.TurnStore = (*Store)(nil)

// Store is a PostgreSQL-backed turn log. It holds a single [pgxpool.Pool];
// all operations are safe for concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore establishes a connection pool to the database at dsn and runs
// [Migrate] to ensure the required tables exist.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("turn store: parse dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("turn store: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("turn store: ping: %w", err)
	}

	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("turn store: migrate: %w", err)
	}

	return &Store{pool: pool}, nil
}

// BeginSession implements store.TurnStore.
func (s *Store) BeginSession(ctx context.Context) (string, error) {
	const q = `INSERT INTO sessions DEFAULT VALUES RETURNING id::text`

	var id string
	if err := s.pool.QueryRow(ctx, q).Scan(&id); err != nil {
		return "", fmt.Errorf("turn store: begin session: %w", err)
	}
	return id, nil
}

// AppendTurn implements store.TurnStore.
func (s *Store) AppendTurn(ctx context.Context, t store.Turn) error {
	const q = `
		INSERT INTO turns (session_id, role, content, latency_ns, created_at)
		VALUES ($1, $2, $3, $4, $5)`

	ts := t.CreatedAt
	if ts.IsZero() {
		ts = time.Now()
	}
	_, err := s.pool.Exec(ctx, q,
		t.SessionID,
		t.Role,
		t.Content,
		t.Latency.Nanoseconds(),
		ts,
	)
	if err != nil {
		return fmt.Errorf("turn store: append turn: %w", err)
	}
	return nil
}

// RecentTurns implements store.TurnStore. Turns are returned oldest first.
func (s *Store) RecentTurns(ctx context.Context, sessionID string, limit int) ([]store.Turn, error) {
	const q = `
		SELECT session_id, role, content, latency_ns, created_at
		FROM (
		    SELECT id, session_id, role, content, latency_ns, created_at
		    FROM   turns
		    WHERE  session_id = $1::uuid
		    ORDER  BY id DESC
		    LIMIT  $2
		) recent
		ORDER BY id`

	rows, err := s.pool.Query(ctx, q, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("turn store: recent turns: %w", err)
	}

	turns, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (store.Turn, error) {
		var (
			t         store.Turn
			latencyNS int64
		)
		if err := row.Scan(&t.SessionID, &t.Role, &t.Content, &latencyNS, &t.CreatedAt); err != nil {
			return store.Turn{}, err
		}
		t.Latency = time.Duration(latencyNS)
		return t, nil
	})
	if err != nil {
		return nil, fmt.Errorf("turn store: scan turns: %w", err)
	}
	return turns, nil
}

// Ping implements store.TurnStore.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("turn store: ping: %w", err)
	}
	return nil
}

// Close implements store.TurnStore.
func (s *Store) Close() {
	s.pool.Close()
}
