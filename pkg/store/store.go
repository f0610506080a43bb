// Package store defines the TurnStore interface for persisting conversation
// history.
//
// Persistence is an audit log, not working memory: the in-process
// conversation engine holds the history the model sees, and the store only
// records what was said for later inspection. Writes are therefore
// best-effort from the pipeline's point of view — a failed insert is logged
// and the interaction continues.
package store

import (
	"context"
	"time"
)

// Turn is one persisted conversation entry.
type Turn struct {
	// SessionID groups turns belonging to one assistant run.
	SessionID string

	// Role is "user" or "assistant".
	Role string

	// Content is the spoken or generated text.
	Content string

	// Latency is how long the turn took to produce. Zero for user turns.
	Latency time.Duration

	// CreatedAt is when the turn was recorded. The zero value lets the
	// store assign its own timestamp.
	CreatedAt time.Time
}

// TurnStore persists conversation turns.
//
// Implementations must be safe for concurrent use.
type TurnStore interface {
	// BeginSession registers a new session and returns its identifier.
	BeginSession(ctx context.Context) (string, error)

	// AppendTurn appends one turn to its session's log.
	AppendTurn(ctx context.Context, t Turn) error

	// RecentTurns returns up to limit turns for the session, oldest first.
	RecentTurns(ctx context.Context, sessionID string, limit int) ([]Turn, error)

	// Ping reports whether the backing storage is reachable.
	Ping(ctx context.Context) error

	// Close releases storage resources.
	Close()
}
