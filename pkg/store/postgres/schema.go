package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlSessions = `
CREATE TABLE IF NOT EXISTS sessions (
    id         UUID         PRIMARY KEY DEFAULT gen_random_uuid(),
    started_at TIMESTAMPTZ  NOT NULL DEFAULT now()
);`

const ddlTurns = `
CREATE TABLE IF NOT EXISTS turns (
    id         BIGSERIAL    PRIMARY KEY,
    session_id UUID         NOT NULL REFERENCES sessions (id),
    role       TEXT         NOT NULL,
    content    TEXT         NOT NULL,
    latency_ns BIGINT       NOT NULL DEFAULT 0,
    created_at TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_turns_session_id
    ON turns (session_id);

CREATE INDEX IF NOT EXISTS idx_turns_session_created
    ON turns (session_id, created_at);`

// Migrate creates the sessions and turns tables and their indexes. It is
// idempotent and safe to run on every startup.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for _, ddl := range []string{ddlSessions, ddlTurns} {
		if _, err := pool.Exec(ctx, ddl); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
