// Package archive persists completed sessions to Postgres for offline
// analysis. The hot path never touches the database; the engine hands a
// terminated session over once and moves on.
package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hivetrap/hivetrap/pkg/session"
)

// Archive writes completed sessions and their intelligence to Postgres.
type Archive struct {
	pool *pgxpool.Pool
}

// New connects to the database and ensures the schema exists. An empty
// databaseURL returns nil; a nil Archive ignores Store calls.
func New(ctx context.Context, databaseURL string) (*Archive, error) {
	if databaseURL == "" {
		return nil, nil
	}

	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	a := &Archive{pool: pool}
	if err := a.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return a, nil
}

func (a *Archive) ensureSchema(ctx context.Context) error {
	_, err := a.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS completed_sessions (
			session_id       TEXT PRIMARY KEY,
			scam_detected    BOOLEAN NOT NULL,
			scam_family      TEXT NOT NULL DEFAULT 'unknown',
			final_confidence DOUBLE PRECISION NOT NULL,
			turns            INTEGER NOT NULL,
			exit_reason      TEXT NOT NULL DEFAULT '',
			history          JSONB NOT NULL,
			created_at       TIMESTAMPTZ NOT NULL,
			completed_at     TIMESTAMPTZ NOT NULL DEFAULT now()
		)`)
	if err != nil {
		return fmt.Errorf("create completed_sessions: %w", err)
	}

	_, err = a.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS intel_items (
			id         BIGSERIAL PRIMARY KEY,
			session_id TEXT NOT NULL REFERENCES completed_sessions(session_id),
			kind       TEXT NOT NULL,
			value      TEXT NOT NULL,
			turn       INTEGER NOT NULL,
			UNIQUE (session_id, kind, value)
		)`)
	if err != nil {
		return fmt.Errorf("create intel_items: %w", err)
	}
	return nil
}

// Store archives one terminated session with its intelligence in a single
// transaction. Re-archiving the same session updates it in place.
func (a *Archive) Store(ctx context.Context, sess *session.Session) error {
	if a == nil {
		return nil
	}
	if !sess.Terminated() {
		return fmt.Errorf("session %s is not terminated", sess.ID)
	}

	history, err := json.Marshal(sess.History)
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}

	tx, err := a.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO completed_sessions
			(session_id, scam_detected, scam_family, final_confidence, turns, exit_reason, history, created_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (session_id) DO UPDATE SET
			scam_detected = EXCLUDED.scam_detected,
			scam_family = EXCLUDED.scam_family,
			final_confidence = EXCLUDED.final_confidence,
			turns = EXCLUDED.turns,
			exit_reason = EXCLUDED.exit_reason,
			history = EXCLUDED.history,
			completed_at = EXCLUDED.completed_at`,
		sess.ID, sess.ScamDetected, string(sess.Family), sess.Confidence,
		sess.Turns, sess.ExitReason, history, sess.CreatedAt, time.Now())
	if err != nil {
		return fmt.Errorf("insert session %s: %w", sess.ID, err)
	}

	for _, it := range sess.Intel {
		_, err = tx.Exec(ctx, `
			INSERT INTO intel_items (session_id, kind, value, turn)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (session_id, kind, value) DO NOTHING`,
			sess.ID, string(it.Kind), it.Value, it.Turn)
		if err != nil {
			return fmt.Errorf("insert intel for %s: %w", sess.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// IntelSummary is one aggregated intelligence row for the admin API.
type IntelSummary struct {
	Kind     string `json:"kind"`
	Value    string `json:"value"`
	Sessions int    `json:"sessions"`
}

// TopIntel returns the most frequently seen intelligence values across
// archived sessions.
func (a *Archive) TopIntel(ctx context.Context, limit int) ([]IntelSummary, error) {
	if a == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 50
	}

	rows, err := a.pool.Query(ctx, `
		SELECT kind, value, COUNT(DISTINCT session_id) AS sessions
		FROM intel_items
		GROUP BY kind, value
		ORDER BY sessions DESC, kind, value
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query intel summary: %w", err)
	}
	defer rows.Close()

	var out []IntelSummary
	for rows.Next() {
		var s IntelSummary
		if err := rows.Scan(&s.Kind, &s.Value, &s.Sessions); err != nil {
			return nil, fmt.Errorf("scan intel summary: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return out, nil
}

// Close releases the connection pool.
func (a *Archive) Close() {
	if a != nil {
		a.pool.Close()
	}
}
