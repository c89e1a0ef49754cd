package castlog

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlCastLog = `
CREATE TABLE IF NOT EXISTS cast_log (
    id                    BIGSERIAL        PRIMARY KEY,
    timestamp             TIMESTAMPTZ      NOT NULL DEFAULT now(),
    session_id            TEXT             NOT NULL,
    actor                 TEXT             NOT NULL,
    entry_id              TEXT             NOT NULL,
    text                  TEXT             NOT NULL DEFAULT '',
    confidence            DOUBLE PRECISION NOT NULL DEFAULT 0,
    volume_score          DOUBLE PRECISION NOT NULL DEFAULT 0,
    matched_via_alternate BOOLEAN          NOT NULL DEFAULT false,
    magnitude             DOUBLE PRECISION NOT NULL DEFAULT 0,
    outcome               TEXT             NOT NULL,
    reason                TEXT             NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_cast_log_actor_timestamp
    ON cast_log (actor, timestamp DESC);
`

// Migrate creates the cast_log table and its indexes if they do not exist.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, ddlCastLog); err != nil {
		return fmt.Errorf("castlog: migrate: %w", err)
	}
	return nil
}

var _ Store = (*PostgresSink)(nil)

// PostgresSink stores records in PostgreSQL. All methods are safe for
// concurrent use.
type PostgresSink struct {
	pool *pgxpool.Pool
}

// NewPostgresSink connects to dsn, verifies the connection and runs
// [Migrate]. Close releases the pool.
func NewPostgresSink(ctx context.Context, dsn string) (*PostgresSink, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("castlog: parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("castlog: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("castlog: ping: %w", err)
	}
	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &PostgresSink{pool: pool}, nil
}

// Pool returns the underlying pool, e.g. for health checks.
func (s *PostgresSink) Pool() *pgxpool.Pool { return s.pool }

// Close releases all pooled connections.
func (s *PostgresSink) Close() { s.pool.Close() }

// Ping checks that the database is reachable.
func (s *PostgresSink) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Record inserts rec. A zero timestamp is set to now.
func (s *PostgresSink) Record(ctx context.Context, rec Record) error {
	const q = `
		INSERT INTO cast_log
		    (timestamp, session_id, actor, entry_id, text, confidence,
		     volume_score, matched_via_alternate, magnitude, outcome, reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx, q,
		rec.Timestamp,
		rec.SessionID,
		rec.Actor,
		rec.EntryID,
		rec.Text,
		rec.Confidence,
		rec.VolumeScore,
		rec.MatchedViaAlternate,
		rec.Magnitude,
		string(rec.Outcome),
		rec.Reason,
	)
	if err != nil {
		return fmt.Errorf("castlog: insert: %w", err)
	}
	return nil
}

// Recent returns actor's newest records first.
func (s *PostgresSink) Recent(ctx context.Context, actor string, limit int) ([]Record, error) {
	const q = `
		SELECT timestamp, session_id, actor, entry_id, text, confidence,
		       volume_score, matched_via_alternate, magnitude, outcome, reason
		FROM   cast_log
		WHERE  ($1 = '' OR actor = $1)
		ORDER  BY timestamp DESC, id DESC
		LIMIT  $2`

	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, q, actor, limit)
	if err != nil {
		return nil, fmt.Errorf("castlog: query recent: %w", err)
	}
	recs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Record, error) {
		var (
			r       Record
			outcome string
		)
		if err := row.Scan(
			&r.Timestamp,
			&r.SessionID,
			&r.Actor,
			&r.EntryID,
			&r.Text,
			&r.Confidence,
			&r.VolumeScore,
			&r.MatchedViaAlternate,
			&r.Magnitude,
			&outcome,
			&r.Reason,
		); err != nil {
			return Record{}, err
		}
		r.Outcome = Outcome(outcome)
		return r, nil
	})
	if err != nil {
		return nil, fmt.Errorf("castlog: scan rows: %w", err)
	}
	if recs == nil {
		recs = []Record{}
	}
	return recs, nil
}
