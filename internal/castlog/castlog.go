// Package castlog records resolved and rejected casts.
//
// Two backends are provided: [FileSink] appends JSON lines to a local file
// and [PostgresSink] writes to a cast_log table. [Multi] fans a record out to
// several sinks. Both backends can read back an actor's most recent casts.
package castlog

import (
	"context"
	"errors"
	"time"
)

// Outcome says what happened to a cast after matching.
type Outcome string

const (
	// OutcomeApplied means the cast passed every gate and reached the
	// effect applier.
	OutcomeApplied Outcome = "applied"

	// OutcomeRejected means a gate (cooldown, resource) refused the cast.
	OutcomeRejected Outcome = "rejected"
)

// Record is one cast log entry.
type Record struct {
	Timestamp           time.Time `json:"timestamp"`
	SessionID           string    `json:"session_id"`
	Actor               string    `json:"actor"`
	EntryID             string    `json:"entry_id"`
	Text                string    `json:"text"`
	Confidence          float64   `json:"confidence"`
	VolumeScore         float64   `json:"volume_score"`
	MatchedViaAlternate bool      `json:"matched_via_alternate,omitempty"`
	Magnitude           float64   `json:"magnitude"`
	Outcome             Outcome   `json:"outcome"`
	Reason              string    `json:"reason,omitempty"`
}

// Sink persists cast records. Implementations must be safe for concurrent
// use.
type Sink interface {
	Record(ctx context.Context, rec Record) error
}

// Store is a Sink that can also read back history.
type Store interface {
	Sink

	// Recent returns up to limit of actor's most recent records, newest
	// first. An empty actor matches every actor.
	Recent(ctx context.Context, actor string, limit int) ([]Record, error)
}

// Multi fans records out to every sink and joins their errors.
type Multi []Sink

var _ Sink = Multi(nil)

// Record writes rec to every sink, even if an earlier one fails.
func (m Multi) Record(ctx context.Context, rec Record) error {
	var errs []error
	for _, s := range m {
		if err := s.Record(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
