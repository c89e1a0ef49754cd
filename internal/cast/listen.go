package cast

import (
	"context"
	"errors"
	"log/slog"

	"github.com/MrWong99/glyphcast/internal/session"
	"github.com/MrWong99/glyphcast/pkg/provider/stt"
	"github.com/MrWong99/glyphcast/pkg/types"
)

// Listen feeds the transcripts of an STT stream into actor's live session
// until ctx is done or the stream closes both channels. Transcripts that
// arrive while the actor has no live session are dropped, so one stream can
// serve many casts. Listen does not close h.
func (c *Caster) Listen(ctx context.Context, actor string, h stt.SessionHandle) error {
	partials, finals := h.Partials(), h.Finals()
	for partials != nil || finals != nil {
		var (
			t  types.Transcript
			ok bool
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case t, ok = <-partials:
			if !ok {
				partials = nil
				continue
			}
		case t, ok = <-finals:
			if !ok {
				finals = nil
				continue
			}
		}
		c.cfg.Metrics.RecordTranscript(ctx, c.cfg.Provider, t.IsFinal)

		err := c.Ingest(actor, t.Text, t.IsFinal)
		switch {
		case errors.Is(err, session.ErrNoActiveSession):
			slog.Debug("cast: transcript without session", "actor", actor, "text", t.Text)
		case err != nil:
			slog.Warn("cast: ingest failed", "actor", actor, "err", err)
		}
	}
	return nil
}
