// Package cast wires the matching pipeline into a single engine façade.
//
// A [Caster] owns the session manager and drives every resolved session
// through the gates a game applies after matching: cooldown, resource cost,
// magnitude resolution. Accepted casts go to the host's [Applier] and to the
// configured cast log; refused ones are reported through
// [Applier.Rejected].
//
// Typical use:
//
//	c, err := cast.New(cast.Config{Library: lib, Applier: game})
//	_, _ = c.Begin("hero")
//	_ = c.Ingest("hero", "比那黑更黑的深渊", true)
//	go c.Run(ctx, 0)
package cast

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/MrWong99/glyphcast/internal/castlog"
	"github.com/MrWong99/glyphcast/internal/cooldown"
	"github.com/MrWong99/glyphcast/internal/incantation"
	"github.com/MrWong99/glyphcast/internal/magnitude"
	"github.com/MrWong99/glyphcast/internal/match"
	"github.com/MrWong99/glyphcast/internal/observe"
	"github.com/MrWong99/glyphcast/internal/session"
)

// DefaultActorPower is the power stat used when no PowerOf hook is set.
const DefaultActorPower = 100

var (
	// ErrOnCooldown is reported when the matched entry is still cooling
	// down for the actor.
	ErrOnCooldown = errors.New("cast: entry is on cooldown")

	// ErrInsufficientResource is reported when the actor cannot pay the
	// entry's cost.
	ErrInsufficientResource = errors.New("cast: insufficient resource")
)

// ResolvedCast is a cast that passed every gate.
type ResolvedCast struct {
	SessionID           string
	Actor               string
	Entry               incantation.Entry
	Text                string
	Confidence          float64
	VolumeScore         float64
	MatchedViaAlternate bool
	Magnitude           float64

	// Breakdown lists the factors that produced Magnitude.
	Breakdown magnitude.Breakdown

	ResolvedAt time.Time
}

// Applier is the game-side collaborator that turns casts into effects.
type Applier interface {
	// Apply applies a resolved cast. It is called from the poll loop and
	// should not block for long.
	Apply(ctx context.Context, c ResolvedCast)

	// Rejected reports a matched entry that a gate refused. err wraps
	// [ErrOnCooldown] or [ErrInsufficientResource].
	Rejected(ctx context.Context, actor string, entry incantation.Entry, err error)
}

// Resources reports whether an actor can pay a cost. Deducting the cost is
// the applier's job.
type Resources interface {
	CanAfford(actor string, cost float64) bool
}

// ResourcesFunc adapts a function to [Resources].
type ResourcesFunc func(actor string, cost float64) bool

// CanAfford calls f.
func (f ResourcesFunc) CanAfford(actor string, cost float64) bool { return f(actor, cost) }

// Config holds the collaborators of a [Caster]. Only Library and Applier are
// required.
type Config struct {
	Library *incantation.Library

	// Session configures the session manager. Its Library, Eligibility and
	// NoMatch fields are set by New.
	Session session.Config

	Cooldowns *cooldown.Registry
	Resolver  *magnitude.Resolver
	Applier   Applier

	// Sink receives a record for every applied or rejected cast.
	Sink castlog.Sink

	// Metrics defaults to observe.DefaultMetrics().
	Metrics *observe.Metrics

	// Resources gates on Entry.Cost when set.
	Resources Resources

	// Learned restricts matching to entries the actor knows.
	Learned func(actor string, e incantation.Entry) bool

	// PowerOf returns the actor's power stat. Defaults to ActorPower.
	PowerOf func(actor string) float64

	// ActorPower is the fallback power stat. Defaults to 100.
	ActorPower float64

	// ElementModifier returns the type-effectiveness factor for a cast.
	// Defaults to 1.
	ElementModifier func(actor string, e incantation.Entry) float64

	// TargetTags returns the tags of the actor's current target for the
	// magnitude override table.
	TargetTags func(actor string) []string

	// Provider labels transcript metrics in Listen. Defaults to "stt".
	Provider string
}

// Caster runs the full casting pipeline. All methods are safe for
// concurrent use.
type Caster struct {
	cfg      Config
	sessions *session.Manager
}

// New validates cfg and returns a Caster.
func New(cfg Config) (*Caster, error) {
	if cfg.Library == nil {
		return nil, errors.New("cast: library must not be nil")
	}
	if cfg.Applier == nil {
		return nil, errors.New("cast: applier must not be nil")
	}
	if cfg.Cooldowns == nil {
		cfg.Cooldowns = cooldown.New()
	}
	if cfg.Resolver == nil {
		cfg.Resolver = magnitude.NewResolver()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}
	if cfg.ActorPower <= 0 {
		cfg.ActorPower = DefaultActorPower
	}
	if cfg.Provider == "" {
		cfg.Provider = "stt"
	}

	c := &Caster{cfg: cfg}
	sc := cfg.Session
	sc.Library = cfg.Library
	sc.Eligibility = c.eligible
	sc.NoMatch = func(s *session.Session) {
		cfg.Metrics.RecordNoMatch(context.Background())
	}
	c.sessions = session.NewManager(sc)
	return c, nil
}

// Sessions returns the underlying session manager.
func (c *Caster) Sessions() *session.Manager { return c.sessions }

// Cooldowns returns the cooldown registry.
func (c *Caster) Cooldowns() *cooldown.Registry { return c.cfg.Cooldowns }

// Library returns the incantation library.
func (c *Caster) Library() *incantation.Library { return c.cfg.Library }

// eligible admits entries the actor has learned. Cooldown and cost are
// gates applied after matching.
func (c *Caster) eligible(actor string, e incantation.Entry) bool {
	return c.cfg.Learned == nil || c.cfg.Learned(actor, e)
}

// Begin opens a listening session for actor.
func (c *Caster) Begin(actor string) (*session.Session, error) {
	s, err := c.sessions.Start(actor)
	if err != nil {
		return nil, fmt.Errorf("cast: begin: %w", err)
	}
	c.cfg.Metrics.SessionOpened(context.Background())
	return s, nil
}

func (c *Caster) live(actor string) (*session.Session, error) {
	s, ok := c.sessions.Get(actor)
	if !ok {
		return nil, fmt.Errorf("cast: actor %q: %w", actor, session.ErrNoActiveSession)
	}
	return s, nil
}

// Ingest forwards a recogniser hypothesis to actor's live session.
func (c *Caster) Ingest(actor, text string, isFinal bool) error {
	s, err := c.live(actor)
	if err != nil {
		return err
	}
	return s.Ingest(text, isFinal)
}

// AddLoudness forwards a loudness sample to actor's live session. Samples
// for actors without a live session are dropped.
func (c *Caster) AddLoudness(actor string, v float64) {
	if s, ok := c.sessions.Get(actor); ok {
		s.AddLoudness(v)
	}
}

// Cancel cancels and releases actor's live session.
func (c *Caster) Cancel(actor string) error {
	s, err := c.live(actor)
	if err != nil {
		return err
	}
	if s.Cancel() {
		c.cfg.Metrics.SessionsDropped(context.Background(), 1)
	}
	c.sessions.Release(s)
	slog.Debug("cast: cancelled", "session_id", s.ID(), "actor", actor)
	return nil
}

// Restart clears actor's accumulated text and loudness.
func (c *Caster) Restart(actor string) error {
	s, err := c.live(actor)
	if err != nil {
		return err
	}
	return s.Restart()
}

// Tick advances actor's cooldowns by one turn.
func (c *Caster) Tick(actor string) { c.cfg.Cooldowns.Tick(actor) }

// EndRound cancels every live session.
func (c *Caster) EndRound() int {
	n := c.sessions.EndRound()
	c.cfg.Metrics.SessionsDropped(context.Background(), n)
	return n
}

// Poll runs one silence check over every live session at now and completes
// the sessions that resolved. It returns the casts that were applied.
func (c *Caster) Poll(ctx context.Context, now time.Time) []ResolvedCast {
	var out []ResolvedCast
	for _, s := range c.sessions.Poll(now) {
		if rc, err := c.complete(ctx, s, now); err == nil {
			out = append(out, rc)
		}
	}
	return out
}

// Candidates ranks text against the entries actor may cast, best first.
// It does not touch any session and is meant for diagnostics.
func (c *Caster) Candidates(actor, text string, limit int) []match.Result {
	return c.sessions.Scorer().Rank(text, c.cfg.Library, func(e incantation.Entry) bool {
		return c.eligible(actor, e)
	}, limit)
}

// Finalize resolves actor's live session now, without waiting for the
// silence window. A failed match returns [session.ErrNoMatch] and keeps the
// session open.
func (c *Caster) Finalize(ctx context.Context, actor string) (ResolvedCast, error) {
	s, err := c.live(actor)
	if err != nil {
		return ResolvedCast{}, err
	}
	now := c.sessions.Now()
	if _, _, err := s.Finalize(now); err != nil {
		if errors.Is(err, session.ErrNoMatch) {
			c.cfg.Metrics.RecordNoMatch(ctx)
		}
		return ResolvedCast{}, fmt.Errorf("cast: finalize: %w", err)
	}
	return c.complete(ctx, s, now)
}

// Run polls every interval until ctx is done. A non-positive interval uses
// session.DefaultPollInterval.
func (c *Caster) Run(ctx context.Context, interval time.Duration) {
	c.sessions.Run(ctx, interval, func(s *session.Session) {
		_, _ = c.complete(ctx, s, c.sessions.Now())
	})
}

// complete releases a resolved session and pushes its match through the
// gates. The returned error is also reported to the applier.
func (c *Caster) complete(ctx context.Context, s *session.Session, now time.Time) (rc ResolvedCast, err error) {
	res, ok := s.Result()
	if !ok {
		return ResolvedCast{}, fmt.Errorf("cast: session %s: %w", s.ID(), session.ErrNoMatch)
	}
	actor, entry := s.Actor(), res.Entry
	c.sessions.Release(s)
	c.cfg.Metrics.SessionResolved(ctx, now.Sub(s.StartedAt()))

	ctx, span := observe.StartCastSpan(ctx, "cast.complete", actor, s.ID(),
		attribute.String("entry", entry.ID),
		attribute.Float64("confidence", res.Confidence),
	)
	defer func() { observe.EndSpan(span, err) }()

	volume := s.VolumeScore()
	rec := castlog.Record{
		Timestamp:           now,
		SessionID:           s.ID(),
		Actor:               actor,
		EntryID:             entry.ID,
		Text:                s.Text(),
		Confidence:          res.Confidence,
		VolumeScore:         volume,
		MatchedViaAlternate: res.MatchedViaAlternate,
	}

	if err := c.gate(actor, entry); err != nil {
		c.reject(ctx, rec, entry, err)
		return ResolvedCast{}, err
	}

	b := c.cfg.Resolver.Breakdown(magnitude.Input{
		Entry:               entry,
		ActorPower:          c.powerOf(actor),
		Confidence:          res.Confidence,
		VolumeScore:         volume,
		MatchedViaAlternate: res.MatchedViaAlternate,
		ElementModifier:     c.elementModifier(actor, entry),
		TargetTags:          c.targetTags(actor),
	})
	c.cfg.Cooldowns.Set(actor, entry.ID, entry.CooldownTurns)

	rc = ResolvedCast{
		SessionID:           s.ID(),
		Actor:               actor,
		Entry:               entry,
		Text:                rec.Text,
		Confidence:          res.Confidence,
		VolumeScore:         volume,
		MatchedViaAlternate: res.MatchedViaAlternate,
		Magnitude:           b.Magnitude,
		Breakdown:           b,
		ResolvedAt:          now,
	}
	span.SetAttributes(attribute.Float64("magnitude", b.Magnitude))
	c.cfg.Applier.Apply(ctx, rc)
	c.cfg.Metrics.RecordCast(ctx, entry.ID, res.MatchedViaAlternate, res.Confidence, volume, b.Magnitude)

	rec.Magnitude = b.Magnitude
	rec.Outcome = castlog.OutcomeApplied
	c.record(ctx, rec)

	observe.Logger(ctx).Info("cast: applied",
		"entry", entry.ID,
		"confidence", res.Confidence,
		"volume", volume,
		"magnitude", b.Magnitude,
	)
	return rc, nil
}

// gate applies the post-match checks.
func (c *Caster) gate(actor string, e incantation.Entry) error {
	if n := c.cfg.Cooldowns.Remaining(actor, e.ID); n > 0 {
		return fmt.Errorf("cast: %s has %d turns left: %w", e.ID, n, ErrOnCooldown)
	}
	if c.cfg.Resources != nil && e.Cost > 0 && !c.cfg.Resources.CanAfford(actor, e.Cost) {
		return fmt.Errorf("cast: %s costs %g: %w", e.ID, e.Cost, ErrInsufficientResource)
	}
	return nil
}

func (c *Caster) reject(ctx context.Context, rec castlog.Record, e incantation.Entry, err error) {
	reason := "unknown"
	switch {
	case errors.Is(err, ErrOnCooldown):
		reason = "cooldown"
	case errors.Is(err, ErrInsufficientResource):
		reason = "resource"
	}
	c.cfg.Metrics.RecordRejection(ctx, e.ID, reason)
	c.cfg.Applier.Rejected(ctx, rec.Actor, e, err)

	rec.Outcome = castlog.OutcomeRejected
	rec.Reason = reason
	c.record(ctx, rec)
	observe.Logger(ctx).Info("cast: rejected", "entry", e.ID, "reason", reason)
}

func (c *Caster) record(ctx context.Context, rec castlog.Record) {
	if c.cfg.Sink == nil {
		return
	}
	if err := c.cfg.Sink.Record(ctx, rec); err != nil {
		observe.Logger(ctx).Warn("cast: record failed", "entry", rec.EntryID, "err", err)
	}
}

func (c *Caster) powerOf(actor string) float64 {
	if c.cfg.PowerOf != nil {
		if p := c.cfg.PowerOf(actor); p > 0 {
			return p
		}
	}
	return c.cfg.ActorPower
}

func (c *Caster) elementModifier(actor string, e incantation.Entry) float64 {
	if c.cfg.ElementModifier == nil {
		return 1
	}
	return c.cfg.ElementModifier(actor, e)
}

func (c *Caster) targetTags(actor string) []string {
	if c.cfg.TargetTags == nil {
		return nil
	}
	return c.cfg.TargetTags(actor)
}
