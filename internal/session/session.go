// Package session implements the per-actor casting session: a small state
// machine that accumulates speech recogniser hypotheses, repairs the
// recogniser's usual glitches, and resolves the utterance against the
// incantation library once the speaker falls silent.
//
// Sessions never start timers. The host polls [Session.CheckSilenceTimeout]
// (usually through [Manager.Poll] or [Manager.Run]) with the current time;
// the clock is injected so tests can drive every transition explicitly.
//
// State transitions:
//
//	Idle → Listening                     (Manager.Start)
//	Listening → SilencePending           (silence window elapsed)
//	SilencePending → Resolved            (a match was accepted)
//	SilencePending → Listening           (no match, or new text arrived)
//	Listening|SilencePending → Cancelled (Cancel)
//
// Resolved and Cancelled are terminal. A failed attempt pushes the
// deadline out by another silence window, so a quiet session retries at
// most once per window and picks up eligibility changes without new text.
package session

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/glyphcast/internal/incantation"
	"github.com/MrWong99/glyphcast/internal/loudness"
	"github.com/MrWong99/glyphcast/internal/match"
	"github.com/MrWong99/glyphcast/internal/textnorm"
)

// Sentinel errors returned by sessions and the manager.
var (
	// ErrSessionAlreadyActive is returned by [Manager.Start] when the actor
	// already has a live session.
	ErrSessionAlreadyActive = errors.New("session: a session is already active")

	// ErrNoActiveSession is returned when an operation needs a live
	// session and there is none, or the session is already terminal.
	ErrNoActiveSession = errors.New("session: no active session")

	// ErrNoMatch is returned when a resolution attempt found no candidate
	// above the acceptance threshold. The session keeps listening.
	ErrNoMatch = errors.New("session: no matching incantation")
)

// State is the lifecycle state of a [Session].
type State int

const (
	Idle State = iota
	Listening
	SilencePending
	Resolved
	Cancelled
)

// String returns the lower-case name of the state.
func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Listening:
		return "listening"
	case SilencePending:
		return "silence_pending"
	case Resolved:
		return "resolved"
	case Cancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	return s == Resolved || s == Cancelled
}

// Clock returns the current time.
type Clock func() time.Time

// Session accumulates one actor's spoken text until it resolves to a library
// entry or is cancelled. All methods are safe for concurrent use.
type Session struct {
	id        string
	actor     string
	startedAt time.Time
	deps      *deps

	mu       sync.Mutex
	state    State
	text     string
	stable   string
	deadline time.Time
	loud     loudness.Tracker
	result   match.Result
}

// deps are the collaborators shared by every session of a manager.
type deps struct {
	lib           *incantation.Library
	scorer        *match.Scorer
	clock         Clock
	silenceWindow time.Duration
	longTextRunes int
	denylist      map[string]struct{}
	eligible      func(actor string, e incantation.Entry) bool
}

func newSession(id, actor string, d *deps) *Session {
	return &Session{
		id:        id,
		actor:     actor,
		startedAt: d.clock(),
		deps:      d,
		state:     Listening,
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Actor returns the actor the session belongs to.
func (s *Session) Actor() string { return s.actor }

// StartedAt returns the time the session was started.
func (s *Session) StartedAt() time.Time { return s.startedAt }

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Text returns the accumulated, normalised text.
func (s *Session) Text() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.text
}

// StableText returns the accumulated text as of the last final hypothesis.
func (s *Session) StableText() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stable
}

// Deadline returns the time at which the silence window elapses. It is zero
// until the first text is accepted.
func (s *Session) Deadline() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deadline
}

// VolumeScore returns the loudness score gathered so far.
func (s *Session) VolumeScore() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loud.VolumeScore()
}

// Result returns the accepted match once the session is resolved.
func (s *Session) Result() (match.Result, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result, s.state == Resolved
}

// Ingest feeds a recogniser hypothesis into the session. Empty text and
// denylisted utterances are ignored. Every accepted call pushes the silence
// deadline out and returns a silence-pending session to listening.
func (s *Session) Ingest(text string, isFinal bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.Terminal() {
		return fmt.Errorf("session %s: ingest: %w", s.id, ErrNoActiveSession)
	}
	norm := textnorm.Normalize(text)
	if norm == "" {
		return nil
	}
	if _, ok := s.deps.denylist[norm]; ok {
		slog.Debug("session: dropped denylisted utterance", "session_id", s.id, "text", norm)
		return nil
	}

	s.text = reconcile(s.text, norm, s.deps.longTextRunes, s.deps.lib)
	if isFinal {
		s.stable = s.text
	}
	s.deadline = s.deps.clock().Add(s.deps.silenceWindow)
	if s.state == SilencePending {
		s.state = Listening
	}
	return nil
}

// CheckSilenceTimeout attempts resolution when the silence window has
// elapsed at now. It reports true once the session is resolved. A failed
// attempt returns [ErrNoMatch] and leaves the session listening until the
// next window elapses.
func (s *Session) CheckSilenceTimeout(now time.Time) (match.Result, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.state.Terminal():
		return match.Result{}, false, fmt.Errorf("session %s: check silence: %w", s.id, ErrNoActiveSession)
	case s.state == SilencePending, s.text == "", now.Before(s.deadline):
		return match.Result{}, false, nil
	}
	s.state = SilencePending
	return s.resolveLocked(now)
}

// Finalize resolves immediately, ignoring the silence deadline.
func (s *Session) Finalize(now time.Time) (match.Result, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.Terminal() {
		return match.Result{}, false, fmt.Errorf("session %s: finalize: %w", s.id, ErrNoActiveSession)
	}
	s.state = SilencePending
	return s.resolveLocked(now)
}

// resolveLocked matches the accumulated text. On failure the session goes
// back to listening with a fresh deadline.
func (s *Session) resolveLocked(now time.Time) (match.Result, bool, error) {
	if s.text == "" {
		s.state = Listening
		return match.Result{}, false, fmt.Errorf("session %s: %w", s.id, ErrNoMatch)
	}
	var eligible match.Eligibility
	if s.deps.eligible != nil {
		eligible = func(e incantation.Entry) bool {
			return s.deps.eligible(s.actor, e)
		}
	}
	r, ok := s.deps.scorer.FindBestMatch(s.text, s.deps.lib, eligible)
	if !ok {
		s.state = Listening
		s.deadline = now.Add(s.deps.silenceWindow)
		return match.Result{}, false, fmt.Errorf("session %s: %q: %w", s.id, s.text, ErrNoMatch)
	}
	s.state = Resolved
	s.result = r
	slog.Debug("session: resolved",
		"session_id", s.id,
		"actor", s.actor,
		"entry", r.Entry.ID,
		"confidence", r.Confidence,
	)
	return r, true, nil
}

// Cancel moves a live session to Cancelled. Cancelling a terminal session
// does nothing. It reports whether the state changed.
func (s *Session) Cancel() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Terminal() {
		return false
	}
	s.state = Cancelled
	return true
}

// Restart discards the accumulated text and loudness statistics while
// keeping the session ID.
func (s *Session) Restart() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Listening && s.state != SilencePending {
		return fmt.Errorf("session %s: restart from %s: %w", s.id, s.state, ErrNoActiveSession)
	}
	s.state = Listening
	s.text = ""
	s.stable = ""
	s.deadline = time.Time{}
	s.loud.Reset()
	return nil
}

// AddLoudness records a loudness sample in [0,1]. Samples arriving after
// the session ended are dropped.
func (s *Session) AddLoudness(v float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Terminal() {
		return
	}
	s.loud.AddSample(v)
}
