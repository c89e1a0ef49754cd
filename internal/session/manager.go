package session

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/MrWong99/glyphcast/internal/incantation"
	"github.com/MrWong99/glyphcast/internal/match"
	"github.com/MrWong99/glyphcast/internal/textnorm"
)

// Defaults applied by [NewManager] to zero-valued [Config] fields.
const (
	DefaultSilenceWindow = 800 * time.Millisecond
	DefaultPollInterval  = 150 * time.Millisecond
	DefaultLongTextRunes = 40
)

// Config holds the dependencies shared by every session of a [Manager].
type Config struct {
	// Library is the set of castable entries. Required.
	Library *incantation.Library

	// Scorer matches accumulated text. Defaults to match.New().
	Scorer *match.Scorer

	// Clock defaults to time.Now.
	Clock Clock

	// SilenceWindow is how long the speaker must stay quiet before a
	// resolution attempt. Defaults to 800ms.
	SilenceWindow time.Duration

	// LongTextRunes is the length above which accumulated text is cut
	// down to a known trailing phrase. Defaults to 40.
	LongTextRunes int

	// Denylist replaces [DefaultDenylist] when non-nil.
	Denylist []string

	// Eligibility, when set, is consulted for every entry at resolution
	// time (has-learned, affordable, off cooldown).
	Eligibility func(actor string, e incantation.Entry) bool

	// NoMatch, when set, is called by [Manager.Poll] for every silence
	// timeout that found no acceptable entry.
	NoMatch func(s *Session)
}

// Manager owns the live sessions and enforces one per actor. All methods
// are safe for concurrent use.
type Manager struct {
	deps    *deps
	noMatch func(*Session)

	mu   sync.Mutex
	live map[string]*Session
	seq  uint64
}

// NewManager returns a manager configured by cfg.
func NewManager(cfg Config) *Manager {
	d := &deps{
		lib:           cfg.Library,
		scorer:        cfg.Scorer,
		clock:         cfg.Clock,
		silenceWindow: cfg.SilenceWindow,
		longTextRunes: cfg.LongTextRunes,
		eligible:      cfg.Eligibility,
	}
	if d.scorer == nil {
		d.scorer = match.New()
	}
	if d.clock == nil {
		d.clock = time.Now
	}
	if d.silenceWindow <= 0 {
		d.silenceWindow = DefaultSilenceWindow
	}
	if d.longTextRunes <= 0 {
		d.longTextRunes = DefaultLongTextRunes
	}
	words := cfg.Denylist
	if words == nil {
		words = DefaultDenylist
	}
	d.denylist = make(map[string]struct{}, len(words))
	for _, w := range words {
		if n := textnorm.Normalize(w); n != "" {
			d.denylist[n] = struct{}{}
		}
	}
	return &Manager{deps: d, noMatch: cfg.NoMatch, live: make(map[string]*Session)}
}

// Start opens a new listening session for actor. A terminal session left
// behind by a previous cast is replaced.
func (m *Manager) Start(actor string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.live[actor]; ok && !s.State().Terminal() {
		return nil, fmt.Errorf("%w: actor %q (id=%s)", ErrSessionAlreadyActive, actor, s.ID())
	}
	m.seq++
	s := newSession(fmt.Sprintf("cast-%s-%d", actor, m.seq), actor, m.deps)
	m.live[actor] = s
	slog.Debug("session: started", "session_id", s.ID(), "actor", actor)
	return s, nil
}

// Get returns actor's live session.
func (m *Manager) Get(actor string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.live[actor]
	if !ok || s.State().Terminal() {
		return nil, false
	}
	return s, true
}

// Scorer returns the scorer sessions resolve with.
func (m *Manager) Scorer() *match.Scorer { return m.deps.scorer }

// Now returns the current time according to the manager's clock.
func (m *Manager) Now() time.Time { return m.deps.clock() }

// Release forgets s if it is still the session tracked for its actor, and
// reports whether it was. A session that [Manager.Start] already replaced
// leaves its successor in place.
func (m *Manager) Release(s *Session) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.live[s.actor] != s {
		return false
	}
	delete(m.live, s.actor)
	return true
}

// Active returns the number of live sessions.
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, s := range m.live {
		if !s.State().Terminal() {
			n++
		}
	}
	return n
}

// Poll runs a silence check on every live session at now and returns the
// sessions that resolved, ordered by actor. Failed attempts are logged and
// otherwise ignored.
func (m *Manager) Poll(now time.Time) []*Session {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.live))
	for _, s := range m.live {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()

	slices.SortFunc(sessions, func(a, b *Session) int {
		return cmp.Compare(a.actor, b.actor)
	})

	var resolved []*Session
	for _, s := range sessions {
		if s.State().Terminal() {
			continue
		}
		_, ok, err := s.CheckSilenceTimeout(now)
		switch {
		case errors.Is(err, ErrNoMatch):
			slog.Debug("session: no match", "session_id", s.ID(), "actor", s.Actor(), "text", s.Text())
			if m.noMatch != nil {
				m.noMatch(s)
			}
		case err != nil:
			slog.Debug("session: silence check failed", "session_id", s.ID(), "err", err)
		case ok:
			resolved = append(resolved, s)
		}
	}
	return resolved
}

// Run polls every interval until ctx is done, handing each resolved session
// to onResolved. A non-positive interval uses [DefaultPollInterval].
func (m *Manager) Run(ctx context.Context, interval time.Duration, onResolved func(*Session)) {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, s := range m.Poll(m.deps.clock()) {
				if onResolved != nil {
					onResolved(s)
				}
			}
		}
	}
}

// EndRound cancels and releases every session, as at the end of a battle
// round. It returns the number of sessions that were still live.
func (m *Manager) EndRound() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for actor, s := range m.live {
		if s.Cancel() {
			n++
		}
		delete(m.live, actor)
	}
	return n
}
