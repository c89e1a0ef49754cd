package session_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrWong99/glyphcast/internal/incantation"
	"github.com/MrWong99/glyphcast/internal/session"
)

const fireBall = "比那黑更黑的深渊祈求吾之深红闪光觉醒之时已然降临"

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}

func newManager(t *testing.T, clk *fakeClock, mutate ...func(*session.Config)) *session.Manager {
	t.Helper()
	cfg := session.Config{
		Library: incantation.Builtin(),
		Clock:   clk.Now,
	}
	for _, m := range mutate {
		m(&cfg)
	}
	return session.NewManager(cfg)
}

func mustStart(t *testing.T, m *session.Manager, actor string) *session.Session {
	t.Helper()
	s, err := m.Start(actor)
	if err != nil {
		t.Fatalf("Start(%q): %v", actor, err)
	}
	return s
}

func TestManager_Singleton(t *testing.T) {
	t.Parallel()

	m := newManager(t, newFakeClock())
	s := mustStart(t, m, "hero")
	if s.State() != session.Listening {
		t.Errorf("new session state = %s, want listening", s.State())
	}

	_, err := m.Start("hero")
	if !errors.Is(err, session.ErrSessionAlreadyActive) {
		t.Fatalf("second Start err = %v, want ErrSessionAlreadyActive", err)
	}

	if _, err := m.Start("mage"); err != nil {
		t.Errorf("Start for another actor: %v", err)
	}
	if got := m.Active(); got != 2 {
		t.Errorf("Active() = %d, want 2", got)
	}

	s.Cancel()
	s2, err := m.Start("hero")
	if err != nil {
		t.Fatalf("Start after cancel: %v", err)
	}
	if s2.ID() == s.ID() {
		t.Errorf("restarted session reused id %q", s.ID())
	}
}

func TestSession_ResolvesAfterSilence(t *testing.T) {
	t.Parallel()

	clk := newFakeClock()
	m := newManager(t, clk)
	s := mustStart(t, m, "hero")

	if err := s.Ingest("比那黑更黑的深渊", false); err != nil {
		t.Fatalf("Ingest partial: %v", err)
	}
	clk.Advance(300 * time.Millisecond)
	if err := s.Ingest(fireBall+"！", true); err != nil {
		t.Fatalf("Ingest final: %v", err)
	}

	if _, ok, err := s.CheckSilenceTimeout(clk.Advance(799 * time.Millisecond)); ok || err != nil {
		t.Fatalf("resolved before the silence window: ok=%v err=%v", ok, err)
	}
	if s.State() != session.Listening {
		t.Errorf("state = %s, want listening", s.State())
	}

	r, ok, err := s.CheckSilenceTimeout(clk.Advance(time.Millisecond))
	if err != nil || !ok {
		t.Fatalf("CheckSilenceTimeout: ok=%v err=%v", ok, err)
	}
	if r.Entry.ID != "fire_ball" || r.Confidence != 1.0 {
		t.Errorf("result = %s (%.2f), want fire_ball (1.00)", r.Entry.ID, r.Confidence)
	}
	if s.State() != session.Resolved {
		t.Errorf("state = %s, want resolved", s.State())
	}
	if got, ok := s.Result(); !ok || got.Entry.ID != "fire_ball" {
		t.Errorf("Result() = %+v, %v", got, ok)
	}
	if s.StableText() != fireBall {
		t.Errorf("StableText() = %q", s.StableText())
	}
	if _, ok := m.Get("hero"); ok {
		t.Error("resolved session still returned by Get")
	}
}

func TestSession_NoMatchKeepsListening(t *testing.T) {
	t.Parallel()

	clk := newFakeClock()
	m := newManager(t, clk)
	s := mustStart(t, m, "hero")

	if err := s.Ingest("今天天气真好", true); err != nil {
		t.Fatal(err)
	}
	_, ok, err := s.CheckSilenceTimeout(clk.Advance(time.Second))
	if ok || !errors.Is(err, session.ErrNoMatch) {
		t.Fatalf("CheckSilenceTimeout = ok=%v err=%v, want ErrNoMatch", ok, err)
	}
	if s.State() != session.Listening {
		t.Errorf("state = %s, want listening", s.State())
	}

	// No new text: the next attempt waits for another silence window.
	half := session.DefaultSilenceWindow / 2
	if _, ok, err := s.CheckSilenceTimeout(clk.Advance(half)); ok || err != nil {
		t.Errorf("check inside the window: ok=%v err=%v", ok, err)
	}
	if _, _, err := s.CheckSilenceTimeout(clk.Advance(half)); !errors.Is(err, session.ErrNoMatch) {
		t.Errorf("retry after the window: err = %v, want ErrNoMatch", err)
	}

	// The speaker tries again; longer text replaces the chatter.
	if err := s.Ingest("今天天气真好我要普攻", true); err != nil {
		t.Fatal(err)
	}
	if s.State() != session.Listening {
		t.Errorf("state after new text = %s, want listening", s.State())
	}
	r, ok, err := s.CheckSilenceTimeout(clk.Advance(time.Second))
	if err != nil || !ok || r.Entry.ID != "basic_attack" {
		t.Errorf("second attempt: %s ok=%v err=%v", r.Entry.ID, ok, err)
	}
}

func TestSession_EmptyAndDenylisted(t *testing.T) {
	t.Parallel()

	clk := newFakeClock()
	m := newManager(t, clk)
	s := mustStart(t, m, "hero")

	for _, text := range []string{"", "   ", "。！", "确认", "OK!"} {
		if err := s.Ingest(text, true); err != nil {
			t.Errorf("Ingest(%q): %v", text, err)
		}
	}
	if s.Text() != "" {
		t.Errorf("Text() = %q, want empty", s.Text())
	}
	if !s.Deadline().IsZero() {
		t.Error("ignored input moved the deadline")
	}
	if _, ok, err := s.CheckSilenceTimeout(clk.Advance(time.Hour)); ok || err != nil {
		t.Errorf("empty session check: ok=%v err=%v", ok, err)
	}
}

func TestSession_CustomDenylist(t *testing.T) {
	t.Parallel()

	clk := newFakeClock()
	m := newManager(t, clk, func(c *session.Config) { c.Denylist = []string{"稍等"} })
	s := mustStart(t, m, "hero")

	_ = s.Ingest("稍等", true)
	_ = s.Ingest("确认", true)
	if s.Text() != "确认" {
		t.Errorf("Text() = %q, want 确认", s.Text())
	}
}

func TestSession_IdempotentReingest(t *testing.T) {
	t.Parallel()

	m := newManager(t, newFakeClock())
	s := mustStart(t, m, "hero")

	_ = s.Ingest("比那黑更黑的深渊", false)
	_ = s.Ingest(fireBall, true)
	first := s.Text()
	_ = s.Ingest(fireBall, true)
	if s.Text() != first {
		t.Errorf("re-ingest changed text: %q -> %q", first, s.Text())
	}
	if first != fireBall {
		t.Errorf("Text() = %q, want %q", first, fireBall)
	}
}

func TestSession_TerminalStates(t *testing.T) {
	t.Parallel()

	m := newManager(t, newFakeClock())
	s := mustStart(t, m, "hero")

	if !s.Cancel() {
		t.Fatal("Cancel on live session reported no change")
	}
	if s.Cancel() {
		t.Error("second Cancel reported a change")
	}
	if s.State() != session.Cancelled {
		t.Errorf("state = %s, want cancelled", s.State())
	}

	if err := s.Ingest("普攻", true); !errors.Is(err, session.ErrNoActiveSession) {
		t.Errorf("Ingest after cancel err = %v", err)
	}
	if err := s.Restart(); !errors.Is(err, session.ErrNoActiveSession) {
		t.Errorf("Restart after cancel err = %v", err)
	}
	if _, _, err := s.Finalize(time.Now()); !errors.Is(err, session.ErrNoActiveSession) {
		t.Errorf("Finalize after cancel err = %v", err)
	}
	if _, _, err := s.CheckSilenceTimeout(time.Now()); !errors.Is(err, session.ErrNoActiveSession) {
		t.Errorf("CheckSilenceTimeout after cancel err = %v", err)
	}

	s.AddLoudness(1)
	if s.VolumeScore() != 0 {
		t.Errorf("loudness recorded after cancel: %v", s.VolumeScore())
	}
}

func TestSession_Restart(t *testing.T) {
	t.Parallel()

	clk := newFakeClock()
	m := newManager(t, clk)
	s := mustStart(t, m, "hero")
	id := s.ID()

	_ = s.Ingest("治愈", false)
	s.AddLoudness(0.9)
	if err := s.Restart(); err != nil {
		t.Fatalf("Restart: %v", err)
	}
	if s.ID() != id {
		t.Errorf("ID changed: %q -> %q", id, s.ID())
	}
	if s.Text() != "" || s.VolumeScore() != 0 {
		t.Errorf("after restart text=%q volume=%v", s.Text(), s.VolumeScore())
	}
	if s.State() != session.Listening {
		t.Errorf("state = %s, want listening", s.State())
	}
}

func TestSession_Finalize(t *testing.T) {
	t.Parallel()

	clk := newFakeClock()
	m := newManager(t, clk)
	s := mustStart(t, m, "hero")

	if _, ok, err := s.Finalize(clk.Now()); ok || !errors.Is(err, session.ErrNoMatch) {
		t.Errorf("Finalize empty: ok=%v err=%v", ok, err)
	}
	_ = s.Ingest("爆裂", true)
	r, ok, err := s.Finalize(clk.Now())
	if err != nil || !ok {
		t.Fatalf("Finalize: ok=%v err=%v", ok, err)
	}
	if r.Entry.ID != "fire_ball" || !r.MatchedViaAlternate {
		t.Errorf("result = %+v", r)
	}
}

func TestSession_Loudness(t *testing.T) {
	t.Parallel()

	m := newManager(t, newFakeClock())
	s := mustStart(t, m, "hero")
	for range 5 {
		s.AddLoudness(0.5)
	}
	want := 0.5/0.8*0.6 + 1.0*0.4
	if got := s.VolumeScore(); got < want-1e-9 || got > want+1e-9 {
		t.Errorf("VolumeScore() = %v, want %v", got, want)
	}
}

func TestSession_Eligibility(t *testing.T) {
	t.Parallel()

	clk := newFakeClock()
	m := newManager(t, clk, func(c *session.Config) {
		c.Eligibility = func(actor string, e incantation.Entry) bool {
			return actor != "novice" || e.ID == "basic_attack"
		}
	})

	novice := mustStart(t, m, "novice")
	_ = novice.Ingest(fireBall, true)
	if _, _, err := novice.Finalize(clk.Now()); !errors.Is(err, session.ErrNoMatch) {
		t.Errorf("novice cast fire_ball: err = %v", err)
	}

	master := mustStart(t, m, "master")
	_ = master.Ingest(fireBall, true)
	if r, ok, err := master.Finalize(clk.Now()); !ok || err != nil || r.Entry.ID != "fire_ball" {
		t.Errorf("master: %s ok=%v err=%v", r.Entry.ID, ok, err)
	}
}

func TestManager_Poll(t *testing.T) {
	t.Parallel()

	clk := newFakeClock()
	var missed []string
	m := newManager(t, clk, func(cfg *session.Config) {
		cfg.NoMatch = func(s *session.Session) { missed = append(missed, s.Actor()) }
	})
	b := mustStart(t, m, "b")
	a := mustStart(t, m, "a")
	c := mustStart(t, m, "c")

	_ = b.Ingest("普攻", true)
	_ = a.Ingest("治愈之光", true)
	_ = c.Ingest("今天天气真好", true)

	if got := m.Poll(clk.Now()); len(got) != 0 {
		t.Fatalf("Poll before deadline resolved %d sessions", len(got))
	}
	got := m.Poll(clk.Advance(session.DefaultSilenceWindow))
	if len(got) != 2 || got[0].Actor() != "a" || got[1].Actor() != "b" {
		t.Fatalf("Poll resolved %v", actors(got))
	}
	if c.State() != session.Listening {
		t.Errorf("unmatched session state = %s", c.State())
	}
	if got := m.Active(); got != 1 {
		t.Errorf("Active() = %d, want 1", got)
	}
	m.Poll(clk.Advance(session.DefaultSilenceWindow / 2))
	if len(missed) != 1 || missed[0] != "c" {
		t.Errorf("NoMatch calls = %v, want [c]", missed)
	}
	m.Poll(clk.Advance(session.DefaultSilenceWindow / 2))
	if len(missed) != 2 {
		t.Errorf("NoMatch calls = %v, want a retry after one more window", missed)
	}
}

func TestManager_PollRetriesAfterEligibilityChange(t *testing.T) {
	t.Parallel()

	clk := newFakeClock()
	var learned atomic.Bool
	m := newManager(t, clk, func(cfg *session.Config) {
		cfg.Eligibility = func(_ string, e incantation.Entry) bool {
			return e.ID != "heal" || learned.Load()
		}
	})
	s := mustStart(t, m, "hero")
	_ = s.Ingest("治愈之光", true)

	if got := m.Poll(clk.Advance(session.DefaultSilenceWindow)); len(got) != 0 {
		t.Fatalf("unlearned heal resolved: %v", actors(got))
	}
	learned.Store(true)
	if got := m.Poll(clk.Now()); len(got) != 0 {
		t.Fatalf("retry ran before the next window: %v", actors(got))
	}
	got := m.Poll(clk.Advance(session.DefaultSilenceWindow))
	if len(got) != 1 || got[0] != s {
		t.Fatalf("Poll after learning resolved %v", actors(got))
	}
	if r, _ := s.Result(); r.Entry.ID != "heal" {
		t.Errorf("entry = %q, want heal", r.Entry.ID)
	}
}

func actors(ss []*session.Session) []string {
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = s.Actor()
	}
	return out
}

func TestManager_Run(t *testing.T) {
	t.Parallel()

	m := session.NewManager(session.Config{
		Library:       incantation.Builtin(),
		SilenceWindow: 10 * time.Millisecond,
	})
	s := mustStart(t, m, "hero")
	_ = s.Ingest("普攻", true)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resolved := make(chan *session.Session, 1)
	done := make(chan struct{})
	go func() {
		defer close(done)
		m.Run(ctx, 5*time.Millisecond, func(s *session.Session) {
			resolved <- s
			cancel()
		})
	}()

	select {
	case got := <-resolved:
		if got.ID() != s.ID() {
			t.Errorf("resolved %q, want %q", got.ID(), s.ID())
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not resolve the session")
	}
	<-done
}

func TestManager_EndRoundAndRelease(t *testing.T) {
	t.Parallel()

	m := newManager(t, newFakeClock())
	a := mustStart(t, m, "a")
	mustStart(t, m, "b")
	b, _ := m.Get("b")
	b.Cancel()

	if n := m.EndRound(); n != 1 {
		t.Errorf("EndRound() = %d, want 1", n)
	}
	if a.State() != session.Cancelled {
		t.Errorf("a state = %s, want cancelled", a.State())
	}
	if m.Active() != 0 {
		t.Errorf("Active() = %d after EndRound", m.Active())
	}

	a = mustStart(t, m, "a")
	if !m.Release(a) {
		t.Error("Release(a) = false for the tracked session")
	}
	if _, ok := m.Get("a"); ok {
		t.Error("Get after Release found a session")
	}
	if m.Release(a) {
		t.Error("second Release(a) = true")
	}
}

func TestManager_ReleaseKeepsSuccessor(t *testing.T) {
	t.Parallel()

	clk := newFakeClock()
	m := newManager(t, clk)
	first := mustStart(t, m, "hero")
	if !first.Cancel() {
		t.Fatal("Cancel() = false on a listening session")
	}
	second := mustStart(t, m, "hero")

	if m.Release(first) {
		t.Error("Release(first) = true after the actor started again")
	}
	got, ok := m.Get("hero")
	if !ok || got != second {
		t.Fatalf("Get(hero) = %v, %t; want the second session", got, ok)
	}
	if m.Active() != 1 {
		t.Errorf("Active() = %d, want 1", m.Active())
	}
	if _, err := m.Start("hero"); !errors.Is(err, session.ErrSessionAlreadyActive) {
		t.Errorf("Start over the second session: err = %v", err)
	}
}

func TestState_String(t *testing.T) {
	t.Parallel()

	tests := map[session.State]string{
		session.Idle:           "idle",
		session.Listening:      "listening",
		session.SilencePending: "silence_pending",
		session.Resolved:       "resolved",
		session.Cancelled:      "cancelled",
		session.State(42):      "state(42)",
	}
	for s, want := range tests {
		if got := s.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", int(s), got, want)
		}
	}
}
