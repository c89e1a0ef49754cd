// Package mock provides scripted doubles for the stt interfaces.
//
// A [Session] behaves like a live recogniser stream: tests push what the
// player "says" with [Session.Say] (interim) and [Session.Commit] (final),
// and the stream ends when [Session.Finish] or [Session.Close] is called,
// whichever comes first. Audio chunks and keyword updates are recorded.
//
//	sess := mock.NewSession(4)
//	sess.Say("比那黑更黑")
//	sess.Commit("比那黑更黑的深渊")
//	sess.Finish()
//	err := caster.Listen(ctx, "hero", sess)
package mock

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/MrWong99/glyphcast/pkg/provider/stt"
	"github.com/MrWong99/glyphcast/pkg/types"
)

// StartStreamCall records one [Provider.StartStream] invocation.
type StartStreamCall struct {
	Ctx context.Context
	Cfg stt.StreamConfig
}

// Provider is a scripted [stt.Provider].
type Provider struct {
	mu sync.Mutex

	// Session is returned by every StartStream call. When nil each call
	// gets a fresh buffered Session, retrievable through Sessions.
	Session *Session

	// StartStreamErr fails every StartStream call.
	StartStreamErr error

	StartStreamCalls []StartStreamCall

	started []*Session
}

var _ stt.Provider = (*Provider)(nil)

// StartStream records the call and returns the scripted session.
func (p *Provider) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.StartStreamCalls = append(p.StartStreamCalls, StartStreamCall{Ctx: ctx, Cfg: cfg})
	if p.StartStreamErr != nil {
		return nil, p.StartStreamErr
	}
	s := p.Session
	if s == nil {
		s = NewSession(16)
	}
	p.started = append(p.started, s)
	return s, nil
}

// Sessions returns the sessions handed out so far, oldest first.
func (p *Provider) Sessions() []*Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.started)
}

// Session is a scripted [stt.SessionHandle].
type Session struct {
	// PartialsCh and FinalsCh back Partials and Finals. Tests may send on
	// them directly instead of using Say and Commit.
	PartialsCh chan types.Transcript
	FinalsCh   chan types.Transcript

	// SendAudioErr, SetKeywordsErr and CloseErr are returned by the
	// matching methods when set.
	SendAudioErr   error
	SetKeywordsErr error
	CloseErr       error

	// CloseCallCount counts Close calls.
	CloseCallCount int

	mu       sync.Mutex
	audio    [][]byte
	keywords [][]types.KeywordBoost
	start    time.Time
	endOnce  sync.Once
}

var _ stt.SessionHandle = (*Session)(nil)

// NewSession returns a Session whose transcript channels buffer size items.
func NewSession(size int) *Session {
	return &Session{
		PartialsCh: make(chan types.Transcript, size),
		FinalsCh:   make(chan types.Transcript, size),
		start:      time.Now(),
	}
}

// Say emits an interim hypothesis. It blocks when the buffer is full.
func (s *Session) Say(text string) {
	s.PartialsCh <- s.transcript(text, false)
}

// Commit emits a final hypothesis. It blocks when the buffer is full.
func (s *Session) Commit(text string) {
	s.FinalsCh <- s.transcript(text, true)
}

func (s *Session) transcript(text string, final bool) types.Transcript {
	return types.Transcript{
		Text:       text,
		IsFinal:    final,
		Confidence: 1,
		Timestamp:  time.Since(s.start),
	}
}

// Finish ends the stream by closing both transcript channels. It is safe
// to call more than once and together with Close.
func (s *Session) Finish() {
	s.endOnce.Do(func() {
		close(s.PartialsCh)
		close(s.FinalsCh)
	})
}

// SendAudio records a copy of chunk.
func (s *Session) SendAudio(chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audio = append(s.audio, slices.Clone(chunk))
	return s.SendAudioErr
}

// Partials returns PartialsCh.
func (s *Session) Partials() <-chan types.Transcript { return s.PartialsCh }

// Finals returns FinalsCh.
func (s *Session) Finals() <-chan types.Transcript { return s.FinalsCh }

// SetKeywords records a copy of keywords.
func (s *Session) SetKeywords(keywords []types.KeywordBoost) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keywords = append(s.keywords, slices.Clone(keywords))
	return s.SetKeywordsErr
}

// Close counts the call and ends the stream, as a provider does when its
// connection closes.
func (s *Session) Close() error {
	s.mu.Lock()
	s.CloseCallCount++
	err := s.CloseErr
	s.mu.Unlock()
	s.Finish()
	return err
}

// Audio returns copies of every chunk sent so far.
func (s *Session) Audio() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.audio)
}

// SendAudioCallCount returns how many chunks were sent.
func (s *Session) SendAudioCallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.audio)
}

// KeywordUpdates returns every keyword list passed to SetKeywords.
func (s *Session) KeywordUpdates() [][]types.KeywordBoost {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.keywords)
}

// Closes returns how many times Close was called.
func (s *Session) Closes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.CloseCallCount
}
