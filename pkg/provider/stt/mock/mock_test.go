package mock

import (
	"context"
	"errors"
	"testing"

	"github.com/MrWong99/glyphcast/pkg/provider/stt"
	"github.com/MrWong99/glyphcast/pkg/types"
)

func TestSession_SayCommitFinish(t *testing.T) {
	t.Parallel()

	s := NewSession(2)
	s.Say("比那黑")
	s.Commit("比那黑更黑的深渊")
	s.Finish()
	s.Finish()

	var partials, finals []types.Transcript
	for tr := range s.Partials() {
		partials = append(partials, tr)
	}
	for tr := range s.Finals() {
		finals = append(finals, tr)
	}
	if len(partials) != 1 || partials[0].IsFinal || partials[0].Text != "比那黑" {
		t.Errorf("partials = %+v", partials)
	}
	if len(finals) != 1 || !finals[0].IsFinal || finals[0].Text != "比那黑更黑的深渊" {
		t.Errorf("finals = %+v", finals)
	}
}

func TestSession_CloseEndsStream(t *testing.T) {
	t.Parallel()

	s := NewSession(1)
	s.CloseErr = errors.New("already closed")
	if err := s.Close(); !errors.Is(err, s.CloseErr) {
		t.Errorf("Close() = %v", err)
	}
	_ = s.Close()
	if s.Closes() != 2 {
		t.Errorf("Closes = %d, want 2", s.Closes())
	}
	if _, ok := <-s.Finals(); ok {
		t.Error("finals still open after Close")
	}
}

func TestSession_RecordsAudioAndKeywords(t *testing.T) {
	t.Parallel()

	s := NewSession(1)
	chunk := []byte{1, 2}
	_ = s.SendAudio(chunk)
	chunk[0] = 9
	_ = s.SetKeywords([]types.KeywordBoost{{Keyword: "深渊", Boost: 2}})

	if got := s.Audio(); len(got) != 1 || got[0][0] != 1 {
		t.Errorf("audio = %v, want an unaliased copy", got)
	}
	if got := s.KeywordUpdates(); len(got) != 1 || got[0][0].Keyword != "深渊" {
		t.Errorf("keywords = %+v", got)
	}
}

func TestProvider_StartStream(t *testing.T) {
	t.Parallel()

	p := &Provider{}
	for range 2 {
		if _, err := p.StartStream(context.Background(), stt.StreamConfig{SampleRate: 16000}); err != nil {
			t.Fatalf("StartStream: %v", err)
		}
	}
	if got := p.Sessions(); len(got) != 2 || got[0] == got[1] {
		t.Errorf("sessions = %v, want two distinct", got)
	}

	p = &Provider{StartStreamErr: errors.New("unauthorised")}
	if _, err := p.StartStream(context.Background(), stt.StreamConfig{}); !errors.Is(err, p.StartStreamErr) {
		t.Errorf("StartStream() = %v", err)
	}
	if len(p.StartStreamCalls) != 1 || len(p.Sessions()) != 0 {
		t.Errorf("calls = %d sessions = %d", len(p.StartStreamCalls), len(p.Sessions()))
	}
}
