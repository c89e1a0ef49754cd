package app

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/MrWong99/glyphcast/internal/config"
	"github.com/MrWong99/glyphcast/pkg/provider/stt/mock"
)

// pcmFrames returns n frames of frameBytes each filled with a constant
// sample value.
func pcmFrames(n, frameBytes int, sample int16) []byte {
	buf := make([]byte, n*frameBytes)
	for i := 0; i+1 < len(buf); i += 2 {
		binary.LittleEndian.PutUint16(buf[i:], uint16(sample))
	}
	return buf
}

func pcmConfig() *config.Config {
	return &config.Config{
		Providers: config.ProvidersConfig{STT: config.ProviderEntry{Name: "deepgram", Language: "zh-CN"}},
		Input:     config.InputConfig{Mode: config.InputPCM, Actor: "hero"},
	}
}

func TestPCMSettings_Defaults(t *testing.T) {
	t.Parallel()

	a, _ := newTestApp(t, &config.Config{}, nil)
	p := a.pcmSettings()
	if p.actor != defaultActor || p.sampleRate != 16000 || p.channels != 1 {
		t.Errorf("settings = %+v", p)
	}
	if p.frameBytes != 640 {
		t.Errorf("frameBytes = %d, want 640", p.frameBytes)
	}
	if p.threshold != defaultSpeechThreshold {
		t.Errorf("threshold = %v", p.threshold)
	}
}

func TestPumpPCM_LoudFramesOpenSession(t *testing.T) {
	t.Parallel()

	a, _ := newTestApp(t, pcmConfig(), &Providers{STT: &mock.Provider{}})
	p := a.pcmSettings()
	sess := mock.NewSession(1)

	var audio bytes.Buffer
	audio.Write(pcmFrames(2, p.frameBytes, 0))
	audio.Write(pcmFrames(2, p.frameBytes, 8000))
	if err := a.pumpPCM(context.Background(), &audio, sess, p); err != nil {
		t.Fatalf("pumpPCM: %v", err)
	}
	if _, ok := a.caster.Sessions().Get("hero"); ok {
		t.Fatal("two loud frames opened a session")
	}

	audio.Write(pcmFrames(speechFrames, p.frameBytes, 8000))
	audio.Write([]byte{1}) // trailing partial frame
	if err := a.pumpPCM(context.Background(), &audio, sess, p); err != nil {
		t.Fatalf("pumpPCM: %v", err)
	}
	s, ok := a.caster.Sessions().Get("hero")
	if !ok {
		t.Fatal("loud frames did not open a session")
	}
	if s.VolumeScore() <= 0 {
		t.Error("loudness not recorded")
	}
	if got, want := sess.SendAudioCallCount(), 4+speechFrames+1; got != want {
		t.Errorf("SendAudio calls = %d, want %d", got, want)
	}
}

func TestPumpPCM_SendError(t *testing.T) {
	t.Parallel()

	a, _ := newTestApp(t, pcmConfig(), &Providers{STT: &mock.Provider{}})
	p := a.pcmSettings()
	sess := mock.NewSession(1)
	sess.SendAudioErr = errors.New("socket closed")

	err := a.pumpPCM(context.Background(), bytes.NewReader(pcmFrames(1, p.frameBytes, 0)), sess, p)
	if err == nil || !errors.Is(err, sess.SendAudioErr) {
		t.Errorf("pumpPCM() = %v", err)
	}
}

func TestRunPCM(t *testing.T) {
	t.Parallel()

	t.Run("no provider", func(t *testing.T) {
		t.Parallel()
		a, _ := newTestApp(t, &config.Config{}, nil)
		if err := a.runPCM(context.Background(), bytes.NewReader(nil)); err == nil {
			t.Error("expected error without STT provider")
		}
	})

	t.Run("start failure", func(t *testing.T) {
		t.Parallel()
		prov := &mock.Provider{StartStreamErr: errors.New("unauthorised")}
		a, _ := newTestApp(t, pcmConfig(), &Providers{STT: prov})
		err := a.runPCM(context.Background(), bytes.NewReader(nil))
		if !errors.Is(err, prov.StartStreamErr) {
			t.Errorf("runPCM() = %v", err)
		}
	})

	t.Run("stream config", func(t *testing.T) {
		t.Parallel()
		prov := &mock.Provider{}
		a, _ := newTestApp(t, pcmConfig(), &Providers{STT: prov})

		p := a.pcmSettings()
		if err := a.runPCM(context.Background(), bytes.NewReader(pcmFrames(2, p.frameBytes, 0))); err != nil {
			t.Fatalf("runPCM: %v", err)
		}
		if len(prov.StartStreamCalls) != 1 {
			t.Fatalf("StartStream calls = %d", len(prov.StartStreamCalls))
		}
		cfg := prov.StartStreamCalls[0].Cfg
		if cfg.SampleRate != 16000 || cfg.Language != "zh-CN" || len(cfg.Keywords) == 0 {
			t.Errorf("stream config = %+v", cfg)
		}
		sess := prov.Sessions()[0]
		if sess.SendAudioCallCount() != 2 || sess.Closes() == 0 {
			t.Errorf("send=%d close=%d", sess.SendAudioCallCount(), sess.Closes())
		}
	})
}
