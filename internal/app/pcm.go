package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/glyphcast/internal/loudness"
	"github.com/MrWong99/glyphcast/pkg/provider/stt"
	"github.com/MrWong99/glyphcast/pkg/types"
)

const (
	defaultSampleRate      = 16000
	defaultChannels        = 1
	defaultFrameMillis     = 20
	defaultSpeechThreshold = 0.05

	// speechFrames is how many consecutive loud frames open a session.
	speechFrames = 3
)

// pcmInput holds the resolved input settings for pcm mode.
type pcmInput struct {
	actor      string
	sampleRate int
	channels   int
	frameBytes int
	threshold  float64
}

func (a *App) pcmSettings() pcmInput {
	in := a.cfg.Input
	p := pcmInput{
		actor:      in.Actor,
		sampleRate: in.SampleRate,
		channels:   in.Channels,
		threshold:  in.SpeechThreshold,
	}
	if p.actor == "" {
		p.actor = defaultActor
	}
	if p.sampleRate <= 0 {
		p.sampleRate = defaultSampleRate
	}
	if p.channels <= 0 {
		p.channels = defaultChannels
	}
	if p.threshold <= 0 {
		p.threshold = defaultSpeechThreshold
	}
	frameMs := in.FrameMillis
	if frameMs <= 0 {
		frameMs = defaultFrameMillis
	}
	p.frameBytes = p.sampleRate * p.channels * 2 * frameMs / 1000
	return p
}

// runPCM streams 16-bit little-endian PCM from r to the STT provider. Frame
// levels feed the actor's loudness statistics, and a run of loud frames
// opens a casting session when none is live. It returns nil once r is
// exhausted.
func (a *App) runPCM(ctx context.Context, r io.Reader) error {
	if a.providers.STT == nil {
		return errors.New("app: pcm input requires an STT provider")
	}
	p := a.pcmSettings()
	lib := a.caster.Library()

	h, err := a.providers.STT.StartStream(ctx, stt.StreamConfig{
		SampleRate: p.sampleRate,
		Channels:   p.channels,
		Language:   a.cfg.Providers.STT.Language,
		Keywords:   lib.Keywords(),
	})
	if err != nil {
		a.metrics.RecordProviderError(ctx, a.providerName(), "start_stream")
		return fmt.Errorf("app: start stt stream: %w", err)
	}
	defer h.Close()

	slog.Info("app: pcm input ready",
		"actor", p.actor,
		"sample_rate", p.sampleRate,
		"channels", p.channels,
		"frame_bytes", p.frameBytes,
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.caster.Listen(gctx, p.actor, h)
	})
	g.Go(func() error {
		// Closing the handle ends Listen once the audio is exhausted.
		defer h.Close()
		return a.pumpPCM(gctx, r, h, p)
	})
	return g.Wait()
}

// pumpPCM reads frames from r and forwards them to h.
func (a *App) pumpPCM(ctx context.Context, r io.Reader, h stt.SessionHandle, p pcmInput) error {
	var (
		loud int
		at   time.Duration
	)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		// Providers may queue the chunk, so every frame gets its own buffer.
		buf := make([]byte, p.frameBytes)
		n, err := io.ReadFull(r, buf)
		if n > 0 {
			f := types.AudioFrame{
				Data:       buf[:n],
				SampleRate: p.sampleRate,
				Channels:   p.channels,
				Timestamp:  at,
			}
			at += f.Duration()
			if sendErr := a.handleFrame(ctx, f, h, p, &loud); sendErr != nil {
				return sendErr
			}
		}
		switch {
		case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
			slog.Info("app: pcm input ended")
			return nil
		case err != nil:
			return fmt.Errorf("app: read pcm: %w", err)
		}
	}
}

func (a *App) handleFrame(ctx context.Context, f types.AudioFrame, h stt.SessionHandle, p pcmInput, loud *int) error {
	level := loudness.LevelFromPCM(f.Data)
	if level >= p.threshold {
		*loud++
	} else {
		*loud = 0
	}
	if *loud >= speechFrames {
		if _, live := a.caster.Sessions().Get(p.actor); !live {
			if _, err := a.caster.Begin(p.actor); err != nil {
				slog.Debug("app: begin on speech failed", "actor", p.actor, "err", err)
			} else {
				slog.Debug("app: speech detected", "actor", p.actor, "at", f.Timestamp)
			}
		}
	}
	a.caster.AddLoudness(p.actor, level)

	if err := h.SendAudio(f.Data); err != nil {
		a.metrics.RecordProviderError(ctx, a.providerName(), "send_audio")
		return fmt.Errorf("app: send audio: %w", err)
	}
	return nil
}
