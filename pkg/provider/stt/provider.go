// Package stt is the seam between glyphcast and streaming speech
// recognisers.
//
// A stream takes raw PCM and yields two channels of [types.Transcript]:
// partials, which let a casting session follow an incantation while the
// player is still speaking, and finals, which the recogniser will not
// revise. Implementations must be safe for concurrent use.
package stt

import (
	"context"
	"errors"

	"github.com/MrWong99/glyphcast/pkg/types"
)

// ErrNotSupported marks an optional operation the provider lacks.
var ErrNotSupported = errors.New("stt: operation not supported")

// StreamConfig is the audio format and vocabulary of one stream.
type StreamConfig struct {
	// SampleRate is in Hz; 16000 suits most recognisers.
	SampleRate int
	Channels   int

	// Language is a BCP-47 tag such as "zh-CN". Empty asks the provider to
	// detect it, where supported.
	Language string

	// Keywords are the library's incantations and alternate names.
	Keywords []types.KeywordBoost
}

// SessionHandle is one open stream. The caller must Close it.
type SessionHandle interface {
	// SendAudio queues a PCM chunk. It fails once the stream is closed.
	SendAudio(chunk []byte) error

	// Partials and Finals are closed when the stream ends.
	Partials() <-chan types.Transcript
	Finals() <-chan types.Transcript

	// SetKeywords swaps the vocabulary of a running stream, or returns
	// ErrNotSupported.
	SetKeywords(keywords []types.KeywordBoost) error

	// Close ends the stream. Repeated calls are no-ops.
	Close() error
}

// Provider opens recognition streams.
type Provider interface {
	StartStream(ctx context.Context, cfg StreamConfig) (SessionHandle, error)
}
