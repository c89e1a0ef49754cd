// Package types holds the values exchanged between speech providers, the
// audio path and the casting engine. Engine-internal types live in their
// own packages.
package types

import "time"

// AudioFrame is one chunk of little-endian int16 PCM from the host. The
// engine never decodes codecs: it reads loudness from frames and forwards
// the bytes to a recogniser.
type AudioFrame struct {
	Data []byte

	// SampleRate is in Hz, typically 16000 for speech.
	SampleRate int

	// Channels is 1 for mono, 2 for interleaved stereo.
	Channels int

	// Timestamp is the frame's offset from the start of the stream.
	Timestamp time.Duration
}

// Duration is the playback length of the frame. It is zero when the format
// is unset.
func (f AudioFrame) Duration() time.Duration {
	bytesPerSecond := f.SampleRate * f.Channels * 2
	if bytesPerSecond <= 0 {
		return 0
	}
	return time.Duration(len(f.Data)) * time.Second / time.Duration(bytesPerSecond)
}

// Transcript is one recogniser hypothesis, interim or final. The engine
// scores the text itself, so Confidence is informational.
type Transcript struct {
	Text    string
	IsFinal bool

	// Confidence is the provider's score in [0,1], or zero when it reports
	// none.
	Confidence float64

	// Words is nil for providers without word timings.
	Words []WordDetail

	// Timestamp is the utterance's offset from the start of the stream.
	Timestamp time.Duration
	Duration  time.Duration
}

// WordDetail is the timing of one recognised word.
type WordDetail struct {
	Word       string
	Start      time.Duration
	End        time.Duration
	Confidence float64
}

// KeywordBoost is a vocabulary hint, usually an incantation or alternate
// name from the library, such as "火球术".
type KeywordBoost struct {
	Keyword string

	// Boost is the hint's weight on the provider's own scale.
	Boost float64
}
