// Package loudness tracks how forcefully an incantation was spoken.
//
// A [Tracker] receives normalised level samples in [0,1] while a casting
// session listens and condenses them into a running peak and a smoothed
// average. [Tracker.VolumeScore] blends the two into the single value the
// magnitude resolver consumes.
package loudness

import (
	"encoding/binary"
	"math"
)

const (
	// smoothing is the weight kept by the running average on each sample.
	smoothing = 0.9

	peakReference = 0.8
	avgReference  = 0.5
	peakWeight    = 0.6
	avgWeight     = 0.4

	// pcmGain scales raw int16 RMS so conversational speech lands near the
	// middle of the scale and shouting saturates.
	pcmGain = 4.0
)

// Tracker accumulates loudness samples for one casting session. It is not
// safe for concurrent use; the owning session serialises access.
type Tracker struct {
	max     float64
	avg     float64
	samples int
}

// AddSample records v, clamped to [0,1].
func (t *Tracker) AddSample(v float64) {
	v = clamp01(v)
	t.samples++
	if v > t.max {
		t.max = v
	}
	if t.avg == 0 {
		t.avg = v
		return
	}
	t.avg = t.avg*smoothing + v*(1-smoothing)
}

// VolumeScore returns the combined loudness score in [0,1].
func (t *Tracker) VolumeScore() float64 {
	return math.Min(t.max/peakReference, 1)*peakWeight +
		math.Min(t.avg/avgReference, 1)*avgWeight
}

// Max returns the loudest sample seen since the last reset.
func (t *Tracker) Max() float64 { return t.max }

// Average returns the smoothed average level.
func (t *Tracker) Average() float64 { return t.avg }

// Samples returns how many samples were recorded since the last reset.
func (t *Tracker) Samples() int { return t.samples }

// Reset clears all statistics.
func (t *Tracker) Reset() {
	*t = Tracker{}
}

// LevelFromPCM returns the normalised RMS level of a frame of signed 16-bit
// little-endian PCM. A trailing odd byte is ignored. Empty frames are
// silent.
func LevelFromPCM(frame []byte) float64 {
	n := len(frame) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := range n {
		s := float64(int16(binary.LittleEndian.Uint16(frame[2*i:]))) / math.MaxInt16
		sum += s * s
	}
	return clamp01(math.Sqrt(sum/float64(n)) * pcmGain)
}

func clamp01(v float64) float64 {
	switch {
	case v < 0 || math.IsNaN(v):
		return 0
	case v > 1:
		return 1
	}
	return v
}
