// Package magnitude converts a matched incantation into a numeric effect
// magnitude.
//
// The resolver multiplies the actor's power by a chain of factors:
//
//	base       = actorPower × basePower/100 × powerMultiplier
//	confidence = clamp(1 + (c − 0.45)/0.55, 1, 2)
//	volume     = entry volume curve (default 0.8×–1.9×)
//	alternate  = 0.8 when matched through the alternate or display name
//	element    = caller-supplied type effectiveness
//	jitter     = uniform in [0.9, 1.1]
//
// A declarative [Override] table may then replace the computed value for
// specific target tags. The result is finally clamped to the entry's
// [incantation.Entry.MinMagnitude] and, when set, MaxMagnitude.
package magnitude

import (
	"math/rand/v2"
	"slices"
	"sync"

	"github.com/MrWong99/glyphcast/internal/incantation"
)

const (
	confidenceBaseline = 0.45
	confidenceMaxMult  = 2.0
	alternatePenalty   = 0.8
	jitterLow          = 0.9
	jitterSpan         = 0.2
)

// RandomSource yields uniformly distributed values in [0,1). *rand.Rand
// satisfies it.
type RandomSource interface {
	Float64() float64
}

// NewRand returns a deterministic PCG-backed source for seed.
func NewRand(seed uint64) RandomSource {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// Override replaces the computed magnitude with Fixed whenever one of the
// target's tags equals TargetTag and, if EntryID is set, the entry matches.
type Override struct {
	TargetTag string  `yaml:"target_tag"`
	EntryID   string  `yaml:"entry_id"`
	Fixed     float64 `yaml:"fixed"`
}

func (o Override) matches(entryID string, tags []string) bool {
	if o.EntryID != "" && o.EntryID != entryID {
		return false
	}
	return slices.Contains(tags, o.TargetTag)
}

// Input carries everything a single resolution needs.
type Input struct {
	Entry               incantation.Entry
	ActorPower          float64
	Confidence          float64
	VolumeScore         float64
	MatchedViaAlternate bool

	// ElementModifier is the caller's type-effectiveness factor. 1 is
	// neutral; 0 nullifies the effect before the floor is applied.
	ElementModifier float64

	// TargetTags describe the target for the override table.
	TargetTags []string
}

// Breakdown records every factor of a resolution.
type Breakdown struct {
	Base       float64
	Confidence float64
	Volume     float64
	Alternate  float64
	Element    float64
	Jitter     float64

	// Raw is the product of all factors before overrides and clamping.
	Raw float64

	// Override is the rule that replaced Raw, if any.
	Override *Override

	// Magnitude is the final clamped value.
	Magnitude float64
}

// Option configures a [Resolver].
type Option func(*Resolver)

// WithRandom sets the jitter source. Default: NewRand(1).
func WithRandom(src RandomSource) Option {
	return func(r *Resolver) {
		r.rng = src
	}
}

// WithOverrides installs the override table. Rules are evaluated in order
// and the first match wins.
func WithOverrides(rules ...Override) Option {
	return func(r *Resolver) {
		r.overrides = slices.Clone(rules)
	}
}

// Resolver computes effect magnitudes. It is safe for concurrent use; calls
// serialise on the random source.
type Resolver struct {
	mu        sync.Mutex
	rng       RandomSource
	overrides []Override
}

// NewResolver returns a resolver configured with opts.
func NewResolver(opts ...Option) *Resolver {
	r := &Resolver{}
	for _, o := range opts {
		o(r)
	}
	if r.rng == nil {
		r.rng = NewRand(1)
	}
	return r
}

// Resolve returns the final magnitude for in.
func (r *Resolver) Resolve(in Input) float64 {
	return r.Breakdown(in).Magnitude
}

// Breakdown resolves in and returns every intermediate factor.
func (r *Resolver) Breakdown(in Input) Breakdown {
	r.mu.Lock()
	u := r.rng.Float64()
	r.mu.Unlock()

	b := Breakdown{
		Base:       in.ActorPower * in.Entry.BasePower / 100 * powerMultiplier(in.Entry),
		Confidence: ConfidenceMultiplier(in.Confidence),
		Volume:     in.Entry.Curve().Multiplier(in.VolumeScore),
		Alternate:  1,
		Element:    in.ElementModifier,
		Jitter:     jitterLow + jitterSpan*u,
	}
	if in.MatchedViaAlternate {
		b.Alternate = alternatePenalty
	}
	b.Raw = b.Base * b.Confidence * b.Volume * b.Alternate * b.Element * b.Jitter

	value := b.Raw
	for i := range r.overrides {
		if r.overrides[i].matches(in.Entry.ID, in.TargetTags) {
			rule := r.overrides[i]
			b.Override = &rule
			value = rule.Fixed
			break
		}
	}

	b.Magnitude = clampMagnitude(value, in.Entry)
	return b
}

// ConfidenceMultiplier maps a match confidence to a multiplier in [1,2].
// Any accepted match earns 1×; a perfect one doubles the effect.
func ConfidenceMultiplier(confidence float64) float64 {
	m := 1 + (confidence-confidenceBaseline)/(1-confidenceBaseline)
	return min(max(m, 1), confidenceMaxMult)
}

func powerMultiplier(e incantation.Entry) float64 {
	if e.PowerMultiplier == 0 {
		return 1
	}
	return e.PowerMultiplier
}

func clampMagnitude(v float64, e incantation.Entry) float64 {
	floor := e.MinMagnitude
	if floor == 0 {
		floor = 1
	}
	if v < floor {
		v = floor
	}
	if e.MaxMagnitude > 0 && v > e.MaxMagnitude {
		v = e.MaxMagnitude
	}
	return v
}
