package incantation

import (
	"fmt"
	"math/bits"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// EffectTag is one declarative effect an entry produces. The set of tags is
// closed; the effect-application collaborator switches over it exhaustively.
type EffectTag uint8

const (
	EffectDamage EffectTag = iota
	EffectHeal
	EffectShield
	EffectStun
	EffectBurn
	EffectFreeze
	EffectBuff
	EffectDebuff
	EffectCleanse

	effectTagCount
)

var effectTagNames = [effectTagCount]string{
	EffectDamage:  "damage",
	EffectHeal:    "heal",
	EffectShield:  "shield",
	EffectStun:    "stun",
	EffectBurn:    "burn",
	EffectFreeze:  "freeze",
	EffectBuff:    "buff",
	EffectDebuff:  "debuff",
	EffectCleanse: "cleanse",
}

// String returns the lower-case name used in library files.
func (t EffectTag) String() string {
	if t < effectTagCount {
		return effectTagNames[t]
	}
	return fmt.Sprintf("EffectTag(%d)", uint8(t))
}

// ParseEffectTag converts a library-file name into an [EffectTag].
func ParseEffectTag(s string) (EffectTag, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for i, n := range effectTagNames {
		if n == name {
			return EffectTag(i), nil
		}
	}
	return 0, fmt.Errorf("incantation: unknown effect tag %q", s)
}

// EffectSet is a set of [EffectTag] values.
type EffectSet uint32

// Effects builds a set from tags.
func Effects(tags ...EffectTag) EffectSet {
	var s EffectSet
	for _, t := range tags {
		s = s.With(t)
	}
	return s
}

// With returns s with t added.
func (s EffectSet) With(t EffectTag) EffectSet { return s | 1<<t }

// Has reports whether t is in s.
func (s EffectSet) Has(t EffectTag) bool { return s&(1<<t) != 0 }

// Len returns the number of tags in s.
func (s EffectSet) Len() int { return bits.OnesCount32(uint32(s)) }

// Tags returns the members of s in declaration order.
func (s EffectSet) Tags() []EffectTag {
	tags := make([]EffectTag, 0, s.Len())
	for t := EffectTag(0); t < effectTagCount; t++ {
		if s.Has(t) {
			tags = append(tags, t)
		}
	}
	return tags
}

// String renders s as a comma-separated tag list.
func (s EffectSet) String() string {
	names := make([]string, 0, s.Len())
	for _, t := range s.Tags() {
		names = append(names, t.String())
	}
	return strings.Join(names, ",")
}

// UnmarshalYAML decodes a sequence of tag names. Unknown names are rejected
// so typos in library files surface at startup.
func (s *EffectSet) UnmarshalYAML(value *yaml.Node) error {
	var names []string
	if err := value.Decode(&names); err != nil {
		return fmt.Errorf("incantation: effects must be a list of names: %w", err)
	}
	var set EffectSet
	for _, n := range names {
		t, err := ParseEffectTag(n)
		if err != nil {
			return err
		}
		set = set.With(t)
	}
	*s = set
	return nil
}

// VolumeBand maps volume scores strictly below Below to Multiplier.
type VolumeBand struct {
	Below      float64 `yaml:"below"`
	Multiplier float64 `yaml:"multiplier"`
}

// VolumeCurve maps a volume score in [0,1] to a magnitude multiplier. Bands
// are checked in ascending order; scores at or above the last band use Above.
type VolumeCurve struct {
	Name  string       `yaml:"name"`
	Bands []VolumeBand `yaml:"bands"`
	Above float64      `yaml:"above"`
}

// DefaultVolumeCurve is used for every entry that does not carry its own
// curve: 0.8× for quiet casts up to 1.9× at full volume.
var DefaultVolumeCurve = VolumeCurve{
	Name: "default",
	Bands: []VolumeBand{
		{Below: 0.4, Multiplier: 0.8},
		{Below: 0.5, Multiplier: 1.0},
		{Below: 0.6, Multiplier: 1.1},
		{Below: 0.7, Multiplier: 1.3},
		{Below: 0.8, Multiplier: 1.5},
		{Below: 0.9, Multiplier: 1.7},
	},
	Above: 1.9,
}

// ShoutCurve is the steeper curve used by shout-driven entries: a mumbled
// cast drops to 0.6×, a full-throated one reaches 3.0×.
var ShoutCurve = VolumeCurve{
	Name: "shout",
	Bands: []VolumeBand{
		{Below: 0.3, Multiplier: 0.6},
		{Below: 0.5, Multiplier: 1.0},
		{Below: 0.6, Multiplier: 1.5},
		{Below: 0.7, Multiplier: 2.0},
		{Below: 0.8, Multiplier: 2.5},
	},
	Above: 3.0,
}

// Multiplier returns the multiplier for score.
func (c VolumeCurve) Multiplier(score float64) float64 {
	for _, b := range c.Bands {
		if score < b.Below {
			return b.Multiplier
		}
	}
	return c.Above
}

// validate checks that bands ascend and multipliers are positive.
func (c VolumeCurve) validate() error {
	prev := -1.0
	for i, b := range c.Bands {
		if b.Below <= prev {
			return fmt.Errorf("incantation: volume curve %q band %d: below %.2f does not ascend", c.Name, i, b.Below)
		}
		if b.Multiplier <= 0 {
			return fmt.Errorf("incantation: volume curve %q band %d: multiplier must be positive", c.Name, i)
		}
		prev = b.Below
	}
	if c.Above <= 0 {
		return fmt.Errorf("incantation: volume curve %q: above multiplier must be positive", c.Name)
	}
	return nil
}

// UnmarshalYAML accepts either a named built-in curve ("default", "shout")
// or a full mapping with bands.
func (c *VolumeCurve) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		switch strings.ToLower(value.Value) {
		case "default":
			*c = DefaultVolumeCurve
		case "shout":
			*c = ShoutCurve
		default:
			return fmt.Errorf("incantation: unknown volume curve %q; valid names: default, shout", value.Value)
		}
		return nil
	}
	type plain VolumeCurve
	var p plain
	if err := value.Decode(&p); err != nil {
		return fmt.Errorf("incantation: decode volume curve: %w", err)
	}
	*c = VolumeCurve(p)
	if c.Name == "" {
		c.Name = "custom"
	}
	return c.validate()
}

// Entry is one castable effect. Entries are immutable once registered in a
// [Library]; lookups return copies.
type Entry struct {
	// ID uniquely identifies the entry (e.g., "fire_ball").
	ID string

	// DisplayName is the human-readable name. It is also scored as a
	// spoken form, without the alternate-name penalty.
	DisplayName string

	// Incantation is the canonical phrase the speaker must say.
	Incantation string

	// AlternateName is an optional shorter spoken form. Matches through it
	// produce weaker effects.
	AlternateName string

	// Element tags the entry for the caller's type-effectiveness table.
	Element string

	// BasePower is a percentage of the actor's power stat (100 = 1×).
	BasePower float64

	// PowerMultiplier scales the base. Defaults to 1.
	PowerMultiplier float64

	// Cost is the resource amount the caller must deduct. The engine only
	// asks the resource collaborator whether the actor can pay it.
	Cost float64

	// CooldownTurns blocks recasting for this many turns (0 = none).
	CooldownTurns int

	// Effects lists the declarative effects consumed by the applier.
	Effects EffectSet

	// VolumeCurve overrides [DefaultVolumeCurve] when non-nil.
	VolumeCurve *VolumeCurve

	// MinMagnitude floors the resolved magnitude. Defaults to 1.
	MinMagnitude float64

	// MaxMagnitude caps the resolved magnitude when positive.
	MaxMagnitude float64

	// Variants are known mis-recognitions of Incantation.
	Variants []string
}

// Curve returns the volume curve that applies to e.
func (e Entry) Curve() VolumeCurve {
	if e.VolumeCurve != nil {
		return *e.VolumeCurve
	}
	return DefaultVolumeCurve
}

// clone returns a deep copy so callers cannot mutate library-owned slices.
func (e Entry) clone() Entry {
	e.Variants = slices.Clone(e.Variants)
	if e.VolumeCurve != nil {
		c := *e.VolumeCurve
		c.Bands = slices.Clone(c.Bands)
		e.VolumeCurve = &c
	}
	return e
}
