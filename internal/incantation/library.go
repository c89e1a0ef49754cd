// Package incantation holds the registry of castable effects.
//
// A [Library] owns every [Entry] and its [VariantTable] of known
// mis-recognitions. Libraries are assembled once at startup, either from the
// built-in set ([Builtin]) or from a YAML library file ([LoadFile]), and are
// read-only afterwards: all methods are safe for concurrent use once
// registration is complete. Reloading replaces the whole Library value.
package incantation

import (
	"errors"
	"fmt"

	"github.com/MrWong99/glyphcast/internal/textnorm"
	"github.com/MrWong99/glyphcast/pkg/types"
)

// ErrDuplicateID is returned when two entries share an ID. It is a
// configuration error and is reported at startup.
var ErrDuplicateID = errors.New("incantation: duplicate entry id")

// defaultKeywordBoost is the STT boost attached to every library phrase.
const defaultKeywordBoost = 5

// Library is the ordered registry of entries. Iteration order is
// registration order; the matcher relies on it for tie-breaking.
type Library struct {
	entries  []Entry
	byID     map[string]int
	variants *VariantTable
}

// NewLibrary returns an empty library.
func NewLibrary() *Library {
	return &Library{
		byID:     make(map[string]int),
		variants: NewVariantTable(),
	}
}

// Register validates e, fills defaults, and adds it to the library.
// Entries must have an ID and an incantation; duplicate IDs fail with
// [ErrDuplicateID] and shared variants with [ErrSharedVariant].
func (l *Library) Register(e Entry) error {
	if e.ID == "" {
		return fmt.Errorf("incantation: entry id is required")
	}
	if textnorm.Normalize(e.Incantation) == "" {
		return fmt.Errorf("incantation: entry %q: incantation is required", e.ID)
	}
	if _, ok := l.byID[e.ID]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicateID, e.ID)
	}
	if e.BasePower < 0 {
		return fmt.Errorf("incantation: entry %q: base_power must not be negative", e.ID)
	}
	if e.CooldownTurns < 0 {
		return fmt.Errorf("incantation: entry %q: cooldown_turns must not be negative", e.ID)
	}
	if e.MaxMagnitude > 0 && e.MinMagnitude > e.MaxMagnitude {
		return fmt.Errorf("incantation: entry %q: min_magnitude %.1f exceeds max_magnitude %.1f", e.ID, e.MinMagnitude, e.MaxMagnitude)
	}
	if e.VolumeCurve != nil {
		if err := e.VolumeCurve.validate(); err != nil {
			return fmt.Errorf("incantation: entry %q: %w", e.ID, err)
		}
	}

	if e.PowerMultiplier == 0 {
		e.PowerMultiplier = 1
	}
	if e.MinMagnitude == 0 {
		e.MinMagnitude = 1
	}
	if e.DisplayName == "" {
		e.DisplayName = e.ID
	}

	if err := l.variants.Add(e.Incantation, e.Variants...); err != nil {
		return fmt.Errorf("incantation: entry %q: %w", e.ID, err)
	}
	e = e.clone()
	e.Variants = l.variants.Variants(e.Incantation)

	l.byID[e.ID] = len(l.entries)
	l.entries = append(l.entries, e)
	return nil
}

// Lookup returns the entry with the given ID.
func (l *Library) Lookup(id string) (Entry, bool) {
	i, ok := l.byID[id]
	if !ok {
		return Entry{}, false
	}
	return l.entries[i].clone(), true
}

// Entries returns copies of all entries in registration order.
func (l *Library) Entries() []Entry {
	out := make([]Entry, len(l.entries))
	for i, e := range l.entries {
		out[i] = e.clone()
	}
	return out
}

// Len returns the number of registered entries.
func (l *Library) Len() int {
	return len(l.entries)
}

// Variants returns the library's variant table.
func (l *Library) Variants() *VariantTable {
	return l.variants
}

// Phrases returns every canonical incantation and variant. The session uses
// it to recover a known phrase from the tail of an over-long transcript.
func (l *Library) Phrases() []string {
	out := make([]string, 0, len(l.entries)+l.variants.Len())
	for _, e := range l.entries {
		out = append(out, e.Incantation)
		out = append(out, e.Variants...)
	}
	return out
}

// Keywords returns STT vocabulary hints for every incantation and alternate
// name in the library.
func (l *Library) Keywords() []types.KeywordBoost {
	seen := make(map[string]struct{}, len(l.entries)*2)
	out := make([]types.KeywordBoost, 0, len(l.entries)*2)
	add := func(s string) {
		if s == "" {
			return
		}
		if _, ok := seen[s]; ok {
			return
		}
		seen[s] = struct{}{}
		out = append(out, types.KeywordBoost{Keyword: s, Boost: defaultKeywordBoost})
	}
	for _, e := range l.entries {
		add(e.Incantation)
		add(e.AlternateName)
	}
	return out
}
