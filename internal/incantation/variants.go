package incantation

import (
	"errors"
	"fmt"
	"slices"

	"github.com/MrWong99/glyphcast/internal/textnorm"
)

// ErrSharedVariant is returned when a variant is registered for two
// different canonical phrases. Each variant must resolve to exactly one
// canonical phrase.
var ErrSharedVariant = errors.New("incantation: variant already belongs to another phrase")

// VariantTable maps canonical phrases to their known mis-recognitions.
// Variants are kept in registration order per phrase. Comparisons use the
// normalised form of each string.
//
// VariantTable is not safe for concurrent mutation; it is populated while a
// [Library] is built and read-only afterwards.
type VariantTable struct {
	byPhrase  map[string][]string
	canonical map[string]string // normalised variant -> canonical phrase
}

// NewVariantTable returns an empty table.
func NewVariantTable() *VariantTable {
	return &VariantTable{
		byPhrase:  make(map[string][]string),
		canonical: make(map[string]string),
	}
}

// Add registers variants for phrase. Empty variants and variants equal to
// the phrase itself are ignored. Adding a variant already owned by a
// different phrase fails with [ErrSharedVariant] and leaves the table
// unchanged.
func (t *VariantTable) Add(phrase string, variants ...string) error {
	key := textnorm.Normalize(phrase)
	if key == "" {
		return fmt.Errorf("incantation: variant table: empty phrase")
	}

	accepted := make([]string, 0, len(variants))
	seen := make(map[string]struct{}, len(variants))
	for _, v := range variants {
		nv := textnorm.Normalize(v)
		if nv == "" || nv == key {
			continue
		}
		if owner, ok := t.canonical[nv]; ok && owner != phrase {
			return fmt.Errorf("%w: %q is registered for %q", ErrSharedVariant, v, owner)
		}
		if owner, ok := t.canonical[nv]; ok && owner == phrase {
			continue
		}
		if _, dup := seen[nv]; dup {
			continue
		}
		seen[nv] = struct{}{}
		accepted = append(accepted, v)
	}

	for _, v := range accepted {
		t.canonical[textnorm.Normalize(v)] = phrase
	}
	t.byPhrase[key] = append(t.byPhrase[key], accepted...)
	return nil
}

// Variants returns the variants registered for phrase, in order.
func (t *VariantTable) Variants(phrase string) []string {
	return slices.Clone(t.byPhrase[textnorm.Normalize(phrase)])
}

// Canonical returns the canonical phrase that variant belongs to.
func (t *VariantTable) Canonical(variant string) (string, bool) {
	p, ok := t.canonical[textnorm.Normalize(variant)]
	return p, ok
}

// Len returns the total number of registered variants.
func (t *VariantTable) Len() int {
	return len(t.canonical)
}
