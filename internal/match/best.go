package match

import (
	"slices"

	"github.com/MrWong99/glyphcast/internal/incantation"
	"github.com/MrWong99/glyphcast/internal/textnorm"
)

// Eligibility reports whether the current actor may attempt entry. It is
// supplied per resolution by the host (has-learned, has-resource, not on
// cooldown). A nil Eligibility admits every entry.
type Eligibility func(entry incantation.Entry) bool

// Result is the outcome of matching spoken text against a library.
type Result struct {
	// Entry is the winning library entry.
	Entry incantation.Entry

	// Confidence is the winning score in [0,1].
	Confidence float64

	// MatchedViaAlternate is true when the winning score came from the
	// entry's alternate name. Display name matches count as full casts,
	// since the display name defaults to the entry ID.
	MatchedViaAlternate bool
}

// FindBestMatch scores spoken against every eligible entry of lib and
// returns the best accepted result. An entry is scored against its
// incantation (with variants), its alternate name, and its display name;
// the highest of the three is the entry's score. The alternate name only
// wins when it scores strictly higher than the other two.
//
// Only scores strictly above the acceptance threshold and not below the
// floor are accepted. Among accepted entries the highest score wins; equal
// scores resolve to the entry registered first.
func (s *Scorer) FindBestMatch(spoken string, lib *incantation.Library, eligible Eligibility) (Result, bool) {
	var (
		best  Result
		found bool
	)
	s.scan(spoken, lib, eligible, func(r Result) {
		if !found || r.Confidence > best.Confidence {
			best = r
			found = true
		}
	})
	return best, found
}

// Rank returns up to limit accepted candidates ordered by descending score,
// ties in library order. A non-positive limit returns all of them. Useful for
// diagnostics when a cast does not resolve the way the speaker expected.
func (s *Scorer) Rank(spoken string, lib *incantation.Library, eligible Eligibility, limit int) []Result {
	var out []Result
	s.scan(spoken, lib, eligible, func(r Result) {
		out = append(out, r)
	})
	slices.SortStableFunc(out, func(a, b Result) int {
		switch {
		case a.Confidence > b.Confidence:
			return -1
		case a.Confidence < b.Confidence:
			return 1
		}
		return 0
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// scan scores every eligible entry in library order and calls accept for
// each entry whose score passes both gates.
func (s *Scorer) scan(spoken string, lib *incantation.Library, eligible Eligibility, accept func(Result)) {
	if lib == nil || textnorm.Normalize(spoken) == "" {
		return
	}

	// Alternate and display names are frequently shared between entries
	// (or equal to each other); score each distinct string once per call.
	memo := make(map[string]float64)
	plain := func(target string) float64 {
		if target == "" {
			return 0
		}
		if v, ok := memo[target]; ok {
			return v
		}
		v := s.Score(spoken, target, nil)
		memo[target] = v
		return v
	}

	for _, e := range lib.Entries() {
		if eligible != nil && !eligible(e) {
			continue
		}
		score := s.Score(spoken, e.Incantation, e.Variants)
		if v := plain(e.DisplayName); v > score {
			score = v
		}
		viaAlt := false
		if v := plain(e.AlternateName); v > score {
			score, viaAlt = v, true
		}
		if score <= s.acceptance || score < s.floor {
			continue
		}
		accept(Result{Entry: e, Confidence: score, MatchedViaAlternate: viaAlt})
	}
}
