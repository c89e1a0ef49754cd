// Package match scores spoken text against incantations and picks the best
// library entry.
//
// [Scorer.Score] applies a tiered strategy where the first tier that fires
// wins:
//
//  1. Exact match of the normalised strings: 1.0.
//  2. Exact match against a known phonetic variant: 0.95.
//  3. Short targets (≤ 4 runes): containment in either direction scores 0.85;
//     otherwise, if ≥ 70% of the target's runes (as a multiset) occur in the
//     spoken text, 0.6.
//  4. Opt-in, Latin-script phrases only: identical Double Metaphone keys per
//     token: 0.9. See [WithMetaphone].
//  5. General similarity: 0.8 × Levenshtein similarity (best of target and
//     variants) + 0.2 × keyword coverage. Similarity below 0.3 is rejected
//     outright; poor keyword coverage on targets with more than two keywords
//     halves the score.
//
// [Scorer.FindBestMatch] runs the scorer over a library and only accepts
// results above the acceptance threshold (0.45) and at or above the floor
// (0.5). Ties go to the entry registered first.
package match

import (
	"strings"

	"github.com/antzucaro/matchr"

	"github.com/MrWong99/glyphcast/internal/textnorm"
)

const (
	scoreExact    = 1.0
	scoreVariant  = 0.95
	scorePhonetic = 0.9
	scoreContains = 0.85
	scoreOverlap  = 0.6

	shortTargetRunes = 4
	overlapRatio     = 0.7

	similarityWeight = 0.8
	keywordWeight    = 0.2
	minSimilarity    = 0.3

	keywordPenaltyCoverage = 0.5
	keywordPenaltyMinCount = 2

	defaultAcceptance = 0.45
	defaultFloor      = 0.5
)

// Option is a functional option for configuring a [Scorer].
type Option func(*Scorer)

// WithAcceptance sets the threshold a candidate's score must strictly exceed
// to be accepted by [Scorer.FindBestMatch]. Default: 0.45.
func WithAcceptance(threshold float64) Option {
	return func(s *Scorer) {
		s.acceptance = threshold
	}
}

// WithFloor sets the secondary gate: accepted scores must also be at least
// this value. Default: 0.5.
func WithFloor(floor float64) Option {
	return func(s *Scorer) {
		s.floor = floor
	}
}

// WithMetaphone toggles the Double Metaphone tier for Latin-script phrases.
// The tier runs after the short-target tier and only rescues phrases that
// would otherwise fall to general similarity. Default: disabled.
func WithMetaphone(enabled bool) Option {
	return func(s *Scorer) {
		s.metaphone = enabled
	}
}

// Scorer computes match confidences. It is read-only after construction and
// safe for concurrent use.
type Scorer struct {
	acceptance float64
	floor      float64
	metaphone  bool
}

// New returns a [Scorer] configured with the supplied options.
func New(opts ...Option) *Scorer {
	s := &Scorer{
		acceptance: defaultAcceptance,
		floor:      defaultFloor,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Acceptance returns the configured acceptance threshold.
func (s *Scorer) Acceptance() float64 { return s.acceptance }

// Score returns the confidence in [0,1] that spoken is an utterance of
// target, given target's known mis-recognitions. Text that normalises to
// the empty string scores 0.
func (s *Scorer) Score(spoken, target string, variants []string) float64 {
	sp := textnorm.Normalize(spoken)
	tg := textnorm.Normalize(target)
	if sp == "" || tg == "" {
		return 0
	}

	if sp == tg {
		return scoreExact
	}

	normVariants := make([]string, 0, len(variants))
	for _, v := range variants {
		nv := textnorm.Normalize(v)
		if nv == "" {
			continue
		}
		if sp == nv {
			return scoreVariant
		}
		normVariants = append(normVariants, nv)
	}

	if textnorm.Len(tg) <= shortTargetRunes {
		if strings.Contains(sp, tg) || strings.Contains(tg, sp) {
			return scoreContains
		}
		if runeOverlap(sp, tg) >= overlapRatio {
			return scoreOverlap
		}
	}

	if s.metaphone && samePhoneticKey(sp, tg) {
		return scorePhonetic
	}

	sim := similarity(sp, tg)
	for _, nv := range normVariants {
		if v := similarity(sp, nv); v > sim {
			sim = v
		}
	}
	if sim < minSimilarity {
		return 0
	}

	keywords := Keywords(tg)
	coverage := keywordCoverage(sp, keywords)
	score := similarityWeight*sim + keywordWeight*coverage
	if coverage < keywordPenaltyCoverage && len(keywords) > keywordPenaltyMinCount {
		score /= 2
	}
	return clamp01(score)
}

// similarity is 1 - levenshtein(a,b)/max(len(a),len(b)), measured in runes.
func similarity(a, b string) float64 {
	la, lb := textnorm.Len(a), textnorm.Len(b)
	longest := max(la, lb)
	if longest == 0 {
		return 1
	}
	return 1 - float64(matchr.Levenshtein(a, b))/float64(longest)
}

// runeOverlap returns the fraction of target's runes (as a multiset) that
// also occur in spoken.
func runeOverlap(spoken, target string) float64 {
	avail := make(map[rune]int)
	for _, r := range spoken {
		avail[r]++
	}
	total, hit := 0, 0
	for _, r := range target {
		total++
		if avail[r] > 0 {
			avail[r]--
			hit++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(hit) / float64(total)
}

// Keywords extracts the keywords of a normalised phrase. Multi-word Latin
// phrases use their words; everything else is cut into consecutive,
// non-overlapping two-rune chunks (a trailing odd rune is dropped unless it
// is the whole phrase).
func Keywords(phrase string) []string {
	if textnorm.IsLatin(phrase) {
		if words := strings.Fields(phrase); len(words) > 1 {
			return words
		}
	}
	runes := []rune(strings.ReplaceAll(phrase, " ", ""))
	if len(runes) == 0 {
		return nil
	}
	if len(runes) == 1 {
		return []string{string(runes)}
	}
	out := make([]string, 0, len(runes)/2)
	for i := 0; i+1 < len(runes); i += 2 {
		out = append(out, string(runes[i:i+2]))
	}
	return out
}

// keywordCoverage returns the fraction of keywords found as substrings of
// spoken. No keywords means no evidence: 0.
func keywordCoverage(spoken string, keywords []string) float64 {
	if len(keywords) == 0 {
		return 0
	}
	found := 0
	for _, k := range keywords {
		if strings.Contains(spoken, k) {
			found++
		}
	}
	return float64(found) / float64(len(keywords))
}

// samePhoneticKey reports whether two Latin-script phrases share the same
// Double Metaphone primary code for every word. Phrases that produce no
// code (CJK, digits) never match here.
func samePhoneticKey(a, b string) bool {
	if !textnorm.IsLatin(a) || !textnorm.IsLatin(b) {
		return false
	}
	ka, kb := phoneticKey(a), phoneticKey(b)
	return ka != "" && ka == kb
}

// phoneticKey joins the primary Double Metaphone code of each word. Any
// word without a code voids the key.
func phoneticKey(phrase string) string {
	words := strings.Fields(phrase)
	codes := make([]string, 0, len(words))
	for _, w := range words {
		p, _ := matchr.DoubleMetaphone(w)
		if p == "" {
			return ""
		}
		codes = append(codes, p)
	}
	return strings.Join(codes, " ")
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
