// Package textnorm normalises raw recogniser output before it is compared
// against incantations.
//
// [Normalize] is total, deterministic and idempotent. It trims the input,
// drops a fixed set of full-width and half-width punctuation, lower-cases
// Latin letters, and collapses whitespace: runs of whitespace between two
// Latin (or digit) tokens become a single space, all other whitespace is
// removed. The second rule matters for CJK recognisers, which frequently
// insert spaces between characters of a single phrase.
package textnorm

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// punctuation is the fixed set of characters removed by [Normalize].
const punctuation = `,.!?;:'"()[]{}<>-_~…·、，。！？；：“”‘’（）【】《》〈〉「」『』〔〕—～`

var punctSet = func() map[rune]struct{} {
	m := make(map[rune]struct{}, utf8.RuneCountInString(punctuation))
	for _, r := range punctuation {
		m[r] = struct{}{}
	}
	return m
}()

// Normalize returns the canonical comparison form of raw.
func Normalize(raw string) string {
	if raw == "" {
		return ""
	}

	var b strings.Builder
	b.Grow(len(raw))

	pendingSpace := false
	var prev rune
	for _, r := range raw {
		if _, ok := punctSet[r]; ok {
			continue
		}
		if unicode.IsSpace(r) {
			pendingSpace = b.Len() > 0
			continue
		}
		r = unicode.ToLower(r)
		if pendingSpace && isWordRune(prev) && isWordRune(r) {
			b.WriteByte(' ')
		}
		pendingSpace = false
		b.WriteRune(r)
		prev = r
	}
	return b.String()
}

// Len returns the length of s in runes. Every length used by the matcher is
// measured in runes so CJK and Latin text are treated alike.
func Len(s string) int {
	return utf8.RuneCountInString(s)
}

// IsLatin reports whether s consists solely of ASCII letters, digits and
// spaces. Phonetic encoders only make sense for such strings.
func IsLatin(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r > unicode.MaxASCII {
			return false
		}
		if !isWordRune(r) && r != ' ' {
			return false
		}
	}
	return true
}

// isWordRune reports whether r is an ASCII letter or digit.
func isWordRune(r rune) bool {
	return r < utf8.RuneSelf && (unicode.IsLetter(r) || unicode.IsDigit(r))
}
