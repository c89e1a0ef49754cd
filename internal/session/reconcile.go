package session

import (
	"strings"

	"github.com/MrWong99/glyphcast/internal/incantation"
	"github.com/MrWong99/glyphcast/internal/textnorm"
)

// DefaultDenylist holds confirmation and navigation words that streaming
// recognisers pick up between casts. An utterance consisting only of one of
// them never reaches the matcher.
var DefaultDenylist = []string{
	"确认", "确定", "取消", "返回", "退出", "菜单", "暂停", "继续",
	"好的", "是的", "下一步", "闭嘴", "停止",
	"ok", "okay", "yes", "no", "cancel", "confirm", "back", "menu", "pause",
}

// reconcile merges an incoming normalised hypothesis into the accumulated
// text. Recognisers resend growing prefixes, occasionally repeat a phrase
// twice and sometimes deliver stale, shorter partials out of order:
//
//  1. an incoming string that is some text repeated back to back collapses
//     to a single copy;
//  2. over-long text is cut down to the longest known phrase it ends with;
//  3. text that extends the accumulated text replaces it;
//  4. shorter text is a stale partial and is ignored, anything else
//     replaces the accumulated text.
//
// Feeding the result back in returns it unchanged.
func reconcile(acc, in string, longTextRunes int, lib *incantation.Library) string {
	in = collapseDoubled(in)
	if longTextRunes > 0 && textnorm.Len(in) > longTextRunes {
		if p := longestKnownSuffix(in, lib); p != "" {
			in = p
		}
	}

	switch {
	case acc == "":
		return in
	case strings.HasPrefix(in, acc):
		return in
	case textnorm.Len(in) < textnorm.Len(acc):
		return acc
	default:
		return in
	}
}

// collapseDoubled halves s while it consists of two identical copies,
// optionally separated by a single space.
func collapseDoubled(s string) string {
	for {
		r := []rune(s)
		n := len(r)
		if n < 2 {
			return s
		}
		head, tail := r[:n/2], r[n/2:]
		if n%2 == 1 {
			if r[n/2] != ' ' {
				return s
			}
			tail = r[n/2+1:]
		}
		if string(head) != string(tail) {
			return s
		}
		s = string(head)
	}
}

// longestKnownSuffix returns the longest normalised incantation or variant
// that s ends with.
func longestKnownSuffix(s string, lib *incantation.Library) string {
	if lib == nil {
		return ""
	}
	best := ""
	for _, p := range lib.Phrases() {
		np := textnorm.Normalize(p)
		if np == "" || !strings.HasSuffix(s, np) {
			continue
		}
		if textnorm.Len(np) > textnorm.Len(best) {
			best = np
		}
	}
	return best
}
