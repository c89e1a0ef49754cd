package app

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/MrWong99/glyphcast/internal/cast"
	"github.com/MrWong99/glyphcast/internal/incantation"
)

// syncWriter serialises writes from the console loop and the poll loop.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

// consoleApplier prints every cast to a writer. It stands in for a game
// when the binary is used to rehearse a library.
type consoleApplier struct {
	out io.Writer
}

var _ cast.Applier = (*consoleApplier)(nil)

func newConsoleApplier(out io.Writer) *consoleApplier {
	return &consoleApplier{out: out}
}

// Apply implements [cast.Applier].
func (a *consoleApplier) Apply(_ context.Context, c cast.ResolvedCast) {
	effects := make([]string, 0, c.Entry.Effects.Len())
	for _, tag := range c.Entry.Effects.Tags() {
		effects = append(effects, describeEffect(tag, c.Magnitude))
	}
	via := ""
	if c.MatchedViaAlternate {
		via = " (alternate name)"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s casts %s%s: confidence %.2f, volume %.2f, magnitude %.1f\n",
		c.Actor, c.Entry.DisplayName, via, c.Confidence, c.VolumeScore, c.Magnitude)
	if len(effects) > 0 {
		fmt.Fprintf(&b, "  %s\n", strings.Join(effects, "; "))
	}
	_, _ = io.WriteString(a.out, b.String())
}

// Rejected implements [cast.Applier].
func (a *consoleApplier) Rejected(_ context.Context, actor string, e incantation.Entry, err error) {
	fmt.Fprintf(a.out, "%s tried %s: %v\n", actor, e.DisplayName, err)
}

// describeEffect renders one effect of a cast with the given magnitude.
func describeEffect(tag incantation.EffectTag, magnitude float64) string {
	switch tag {
	case incantation.EffectDamage:
		return fmt.Sprintf("deals %.0f damage", magnitude)
	case incantation.EffectHeal:
		return fmt.Sprintf("restores %.0f health", magnitude)
	case incantation.EffectShield:
		return fmt.Sprintf("grants a %.0f point shield", magnitude)
	case incantation.EffectStun:
		return "stuns the target"
	case incantation.EffectBurn:
		return fmt.Sprintf("burns for %.0f per turn", magnitude/4)
	case incantation.EffectFreeze:
		return "freezes the target"
	case incantation.EffectBuff:
		return "strengthens the caster"
	case incantation.EffectDebuff:
		return "weakens the target"
	case incantation.EffectCleanse:
		return "removes negative effects"
	default:
		return tag.String()
	}
}
