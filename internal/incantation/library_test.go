package incantation_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/MrWong99/glyphcast/internal/incantation"
)

func TestLibrary_RegisterDefaults(t *testing.T) {
	t.Parallel()

	lib := incantation.NewLibrary()
	if err := lib.Register(incantation.Entry{ID: "spark", Incantation: "火花"}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	e, ok := lib.Lookup("spark")
	if !ok {
		t.Fatal("Lookup(spark) = false, want true")
	}
	if e.PowerMultiplier != 1 {
		t.Errorf("PowerMultiplier = %v, want 1", e.PowerMultiplier)
	}
	if e.MinMagnitude != 1 {
		t.Errorf("MinMagnitude = %v, want 1", e.MinMagnitude)
	}
	if e.DisplayName != "spark" {
		t.Errorf("DisplayName = %q, want id fallback", e.DisplayName)
	}
	if got := e.Curve().Name; got != "default" {
		t.Errorf("Curve().Name = %q, want default", got)
	}
}

func TestLibrary_DuplicateID(t *testing.T) {
	t.Parallel()

	lib := incantation.NewLibrary()
	if err := lib.Register(incantation.Entry{ID: "a", Incantation: "甲"}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	err := lib.Register(incantation.Entry{ID: "a", Incantation: "乙"})
	if !errors.Is(err, incantation.ErrDuplicateID) {
		t.Fatalf("Register duplicate: err = %v, want ErrDuplicateID", err)
	}
	if lib.Len() != 1 {
		t.Errorf("Len = %d, want 1", lib.Len())
	}
}

func TestLibrary_SharedVariantRejected(t *testing.T) {
	t.Parallel()

	lib := incantation.NewLibrary()
	if err := lib.Register(incantation.Entry{ID: "a", Incantation: "火球", Variants: []string{"活球"}}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	err := lib.Register(incantation.Entry{ID: "b", Incantation: "水球", Variants: []string{"活球"}})
	if !errors.Is(err, incantation.ErrSharedVariant) {
		t.Fatalf("Register shared variant: err = %v, want ErrSharedVariant", err)
	}
	if _, ok := lib.Lookup("b"); ok {
		t.Error("entry b registered despite error")
	}
	if p, ok := lib.Variants().Canonical("活球"); !ok || p != "火球" {
		t.Errorf("Canonical(活球) = %q, %v; want 火球, true", p, ok)
	}
}

func TestLibrary_Validation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		entry incantation.Entry
		want  string
	}{
		{"missing id", incantation.Entry{Incantation: "火"}, "id is required"},
		{"missing incantation", incantation.Entry{ID: "x", Incantation: " 。"}, "incantation is required"},
		{"negative power", incantation.Entry{ID: "x", Incantation: "火", BasePower: -1}, "base_power"},
		{"negative cooldown", incantation.Entry{ID: "x", Incantation: "火", CooldownTurns: -2}, "cooldown_turns"},
		{"min above max", incantation.Entry{ID: "x", Incantation: "火", MinMagnitude: 10, MaxMagnitude: 5}, "exceeds"},
		{"bad curve", incantation.Entry{ID: "x", Incantation: "火", VolumeCurve: &incantation.VolumeCurve{
			Bands: []incantation.VolumeBand{{Below: 0.5, Multiplier: 1}, {Below: 0.4, Multiplier: 1}}, Above: 2,
		}}, "does not ascend"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := incantation.NewLibrary().Register(tc.entry)
			if err == nil {
				t.Fatal("Register: want error, got nil")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func TestLibrary_LookupReturnsCopy(t *testing.T) {
	t.Parallel()

	lib := incantation.Builtin()
	e, _ := lib.Lookup("fire_ball")
	e.Variants[0] = "tampered"
	e.VolumeCurve.Above = 99

	again, _ := lib.Lookup("fire_ball")
	if again.Variants[0] == "tampered" {
		t.Error("mutating a looked-up entry changed the library's variants")
	}
	if again.VolumeCurve.Above == 99 {
		t.Error("mutating a looked-up entry changed the library's volume curve")
	}
	if incantation.ShoutCurve.Above != 3.0 {
		t.Error("mutating a looked-up entry changed the shared ShoutCurve")
	}
}

func TestLibrary_OrderAndPhrases(t *testing.T) {
	t.Parallel()

	lib := incantation.NewLibrary()
	for _, e := range []incantation.Entry{
		{ID: "one", Incantation: "一", Variants: []string{"壹"}},
		{ID: "two", Incantation: "二", AlternateName: "贰"},
	} {
		if err := lib.Register(e); err != nil {
			t.Fatalf("Register(%s): %v", e.ID, err)
		}
	}

	entries := lib.Entries()
	if len(entries) != 2 || entries[0].ID != "one" || entries[1].ID != "two" {
		t.Fatalf("Entries order = %v, want [one two]", entries)
	}

	phrases := lib.Phrases()
	want := []string{"一", "壹", "二"}
	if strings.Join(phrases, "|") != strings.Join(want, "|") {
		t.Errorf("Phrases = %v, want %v", phrases, want)
	}

	kw := lib.Keywords()
	if len(kw) != 3 {
		t.Fatalf("Keywords len = %d, want 3 (two incantations + one alternate)", len(kw))
	}
	if kw[2].Keyword != "贰" || kw[2].Boost <= 0 {
		t.Errorf("Keywords[2] = %+v, want alternate name with positive boost", kw[2])
	}
}

func TestBuiltin_Valid(t *testing.T) {
	t.Parallel()

	lib := incantation.Builtin()
	fb, ok := lib.Lookup("fire_ball")
	if !ok {
		t.Fatal("builtin library lacks fire_ball")
	}
	if fb.BasePower != 103 {
		t.Errorf("fire_ball BasePower = %v, want 103", fb.BasePower)
	}
	if !fb.Effects.Has(incantation.EffectDamage) {
		t.Error("fire_ball should carry the damage effect")
	}
	if fb.Curve().Name != "shout" {
		t.Errorf("fire_ball curve = %q, want shout", fb.Curve().Name)
	}
}
