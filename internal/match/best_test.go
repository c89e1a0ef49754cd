package match_test

import (
	"math"
	"testing"

	"github.com/MrWong99/glyphcast/internal/incantation"
	"github.com/MrWong99/glyphcast/internal/match"
)

func newLibrary(t *testing.T, entries ...incantation.Entry) *incantation.Library {
	t.Helper()
	lib := incantation.NewLibrary()
	for _, e := range entries {
		if err := lib.Register(e); err != nil {
			t.Fatalf("Register(%q): %v", e.ID, err)
		}
	}
	return lib
}

func TestFindBestMatch_Builtin(t *testing.T) {
	t.Parallel()

	lib := incantation.Builtin()
	s := match.New()

	tests := []struct {
		name     string
		spoken   string
		wantID   string
		wantConf float64
		wantAlt  bool
	}{
		{"full incantation", fireBall, "fire_ball", 1.0, false},
		{"alternate name", "爆裂", "fire_ball", 1.0, true},
		{"display name", "爆裂魔法", "fire_ball", 1.0, false},
		{"known variant", "普工", "basic_attack", 0.95, false},
		{"embedded short incantation", "我要普攻敌人", "basic_attack", 0.85, false},
		{"punctuated", "治愈之光！", "heal", 1.0, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, ok := s.FindBestMatch(tc.spoken, lib, nil)
			if !ok {
				t.Fatalf("FindBestMatch(%q) found nothing", tc.spoken)
			}
			if got.Entry.ID != tc.wantID {
				t.Errorf("Entry.ID = %q, want %q", got.Entry.ID, tc.wantID)
			}
			if got.Confidence != tc.wantConf {
				t.Errorf("Confidence = %v, want %v", got.Confidence, tc.wantConf)
			}
			if got.MatchedViaAlternate != tc.wantAlt {
				t.Errorf("MatchedViaAlternate = %v, want %v", got.MatchedViaAlternate, tc.wantAlt)
			}
		})
	}
}

func TestFindBestMatch_OnlyAlternateNameIsWeak(t *testing.T) {
	t.Parallel()

	lib := newLibrary(t,
		incantation.Entry{ID: "spark", Incantation: "雷光迸裂于指尖"},
		incantation.Entry{ID: "blink", DisplayName: "闪现", Incantation: "虚空之门为吾而开", AlternateName: "瞬移"},
	)
	s := match.New()

	tests := []struct {
		spoken  string
		wantID  string
		wantAlt bool
	}{
		{"spark", "spark", false},
		{"闪现", "blink", false},
		{"瞬移", "blink", true},
	}
	for _, tc := range tests {
		got, ok := s.FindBestMatch(tc.spoken, lib, nil)
		if !ok || got.Entry.ID != tc.wantID {
			t.Errorf("FindBestMatch(%q) = %q, %t; want %q", tc.spoken, got.Entry.ID, ok, tc.wantID)
			continue
		}
		if got.MatchedViaAlternate != tc.wantAlt {
			t.Errorf("FindBestMatch(%q).MatchedViaAlternate = %t, want %t", tc.spoken, got.MatchedViaAlternate, tc.wantAlt)
		}
	}
}

func TestFindBestMatch_NoMatch(t *testing.T) {
	t.Parallel()

	lib := incantation.Builtin()
	s := match.New()
	for _, spoken := range []string{"", "   ", "。", "今天天气真好", "比那黑更黑的深渊"} {
		if got, ok := s.FindBestMatch(spoken, lib, nil); ok {
			t.Errorf("FindBestMatch(%q) = %q (%.3f), want no match", spoken, got.Entry.ID, got.Confidence)
		}
	}
	if _, ok := s.FindBestMatch("普攻", nil, nil); ok {
		t.Error("FindBestMatch with nil library returned a match")
	}
}

func TestFindBestMatch_NeverBelowAcceptance(t *testing.T) {
	t.Parallel()

	lib := incantation.Builtin()
	s := match.New()
	inputs := []string{
		"普", "攻", "治愈", "光之治", "冰墙", "天雷", "为了", "荣耀",
		"凛冬之息", "九天之上的雷霆", "林冬之息化作永恒的壁", "我要普攻敌人",
		"比那黑更黑的深渊祈求吾之深红闪光觉醒之时已然降林",
	}
	for _, spoken := range inputs {
		got, ok := s.FindBestMatch(spoken, lib, nil)
		if !ok {
			continue
		}
		if got.Confidence <= 0.45 || got.Confidence < 0.5 {
			t.Errorf("FindBestMatch(%q) accepted %.3f", spoken, got.Confidence)
		}
	}
}

func TestFindBestMatch_Eligibility(t *testing.T) {
	t.Parallel()

	lib := incantation.Builtin()
	s := match.New()
	notFireBall := func(e incantation.Entry) bool { return e.ID != "fire_ball" }

	if got, ok := s.FindBestMatch(fireBall, lib, notFireBall); ok {
		t.Errorf("ineligible entry matched as %q", got.Entry.ID)
	}
	got, ok := s.FindBestMatch("普攻", lib, notFireBall)
	if !ok || got.Entry.ID != "basic_attack" {
		t.Errorf("FindBestMatch(普攻) = %+v, %v", got, ok)
	}
}

func TestFindBestMatch_TieGoesToFirstRegistered(t *testing.T) {
	t.Parallel()

	lib := newLibrary(t,
		incantation.Entry{ID: "first", DisplayName: "同名", Incantation: "第一个咒语"},
		incantation.Entry{ID: "second", DisplayName: "同名", Incantation: "第二个咒语"},
	)
	for range 10 {
		got, ok := match.New().FindBestMatch("同名", lib, nil)
		if !ok {
			t.Fatal("no match")
		}
		if got.Entry.ID != "first" {
			t.Fatalf("Entry.ID = %q, want first", got.Entry.ID)
		}
	}
}

func TestFindBestMatch_Floor(t *testing.T) {
	t.Parallel()

	lib := newLibrary(t, incantation.Entry{ID: "long", Incantation: fireBall})
	spoken := "比那黑更黑的深渊"
	want := (0.8*(1.0/3) + 0.2*(4.0/12)) / 2

	got, ok := match.New(match.WithAcceptance(0.1), match.WithFloor(0.1)).FindBestMatch(spoken, lib, nil)
	if !ok {
		t.Fatal("expected match with lowered gates")
	}
	if math.Abs(got.Confidence-want) > 1e-9 {
		t.Errorf("Confidence = %v, want %v", got.Confidence, want)
	}

	if _, ok := match.New(match.WithAcceptance(0.1)).FindBestMatch(spoken, lib, nil); ok {
		t.Error("default floor should reject the partial incantation")
	}
}

func TestRank(t *testing.T) {
	t.Parallel()

	lib := newLibrary(t,
		incantation.Entry{ID: "big", Incantation: "大火球术"},
		incantation.Entry{ID: "small", Incantation: "火球"},
		incantation.Entry{ID: "other", Incantation: "冰锥"},
	)
	s := match.New()

	got := s.Rank("火球", lib, nil, 0)
	if len(got) != 2 {
		t.Fatalf("Rank returned %d results, want 2", len(got))
	}
	if got[0].Entry.ID != "small" || got[0].Confidence != 1.0 {
		t.Errorf("got[0] = %s (%.2f), want small (1.00)", got[0].Entry.ID, got[0].Confidence)
	}
	if got[1].Entry.ID != "big" || got[1].Confidence != 0.85 {
		t.Errorf("got[1] = %s (%.2f), want big (0.85)", got[1].Entry.ID, got[1].Confidence)
	}

	limited := s.Rank("火球", lib, nil, 1)
	if len(limited) != 1 || limited[0].Entry.ID != "small" {
		t.Errorf("Rank(limit=1) = %+v", limited)
	}

	best, ok := s.FindBestMatch("火球", lib, nil)
	if !ok || best.Entry.ID != got[0].Entry.ID {
		t.Errorf("FindBestMatch disagrees with Rank: %+v", best)
	}
}
