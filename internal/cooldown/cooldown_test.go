package cooldown_test

import (
	"sync"
	"testing"

	"github.com/MrWong99/glyphcast/internal/cooldown"
)

func TestRegistry_ThreeTicks(t *testing.T) {
	t.Parallel()

	r := cooldown.New()
	r.Set("hero", "fire_ball", 3)

	want := []struct {
		remaining int
		onCD      bool
	}{
		{3, true},
		{2, true},
		{1, true},
		{0, false},
	}
	for i, w := range want {
		if i > 0 {
			r.Tick("hero")
		}
		if got := r.Remaining("hero", "fire_ball"); got != w.remaining {
			t.Errorf("after %d ticks: Remaining = %d, want %d", i, got, w.remaining)
		}
		if got := r.IsOnCooldown("hero", "fire_ball"); got != w.onCD {
			t.Errorf("after %d ticks: IsOnCooldown = %v, want %v", i, got, w.onCD)
		}
	}

	// Further ticks never go negative.
	r.Tick("hero")
	if got := r.Remaining("hero", "fire_ball"); got != 0 {
		t.Errorf("Remaining after extra tick = %d, want 0", got)
	}
	if snap := r.Snapshot("hero"); len(snap) != 0 {
		t.Errorf("exhausted cooldown still listed: %v", snap)
	}
}

func TestRegistry_SetNonPositive(t *testing.T) {
	t.Parallel()

	r := cooldown.New()
	r.Set("hero", "heal", 2)
	r.Set("hero", "heal", -5)
	if r.IsOnCooldown("hero", "heal") {
		t.Error("negative Set did not clear cooldown")
	}
	r.Set("hero", "heal", 0)
	if got := r.Remaining("hero", "heal"); got != 0 {
		t.Errorf("Remaining = %d, want 0", got)
	}
}

func TestRegistry_ActorsIndependent(t *testing.T) {
	t.Parallel()

	r := cooldown.New()
	r.Set("hero", "fire_ball", 2)
	r.Set("mage", "fire_ball", 2)
	r.Set("mage", "heal", 1)

	r.Tick("hero")
	if got := r.Remaining("mage", "fire_ball"); got != 2 {
		t.Errorf("mage fire_ball = %d after hero tick, want 2", got)
	}
	if got := r.Remaining("hero", "fire_ball"); got != 1 {
		t.Errorf("hero fire_ball = %d, want 1", got)
	}

	r.ClearAll("mage")
	if snap := r.Snapshot("mage"); len(snap) != 0 {
		t.Errorf("mage snapshot after ClearAll = %v", snap)
	}
	if !r.IsOnCooldown("hero", "fire_ball") {
		t.Error("ClearAll(mage) cleared hero's cooldown")
	}
}

func TestRegistry_Snapshot(t *testing.T) {
	t.Parallel()

	r := cooldown.New()
	r.Set("hero", "fire_ball", 3)
	r.Set("hero", "frost_wall", 2)

	snap := r.Snapshot("hero")
	if len(snap) != 2 || snap["fire_ball"] != 3 || snap["frost_wall"] != 2 {
		t.Errorf("Snapshot = %v", snap)
	}
	snap["fire_ball"] = 99
	if got := r.Remaining("hero", "fire_ball"); got != 3 {
		t.Errorf("mutating snapshot changed registry: %d", got)
	}
}

func TestRegistry_Concurrent(t *testing.T) {
	t.Parallel()

	r := cooldown.New()
	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			actor := string(rune('a' + i))
			for range 100 {
				r.Set(actor, "x", 3)
				r.Tick(actor)
				_ = r.IsOnCooldown(actor, "x")
				_ = r.Snapshot(actor)
			}
		}()
	}
	wg.Wait()
	for i := range 8 {
		if got := r.Remaining(string(rune('a'+i)), "x"); got != 2 {
			t.Errorf("actor %d: Remaining = %d, want 2", i, got)
		}
	}
}
