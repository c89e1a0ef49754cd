// Package cooldown tracks per-actor, per-entry cooldowns measured in turns.
package cooldown

import (
	"maps"
	"sync"
)

type key struct {
	actor string
	entry string
}

// Registry maps (actor, entry) pairs to remaining cooldown turns. All
// methods are safe for concurrent use.
type Registry struct {
	mu        sync.Mutex
	remaining map[key]int
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{remaining: make(map[key]int)}
}

// IsOnCooldown reports whether entry still has turns remaining for actor.
func (r *Registry) IsOnCooldown(actor, entry string) bool {
	return r.Remaining(actor, entry) > 0
}

// Remaining returns the turns left before actor may cast entry again.
func (r *Registry) Remaining(actor, entry string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.remaining[key{actor, entry}]
}

// Set puts entry on cooldown for turns turns. Non-positive values clear it.
func (r *Registry) Set(actor, entry string, turns int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := key{actor, entry}
	if turns <= 0 {
		delete(r.remaining, k)
		return
	}
	r.remaining[k] = turns
}

// Tick advances actor's cooldowns by one turn. Entries that reach zero are
// dropped.
func (r *Registry) Tick(actor string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for k, v := range r.remaining {
		if k.actor != actor {
			continue
		}
		if v <= 1 {
			delete(r.remaining, k)
			continue
		}
		r.remaining[k] = v - 1
	}
}

// ClearAll removes every cooldown held by actor.
func (r *Registry) ClearAll(actor string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	maps.DeleteFunc(r.remaining, func(k key, _ int) bool {
		return k.actor == actor
	})
}

// Snapshot returns actor's active cooldowns keyed by entry ID.
func (r *Registry) Snapshot(actor string) map[string]int {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]int)
	for k, v := range r.remaining {
		if k.actor == actor {
			out[k.entry] = v
		}
	}
	return out
}
