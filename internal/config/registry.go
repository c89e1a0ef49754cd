package config

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/MrWong99/glyphcast/pkg/provider/stt"
)

// ErrProviderNotRegistered reports a provider name with no factory.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// STTFactory builds a speech-to-text provider from its config entry.
type STTFactory func(ProviderEntry) (stt.Provider, error)

// Registry maps provider names to factories. Safe for concurrent use.
type Registry struct {
	mu  sync.RWMutex
	stt map[string]STTFactory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{stt: make(map[string]STTFactory)}
}

// RegisterSTT binds name to factory, replacing any earlier binding.
func (r *Registry) RegisterSTT(name string, factory STTFactory) {
	r.mu.Lock()
	r.stt[name] = factory
	r.mu.Unlock()
}

// STTNames lists the registered STT names, sorted.
func (r *Registry) STTNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.stt))
}

// CreateSTT runs the factory registered under entry.Name.
func (r *Registry) CreateSTT(entry ProviderEntry) (stt.Provider, error) {
	r.mu.RLock()
	factory := r.stt[entry.Name]
	r.mu.RUnlock()
	if factory == nil {
		return nil, fmt.Errorf("%w: stt/%q (registered: %v)", ErrProviderNotRegistered, entry.Name, r.STTNames())
	}
	p, err := factory(entry)
	if err != nil {
		return nil, fmt.Errorf("config: create stt/%q: %w", entry.Name, err)
	}
	return p, nil
}

// BuildSTT creates the STT provider cfg selects. It returns nil, nil when
// cfg names none, which leaves the engine on console input.
func (r *Registry) BuildSTT(cfg *Config) (stt.Provider, error) {
	if cfg.Providers.STT.Name == "" {
		return nil, nil
	}
	return r.CreateSTT(cfg.Providers.STT)
}
