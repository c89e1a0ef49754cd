package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames are the provider names glyphcast ships, per kind.
// Other names only draw a warning since third-party builds may register
// more.
var ValidProviderNames = map[string][]string{
	"stt": {"deepgram"},
}

// Load reads and validates the config file at path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes YAML from r and validates it. Unknown keys are
// errors, and an empty document yields the defaults.
func LoadFromReader(r io.Reader) (*Config, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var cfg Config
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// problems collects validation failures.
type problems []error

func (p *problems) addf(format string, args ...any) {
	*p = append(*p, fmt.Errorf(format, args...))
}

func (p *problems) unitRange(field string, v float64) {
	if v < 0 || v > 1 {
		p.addf("%s %.2f is out of range [0, 1]", field, v)
	}
}

// Validate reports every inconsistency in cfg as one joined error.
func Validate(cfg *Config) error {
	var p problems

	s := cfg.Server
	if s.LogLevel != "" && !s.LogLevel.IsValid() {
		p.addf("server.log_level %q is invalid; valid values: debug, info, warn, error", s.LogLevel)
	}
	if s.TLS != nil && (s.TLS.CertFile == "" || s.TLS.KeyFile == "") {
		p.addf("server.tls requires both cert_file and key_file")
	}

	e := cfg.Engine
	if e.SilenceWindow < 0 {
		p.addf("engine.silence_window %s must not be negative", e.SilenceWindow)
	}
	if e.PollInterval < 0 {
		p.addf("engine.poll_interval %s must not be negative", e.PollInterval)
	}
	if e.SilenceWindow > 0 && e.PollInterval > e.SilenceWindow {
		slog.Warn("config: engine.poll_interval exceeds engine.silence_window; casts will resolve late",
			"poll_interval", e.PollInterval,
			"silence_window", e.SilenceWindow,
		)
	}
	p.unitRange("engine.acceptance_threshold", e.AcceptanceThreshold)
	p.unitRange("engine.floor_threshold", e.FloorThreshold)
	if e.LongTextRunes < 0 {
		p.addf("engine.long_text_runes %d must not be negative", e.LongTextRunes)
	}
	if e.ActorPower < 0 {
		p.addf("engine.actor_power %.1f must not be negative", e.ActorPower)
	}
	for i, o := range e.Overrides {
		if o.TargetTag == "" {
			p.addf("engine.overrides[%d].target_tag is required", i)
		}
		if o.Fixed < 0 {
			p.addf("engine.overrides[%d].fixed %.1f must not be negative", i, o.Fixed)
		}
	}

	if !cfg.Library.UseBuiltin() && cfg.Library.Path == "" {
		p.addf("library: builtin is disabled and no path is set; the library would be empty")
	}

	warnUnknownProvider("stt", cfg.Providers.STT.Name)

	in := cfg.Input
	if in.Mode != "" && !in.Mode.IsValid() {
		p.addf("input.mode %q is invalid; valid values: console, pcm", in.Mode)
	}
	if in.Mode == InputPCM && cfg.Providers.STT.Name == "" {
		p.addf("input: mode pcm requires an STT provider but providers.stt is not configured")
	}
	if in.SampleRate < 0 || in.Channels < 0 || in.FrameMillis < 0 {
		p.addf("input: sample_rate, channels and frame_ms must not be negative")
	}
	p.unitRange("input.speech_threshold", in.SpeechThreshold)

	return errors.Join(p...)
}

func warnUnknownProvider(kind, name string) {
	known := ValidProviderNames[kind]
	if name == "" || known == nil || slices.Contains(known, name) {
		return
	}
	slog.Warn("config: unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
