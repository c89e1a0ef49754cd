// Command glyphcast is the entry point for the glyphcast incantation engine.
// It rehearses a library from console commands or listens to raw PCM on
// stdin through a streaming STT provider, and serves metrics, health probes
// and cast history over HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MrWong99/glyphcast/internal/app"
	"github.com/MrWong99/glyphcast/internal/config"
	"github.com/MrWong99/glyphcast/internal/observe"
	"github.com/MrWong99/glyphcast/pkg/provider/stt"
	"github.com/MrWong99/glyphcast/pkg/provider/stt/deepgram"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "glyphcast.yaml", "path to the YAML configuration file")
	watch := flag.Bool("watch", true, "reload the configuration file when it changes")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "glyphcast: config file %q not found, pass -config to point at one\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "glyphcast: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	level := new(slog.LevelVar)
	level.Set(slogLevel(cfg.Server.LogLevel))
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	slog.Info("glyphcast starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	tel, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceVersion: version})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Providers ─────────────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	providers, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	// ── Config hot reload ─────────────────────────────────────────────────────
	if *watch {
		w, err := config.NewWatcher(*configPath, func(old, new *config.Config) {
			d := config.Diff(old, new)
			if d.LogLevelChanged {
				level.Set(slogLevel(d.NewLogLevel))
				slog.Info("log level changed", "level", d.NewLogLevel)
			}
			if d.RequiresRestart() {
				slog.Warn("configuration changed; restart glyphcast to apply",
					"engine", d.EngineChanged,
					"library", d.LibraryChanged,
					"providers", d.ProvidersChanged,
					"input", d.InputChanged,
					"castlog", d.CastLogChanged,
					"server", d.ServerChanged,
				)
			}
		})
		if err != nil {
			slog.Warn("config watcher disabled", "err", err)
		} else {
			defer w.Stop()
		}
	}

	application, err := app.New(ctx, cfg, providers,
		app.WithMetrics(tel.Metrics),
		app.WithMetricsHandler(tel.Handler()),
	)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	slog.Info("ready, press Ctrl+C to shut down")

	code := 0
	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		code = 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("stopping")
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return code
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires the STT factories that ship with glyphcast.
func registerBuiltinProviders(reg *config.Registry) {
	reg.RegisterSTT("deepgram", newDeepgram)

	for _, name := range reg.STTNames() {
		slog.Debug("registered provider", "kind", "stt", "name", name)
	}
}

// newDeepgram builds a Deepgram provider. Options: endpointing and
// keep_alive (durations), sample_rate (int).
func newDeepgram(entry config.ProviderEntry) (stt.Provider, error) {
	var opts []deepgram.Option
	if entry.Model != "" {
		opts = append(opts, deepgram.WithModel(entry.Model))
	}
	if entry.Language != "" {
		opts = append(opts, deepgram.WithLanguage(entry.Language))
	}
	if entry.BaseURL != "" {
		opts = append(opts, deepgram.WithEndpoint(entry.BaseURL))
	}
	if rate, ok := entry.Options["sample_rate"].(int); ok && rate > 0 {
		opts = append(opts, deepgram.WithSampleRate(rate))
	}

	endpointing, err := entry.DurationOption("endpointing")
	if err != nil {
		return nil, err
	}
	if endpointing > 0 {
		opts = append(opts, deepgram.WithEndpointing(endpointing))
	}
	if _, ok := entry.Options["keep_alive"]; ok {
		keepAlive, err := entry.DurationOption("keep_alive")
		if err != nil {
			return nil, err
		}
		opts = append(opts, deepgram.WithKeepAlive(keepAlive))
	}
	return deepgram.New(entry.APIKey, opts...)
}

// buildProviders creates the providers cfg selects.
func buildProviders(cfg *config.Config, reg *config.Registry) (*app.Providers, error) {
	speech, err := reg.BuildSTT(cfg)
	if err != nil {
		return nil, err
	}
	if speech != nil {
		slog.Info("provider created", "kind", "stt", "name", cfg.Providers.STT.Name, "model", cfg.Providers.STT.Model)
	}
	return &app.Providers{STT: speech}, nil
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
