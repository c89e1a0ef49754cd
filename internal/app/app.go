// Package app wires all glyphcast subsystems into a running application.
//
// The App struct owns the full lifecycle: New loads the incantation library,
// connects the cast log and builds the caster, Run drives the poll loop, the
// admin HTTP server and the configured input, and Shutdown tears everything
// down in order.
//
// For testing, inject doubles via functional options (WithApplier,
// WithInput, WithSink, ...). When an option is not provided, New creates
// real implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/glyphcast/internal/cast"
	"github.com/MrWong99/glyphcast/internal/castlog"
	"github.com/MrWong99/glyphcast/internal/config"
	"github.com/MrWong99/glyphcast/internal/health"
	"github.com/MrWong99/glyphcast/internal/incantation"
	"github.com/MrWong99/glyphcast/internal/magnitude"
	"github.com/MrWong99/glyphcast/internal/match"
	"github.com/MrWong99/glyphcast/internal/observe"
	"github.com/MrWong99/glyphcast/internal/session"
	"github.com/MrWong99/glyphcast/pkg/provider/stt"
)

// defaultActor is the actor that pcm input is attributed to.
const defaultActor = "player"

// Providers holds one interface value per provider slot. Nil means the
// provider is not configured. Populated by main.go via the config registry.
type Providers struct {
	STT stt.Provider
}

// App owns all subsystem lifetimes and orchestrates the casting pipeline.
type App struct {
	cfg       *config.Config
	providers *Providers

	in             io.Reader
	out            io.Writer
	clock          session.Clock
	metrics        *observe.Metrics
	metricsHandler http.Handler

	// Subsystems, initialised in New and torn down in Shutdown.
	library  *incantation.Library
	applier  cast.Applier
	sink     castlog.Sink
	store    castlog.Store
	checkers []health.Checker
	caster   *cast.Caster
	server   *http.Server
	handler  http.Handler

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithLibrary injects a library instead of loading one from config.
func WithLibrary(lib *incantation.Library) Option {
	return func(a *App) { a.library = lib }
}

// WithApplier replaces the console applier.
func WithApplier(ap cast.Applier) Option {
	return func(a *App) { a.applier = ap }
}

// WithSink injects a cast log sink instead of creating sinks from config.
// A sink that also implements [castlog.Store] serves GET /casts.
func WithSink(s castlog.Sink) Option {
	return func(a *App) { a.sink = s }
}

// WithInput sets the reader consumed by the console or pcm input.
// Default: os.Stdin.
func WithInput(r io.Reader) Option {
	return func(a *App) { a.in = r }
}

// WithOutput sets the writer console output goes to. Default: os.Stdout.
func WithOutput(w io.Writer) Option {
	return func(a *App) { a.out = w }
}

// WithClock sets the session clock. Default: time.Now.
func WithClock(c session.Clock) Option {
	return func(a *App) { a.clock = c }
}

// WithMetrics sets the metrics instruments. Default: observe.DefaultMetrics().
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithMetricsHandler sets the handler served on GET /metrics.
// Default: promhttp.Handler().
func WithMetricsHandler(h http.Handler) Option {
	return func(a *App) { a.metricsHandler = h }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. The providers struct
// comes from main.go (populated via the config registry) and may be nil when
// no provider is configured.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil {
		providers = &Providers{}
	}
	a := &App{
		cfg:       cfg,
		providers: providers,
		in:        os.Stdin,
		out:       os.Stdout,
	}
	for _, o := range opts {
		o(a)
	}
	a.out = &syncWriter{w: a.out}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if a.metricsHandler == nil {
		a.metricsHandler = promhttp.Handler()
	}

	// ── 1. Incantation library ───────────────────────────────────────────
	if err := a.initLibrary(); err != nil {
		return nil, fmt.Errorf("app: init library: %w", err)
	}

	// ── 2. Cast log ──────────────────────────────────────────────────────
	if err := a.initCastLog(ctx); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init cast log: %w", err)
	}

	// ── 3. Caster ────────────────────────────────────────────────────────
	if err := a.initCaster(); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init caster: %w", err)
	}

	// ── 4. Admin HTTP ────────────────────────────────────────────────────
	a.initHTTP()

	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initLibrary registers the builtin entries and the configured library file.
func (a *App) initLibrary() error {
	if a.library != nil {
		return nil
	}
	lib := incantation.NewLibrary()
	if a.cfg.Library.UseBuiltin() {
		if err := incantation.RegisterBuiltin(lib); err != nil {
			return err
		}
	}
	if path := a.cfg.Library.Path; path != "" {
		if err := incantation.LoadFile(lib, path); err != nil {
			return err
		}
	}
	if lib.Len() == 0 {
		return errors.New("library is empty")
	}
	a.library = lib
	slog.Info("app: library loaded", "entries", lib.Len(), "path", a.cfg.Library.Path)
	return nil
}

// initCastLog creates the configured sinks. The PostgreSQL sink, when
// present, answers history queries; otherwise the file sink does.
func (a *App) initCastLog(ctx context.Context) error {
	if a.sink != nil {
		if st, ok := a.sink.(castlog.Store); ok {
			a.store = st
		}
		return nil
	}

	var sinks castlog.Multi
	if path := a.cfg.CastLog.File; path != "" {
		fs := castlog.NewFileSink(path)
		sinks = append(sinks, fs)
		a.store = fs
		slog.Info("app: cast log file", "path", path)
	}
	if dsn := a.cfg.CastLog.PostgresDSN; dsn != "" {
		ps, err := castlog.NewPostgresSink(ctx, dsn)
		if err != nil {
			return err
		}
		sinks = append(sinks, ps)
		a.store = ps
		a.checkers = append(a.checkers, health.PingCheck("castlog", ps).AsOptional())
		a.closers = append(a.closers, func() error {
			ps.Close()
			return nil
		})
		slog.Info("app: cast log database connected")
	}

	switch len(sinks) {
	case 0:
	case 1:
		a.sink = sinks[0]
	default:
		a.sink = sinks
	}
	return nil
}

// initCaster builds the scorer, resolver and caster from the engine config.
func (a *App) initCaster() error {
	e := a.cfg.Engine

	scorerOpts := []match.Option{match.WithMetaphone(e.Metaphone)}
	if e.AcceptanceThreshold > 0 {
		scorerOpts = append(scorerOpts, match.WithAcceptance(e.AcceptanceThreshold))
	}
	if e.FloorThreshold > 0 {
		scorerOpts = append(scorerOpts, match.WithFloor(e.FloorThreshold))
	}

	seed := e.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	resolver := magnitude.NewResolver(
		magnitude.WithRandom(magnitude.NewRand(seed)),
		magnitude.WithOverrides(e.Overrides...),
	)

	var denylist []string
	if len(e.Denylist) > 0 {
		denylist = e.Denylist
	}

	if a.applier == nil {
		a.applier = newConsoleApplier(a.out)
	}

	c, err := cast.New(cast.Config{
		Library: a.library,
		Session: session.Config{
			Scorer:        match.New(scorerOpts...),
			Clock:         a.clock,
			SilenceWindow: e.SilenceWindow,
			LongTextRunes: e.LongTextRunes,
			Denylist:      denylist,
		},
		Resolver:   resolver,
		Applier:    a.applier,
		Sink:       a.sink,
		Metrics:    a.metrics,
		ActorPower: e.ActorPower,
		Provider:   a.providerName(),
	})
	if err != nil {
		return err
	}
	a.caster = c
	a.checkers = append(a.checkers, health.LibraryCheck(a.library))
	return nil
}

// initHTTP builds the admin mux: metrics, health probes and cast history.
func (a *App) initHTTP() {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", a.metricsHandler)
	health.New(
		health.WithChecks(a.checkers...),
		health.WithActiveSessions(a.caster.Sessions().Active),
	).Register(mux)
	if a.store != nil {
		mux.Handle("GET /casts", castlog.Handler(a.store))
	}
	a.handler = observe.Middleware(a.metrics)(mux)

	if addr := a.cfg.Server.ListenAddr; addr != "" {
		a.server = &http.Server{
			Addr:              addr,
			Handler:           a.handler,
			ReadHeaderTimeout: 5 * time.Second,
		}
	}
}

// Caster returns the casting engine.
func (a *App) Caster() *cast.Caster { return a.caster }

// Handler returns the admin HTTP handler, whether or not a listen address
// is configured.
func (a *App) Handler() http.Handler { return a.handler }

func (a *App) providerName() string {
	if n := a.cfg.Providers.STT.Name; n != "" {
		return n
	}
	return "console"
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run starts the poll loop, the admin server and the configured input, and
// blocks until ctx is cancelled or the input is exhausted. It returns nil
// when the input ended and ctx.Err() when ctx was cancelled.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	runCtx, stop := context.WithCancel(gctx)
	defer stop()

	g.Go(func() error {
		a.caster.Run(runCtx, a.cfg.Engine.PollInterval)
		return nil
	})

	if a.server != nil {
		g.Go(func() error {
			return a.serve(runCtx)
		})
	}

	g.Go(func() error {
		// The input drives the application: once it is exhausted the
		// remaining loops stop.
		defer stop()
		if a.cfg.Input.Mode == config.InputPCM {
			return a.runPCM(runCtx, a.in)
		}
		return a.runConsole(runCtx, a.in)
	})

	slog.Info("app: running",
		"entries", a.library.Len(),
		"input", a.inputMode(),
		"listen_addr", a.cfg.Server.ListenAddr,
	)
	err := g.Wait()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (a *App) inputMode() config.InputMode {
	if a.cfg.Input.Mode == "" {
		return config.InputConsole
	}
	return a.cfg.Input.Mode
}

// serve runs the admin HTTP server until ctx is done.
func (a *App) serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		var err error
		if tls := a.cfg.Server.TLS; tls != nil {
			err = a.server.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
		} else {
			err = a.server.ListenAndServe()
		}
		errCh <- err
	}()
	slog.Info("app: admin server listening", "addr", a.server.Addr, "tls", a.cfg.Server.TLS != nil)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("app: admin server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			slog.Warn("app: admin server shutdown", "err", err)
		}
		return nil
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown cancels live sessions and tears down all subsystems in
// init order. It respects the context deadline: if ctx expires before all
// closers finish, remaining closers are skipped and the context error is
// returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("app: shutting down", "closers", len(a.closers))

		if n := a.caster.EndRound(); n > 0 {
			slog.Info("app: cancelled live sessions", "count", n)
		}

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("app: shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("app: closer error", "index", i, "err", err)
			}
		}

		slog.Info("app: shutdown complete")
	})
	return shutdownErr
}

// closeAll runs the closers registered so far after a failed New.
func (a *App) closeAll() {
	for _, closer := range a.closers {
		_ = closer()
	}
}
