// Package health serves the liveness and readiness probes of the glyphcast
// admin server.
//
// GET /healthz answers 200 whenever the process can serve HTTP. GET /readyz
// runs every [Checker] concurrently and reports one of three states:
//
//	ok        every check passed                 200
//	degraded  only optional checks failed        200
//	fail      at least one required check failed 503
//
// Casts keep resolving while the cast log database is unreachable, so the
// binary registers that check as optional.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
)

// Report states.
const (
	StatusOK       = "ok"
	StatusDegraded = "degraded"
	StatusFail     = "fail"
)

// DefaultTimeout bounds a whole /readyz evaluation.
const DefaultTimeout = 3 * time.Second

// Checker is a named readiness probe.
type Checker struct {
	// Name keys the check in the report ("library", "castlog").
	Name string

	// Check returns nil when the dependency is usable. It must honour ctx.
	Check func(ctx context.Context) error

	// Optional checks degrade readiness instead of failing it.
	Optional bool
}

// AsOptional returns a copy of c marked optional.
func (c Checker) AsOptional() Checker {
	c.Optional = true
	return c
}

// CheckResult is the outcome of one [Checker] in a [Report].
type CheckResult struct {
	Status   string `json:"status"`
	Error    string `json:"error,omitempty"`
	Optional bool   `json:"optional,omitempty"`
	Latency  string `json:"latency"`
}

// Report is the JSON body of both probes.
type Report struct {
	Status         string                 `json:"status"`
	ActiveSessions *int                   `json:"active_sessions,omitempty"`
	Checks         map[string]CheckResult `json:"checks,omitempty"`
}

// Option configures a [Handler].
type Option func(*Handler)

// WithChecks adds readiness checks.
func WithChecks(checks ...Checker) Option {
	return func(h *Handler) { h.checks = append(h.checks, checks...) }
}

// WithTimeout overrides [DefaultTimeout].
func WithTimeout(d time.Duration) Option {
	return func(h *Handler) {
		if d > 0 {
			h.timeout = d
		}
	}
}

// WithActiveSessions reports the number of live casting sessions in both
// probes.
func WithActiveSessions(fn func() int) Option {
	return func(h *Handler) { h.sessions = fn }
}

// Handler serves /healthz and /readyz. The check list is fixed by [New].
type Handler struct {
	checks   []Checker
	timeout  time.Duration
	sessions func() int
}

// New returns a Handler.
func New(opts ...Option) *Handler {
	h := &Handler{timeout: DefaultTimeout}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Register adds the probe routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

// Healthz always answers 200.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.base(StatusOK))
}

// Readyz evaluates every check and answers 503 when a required one fails.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	rep := h.Evaluate(r.Context())
	code := http.StatusOK
	if rep.Status == StatusFail {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, rep)
}

// Evaluate runs all checks concurrently under the handler timeout.
func (h *Handler) Evaluate(ctx context.Context) Report {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	results := make([]CheckResult, len(h.checks))
	var g errgroup.Group
	for i, c := range h.checks {
		g.Go(func() error {
			start := time.Now()
			err := c.Check(ctx)
			res := CheckResult{
				Status:   StatusOK,
				Optional: c.Optional,
				Latency:  time.Since(start).Round(time.Microsecond).String(),
			}
			if err != nil {
				res.Status = StatusFail
				res.Error = err.Error()
			}
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()

	rep := h.base(StatusOK)
	if len(h.checks) > 0 {
		rep.Checks = make(map[string]CheckResult, len(h.checks))
	}
	for i, c := range h.checks {
		res := results[i]
		rep.Checks[c.Name] = res
		if res.Status == StatusOK {
			continue
		}
		switch {
		case !c.Optional:
			rep.Status = StatusFail
		case rep.Status == StatusOK:
			rep.Status = StatusDegraded
		}
	}
	return rep
}

func (h *Handler) base(status string) Report {
	rep := Report{Status: status}
	if h.sessions != nil {
		n := h.sessions()
		rep.ActiveSessions = &n
	}
	return rep
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"status":"fail"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(append(body, '\n'))
}
