package observe

import (
	"log/slog"
	"net/http"
	"slices"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.39.0"
	"go.opentelemetry.io/otel/trace"
)

// DefaultQuietRoutes are the admin routes scraped by probes and Prometheus.
// Their completion lines are logged at debug level.
var DefaultQuietRoutes = []string{"GET /healthz", "GET /readyz", "GET /metrics"}

// statusRecorder captures the status code written by the wrapped handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Unwrap lets [http.ResponseController] reach the underlying writer.
func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }

// MiddlewareOption configures [Middleware].
type MiddlewareOption func(*middleware)

// WithQuietRoutes replaces [DefaultQuietRoutes]. Routes are mux patterns.
func WithQuietRoutes(routes ...string) MiddlewareOption {
	return func(mw *middleware) { mw.quiet = routes }
}

type middleware struct {
	m     *Metrics
	prop  propagation.TextMapPropagator
	quiet []string
}

// Middleware instruments the admin HTTP server. Each request gets a server
// span continuing any W3C traceparent, an X-Correlation-ID response header,
// a [Metrics.HTTPRequestDuration] sample labelled by route and status, and
// a completion log line. A ?actor= query parameter scopes the request to
// that actor for [Logger].
//
// The route label is the matched [http.ServeMux] pattern, so /casts?actor=
// and /casts/{id} style paths do not explode the label set.
func Middleware(m *Metrics, opts ...MiddlewareOption) func(http.Handler) http.Handler {
	mw := &middleware{
		m:     m,
		prop:  propagation.TraceContext{},
		quiet: DefaultQuietRoutes,
	}
	for _, o := range opts {
		o(mw)
	}
	return mw.wrap
}

func (mw *middleware) wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ctx := mw.prop.Extract(r.Context(), propagation.HeaderCarrier(r.Header))
		ctx, span := StartSpan(ctx, "HTTP "+r.Method,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				semconv.HTTPRequestMethodKey.String(r.Method),
				semconv.URLPath(r.URL.Path),
			),
		)
		defer span.End()

		if actor := r.URL.Query().Get("actor"); actor != "" {
			ctx = WithCast(ctx, actor, "")
			span.SetAttributes(AttrActor.String(actor))
		}

		cid := CorrelationID(ctx)
		if cid != "" {
			w.Header().Set("X-Correlation-ID", cid)
		}
		mw.prop.Inject(ctx, propagation.HeaderCarrier(w.Header()))

		r = r.WithContext(ctx)
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := routeLabel(r)
		elapsed := time.Since(start)
		span.SetName(route)
		span.SetAttributes(semconv.HTTPResponseStatusCode(rec.status))
		if rec.status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(rec.status))
		}

		mw.m.HTTPRequestDuration.Record(ctx, elapsed.Seconds(),
			metric.WithAttributes(
				attribute.String("route", route),
				attribute.Int("status", rec.status),
			),
		)

		level := slog.LevelInfo
		if slices.Contains(mw.quiet, route) {
			level = slog.LevelDebug
		}
		Logger(ctx).Log(ctx, level, "observe: request completed",
			"route", route,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", elapsed,
		)
	})
}

// routeLabel returns the mux pattern that served r, or the method and raw
// path for handlers mounted without a mux.
func routeLabel(r *http.Request) string {
	if r.Pattern != "" {
		return r.Pattern
	}
	return r.Method + " " + r.URL.Path
}
