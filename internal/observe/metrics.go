// Package observe holds glyphcast's observability plumbing: OpenTelemetry
// instruments for the casting pipeline, spans and trace-aware logging, and
// the admin HTTP middleware.
//
// Instruments are created through the OpenTelemetry metrics API and exported
// to Prometheus by [InitProvider]. Code without an injected [Metrics] falls
// back to [DefaultMetrics]. Tests build their own with [NewMetrics] and a
// manual reader so they never share state.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope of every glyphcast instrument.
const meterName = "github.com/MrWong99/glyphcast"

// Metrics are the instruments of the casting pipeline. Prefer the Record
// and Session helpers, which attach the expected attributes.
type Metrics struct {
	// ── Casting ───────────────────────────────────────────────────────────

	// CastsApplied counts casts handed to the applier, by entry and via
	// ("incantation" or "alternate").
	CastsApplied metric.Int64Counter

	// CastsRejected counts matched casts refused by a gate, by entry and
	// reason.
	CastsRejected metric.Int64Counter

	// NoMatch counts resolutions without an acceptable candidate.
	NoMatch metric.Int64Counter

	MatchConfidence metric.Float64Histogram
	VolumeScore     metric.Float64Histogram

	// Magnitude is the resolved effect magnitude, by entry.
	Magnitude metric.Float64Histogram

	// CastDuration is the time from session start to resolution.
	CastDuration metric.Float64Histogram

	ActiveSessions metric.Int64UpDownCounter

	// ── Speech providers ──────────────────────────────────────────────────

	// Transcripts counts recogniser hypotheses, by provider and kind
	// ("partial" or "final").
	Transcripts metric.Int64Counter

	// ProviderErrors counts provider failures, by provider and kind.
	ProviderErrors metric.Int64Counter

	// ── Admin HTTP ────────────────────────────────────────────────────────

	// HTTPRequestDuration is admin server latency, by mux route and status.
	HTTPRequestDuration metric.Float64Histogram
}

var (
	// speakingBuckets spans a two-syllable spell to a long chant, in seconds.
	speakingBuckets = []float64{0.25, 0.5, 1, 1.5, 2, 3, 5, 8, 13, 20}

	// scoreBuckets covers [0,1], denser above the acceptance threshold.
	scoreBuckets = []float64{0.1, 0.2, 0.3, 0.45, 0.5, 0.6, 0.7, 0.8, 0.85, 0.9, 0.95, 1}

	// magnitudeBuckets spans a feeble poke to a critical ultimate.
	magnitudeBuckets = []float64{1, 10, 25, 50, 100, 150, 200, 300, 500, 1000}
)

// instruments creates instruments on one meter and keeps the first error.
type instruments struct {
	meter metric.Meter
	err   error
}

func (in *instruments) counter(name, desc string) metric.Int64Counter {
	c, err := in.meter.Int64Counter(name, metric.WithDescription(desc))
	in.keep(err)
	return c
}

func (in *instruments) gauge(name, desc string) metric.Int64UpDownCounter {
	c, err := in.meter.Int64UpDownCounter(name, metric.WithDescription(desc))
	in.keep(err)
	return c
}

func (in *instruments) histogram(name, desc, unit string, buckets []float64) metric.Float64Histogram {
	opts := []metric.Float64HistogramOption{metric.WithDescription(desc)}
	if unit != "" {
		opts = append(opts, metric.WithUnit(unit))
	}
	if buckets != nil {
		opts = append(opts, metric.WithExplicitBucketBoundaries(buckets...))
	}
	h, err := in.meter.Float64Histogram(name, opts...)
	in.keep(err)
	return h
}

func (in *instruments) keep(err error) {
	if in.err == nil {
		in.err = err
	}
}

// NewMetrics creates the instruments on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	in := &instruments{meter: mp.Meter(meterName)}
	m := &Metrics{
		CastsApplied:  in.counter("glyphcast.casts.applied", "Casts handed to the effect applier by entry and match path."),
		CastsRejected: in.counter("glyphcast.casts.rejected", "Matched casts refused by a gate, by entry and reason."),
		NoMatch:       in.counter("glyphcast.casts.no_match", "Resolutions that found no acceptable incantation."),

		MatchConfidence: in.histogram("glyphcast.match.confidence", "Confidence of accepted incantation matches.", "", scoreBuckets),
		VolumeScore:     in.histogram("glyphcast.cast.volume_score", "Loudness score of applied casts.", "", scoreBuckets),
		Magnitude:       in.histogram("glyphcast.cast.magnitude", "Resolved effect magnitude by entry.", "", magnitudeBuckets),
		CastDuration:    in.histogram("glyphcast.cast.duration", "Time from session start to resolution.", "s", speakingBuckets),

		ActiveSessions: in.gauge("glyphcast.active_sessions", "Live casting sessions."),

		Transcripts:    in.counter("glyphcast.stt.transcripts", "Transcripts received by provider and kind."),
		ProviderErrors: in.counter("glyphcast.provider.errors", "Provider errors by provider and kind."),

		HTTPRequestDuration: in.histogram("glyphcast.http.request.duration", "Admin HTTP request latency by route and status.", "s", nil),
	}
	if in.err != nil {
		return nil, in.err
	}
	return m, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns instruments on the global meter provider, created
// on first use. It panics if creation fails, which the global provider
// never does.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		if defaultMetrics, err = NewMetrics(otel.GetMeterProvider()); err != nil {
			panic("observe: default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// SessionOpened counts a new live session.
func (m *Metrics) SessionOpened(ctx context.Context) {
	m.ActiveSessions.Add(ctx, 1)
}

// SessionsDropped removes n sessions that ended without resolving.
func (m *Metrics) SessionsDropped(ctx context.Context, n int) {
	if n > 0 {
		m.ActiveSessions.Add(ctx, int64(-n))
	}
}

// SessionResolved removes a resolved session and records how long the
// player spoke.
func (m *Metrics) SessionResolved(ctx context.Context, spoke time.Duration) {
	m.ActiveSessions.Add(ctx, -1)
	m.CastDuration.Record(ctx, spoke.Seconds())
}

// RecordCast records an applied cast.
func (m *Metrics) RecordCast(ctx context.Context, entry string, viaAlternate bool, confidence, volume, magnitude float64) {
	via := "incantation"
	if viaAlternate {
		via = "alternate"
	}
	byEntry := attribute.String("entry", entry)
	m.CastsApplied.Add(ctx, 1, metric.WithAttributes(byEntry, attribute.String("via", via)))
	m.MatchConfidence.Record(ctx, confidence)
	m.VolumeScore.Record(ctx, volume)
	m.Magnitude.Record(ctx, magnitude, metric.WithAttributes(byEntry))
}

// RecordRejection records a cast refused by a gate.
func (m *Metrics) RecordRejection(ctx context.Context, entry, reason string) {
	m.CastsRejected.Add(ctx, 1, metric.WithAttributes(
		attribute.String("entry", entry),
		attribute.String("reason", reason),
	))
}

func (m *Metrics) RecordNoMatch(ctx context.Context) {
	m.NoMatch.Add(ctx, 1)
}

// RecordTranscript records one recogniser hypothesis.
func (m *Metrics) RecordTranscript(ctx context.Context, provider string, final bool) {
	kind := "partial"
	if final {
		kind = "final"
	}
	m.Transcripts.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("kind", kind),
	))
}

// RecordProviderError records a failed provider call. kind names the call,
// e.g. "start_stream".
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("kind", kind),
	))
}
