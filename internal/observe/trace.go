package observe

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// tracerName is the instrumentation scope of glyphcast spans.
const tracerName = "github.com/MrWong99/glyphcast"

// Span attribute keys shared by cast spans and log lines.
const (
	AttrActor     = attribute.Key("glyphcast.actor")
	AttrSessionID = attribute.Key("glyphcast.session_id")
)

// Tracer returns the glyphcast tracer from the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// StartSpan starts a span. End it with [EndSpan].
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, opts...)
}

// EndSpan records err on span, if any, and ends it.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// castScope identifies the cast a context belongs to.
type castScope struct {
	actor     string
	sessionID string
}

type castKey struct{}

// WithCast returns a context carrying the actor and casting session that
// work under ctx belongs to. [Logger] and [StartCastSpan] read it back.
func WithCast(ctx context.Context, actor, sessionID string) context.Context {
	return context.WithValue(ctx, castKey{}, castScope{actor: actor, sessionID: sessionID})
}

// CastFrom returns the actor and session stored by [WithCast].
func CastFrom(ctx context.Context) (actor, sessionID string, ok bool) {
	sc, ok := ctx.Value(castKey{}).(castScope)
	return sc.actor, sc.sessionID, ok
}

// StartCastSpan scopes ctx to one cast and starts a span tagged with the
// actor and session. Extra attributes are appended.
func StartCastSpan(ctx context.Context, name, actor, sessionID string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	ctx = WithCast(ctx, actor, sessionID)
	all := append([]attribute.KeyValue{
		AttrActor.String(actor),
		AttrSessionID.String(sessionID),
	}, attrs...)
	return StartSpan(ctx, name, trace.WithAttributes(all...))
}

// CorrelationID returns the trace ID of the span in ctx, or "".
func CorrelationID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}

// Logger returns the default logger enriched with the trace and span IDs
// and the cast scope found in ctx.
func Logger(ctx context.Context) *slog.Logger {
	var attrs []any
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		attrs = append(attrs,
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	if actor, sessionID, ok := CastFrom(ctx); ok {
		attrs = append(attrs, slog.String("actor", actor))
		if sessionID != "" {
			attrs = append(attrs, slog.String("session_id", sessionID))
		}
	}
	if len(attrs) == 0 {
		return slog.Default()
	}
	return slog.Default().With(attrs...)
}
