package observe

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
)

func TestInitProvider(t *testing.T) {
	origMP, origTP := otel.GetMeterProvider(), otel.GetTracerProvider()
	t.Cleanup(func() {
		otel.SetMeterProvider(origMP)
		otel.SetTracerProvider(origTP)
	})

	ctx := context.Background()
	tel, err := InitProvider(ctx, ProviderConfig{ServiceVersion: "test", TraceSampleRatio: 0.5})
	if err != nil {
		t.Fatalf("InitProvider: %v", err)
	}
	t.Cleanup(func() { _ = tel.Shutdown(context.Background()) })

	tel.Metrics.RecordCast(ctx, "fire_ball", false, 0.9, 0.7, 120)
	tel.Metrics.RecordNoMatch(ctx)

	rec := httptest.NewRecorder()
	tel.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /metrics = %d", rec.Code)
	}
	body, _ := io.ReadAll(rec.Body)
	for _, want := range []string{"glyphcast_", "go_goroutines", `entry="fire_ball"`} {
		if !strings.Contains(string(body), want) {
			t.Errorf("exposition is missing %q", want)
		}
	}

	_, span := StartSpan(ctx, "probe")
	if !span.SpanContext().IsValid() {
		t.Error("global tracer provider was not installed")
	}
	span.End()
}

func TestInitProvider_RejectsSampleRatio(t *testing.T) {
	t.Parallel()

	for _, r := range []float64{-0.1, 1.5} {
		if _, err := InitProvider(context.Background(), ProviderConfig{TraceSampleRatio: r}); err == nil {
			t.Errorf("ratio %v accepted", r)
		}
	}
}
