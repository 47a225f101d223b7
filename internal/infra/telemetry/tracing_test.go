package telemetry

import (
	"context"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/ritaorion/district5b-portal/internal/infra/config"
)

func TestTracerProviderWithoutExporter(t *testing.T) {
	ctx := context.Background()
	tp, err := NewTracerProvider(ctx, config.TelemetrySettings{
		ServiceName:  "district5b-portal",
		SamplingRate: 1.0,
	}, "test", zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewTracerProvider returned error: %v", err)
	}

	_, span := tp.Tracer("test").Start(ctx, "operation")
	if !span.SpanContext().IsValid() {
		t.Fatalf("expected sampled span with valid context")
	}
	span.End()

	if err := tp.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown returned error: %v", err)
	}
}
