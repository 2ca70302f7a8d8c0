package graph

import (
	"context"
	"testing"
	"time"

	"github.com/duragraph/duragraph/internal/infrastructure/monitoring"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestTelemetry_StartEndNodeSpan_Success(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prevTP := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	defer otel.SetTracerProvider(prevTP)

	m := monitoring.NewMetrics("telemetry_test_success")
	telemetry := NewTelemetry("duragraph/test", m)

	ctx, span := telemetry.StartNodeSpan(context.Background(), "run-1", "node-1", "llm")
	require.NotNil(t, ctx)
	telemetry.EndNodeSpan(span, "llm", time.Now(), "succeeded", "")

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	require.Equal(t, "graph.node_run", spans[0].Name())
}

func TestTelemetry_EndNodeSpan_RecordsErrorStatus(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prevTP := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	defer otel.SetTracerProvider(prevTP)

	telemetry := NewTelemetry("duragraph/test", nil)

	_, span := telemetry.StartNodeSpan(context.Background(), "run-1", "node-1", "tool")
	telemetry.EndNodeSpan(span, "tool", time.Now(), "failed", "boom")

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	require.Equal(t, "boom", spans[0].Status().Description)
}

func TestTelemetry_NilMetricsDoesNotPanic(t *testing.T) {
	telemetry := NewTelemetry("duragraph/test", nil)
	_, span := telemetry.StartNodeSpan(context.Background(), "run-1", "node-1", "code")
	require.NotPanics(t, func() {
		telemetry.EndNodeSpan(span, "code", time.Now(), "succeeded", "")
	})
}
