package graph

import (
	"context"
	"time"

	"github.com/duragraph/duragraph/internal/infrastructure/monitoring"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Telemetry wraps per-node-run tracing and metrics so the driver's
// hot path stays readable: one span per node run, labeled with the
// run, node and outcome, plus the matching Prometheus counters.
type Telemetry struct {
	tracer  trace.Tracer
	metrics *monitoring.Metrics
}

// NewTelemetry builds a Telemetry that emits spans under the given
// instrumentation name (conventionally the module path) and records
// node metrics onto m. The tracer always comes from the global otel
// provider, whatever the name; pass a nil *monitoring.Metrics to skip
// metrics.
func NewTelemetry(instrumentationName string, m *monitoring.Metrics) *Telemetry {
	return &Telemetry{
		tracer:  otel.Tracer(instrumentationName),
		metrics: m,
	}
}

// StartNodeSpan opens a span for a single node run, tagged with the
// run and node identifiers so a trace backend can correlate it with
// the emitted GraphEngineEvent sequence.
func (t *Telemetry) StartNodeSpan(ctx context.Context, runID, nodeID, nodeType string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "graph.node_run",
		trace.WithAttributes(
			attribute.String("duragraph.run_id", runID),
			attribute.String("duragraph.node_id", nodeID),
			attribute.String("duragraph.node_type", nodeType),
		),
	)
}

// EndNodeSpan closes span with the node's outcome, recording an error
// status and the matching Prometheus counters when the run failed.
func (t *Telemetry) EndNodeSpan(span trace.Span, nodeType string, started time.Time, status string, errMsg string) {
	duration := time.Since(started)
	span.SetAttributes(attribute.String("duragraph.status", status))
	if errMsg != "" {
		span.SetStatus(codes.Error, errMsg)
	}
	span.End()

	if t.metrics == nil {
		return
	}
	t.metrics.RecordNodeExecution(nodeType, status, duration)
	if errMsg != "" {
		t.metrics.RecordNodeError(nodeType, status)
	}
}
