package streaming

import (
	"context"
	"time"

	domainexec "github.com/duragraph/duragraph/internal/domain/execution"
	"github.com/duragraph/duragraph/internal/domain/workflow"
	"golang.org/x/time/rate"
)

// PingEvent is synthesized by the response pipeline when no real event
// has arrived for a keep-alive interval, so a caller streaming a run
// over HTTP doesn't have its connection reaped by an idle proxy while
// a long-running node (an LLM call, a slow tool) is still in flight.
type PingEvent struct {
	RunID string
}

func (PingEvent) EventType() string     { return "streaming.ping" }
func (e PingEvent) AggregateID() string { return e.RunID }
func (PingEvent) AggregateType() string { return "run" }

// ResponsePipeline is the last stage between a run's raw engine events
// and whatever is consuming them synchronously (an SSE handler, a
// WebSocket writer): it applies a StreamProcessor's visibility filter
// and paces synthetic pings onto otherwise-idle stretches.
type ResponsePipeline struct {
	processor StreamProcessor
	keepAlive time.Duration
	limiter   *rate.Limiter
}

// NewResponsePipeline selects the right StreamProcessor for g and
// builds a pipeline that pings at most once per keepAlive interval.
func NewResponsePipeline(g *workflow.Graph, keepAlive time.Duration) *ResponsePipeline {
	return &ResponsePipeline{
		processor: SelectStreamProcessor(g),
		keepAlive: keepAlive,
		limiter:   rate.NewLimiter(rate.Every(keepAlive), 1),
	}
}

// Run drains in, forwarding filtered engine events and rate-limited
// PingEvents on the returned channel until in closes or ctx is done.
func (p *ResponsePipeline) Run(ctx context.Context, runID string, in <-chan domainexec.GraphEngineEvent) <-chan interface{} {
	filtered := p.processor.Process(in)
	out := make(chan interface{})

	go func() {
		defer close(out)
		ticker := time.NewTicker(p.keepAlive)
		defer ticker.Stop()

		for {
			select {
			case evt, ok := <-filtered:
				if !ok {
					return
				}
				select {
				case out <- evt:
				case <-ctx.Done():
					return
				}
			case <-ticker.C:
				if !p.limiter.Allow() {
					continue
				}
				select {
				case out <- PingEvent{RunID: runID}:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	return out
}
