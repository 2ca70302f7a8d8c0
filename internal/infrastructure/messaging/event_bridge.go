package messaging

import (
	"context"
	"fmt"

	"github.com/duragraph/duragraph/internal/domain/execution"
	"github.com/duragraph/duragraph/internal/infrastructure/messaging/nats"
	"github.com/duragraph/duragraph/internal/pkg/eventbus"
)

// graphEventTypes lists the event types a run publishes over its
// lifetime, mirroring domain/execution/events.go.
var graphEventTypes = []string{
	execution.EventGraphRunStarted,
	execution.EventGraphRunSucceeded,
	execution.EventGraphRunPartialSucceeded,
	execution.EventGraphRunFailed,
	execution.EventNodeRunStarted,
	execution.EventNodeRunSucceeded,
	execution.EventNodeRunFailed,
	execution.EventNodeRunException,
	execution.EventNodeRunRetry,
	execution.EventNodeRunStreamChunk,
	execution.EventNodeRunRetrieverResource,
	execution.EventParallelBranchRunStarted,
	execution.EventParallelBranchRunSucceeded,
	execution.EventParallelBranchRunFailed,
	execution.EventIterationRunStarted,
	execution.EventIterationRunNext,
	execution.EventIterationRunSucceeded,
	execution.EventIterationRunFailed,
	execution.EventLoopRunStarted,
	execution.EventLoopRunNext,
	execution.EventLoopRunSucceeded,
	execution.EventLoopRunFailed,
	execution.EventAgentLog,
}

// EventBusBridge republishes in-process graph-run events onto NATS so an
// external collaborator (a separate process, a log shipper) can observe
// a run's progress without holding the HTTP response open.
type EventBusBridge struct {
	eventBus  *eventbus.EventBus
	publisher *nats.Publisher
	subject   string
}

// NewEventBusBridge creates a bridge that forwards every graph-execution
// event published on eventBus to "<subject>.<event_type>" on NATS.
func NewEventBusBridge(eventBus *eventbus.EventBus, publisher *nats.Publisher, subject string) *EventBusBridge {
	return &EventBusBridge{
		eventBus:  eventBus,
		publisher: publisher,
		subject:   subject,
	}
}

// Start subscribes to the graph event types and blocks until ctx is done.
func (b *EventBusBridge) Start(ctx context.Context) {
	for _, eventType := range graphEventTypes {
		eventType := eventType
		b.eventBus.Subscribe(eventType, func(ctx context.Context, event eventbus.Event) error {
			topic := fmt.Sprintf("%s.%s", b.subject, event.EventType())
			return b.publisher.Publish(ctx, topic, event)
		})
	}

	<-ctx.Done()
}
