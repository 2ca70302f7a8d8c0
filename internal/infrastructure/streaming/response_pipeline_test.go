package streaming

import (
	"context"
	"testing"
	"time"

	domainexec "github.com/duragraph/duragraph/internal/domain/execution"
	"github.com/stretchr/testify/require"
)

func TestResponsePipeline_ForwardsVisibleEvents(t *testing.T) {
	g := answerGraph(t)
	pipeline := NewResponsePipeline(g, time.Hour)

	in := make(chan domainexec.GraphEngineEvent, 1)
	in <- domainexec.NodeRunSucceeded{NodeID: "llm"}
	close(in)

	out := pipeline.Run(context.Background(), "run-1", in)

	evt, ok := <-out
	require.True(t, ok)
	succeeded, ok := evt.(domainexec.NodeRunSucceeded)
	require.True(t, ok)
	require.Equal(t, "llm", succeeded.NodeID)

	_, ok = <-out
	require.False(t, ok, "channel should close once the source drains")
}

func TestResponsePipeline_DropsFilteredEvents(t *testing.T) {
	g := answerGraph(t)
	pipeline := NewResponsePipeline(g, time.Hour)

	in := make(chan domainexec.GraphEngineEvent, 1)
	in <- domainexec.NodeRunSucceeded{NodeID: "dead_end"}
	close(in)

	out := pipeline.Run(context.Background(), "run-1", in)
	_, ok := <-out
	require.False(t, ok, "the dead_end event isn't an ancestor of the answer node")
}

func TestResponsePipeline_EmitsPingOnIdleStretch(t *testing.T) {
	g := answerGraph(t)
	pipeline := NewResponsePipeline(g, 10*time.Millisecond)

	in := make(chan domainexec.GraphEngineEvent)
	out := pipeline.Run(context.Background(), "run-1", in)

	evt, ok := <-out
	require.True(t, ok)
	ping, ok := evt.(PingEvent)
	require.True(t, ok)
	require.Equal(t, "run-1", ping.RunID)

	close(in)
}

func TestResponsePipeline_StopsOnContextCancel(t *testing.T) {
	g := answerGraph(t)
	pipeline := NewResponsePipeline(g, time.Hour)

	in := make(chan domainexec.GraphEngineEvent)
	ctx, cancel := context.WithCancel(context.Background())
	out := pipeline.Run(ctx, "run-1", in)

	cancel()

	select {
	case _, ok := <-out:
		require.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("pipeline did not stop after context cancellation")
	}
}
