package graph

import (
	"context"
	"testing"
	"time"

	"github.com/duragraph/duragraph/internal/domain/workflow"
	"github.com/stretchr/testify/require"
)

func loopGraph(t *testing.T) *workflow.Graph {
	t.Helper()
	nodes := []workflow.Node{
		{ID: "start", Type: workflow.NodeTypeStart},
		{ID: "loop", Type: workflow.NodeTypeLoop},
		{ID: "body", Type: workflow.NodeTypeCode, Config: map[string]interface{}{"loop_id": "loop"}},
		{ID: "end", Type: workflow.NodeTypeEnd},
	}
	edges := []workflow.Edge{
		{ID: "e1", Source: "start", Target: "loop"},
		{ID: "e2", Source: "loop", Target: "body"},
		{ID: "e3", Source: "body", Target: "end"},
	}
	g, err := workflow.NewGraph("assistant-1", "g", "1.0.0", "", nodes, edges, nil, nil)
	require.NoError(t, err)
	return g
}

func TestCarveCache_NilClientFallsThroughToCarve(t *testing.T) {
	g := loopGraph(t)
	cache := NewCarveCache(nil, time.Minute)

	sub, err := cache.Carve(context.Background(), g, "assistant-1", "loop")
	require.NoError(t, err)
	require.Len(t, sub.Nodes(), 2)

	want, err := Carve(g, "assistant-1", "loop")
	require.NoError(t, err)
	require.ElementsMatch(t, want.Nodes(), sub.Nodes())
}

func TestCarveCache_KeyIncludesGraphVersionAndNode(t *testing.T) {
	g := loopGraph(t)
	cache := NewCarveCache(nil, time.Minute)

	key := cache.key(g, "loop")
	require.Contains(t, key, g.ID())
	require.Contains(t, key, g.Version())
	require.Contains(t, key, "loop")
}
