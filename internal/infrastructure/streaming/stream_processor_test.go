package streaming

import (
	"testing"

	domainexec "github.com/duragraph/duragraph/internal/domain/execution"
	"github.com/duragraph/duragraph/internal/domain/workflow"
	"github.com/stretchr/testify/require"
)

// start -> llm -> answer
//            \ -> dead_end (not an ancestor of answer)
func answerGraph(t *testing.T) *workflow.Graph {
	t.Helper()
	nodes := []workflow.Node{
		{ID: "start", Type: workflow.NodeTypeStart},
		{ID: "llm", Type: workflow.NodeTypeLLM},
		{ID: "answer", Type: workflow.NodeTypeAnswer},
		{ID: "dead_end", Type: workflow.NodeTypeCode},
	}
	edges := []workflow.Edge{
		{ID: "e1", Source: "start", Target: "llm"},
		{ID: "e2", Source: "llm", Target: "answer"},
		{ID: "e3", Source: "llm", Target: "dead_end"},
	}
	g, err := workflow.NewGraph("assistant-1", "g", "1.0.0", "", nodes, edges, nil, nil)
	require.NoError(t, err)
	return g
}

func endGraph(t *testing.T) *workflow.Graph {
	t.Helper()
	nodes := []workflow.Node{
		{ID: "start", Type: workflow.NodeTypeStart},
		{ID: "code", Type: workflow.NodeTypeCode},
		{ID: "end", Type: workflow.NodeTypeEnd},
	}
	edges := []workflow.Edge{
		{ID: "e1", Source: "start", Target: "code"},
		{ID: "e2", Source: "code", Target: "end"},
	}
	g, err := workflow.NewGraph("assistant-1", "g", "1.0.0", "", nodes, edges, nil, nil)
	require.NoError(t, err)
	return g
}

func TestSelectStreamProcessor_PrefersAnswer(t *testing.T) {
	g := answerGraph(t)
	p := SelectStreamProcessor(g)
	_, ok := p.(*AnswerStreamProcessor)
	require.True(t, ok)
}

func TestSelectStreamProcessor_FallsBackToEnd(t *testing.T) {
	g := endGraph(t)
	p := SelectStreamProcessor(g)
	_, ok := p.(*EndStreamProcessor)
	require.True(t, ok)
}

func TestAnswerStreamProcessor_DropsNonAncestorNodeEvents(t *testing.T) {
	g := answerGraph(t)
	p := NewAnswerStreamProcessor(g)

	in := make(chan domainexec.GraphEngineEvent, 4)
	in <- domainexec.NodeRunStarted{NodeID: "start"}
	in <- domainexec.NodeRunSucceeded{NodeID: "dead_end"}
	in <- domainexec.NodeRunSucceeded{NodeID: "llm"}
	in <- domainexec.GraphRunSucceeded{Outputs: map[string]any{"ok": true}}
	close(in)

	var seen []string
	for evt := range p.Process(in) {
		if id, ok := nodeIDOf(evt); ok {
			seen = append(seen, id)
		} else {
			seen = append(seen, "<untagged>")
		}
	}

	require.Equal(t, []string{"start", "llm", "<untagged>"}, seen)
}

func TestEndStreamProcessor_PassesAncestorsOfEnd(t *testing.T) {
	g := endGraph(t)
	p := NewEndStreamProcessor(g)

	in := make(chan domainexec.GraphEngineEvent, 2)
	in <- domainexec.NodeRunSucceeded{NodeID: "code"}
	in <- domainexec.NodeRunSucceeded{NodeID: "start"}
	close(in)

	var seen []string
	for evt := range p.Process(in) {
		id, _ := nodeIDOf(evt)
		seen = append(seen, id)
	}
	require.Equal(t, []string{"code", "start"}, seen)
}

func TestAncestorsOf_IncludesTargetsThemselves(t *testing.T) {
	g := answerGraph(t)
	visible := ancestorsOf(g, []string{"answer"})
	require.True(t, visible["answer"])
	require.True(t, visible["llm"])
	require.True(t, visible["start"])
	require.False(t, visible["dead_end"])
}

func TestNodeIDOf_UntaggedForGraphLevelEvents(t *testing.T) {
	_, ok := nodeIDOf(domainexec.GraphRunStarted{})
	require.False(t, ok)

	id, ok := nodeIDOf(domainexec.NodeRunFailed{NodeID: "n1", Error: "boom"})
	require.True(t, ok)
	require.Equal(t, "n1", id)
}
