package streaming

import (
	domainexec "github.com/duragraph/duragraph/internal/domain/execution"
	"github.com/duragraph/duragraph/internal/domain/workflow"
)

// StreamProcessor filters a raw graph-engine event channel down to the
// events a caller should actually see, dropping chunks and node events
// from branches that never feed a user-facing sink.
type StreamProcessor interface {
	Process(in <-chan domainexec.GraphEngineEvent) <-chan domainexec.GraphEngineEvent
}

// AnswerStreamProcessor is used for graphs with at least one answer
// node: only events from nodes upstream of an answer node pass
// through, since those are the only nodes whose output the workflow
// actually surfaces.
type AnswerStreamProcessor struct {
	visible map[string]bool
}

// NewAnswerStreamProcessor builds the upstream node set for g's
// answer nodes once, up front, so filtering during the run is a plain
// map lookup.
func NewAnswerStreamProcessor(g *workflow.Graph) *AnswerStreamProcessor {
	var answerIDs []string
	for _, n := range g.Nodes() {
		if n.Type == workflow.NodeTypeAnswer {
			answerIDs = append(answerIDs, n.ID)
		}
	}
	return &AnswerStreamProcessor{visible: ancestorsOf(g, answerIDs)}
}

func (p *AnswerStreamProcessor) Process(in <-chan domainexec.GraphEngineEvent) <-chan domainexec.GraphEngineEvent {
	return filterByNode(in, p.visible)
}

// EndStreamProcessor is used for graphs with no answer node: only
// events from nodes upstream of an end node pass through.
type EndStreamProcessor struct {
	visible map[string]bool
}

func NewEndStreamProcessor(g *workflow.Graph) *EndStreamProcessor {
	var endIDs []string
	for _, n := range g.Nodes() {
		if n.Type == workflow.NodeTypeEnd {
			endIDs = append(endIDs, n.ID)
		}
	}
	return &EndStreamProcessor{visible: ancestorsOf(g, endIDs)}
}

func (p *EndStreamProcessor) Process(in <-chan domainexec.GraphEngineEvent) <-chan domainexec.GraphEngineEvent {
	return filterByNode(in, p.visible)
}

// SelectStreamProcessor picks the answer processor when g declares any
// answer node, falling back to the end processor otherwise.
func SelectStreamProcessor(g *workflow.Graph) StreamProcessor {
	for _, n := range g.Nodes() {
		if n.Type == workflow.NodeTypeAnswer {
			return NewAnswerStreamProcessor(g)
		}
	}
	return NewEndStreamProcessor(g)
}

func filterByNode(in <-chan domainexec.GraphEngineEvent, visible map[string]bool) <-chan domainexec.GraphEngineEvent {
	out := make(chan domainexec.GraphEngineEvent)
	go func() {
		defer close(out)
		for evt := range in {
			nodeID, tagged := nodeIDOf(evt)
			if tagged && !visible[nodeID] {
				continue
			}
			out <- evt
		}
	}()
	return out
}

// ancestorsOf walks the graph's edges backward from each target,
// returning the set of node IDs (including the targets) able to reach
// one of them.
func ancestorsOf(g *workflow.Graph, targets []string) map[string]bool {
	reverse := make(map[string][]string)
	for _, e := range g.Edges() {
		reverse[e.Target] = append(reverse[e.Target], e.Source)
	}
	seen := make(map[string]bool, len(targets))
	queue := make([]string, len(targets))
	copy(queue, targets)
	for _, t := range targets {
		seen[t] = true
	}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, from := range reverse[id] {
			if !seen[from] {
				seen[from] = true
				queue = append(queue, from)
			}
		}
	}
	return seen
}

func nodeIDOf(evt domainexec.GraphEngineEvent) (string, bool) {
	switch e := evt.(type) {
	case domainexec.NodeRunStarted:
		return e.NodeID, true
	case domainexec.NodeRunSucceeded:
		return e.NodeID, true
	case domainexec.NodeRunFailed:
		return e.NodeID, true
	case domainexec.NodeRunException:
		return e.NodeID, true
	case domainexec.NodeRunRetry:
		return e.NodeID, true
	case domainexec.NodeRunStreamChunk:
		return e.NodeID, true
	case domainexec.NodeRunRetrieverResource:
		return e.NodeID, true
	default:
		return "", false
	}
}
