package graph

import (
	"fmt"

	domainexec "github.com/duragraph/duragraph/internal/domain/execution"
	"github.com/duragraph/duragraph/internal/domain/workflow"
)

// Carve extracts a debug-runnable sub-graph rooted at a single
// iteration or loop node: the node itself plus every node whose config
// tags it as belonging to that container (via "iteration_id" or
// "loop_id" matching the container's own node ID), and the edges
// between them. The result is a standalone Graph whose root is the
// container node, suitable for single-iteration/single-loop debug runs
// without re-executing the rest of the parent graph.
func Carve(g *workflow.Graph, assistantID, nodeID string) (*workflow.Graph, error) {
	container, ok := g.NodeByID(nodeID)
	if !ok {
		return nil, fmt.Errorf("graph: carve target not found: %s", nodeID)
	}
	if container.Type != workflow.NodeTypeIteration && container.Type != workflow.NodeTypeLoop {
		return nil, fmt.Errorf("graph: carve target %s is not an iteration or loop node", nodeID)
	}

	memberKey := "iteration_id"
	if container.Type == workflow.NodeTypeLoop {
		memberKey = "loop_id"
	}

	members := map[string]bool{container.ID: true}
	for _, n := range g.Nodes() {
		if tag, ok := n.Config[memberKey].(string); ok && tag == container.ID {
			members[n.ID] = true
		}
	}

	var subNodes []workflow.Node
	for _, n := range g.Nodes() {
		if members[n.ID] {
			subNodes = append(subNodes, n)
		}
	}

	var subEdges []workflow.Edge
	for _, n := range subNodes {
		for _, e := range g.OutgoingEdges(n.ID) {
			if members[e.Source] && members[e.Target] {
				subEdges = append(subEdges, e)
			}
		}
	}

	return workflow.NewGraph(assistantID, container.ID+"-debug", "1.0.0", "carved sub-graph", subNodes, subEdges, nil, nil)
}

// SeedSubgraphInputs resolves the container node's declared variable
// selector mapping against the parent pool and seeds a fresh pool for
// the carved sub-graph's isolated debug run.
func SeedSubgraphInputs(parent *domainexec.VariablePool, mapping map[string][]string) *domainexec.VariablePool {
	fresh := domainexec.NewVariablePool()
	for key, selector := range mapping {
		if value, ok := parent.Get(selector); ok {
			fresh.Add([]string{domainexec.NamespaceEnvironment, key}, value)
		}
	}
	return fresh
}
