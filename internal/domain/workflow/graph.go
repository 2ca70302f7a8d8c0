package workflow

import (
	"time"

	"github.com/duragraph/duragraph/internal/domain/execution"
	"github.com/duragraph/duragraph/internal/pkg/errors"
	"github.com/duragraph/duragraph/internal/pkg/eventbus"
	pkguuid "github.com/duragraph/duragraph/internal/pkg/uuid"
)

// NodeType re-exports the execution package's closed node-type set so
// graph documents and node execution speak the same vocabulary.
type NodeType = execution.NodeType

const (
	NodeTypeStart              = execution.NodeTypeStart
	NodeTypeEnd                = execution.NodeTypeEnd
	NodeTypeAnswer             = execution.NodeTypeAnswer
	NodeTypeLLM                = execution.NodeTypeLLM
	NodeTypeHTTPRequest        = execution.NodeTypeHTTPRequest
	NodeTypeAgent              = execution.NodeTypeAgent
	NodeTypeIteration          = execution.NodeTypeIteration
	NodeTypeLoop               = execution.NodeTypeLoop
	NodeTypeCondition          = execution.NodeTypeCondition
	NodeTypeCode               = execution.NodeTypeCode
	NodeTypeTool               = execution.NodeTypeTool
	NodeTypeVariableAggregator = execution.NodeTypeVariableAggregator
)

// RetryPolicy mirrors execution.RetryPolicy in the wire-facing model.
type RetryPolicy struct {
	MaxRetries           int     `json:"max_retries"`
	RetryIntervalSeconds float64 `json:"retry_interval_seconds"`
}

// RunCondition tags an edge with a stable hash so edges sharing a
// condition form a group.
type RunCondition struct {
	Kind    string                 `json:"kind"`
	Payload map[string]interface{} `json:"payload,omitempty"`
	Hash    string                 `json:"hash"`
}

// Node represents a node in the graph.
type Node struct {
	ID              string                   `json:"id"`
	Type            NodeType                 `json:"type"`
	Version         string                   `json:"version,omitempty"`
	Config          map[string]interface{}   `json:"config,omitempty"`
	ErrorStrategy   execution.ErrorStrategy  `json:"error_strategy,omitempty"`
	ContinueOnError bool                     `json:"continue_on_error,omitempty"`
	Retry           RetryPolicy              `json:"retry,omitempty"`
	DefaultValue    map[string]interface{}   `json:"default_value,omitempty"`
	Position        map[string]float64       `json:"position,omitempty"` // For UI
}

// Edge represents a directed edge in the graph.
type Edge struct {
	ID           string        `json:"id"`
	Source       string        `json:"source"`
	Target       string        `json:"target"`
	RunCondition *RunCondition `json:"run_condition,omitempty"`
}

// ParallelRegion is a named fan-out/fan-in region: a set of start
// nodes that dispatch concurrently, with an optional join node.
type ParallelRegion struct {
	ParallelID string   `json:"parallel_id"`
	StartNodes []string `json:"start_nodes"`
	EndNodeID  string   `json:"end_node_id,omitempty"`
}

// Graph represents a workflow graph aggregate.
type Graph struct {
	id          string
	assistantID string
	name        string
	version     string
	description string
	nodes       []Node
	edges       []Edge
	regions     []ParallelRegion
	rootNodeID  string
	config      map[string]interface{}
	createdAt   time.Time
	updatedAt   time.Time

	// Derived, statically computed lookups.
	nodeParallelMapping map[string]string // node_id -> innermost parallel_id
	edgeMapping         map[string][]Edge // source_node_id -> outgoing edges

	// Uncommitted events
	events []eventbus.Event
}

// NewGraph creates a new Graph aggregate, validating its structural
// invariants.
func NewGraph(assistantID, name, version, description string, nodes []Node, edges []Edge, regions []ParallelRegion, config map[string]interface{}) (*Graph, error) {
	if assistantID == "" {
		return nil, errors.InvalidInput("assistant_id", "assistant_id is required")
	}
	if name == "" {
		return nil, errors.InvalidInput("name", "name is required")
	}
	if version == "" {
		version = "1.0.0"
	}

	rootNodeID, nodeParallelMapping, err := validateGraph(nodes, edges, regions)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	graphID := pkguuid.New()

	if config == nil {
		config = make(map[string]interface{})
	}

	graph := &Graph{
		id:                  graphID,
		assistantID:         assistantID,
		name:                name,
		version:             version,
		description:         description,
		nodes:               nodes,
		edges:               edges,
		regions:             regions,
		rootNodeID:          rootNodeID,
		config:              config,
		createdAt:           now,
		updatedAt:           now,
		nodeParallelMapping: nodeParallelMapping,
		edgeMapping:         buildEdgeMapping(edges),
		events:              make([]eventbus.Event, 0),
	}

	graph.recordEvent(GraphDefined{
		GraphID:     graphID,
		AssistantID: assistantID,
		Name:        name,
		Version:     version,
		Description: description,
		Nodes:       nodes,
		Edges:       edges,
		Config:      config,
		OccurredAt:  now,
	})

	return graph, nil
}

// ID returns the graph ID.
func (g *Graph) ID() string { return g.id }

// AssistantID returns the assistant ID.
func (g *Graph) AssistantID() string { return g.assistantID }

// Name returns the graph name.
func (g *Graph) Name() string { return g.name }

// Version returns the graph version.
func (g *Graph) Version() string { return g.version }

// Description returns the graph description.
func (g *Graph) Description() string { return g.description }

// Nodes returns the graph nodes.
func (g *Graph) Nodes() []Node { return g.nodes }

// Edges returns the graph edges.
func (g *Graph) Edges() []Edge { return g.edges }

// Regions returns the graph's parallel regions.
func (g *Graph) Regions() []ParallelRegion { return g.regions }

// Config returns the graph config.
func (g *Graph) Config() map[string]interface{} { return g.config }

// CreatedAt returns the creation time.
func (g *Graph) CreatedAt() time.Time { return g.createdAt }

// UpdatedAt returns the last update time.
func (g *Graph) UpdatedAt() time.Time { return g.updatedAt }

// RootNodeID returns the graph's single root node (invariant 1).
func (g *Graph) RootNodeID() string { return g.rootNodeID }

// NodeByID returns the node with the given ID.
func (g *Graph) NodeByID(nodeID string) (Node, bool) {
	for _, n := range g.nodes {
		if n.ID == nodeID {
			return n, true
		}
	}
	return Node{}, false
}

// OutgoingEdges returns the edges sourced at nodeID, in config order.
func (g *Graph) OutgoingEdges(nodeID string) []Edge {
	return g.edgeMapping[nodeID]
}

// ParallelIDFor returns the innermost parallel region a node belongs
// to, or "" if the node is not inside any region.
func (g *Graph) ParallelIDFor(nodeID string) string {
	return g.nodeParallelMapping[nodeID]
}

// RegionByID looks up a parallel region by its parallel_id.
func (g *Graph) RegionByID(parallelID string) (ParallelRegion, bool) {
	for _, r := range g.regions {
		if r.ParallelID == parallelID {
			return r, true
		}
	}
	return ParallelRegion{}, false
}

// Update updates the graph.
func (g *Graph) Update(name, description *string, nodes []Node, edges []Edge, regions []ParallelRegion, config map[string]interface{}) error {
	if nodes != nil && edges != nil {
		rootNodeID, nodeParallelMapping, err := validateGraph(nodes, edges, regions)
		if err != nil {
			return err
		}
		g.rootNodeID = rootNodeID
		g.nodeParallelMapping = nodeParallelMapping
		g.edgeMapping = buildEdgeMapping(edges)
	}

	now := time.Now()

	event := GraphUpdated{
		GraphID:    g.id,
		OccurredAt: now,
	}

	if name != nil && *name != "" {
		g.name = *name
		event.Name = name
	}
	if description != nil {
		g.description = *description
		event.Description = description
	}
	if nodes != nil {
		g.nodes = nodes
		event.Nodes = nodes
	}
	if edges != nil {
		g.edges = edges
		event.Edges = edges
	}
	if regions != nil {
		g.regions = regions
	}
	if config != nil {
		g.config = config
		event.Config = config
	}

	g.updatedAt = now
	g.recordEvent(event)

	return nil
}

// Events returns the uncommitted events.
func (g *Graph) Events() []eventbus.Event { return g.events }

// ClearEvents clears the uncommitted events.
func (g *Graph) ClearEvents() { g.events = make([]eventbus.Event, 0) }

func (g *Graph) recordEvent(event eventbus.Event) {
	g.events = append(g.events, event)
}

// validateGraph enforces the graph's structural invariants (exactly
// one root, cycles only through iteration/loop nodes, parallel regions
// self-contained, every edge endpoint resolves) and returns the
// resolved root node ID plus the statically-derived node -> parallel_id
// mapping.
func validateGraph(nodes []Node, edges []Edge, regions []ParallelRegion) (string, map[string]string, error) {
	if len(nodes) == 0 {
		return "", nil, errors.InvalidInput("nodes", "at least one node is required")
	}

	nodeMap := make(map[string]bool, len(nodes))
	for _, node := range nodes {
		if node.ID == "" {
			return "", nil, errors.InvalidInput("node.id", "node ID is required")
		}
		if nodeMap[node.ID] {
			return "", nil, errors.InvalidInput("node.id", "duplicate node ID: "+node.ID)
		}
		nodeMap[node.ID] = true
	}

	// Invariant 4: every edge's endpoints resolve to existing nodes.
	inDegree := make(map[string]int, len(nodes))
	for _, edge := range edges {
		if edge.Source == "" || edge.Target == "" {
			return "", nil, errors.InvalidInput("edge", "edge source and target are required")
		}
		if !nodeMap[edge.Source] {
			return "", nil, errors.InvalidInput("edge.source", "source node not found: "+edge.Source)
		}
		if !nodeMap[edge.Target] {
			return "", nil, errors.InvalidInput("edge.target", "target node not found: "+edge.Target)
		}
		inDegree[edge.Target]++
	}

	// Invariant 1: exactly one root node (in-degree 0, or explicit start type).
	var roots []string
	for _, node := range nodes {
		if node.Type == NodeTypeStart || inDegree[node.ID] == 0 {
			roots = append(roots, node.ID)
		}
	}
	if len(roots) == 0 {
		return "", nil, errors.InvalidInput("nodes", "graph must have exactly one root node, found none")
	}
	if len(roots) > 1 {
		return "", nil, errors.InvalidInput("nodes", "graph must have exactly one root node, found multiple")
	}
	rootNodeID := roots[0]

	// Invariant 3: cycles are only permitted through iteration/loop node
	// semantics. Reject direct cyclic edges between ordinary nodes.
	adjacency := make(map[string][]string, len(nodes))
	for _, edge := range edges {
		adjacency[edge.Source] = append(adjacency[edge.Source], edge.Target)
	}
	if cyclePath := findCycle(nodeMap, adjacency); cyclePath != "" {
		iterationOrLoop := make(map[string]bool)
		for _, n := range nodes {
			if n.Type == NodeTypeIteration || n.Type == NodeTypeLoop {
				iterationOrLoop[n.ID] = true
			}
		}
		if !iterationOrLoop[cyclePath] {
			return "", nil, errors.InvalidInput("edges", "cycle detected through non-iteration/loop node: "+cyclePath)
		}
	}

	// Invariant 2: parallel region fan-out stays inside the region, and
	// the region's end node (if present) dominates every path leaving.
	nodeParallelMapping := make(map[string]string)
	for _, region := range regions {
		if len(region.StartNodes) == 0 {
			return "", nil, errors.InvalidInput("region.start_nodes", "parallel region "+region.ParallelID+" has no start nodes")
		}
		members := collectRegionMembers(region, adjacency, nodeMap)
		for _, start := range region.StartNodes {
			if !members[start] {
				return "", nil, errors.InvalidInput("region.start_nodes", "start node not reachable in its own region: "+start)
			}
		}
		for member := range members {
			// Innermost region wins if nested; regions are declared
			// outer-to-inner in config order so last write wins.
			nodeParallelMapping[member] = region.ParallelID
		}
	}

	return rootNodeID, nodeParallelMapping, nil
}

// collectRegionMembers computes the set of nodes reachable from the
// region's start nodes up to (and including) its end node, without
// crossing the end node's outgoing edges.
func collectRegionMembers(region ParallelRegion, adjacency map[string][]string, nodeMap map[string]bool) map[string]bool {
	members := make(map[string]bool)
	queue := append([]string{}, region.StartNodes...)
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		if members[n] || !nodeMap[n] {
			continue
		}
		members[n] = true
		if n == region.EndNodeID {
			continue
		}
		queue = append(queue, adjacency[n]...)
	}
	return members
}

// findCycle runs a DFS cycle detection and returns one node on a
// discovered cycle, or "" if the graph is acyclic.
func findCycle(nodeMap map[string]bool, adjacency map[string][]string) string {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(nodeMap))
	var found string

	var dfs func(string) bool
	dfs = func(n string) bool {
		color[n] = gray
		for _, next := range adjacency[n] {
			switch color[next] {
			case gray:
				found = next
				return true
			case white:
				if dfs(next) {
					return true
				}
			}
		}
		color[n] = black
		return false
	}

	for n := range nodeMap {
		if color[n] == white {
			if dfs(n) {
				return found
			}
		}
	}
	return ""
}

func buildEdgeMapping(edges []Edge) map[string][]Edge {
	mapping := make(map[string][]Edge)
	for _, edge := range edges {
		mapping[edge.Source] = append(mapping[edge.Source], edge)
	}
	return mapping
}
