package execution

import "time"

// Event type strings for every GraphEngineEvent variant.
const (
	EventGraphRunStarted          = "graph.run_started"
	EventGraphRunSucceeded        = "graph.run_succeeded"
	EventGraphRunPartialSucceeded = "graph.run_partial_succeeded"
	EventGraphRunFailed           = "graph.run_failed"

	EventNodeRunStarted           = "graph.node_run_started"
	EventNodeRunSucceeded         = "graph.node_run_succeeded"
	EventNodeRunFailed            = "graph.node_run_failed"
	EventNodeRunException         = "graph.node_run_exception"
	EventNodeRunRetry             = "graph.node_run_retry"
	EventNodeRunStreamChunk       = "graph.node_run_stream_chunk"
	EventNodeRunRetrieverResource = "graph.node_run_retriever_resource"

	EventParallelBranchRunStarted   = "graph.parallel_branch_run_started"
	EventParallelBranchRunSucceeded = "graph.parallel_branch_run_succeeded"
	EventParallelBranchRunFailed    = "graph.parallel_branch_run_failed"

	EventIterationRunStarted   = "graph.iteration_run_started"
	EventIterationRunNext      = "graph.iteration_run_next"
	EventIterationRunSucceeded = "graph.iteration_run_succeeded"
	EventIterationRunFailed    = "graph.iteration_run_failed"

	EventLoopRunStarted   = "graph.loop_run_started"
	EventLoopRunNext      = "graph.loop_run_next"
	EventLoopRunSucceeded = "graph.loop_run_succeeded"
	EventLoopRunFailed    = "graph.loop_run_failed"

	EventAgentLog = "graph.agent_log"
)

// GraphEngineEvent is the sum type the engine's lazy event sequence
// produces. It also satisfies eventbus.Event so the ambient in-process
// bus can carry it to the streaming bridge without a translation layer.
type GraphEngineEvent interface {
	EventType() string
	AggregateID() string
	AggregateType() string
}

type base struct {
	RunID      string    `json:"run_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

func (b base) AggregateID() string   { return b.RunID }
func (b base) AggregateType() string { return "graph_run" }

// GraphRunStarted is emitted first, before any node event.
type GraphRunStarted struct {
	base
}

func (GraphRunStarted) EventType() string { return EventGraphRunStarted }

// GraphRunSucceeded is the terminal success event.
type GraphRunSucceeded struct {
	base
	Outputs map[string]any `json:"outputs"`
}

func (GraphRunSucceeded) EventType() string { return EventGraphRunSucceeded }

// GraphRunPartialSucceeded is emitted instead of GraphRunSucceeded when
// one or more nodes continued past an exception.
type GraphRunPartialSucceeded struct {
	base
	Outputs         map[string]any `json:"outputs"`
	ExceptionsCount int            `json:"exceptions_count"`
}

func (GraphRunPartialSucceeded) EventType() string { return EventGraphRunPartialSucceeded }

// GraphRunFailed is the terminal failure event.
type GraphRunFailed struct {
	base
	Error           string `json:"error"`
	ExceptionsCount int    `json:"exceptions_count"`
}

func (GraphRunFailed) EventType() string { return EventGraphRunFailed }

// NodeRunStarted is emitted at the start of every node visit.
type NodeRunStarted struct {
	base
	ID                string           `json:"id"`
	NodeID            string           `json:"node_id"`
	NodeType          NodeType         `json:"node_type"`
	RouteNodeStateID  string           `json:"route_node_state_id"`
	PredecessorNodeID string           `json:"predecessor_node_id,omitempty"`
	ParallelContext   ParallelContext  `json:"parallel_context"`
	AgentStrategy     *string          `json:"agent_strategy,omitempty"`
}

func (NodeRunStarted) EventType() string { return EventNodeRunStarted }

// NodeRunSucceeded is emitted when a node's RunCompleted reports success.
type NodeRunSucceeded struct {
	base
	NodeID           string          `json:"node_id"`
	NodeType         NodeType        `json:"node_type"`
	RouteNodeStateID string          `json:"route_node_state_id"`
	Outputs          map[string]any  `json:"outputs"`
	Metadata         map[string]any  `json:"metadata"`
	ParallelContext  ParallelContext `json:"parallel_context"`
}

func (NodeRunSucceeded) EventType() string { return EventNodeRunSucceeded }

// NodeRunFailed is the terminal failure for a single node (no
// continue_on_error, retries exhausted).
type NodeRunFailed struct {
	base
	NodeID           string          `json:"node_id"`
	NodeType         NodeType        `json:"node_type"`
	RouteNodeStateID string          `json:"route_node_state_id"`
	Error            string          `json:"error"`
	ParallelContext  ParallelContext `json:"parallel_context"`
}

func (NodeRunFailed) EventType() string { return EventNodeRunFailed }

// NodeRunException is emitted instead of NodeRunFailed when the node
// has continue_on_error set; the run continues past it.
type NodeRunException struct {
	base
	NodeID           string          `json:"node_id"`
	NodeType         NodeType        `json:"node_type"`
	RouteNodeStateID string          `json:"route_node_state_id"`
	Error            string          `json:"error"`
	ParallelContext  ParallelContext `json:"parallel_context"`
}

func (NodeRunException) EventType() string { return EventNodeRunException }

// NodeRunRetry is emitted before each retry attempt.
type NodeRunRetry struct {
	base
	NodeID           string          `json:"node_id"`
	NodeType         NodeType        `json:"node_type"`
	RouteNodeStateID string          `json:"route_node_state_id"`
	RetryIndex       int             `json:"retry_index"`
	Error            string          `json:"error"`
	ParallelContext  ParallelContext `json:"parallel_context"`
}

func (NodeRunRetry) EventType() string { return EventNodeRunRetry }

// NodeRunStreamChunk re-emits a node's RunStreamChunk with parallel tags.
type NodeRunStreamChunk struct {
	base
	NodeID               string          `json:"node_id"`
	ChunkContent         string          `json:"chunk_content"`
	FromVariableSelector []string        `json:"from_variable_selector,omitempty"`
	ParallelContext      ParallelContext `json:"parallel_context"`
}

func (NodeRunStreamChunk) EventType() string { return EventNodeRunStreamChunk }

// NodeRunRetrieverResource re-emits a node's RunRetrieverResource.
type NodeRunRetrieverResource struct {
	base
	NodeID             string           `json:"node_id"`
	RetrieverResources []map[string]any `json:"retriever_resources"`
	ParallelContext    ParallelContext  `json:"parallel_context"`
}

func (NodeRunRetrieverResource) EventType() string { return EventNodeRunRetrieverResource }

// ParallelBranchRunStarted brackets the start of a parallel branch.
type ParallelBranchRunStarted struct {
	base
	ParallelContext ParallelContext `json:"parallel_context"`
}

func (ParallelBranchRunStarted) EventType() string { return EventParallelBranchRunStarted }

// ParallelBranchRunSucceeded brackets the successful end of a branch.
type ParallelBranchRunSucceeded struct {
	base
	ParallelContext ParallelContext `json:"parallel_context"`
}

func (ParallelBranchRunSucceeded) EventType() string { return EventParallelBranchRunSucceeded }

// ParallelBranchRunFailed brackets the failed end of a branch; the
// dispatcher raises GraphRunFailed upon seeing this.
type ParallelBranchRunFailed struct {
	base
	ParallelContext ParallelContext `json:"parallel_context"`
	Error           string          `json:"error"`
}

func (ParallelBranchRunFailed) EventType() string { return EventParallelBranchRunFailed }

// IterationEventFields are the fields shared by all IterationRun* events.
type IterationEventFields struct {
	NodeID              string          `json:"node_id"`
	Index               int             `json:"index"`
	Inputs              map[string]any  `json:"inputs,omitempty"`
	Outputs             map[string]any  `json:"outputs,omitempty"`
	Steps               int             `json:"steps"`
	ParallelModeRunID   string          `json:"parallel_mode_run_id,omitempty"`
	ParallelContext     ParallelContext `json:"parallel_context"`
}

type IterationRunStarted struct {
	base
	IterationEventFields
}

func (IterationRunStarted) EventType() string { return EventIterationRunStarted }

type IterationRunNext struct {
	base
	IterationEventFields
}

func (IterationRunNext) EventType() string { return EventIterationRunNext }

type IterationRunSucceeded struct {
	base
	IterationEventFields
}

func (IterationRunSucceeded) EventType() string { return EventIterationRunSucceeded }

type IterationRunFailed struct {
	base
	IterationEventFields
	Error string `json:"error"`
}

func (IterationRunFailed) EventType() string { return EventIterationRunFailed }

// LoopEventFields mirrors IterationEventFields for loop nodes.
type LoopEventFields struct {
	NodeID            string          `json:"node_id"`
	Index             int             `json:"index"`
	Inputs            map[string]any  `json:"inputs,omitempty"`
	Outputs           map[string]any  `json:"outputs,omitempty"`
	Steps             int             `json:"steps"`
	ParallelModeRunID string          `json:"parallel_mode_run_id,omitempty"`
	ParallelContext   ParallelContext `json:"parallel_context"`
}

type LoopRunStarted struct {
	base
	LoopEventFields
}

func (LoopRunStarted) EventType() string { return EventLoopRunStarted }

type LoopRunNext struct {
	base
	LoopEventFields
}

func (LoopRunNext) EventType() string { return EventLoopRunNext }

type LoopRunSucceeded struct {
	base
	LoopEventFields
}

func (LoopRunSucceeded) EventType() string { return EventLoopRunSucceeded }

type LoopRunFailed struct {
	base
	LoopEventFields
	Error string `json:"error"`
}

func (LoopRunFailed) EventType() string { return EventLoopRunFailed }

// AgentLog carries agent-strategy progress narration.
type AgentLog struct {
	base
	ID                string         `json:"id"`
	Label             string         `json:"label"`
	NodeExecutionID   string         `json:"node_execution_id"`
	ParentID          string         `json:"parent_id,omitempty"`
	Status            string         `json:"status"`
	Data              map[string]any `json:"data,omitempty"`
	Metadata          map[string]any `json:"metadata,omitempty"`
}

func (AgentLog) EventType() string { return EventAgentLog }

func newBase(runID string) base {
	return base{RunID: runID, OccurredAt: time.Now()}
}

// The New* constructors below let other packages (chiefly the graph
// driver) build events without reaching into the unexported base field.

func NewGraphRunStarted(runID string) GraphRunStarted {
	return GraphRunStarted{base: newBase(runID)}
}

func NewGraphRunSucceeded(runID string, outputs map[string]any) GraphRunSucceeded {
	return GraphRunSucceeded{base: newBase(runID), Outputs: outputs}
}

func NewGraphRunPartialSucceeded(runID string, outputs map[string]any, exceptionsCount int) GraphRunPartialSucceeded {
	return GraphRunPartialSucceeded{base: newBase(runID), Outputs: outputs, ExceptionsCount: exceptionsCount}
}

func NewGraphRunFailed(runID, errMsg string, exceptionsCount int) GraphRunFailed {
	return GraphRunFailed{base: newBase(runID), Error: errMsg, ExceptionsCount: exceptionsCount}
}

func NewNodeRunStarted(runID, id, nodeID string, nodeType NodeType, routeStateID, predecessorNodeID string, pc ParallelContext) NodeRunStarted {
	return NodeRunStarted{
		base:              newBase(runID),
		ID:                id,
		NodeID:            nodeID,
		NodeType:          nodeType,
		RouteNodeStateID:  routeStateID,
		PredecessorNodeID: predecessorNodeID,
		ParallelContext:   pc,
	}
}

func NewNodeRunSucceeded(runID, nodeID string, nodeType NodeType, routeStateID string, outputs, metadata map[string]any, pc ParallelContext) NodeRunSucceeded {
	return NodeRunSucceeded{
		base:             newBase(runID),
		NodeID:           nodeID,
		NodeType:         nodeType,
		RouteNodeStateID: routeStateID,
		Outputs:          outputs,
		Metadata:         metadata,
		ParallelContext:  pc,
	}
}

func NewNodeRunFailed(runID, nodeID string, nodeType NodeType, routeStateID, errMsg string, pc ParallelContext) NodeRunFailed {
	return NodeRunFailed{
		base:             newBase(runID),
		NodeID:           nodeID,
		NodeType:         nodeType,
		RouteNodeStateID: routeStateID,
		Error:            errMsg,
		ParallelContext:  pc,
	}
}

func NewNodeRunException(runID, nodeID string, nodeType NodeType, routeStateID, errMsg string, pc ParallelContext) NodeRunException {
	return NodeRunException{
		base:             newBase(runID),
		NodeID:           nodeID,
		NodeType:         nodeType,
		RouteNodeStateID: routeStateID,
		Error:            errMsg,
		ParallelContext:  pc,
	}
}

func NewNodeRunRetry(runID, nodeID string, nodeType NodeType, routeStateID string, retryIndex int, errMsg string, pc ParallelContext) NodeRunRetry {
	return NodeRunRetry{
		base:             newBase(runID),
		NodeID:           nodeID,
		NodeType:         nodeType,
		RouteNodeStateID: routeStateID,
		RetryIndex:       retryIndex,
		Error:            errMsg,
		ParallelContext:  pc,
	}
}

func NewNodeRunStreamChunk(runID, nodeID, chunkContent string, fromSelector []string, pc ParallelContext) NodeRunStreamChunk {
	return NodeRunStreamChunk{
		base:                 newBase(runID),
		NodeID:               nodeID,
		ChunkContent:         chunkContent,
		FromVariableSelector: fromSelector,
		ParallelContext:      pc,
	}
}

func NewNodeRunRetrieverResource(runID, nodeID string, resources []map[string]any, pc ParallelContext) NodeRunRetrieverResource {
	return NodeRunRetrieverResource{base: newBase(runID), NodeID: nodeID, RetrieverResources: resources, ParallelContext: pc}
}

func NewParallelBranchRunStarted(runID string, pc ParallelContext) ParallelBranchRunStarted {
	return ParallelBranchRunStarted{base: newBase(runID), ParallelContext: pc}
}

func NewParallelBranchRunSucceeded(runID string, pc ParallelContext) ParallelBranchRunSucceeded {
	return ParallelBranchRunSucceeded{base: newBase(runID), ParallelContext: pc}
}

func NewParallelBranchRunFailed(runID, errMsg string, pc ParallelContext) ParallelBranchRunFailed {
	return ParallelBranchRunFailed{base: newBase(runID), ParallelContext: pc, Error: errMsg}
}

func NewIterationRunStarted(runID, nodeID string, inputs map[string]any, pc ParallelContext) IterationRunStarted {
	return IterationRunStarted{base: newBase(runID), IterationEventFields: IterationEventFields{
		NodeID: nodeID, Inputs: inputs, ParallelContext: pc,
	}}
}

func NewIterationRunNext(runID, nodeID string, index, steps int, pc ParallelContext) IterationRunNext {
	return IterationRunNext{base: newBase(runID), IterationEventFields: IterationEventFields{
		NodeID: nodeID, Index: index, Steps: steps, ParallelContext: pc,
	}}
}

func NewIterationRunSucceeded(runID, nodeID string, outputs map[string]any, steps int, pc ParallelContext) IterationRunSucceeded {
	return IterationRunSucceeded{base: newBase(runID), IterationEventFields: IterationEventFields{
		NodeID: nodeID, Outputs: outputs, Steps: steps, ParallelContext: pc,
	}}
}

func NewIterationRunFailed(runID, nodeID, errMsg string, index int, pc ParallelContext) IterationRunFailed {
	return IterationRunFailed{base: newBase(runID), IterationEventFields: IterationEventFields{
		NodeID: nodeID, Index: index, ParallelContext: pc,
	}, Error: errMsg}
}

func NewLoopRunStarted(runID, nodeID string, inputs map[string]any, pc ParallelContext) LoopRunStarted {
	return LoopRunStarted{base: newBase(runID), LoopEventFields: LoopEventFields{
		NodeID: nodeID, Inputs: inputs, ParallelContext: pc,
	}}
}

func NewLoopRunNext(runID, nodeID string, index, steps int, pc ParallelContext) LoopRunNext {
	return LoopRunNext{base: newBase(runID), LoopEventFields: LoopEventFields{
		NodeID: nodeID, Index: index, Steps: steps, ParallelContext: pc,
	}}
}

func NewLoopRunSucceeded(runID, nodeID string, outputs map[string]any, steps int, pc ParallelContext) LoopRunSucceeded {
	return LoopRunSucceeded{base: newBase(runID), LoopEventFields: LoopEventFields{
		NodeID: nodeID, Outputs: outputs, Steps: steps, ParallelContext: pc,
	}}
}

func NewLoopRunFailed(runID, nodeID, errMsg string, index int, pc ParallelContext) LoopRunFailed {
	return LoopRunFailed{base: newBase(runID), LoopEventFields: LoopEventFields{
		NodeID: nodeID, Index: index, ParallelContext: pc,
	}, Error: errMsg}
}
