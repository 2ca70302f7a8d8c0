package execution

import "context"

// NodeType is the closed set of node kinds the engine knows how to
// route around. Node behavior itself is an external collaborator;
// the engine only needs the tag and the uniform contract below.
type NodeType string

const (
	NodeTypeStart               NodeType = "start"
	NodeTypeEnd                 NodeType = "end"
	NodeTypeAnswer              NodeType = "answer"
	NodeTypeLLM                 NodeType = "llm"
	NodeTypeHTTPRequest         NodeType = "http_request"
	NodeTypeAgent               NodeType = "agent"
	NodeTypeIteration           NodeType = "iteration"
	NodeTypeLoop                NodeType = "loop"
	NodeTypeCondition           NodeType = "condition"
	NodeTypeCode                NodeType = "code"
	NodeTypeTool                NodeType = "tool"
	NodeTypeVariableAggregator  NodeType = "variable-aggregator"
)

// ErrorStrategy controls what happens when a node's RunCompleted event
// reports status=failed.
type ErrorStrategy string

const (
	ErrorStrategyNone         ErrorStrategy = "none"
	ErrorStrategyDefaultValue ErrorStrategy = "default_value"
	ErrorStrategyFailBranch   ErrorStrategy = "fail_branch"
)

// EdgeSourceHandle tags an outgoing edge so condition grouping can pick
// the success or failure branch of a fail_branch node.
type EdgeSourceHandle string

const (
	EdgeHandleSuccess EdgeSourceHandle = "success"
	EdgeHandleFailed  EdgeSourceHandle = "failed"
)

// RetryPolicy is a node's retry configuration.
type RetryPolicy struct {
	MaxRetries          int
	RetryIntervalSeconds float64
}

// RunStatus is the terminal status carried by a RunCompleted node event.
type RunStatus string

const (
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusFailed    RunStatus = "failed"
)

// NodeEvent is the sum type a node's own event iterator produces:
// RunStreamChunk, RunRetrieverResource, or exactly one terminal
// RunCompleted.
type NodeEvent interface {
	isNodeEvent()
}

// RunStreamChunk carries incremental text output (e.g. LLM tokens).
type RunStreamChunk struct {
	ChunkContent       string
	FromVariableSelector []string
}

func (RunStreamChunk) isNodeEvent() {}

// RunRetrieverResource carries retrieval/citation metadata.
type RunRetrieverResource struct {
	RetrieverResources []map[string]any
}

func (RunRetrieverResource) isNodeEvent() {}

// RunCompleted is the single terminal event every node run() must
// produce exactly once.
type RunCompleted struct {
	Status   RunStatus
	Outputs  map[string]any
	Error    string
	Metadata map[string]any

	// EdgeSourceHandle, if set, tags which branch downstream condition
	// grouping should treat this result as having taken.
	EdgeSourceHandle EdgeSourceHandle

	// LLMUsage, if present, is merged into the graph runtime state's
	// accumulated usage on success.
	LLMUsage map[string]any
}

func (RunCompleted) isNodeEvent() {}

// Node is the uniform contract every node implementation exposes to the
// engine. Node behavior is an external collaborator; the engine only
// drives this interface.
type Node interface {
	// NodeID returns the stable identifier of this node instance.
	NodeID() string

	// Type returns the node_type tag.
	Type() NodeType

	// Version returns the node's version, used for (type, version)
	// registry dispatch.
	Version() string

	// Run produces the node's lazy event sequence. Implementations must
	// send on the returned channel and close it after exactly one
	// RunCompleted, and must select on ctx.Done() so that cooperative
	// cancellation is observed within one event-poll interval.
	Run(ctx context.Context) <-chan NodeEvent

	// ErrorStrategy, ContinueOnError, Retry, DefaultValue: introspection
	// used by the driver's retry/continue-on-error handling.
	ErrorStrategy() ErrorStrategy
	ContinueOnError() bool
	Retry() RetryPolicy
	DefaultValue() map[string]any
}

// VariableSelectorExtractor is an optional capability a Node may
// implement so a sub-graph carver can seed user inputs through the
// node's own declared variable selector mapping.
type VariableSelectorExtractor interface {
	ExtractVariableSelectorToVariableMapping(graphConfig map[string]any, nodeConfig map[string]any) map[string][]string
}

// Constructor builds a Node instance from its config plus the shared
// graph-init parameters. Registered per (NodeType, Version) — see
// registry.go.
type Constructor func(params ConstructorParams) (Node, error)

// ConstructorParams is everything a Constructor needs to build a node
// instance without holding a back-pointer to the engine: nodes receive
// handles into shared run state, not pointers into the engine itself.
type ConstructorParams struct {
	NodeID            string
	Config            map[string]any
	GraphInitParams   GraphInitParams
	RuntimeState      *GraphRuntimeState
	PreviousNodeID    string
}

// GraphInitParams are the request-scoped values explicitly threaded
// through node construction as plain parameters rather than ambient
// context values.
type GraphInitParams struct {
	UserID              string
	AppID               string
	WorkflowID          string
	WorkflowExecutionID string
	InvokeFrom          string
}
