package execution

import (
	"sync"
	"time"

	pkguuid "github.com/duragraph/duragraph/internal/pkg/uuid"
)

// RouteStatus is the lifecycle status of a single node visit.
type RouteStatus string

const (
	RouteStatusRunning   RouteStatus = "running"
	RouteStatusSuccess   RouteStatus = "success"
	RouteStatusFailed    RouteStatus = "failed"
	RouteStatusException RouteStatus = "exception"
)

// RouteNodeState is a per-execution record of a node visit, used for
// event correlation and the route graph the driver links as it walks.
type RouteNodeState struct {
	StateID      string
	NodeID       string
	Status       RouteStatus
	StartAt      time.Time
	FinishAt     time.Time
	Index        int
	NodeRunResult *RunCompleted
	FailedReason string
}

// NewRouteNodeState creates a running route state for nodeID.
func NewRouteNodeState(nodeID string) *RouteNodeState {
	return &RouteNodeState{
		StateID: pkguuid.New(),
		NodeID:  nodeID,
		Status:  RouteStatusRunning,
		StartAt: time.Now(),
	}
}

// SetFinished records the terminal outcome of the node run.
func (s *RouteNodeState) SetFinished(result *RunCompleted) {
	s.FinishAt = time.Now()
	s.NodeRunResult = result
	if result.Status == RunStatusSucceeded {
		s.Status = RouteStatusSuccess
	} else {
		s.Status = RouteStatusFailed
		s.FailedReason = result.Error
	}
}

// ParallelContext is the 4-tuple stamped onto events so consumers can
// place them in the parallel-region nesting tree.
type ParallelContext struct {
	ParallelID                string
	ParallelStartNodeID       string
	ParentParallelID          string
	ParentParallelStartNodeID string
}

// InParallel reports whether this context identifies an active region.
func (c ParallelContext) InParallel() bool {
	return c.ParallelID != ""
}

// GraphRuntimeState is the engine's mutable run state: variable pool,
// step/time bookkeeping, accumulated usage, and the route-state graph.
// The driver goroutine is the sole writer; parallel
// branches only ever mutate the variable pool, which is partitioned by
// node_id so writes never collide.
type GraphRuntimeState struct {
	mu sync.Mutex

	VariablePool  *VariablePool
	NodeRunSteps  int
	TotalTokens   int64
	LLMUsage      map[string]any
	Outputs       map[string]any
	NodeStateMapping map[string]*RouteNodeState
	RouteEdges    map[string][]string // source state_id -> target state_id(s)
	StartAt       time.Time
}

// NewGraphRuntimeState creates a fresh runtime state with an empty
// variable pool.
func NewGraphRuntimeState() *GraphRuntimeState {
	return &GraphRuntimeState{
		VariablePool:     NewVariablePool(),
		LLMUsage:         make(map[string]any),
		Outputs:          make(map[string]any),
		NodeStateMapping: make(map[string]*RouteNodeState),
		RouteEdges:       make(map[string][]string),
		StartAt:          time.Now(),
	}
}

// NextStep increments and returns the monotonic step counter. The
// graph driver stamps the returned value as the index of the route
// state it starts next, so the index is strictly monotonic across the
// run's event stream.
func (s *GraphRuntimeState) NextStep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.NodeRunSteps++
	return s.NodeRunSteps
}

// Steps returns the current step count without incrementing it.
func (s *GraphRuntimeState) Steps() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.NodeRunSteps
}

// RecordRoute links previous -> current route state and stores current
// in the node_state_mapping.
func (s *GraphRuntimeState) RecordRoute(previous, current *RouteNodeState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.NodeStateMapping[current.StateID] = current
	if previous != nil {
		s.RouteEdges[previous.StateID] = append(s.RouteEdges[previous.StateID], current.StateID)
	}
}

// AccumulateTokens adds to the running total_tokens counter. Written
// only by the driver on NodeRunSucceeded.
func (s *GraphRuntimeState) AccumulateTokens(n int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.TotalTokens += n
}

// MergeLLMUsage merges a node's usage metadata into the accumulated
// total.
func (s *GraphRuntimeState) MergeLLMUsage(usage map[string]any) {
	if usage == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range usage {
		if existing, ok := s.LLMUsage[k].(int64); ok {
			if add, ok := v.(int64); ok {
				s.LLMUsage[k] = existing + add
				continue
			}
		}
		s.LLMUsage[k] = v
	}
}

// SetOutputs overwrites the run's final outputs (set when an end-type
// node succeeds, or answer text accumulation).
func (s *GraphRuntimeState) SetOutputs(outputs map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Outputs = outputs
}

// SnapshotOutputs returns a copy of the current outputs.
func (s *GraphRuntimeState) SnapshotOutputs() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]any, len(s.Outputs))
	for k, v := range s.Outputs {
		out[k] = v
	}
	return out
}
