package execution

import "context"

// Repository defines the interface for execution-history persistence.
// This is an external collaborator; the engine calls through this
// narrow interface only after a terminal event, it never blocks on it
// mid-run.
type Repository interface {
	// SaveNodeExecution saves a node execution record.
	SaveNodeExecution(ctx context.Context, runID string, rec NodeExecution) error

	// GetExecutionHistory retrieves execution history for a run.
	GetExecutionHistory(ctx context.Context, runID string) ([]NodeExecution, error)
}

// NodeExecution represents a node execution record for persistence.
type NodeExecution struct {
	ID         int64
	RunID      string
	NodeID     string
	NodeType   string
	Status     string
	Input      map[string]any
	Output     map[string]any
	Error      string
	DurationMs int64
}
