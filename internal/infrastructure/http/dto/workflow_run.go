package dto

import (
	"time"

	"github.com/duragraph/duragraph/internal/domain/workflow"
)

// GraphConfig is the wire shape of a graph definition carried inline
// on a run request.
type GraphConfig struct {
	Name        string                    `json:"name,omitempty"`
	Version     string                    `json:"version,omitempty"`
	Description string                    `json:"description,omitempty"`
	Nodes       []workflow.Node           `json:"nodes"`
	Edges       []workflow.Edge           `json:"edges"`
	Regions     []workflow.ParallelRegion `json:"regions,omitempty"`
	Config      map[string]interface{}    `json:"config,omitempty"`
}

// FileInput references a file, either inline or by URL. The run
// handler accepts it on the request but does not pass it on to node
// execution.
type FileInput struct {
	Name     string `json:"name"`
	URL      string `json:"url,omitempty"`
	Content  string `json:"content,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
}

// RunLimits carries caller-requested execution bounds. The run handler
// neither applies nor records them; the server's own configured limits
// (see cmd/server/config) are the ones in force.
type RunLimits struct {
	MaxExecutionSteps       int `json:"max_execution_steps,omitempty"`
	MaxExecutionTimeSeconds int `json:"max_execution_time_seconds,omitempty"`
	MaxWorkers              int `json:"max_workers,omitempty"`
	MaxSubmitCount          int `json:"max_submit_count,omitempty"`
}

// CreateWorkflowRunRequest is the single request shape accepted by
// POST /v1/workflows/runs.
type CreateWorkflowRunRequest struct {
	GraphConfig    GraphConfig            `json:"graph_config"`
	Inputs         map[string]interface{} `json:"inputs,omitempty"`
	Files          []FileInput            `json:"files,omitempty"`
	SystemIdentity string                 `json:"system_identity,omitempty"`
	Limits         *RunLimits             `json:"limits,omitempty"`
	Stream         bool                   `json:"stream,omitempty"`
}

// WorkflowRunResponse is the accumulated final object returned to
// non-streaming callers. SSE callers receive the engine events
// themselves, not this shape.
type WorkflowRunResponse struct {
	RunID       string                 `json:"run_id"`
	GraphID     string                 `json:"graph_id"`
	Status      string                 `json:"status"`
	Output      map[string]interface{} `json:"output,omitempty"`
	Error       string                 `json:"error,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
	StartedAt   *time.Time             `json:"started_at,omitempty"`
	CompletedAt *time.Time             `json:"completed_at,omitempty"`
}

// ErrorResponse is the uniform error body for the HTTP surface.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}
