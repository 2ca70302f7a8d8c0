package workflow

import "context"

// GraphRepository defines the interface for graph persistence
type GraphRepository interface {
	// Save persists a graph aggregate and its events
	Save(ctx context.Context, graph *Graph) error

	// FindByID retrieves a graph by ID
	FindByID(ctx context.Context, id string) (*Graph, error)

	// FindByAssistantID retrieves graphs for a specific assistant
	FindByAssistantID(ctx context.Context, assistantID string) ([]*Graph, error)

	// FindByAssistantIDAndVersion retrieves a specific graph version
	FindByAssistantIDAndVersion(ctx context.Context, assistantID, version string) (*Graph, error)

	// Update updates an existing graph
	Update(ctx context.Context, graph *Graph) error

	// Delete removes a graph
	Delete(ctx context.Context, id string) error
}
