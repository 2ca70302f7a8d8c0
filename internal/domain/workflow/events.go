package workflow

import "time"

// Graph events
const (
	EventTypeGraphDefined = "graph.defined"
	EventTypeGraphUpdated = "graph.updated"
)

// GraphDefined event
type GraphDefined struct {
	GraphID     string                 `json:"graph_id"`
	AssistantID string                 `json:"assistant_id"`
	Name        string                 `json:"name"`
	Version     string                 `json:"version"`
	Description string                 `json:"description,omitempty"`
	Nodes       []Node                 `json:"nodes"`
	Edges       []Edge                 `json:"edges"`
	Config      map[string]interface{} `json:"config,omitempty"`
	OccurredAt  time.Time              `json:"occurred_at"`
}

func (e GraphDefined) EventType() string     { return EventTypeGraphDefined }
func (e GraphDefined) AggregateID() string   { return e.GraphID }
func (e GraphDefined) AggregateType() string { return "graph" }

// GraphUpdated event
type GraphUpdated struct {
	GraphID     string                 `json:"graph_id"`
	Name        *string                `json:"name,omitempty"`
	Description *string                `json:"description,omitempty"`
	Nodes       []Node                 `json:"nodes,omitempty"`
	Edges       []Edge                 `json:"edges,omitempty"`
	Config      map[string]interface{} `json:"config,omitempty"`
	OccurredAt  time.Time              `json:"occurred_at"`
}

func (e GraphUpdated) EventType() string     { return EventTypeGraphUpdated }
func (e GraphUpdated) AggregateID() string   { return e.GraphID }
func (e GraphUpdated) AggregateType() string { return "graph" }
