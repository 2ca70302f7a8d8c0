package graph

import (
	"fmt"
	"reflect"

	domainexec "github.com/duragraph/duragraph/internal/domain/execution"
	"github.com/duragraph/duragraph/internal/domain/workflow"
)

// ConditionManager evaluates a RunCondition against the variable pool
// and the result of the edge's source node. Edges sharing a condition's
// Hash are grouped so the driver evaluates the condition once per group
// rather than once per edge.
type ConditionManager struct{}

// NewConditionManager creates a stateless condition evaluator.
func NewConditionManager() *ConditionManager {
	return &ConditionManager{}
}

// Evaluate reports whether cond is satisfied, given the pool and the
// route state of the node the edge leaves from. A nil cond always
// passes: an edge with no declared run_condition is unconditional.
func (m *ConditionManager) Evaluate(cond *workflow.RunCondition, pool *domainexec.VariablePool, source *domainexec.RouteNodeState) (bool, error) {
	if cond == nil {
		return true, nil
	}
	switch cond.Kind {
	case "always":
		return true, nil
	case "variable_equals":
		return m.evaluateVariableEquals(cond.Payload, pool)
	case "node_succeeded":
		return source != nil && source.Status == domainexec.RouteStatusSuccess, nil
	case "node_failed":
		return source != nil && (source.Status == domainexec.RouteStatusFailed || source.Status == domainexec.RouteStatusException), nil
	case "edge_handle":
		return m.evaluateEdgeHandle(cond.Payload, source)
	default:
		return false, fmt.Errorf("graph: unknown run_condition kind %q", cond.Kind)
	}
}

func (m *ConditionManager) evaluateVariableEquals(payload map[string]interface{}, pool *domainexec.VariablePool) (bool, error) {
	selector := toSelector(payload["selector"])
	if len(selector) == 0 {
		return false, fmt.Errorf("graph: variable_equals condition missing selector")
	}
	value, ok := pool.Get(selector)
	if !ok {
		return false, nil
	}
	return reflect.DeepEqual(value, payload["value"]), nil
}

func (m *ConditionManager) evaluateEdgeHandle(payload map[string]interface{}, source *domainexec.RouteNodeState) (bool, error) {
	handle, _ := payload["handle"].(string)
	if handle == "" {
		return false, fmt.Errorf("graph: edge_handle condition missing handle")
	}
	if source == nil || source.NodeRunResult == nil {
		return false, nil
	}
	return string(source.NodeRunResult.EdgeSourceHandle) == handle, nil
}

func toSelector(v interface{}) []string {
	switch s := v.(type) {
	case []string:
		return s
	case []interface{}:
		out := make([]string, 0, len(s))
		for _, item := range s {
			if str, ok := item.(string); ok {
				out = append(out, str)
			}
		}
		return out
	default:
		return nil
	}
}

// GroupEdgesByCondition partitions outgoing edges into condition groups
// keyed by RunCondition.Hash; edges with no run_condition each form
// their own singleton group keyed by edge ID, since they are always
// dispatched independently of one another.
func GroupEdgesByCondition(edges []workflow.Edge) map[string][]workflow.Edge {
	groups := make(map[string][]workflow.Edge)
	for _, e := range edges {
		key := e.ID
		if e.RunCondition != nil && e.RunCondition.Hash != "" {
			key = e.RunCondition.Hash
		}
		groups[key] = append(groups[key], e)
	}
	return groups
}
