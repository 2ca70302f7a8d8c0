// Package execution provides the illustrative node implementations that
// satisfy execution.Node. Node behavior is an external collaborator;
// these are sample implementations demonstrating the uniform contract,
// not a requirement of the engine itself.
package execution

import (
	domainexec "github.com/duragraph/duragraph/internal/domain/execution"
)

// baseNode holds the introspection fields every node shares, per the
// execution.Node contract's error_strategy/continue_on_error/retry/
// default_value accessors.
type baseNode struct {
	nodeID          string
	nodeType        domainexec.NodeType
	version         string
	errorStrategy   domainexec.ErrorStrategy
	continueOnError bool
	retry           domainexec.RetryPolicy
	defaultValue    map[string]any
}

func newBaseNode(params domainexec.ConstructorParams, nodeType domainexec.NodeType) baseNode {
	b := baseNode{
		nodeID:   params.NodeID,
		nodeType: nodeType,
		version:  "1",
	}
	if v, ok := params.Config["version"].(string); ok && v != "" {
		b.version = v
	}
	if es, ok := params.Config["error_strategy"].(string); ok && es != "" {
		b.errorStrategy = domainexec.ErrorStrategy(es)
	} else {
		b.errorStrategy = domainexec.ErrorStrategyNone
	}
	if coe, ok := params.Config["continue_on_error"].(bool); ok {
		b.continueOnError = coe
	}
	if retryCfg, ok := params.Config["retry"].(map[string]any); ok {
		if mr, ok := retryCfg["max_retries"].(float64); ok {
			b.retry.MaxRetries = int(mr)
		}
		if ri, ok := retryCfg["retry_interval_seconds"].(float64); ok {
			b.retry.RetryIntervalSeconds = ri
		}
	}
	if dv, ok := params.Config["default_value"].(map[string]any); ok {
		b.defaultValue = dv
	}
	return b
}

func (b baseNode) NodeID() string                          { return b.nodeID }
func (b baseNode) Type() domainexec.NodeType                { return b.nodeType }
func (b baseNode) Version() string                          { return b.version }
func (b baseNode) ErrorStrategy() domainexec.ErrorStrategy   { return b.errorStrategy }
func (b baseNode) ContinueOnError() bool                    { return b.continueOnError }
func (b baseNode) Retry() domainexec.RetryPolicy             { return b.retry }
func (b baseNode) DefaultValue() map[string]any              { return b.defaultValue }

// completed is a convenience constructor for a single-shot RunCompleted
// event channel, used by every synchronous builtin node.
func completed(result domainexec.RunCompleted) <-chan domainexec.NodeEvent {
	ch := make(chan domainexec.NodeEvent, 1)
	ch <- result
	close(ch)
	return ch
}
