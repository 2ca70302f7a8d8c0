package graph

import (
	"context"
	"fmt"

	domainexec "github.com/duragraph/duragraph/internal/domain/execution"
	"github.com/duragraph/duragraph/internal/domain/workflow"
)

const defaultMaxLoopCount = 100

// containerNode drives a carved iteration/loop sub-graph to completion
// each time the engine visits it, reusing the parent run's variable
// pool so member nodes' outputs land alongside every other node in the
// run. It is built directly by the driver rather than through the
// registry, since it needs a closure back into the driver's own
// runFrom to walk its members.
type containerNode struct {
	node      workflow.Node
	kind      workflow.NodeType
	run       func(ctx context.Context, index int) (map[string]any, error)
	iterate   func() ([]any, error)
	loopUntil func() (bool, error)
	onStart   func()
	onSucceed func(outputs map[string]any, steps int)
	outputKey string
	maxLoops  int
}

func (n *containerNode) NodeID() string          { return n.node.ID }
func (n *containerNode) Type() workflow.NodeType { return n.node.Type }
func (n *containerNode) Version() string         { return n.node.Version }
func (n *containerNode) ErrorStrategy() domainexec.ErrorStrategy {
	return n.node.ErrorStrategy
}
func (n *containerNode) ContinueOnError() bool { return n.node.ContinueOnError }
func (n *containerNode) Retry() domainexec.RetryPolicy {
	return domainexec.RetryPolicy{MaxRetries: n.node.Retry.MaxRetries, RetryIntervalSeconds: n.node.Retry.RetryIntervalSeconds}
}
func (n *containerNode) DefaultValue() map[string]any { return n.node.DefaultValue }

func (n *containerNode) Run(ctx context.Context) <-chan domainexec.NodeEvent {
	ch := make(chan domainexec.NodeEvent, 1)
	go func() {
		defer close(ch)
		if n.onStart != nil {
			n.onStart()
		}
		var result map[string]any
		var err error
		if n.kind == workflow.NodeTypeIteration {
			result, err = n.executeIteration(ctx)
		} else {
			result, err = n.executeLoop(ctx)
		}
		if err != nil {
			ch <- domainexec.RunCompleted{Status: domainexec.RunStatusFailed, Error: err.Error()}
			return
		}
		if n.onSucceed != nil {
			n.onSucceed(result, 0)
		}
		ch <- domainexec.RunCompleted{Status: domainexec.RunStatusSucceeded, Outputs: result}
	}()
	return ch
}

func (n *containerNode) executeIteration(ctx context.Context) (map[string]any, error) {
	items, err := n.iterate()
	if err != nil {
		return nil, err
	}
	collected := make([]any, 0, len(items))
	for i := range items {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		out, err := n.run(ctx, i)
		if err != nil {
			return nil, fmt.Errorf("iteration %d: %w", i, err)
		}
		collected = append(collected, out[n.outputKey])
	}
	return map[string]any{"output": collected}, nil
}

func (n *containerNode) executeLoop(ctx context.Context) (map[string]any, error) {
	i := 0
	var last map[string]any
	for i = 0; i < n.maxLoops; i++ {
		done, err := n.loopUntil()
		if err != nil {
			return nil, err
		}
		if done {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		out, err := n.run(ctx, i)
		if err != nil {
			return nil, fmt.Errorf("loop iteration %d: %w", i, err)
		}
		last = out
	}
	outputs := map[string]any{"loop_count": i}
	if last != nil {
		outputs["output"] = last[n.outputKey]
	}
	return outputs, nil
}
