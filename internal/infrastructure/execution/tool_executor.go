package execution

import (
	"context"

	domainexec "github.com/duragraph/duragraph/internal/domain/execution"
	"github.com/duragraph/duragraph/internal/infrastructure/tools"
)

// ToolNode invokes a single registered tool by name, resolving its
// arguments from a mix of literal config and variable pool selectors.
type ToolNode struct {
	baseNode
	registry     *tools.Registry
	config       map[string]any
	runtimeState *domainexec.GraphRuntimeState
}

// NewToolNodeConstructor builds a (tool, "1") Constructor bound to a
// fixed tool registry.
func NewToolNodeConstructor(registry *tools.Registry) domainexec.Constructor {
	return func(params domainexec.ConstructorParams) (domainexec.Node, error) {
		return &ToolNode{
			baseNode:     newBaseNode(params, domainexec.NodeTypeTool),
			registry:     registry,
			config:       params.Config,
			runtimeState: params.RuntimeState,
		}, nil
	}
}

func (n *ToolNode) Run(ctx context.Context) <-chan domainexec.NodeEvent {
	toolName, _ := n.config["tool"].(string)
	if toolName == "" {
		return completed(domainexec.RunCompleted{Status: domainexec.RunStatusFailed, Error: "tool name is required"})
	}

	args := n.resolveArguments()

	result, err := n.registry.Execute(ctx, toolName, args)
	if err != nil {
		return completed(domainexec.RunCompleted{Status: domainexec.RunStatusFailed, Error: err.Error()})
	}

	return completed(domainexec.RunCompleted{
		Status:  domainexec.RunStatusSucceeded,
		Outputs: map[string]any{"tool": toolName, "result": result},
	})
}

func (n *ToolNode) resolveArguments() map[string]any {
	args := make(map[string]any)
	if configArgs, ok := n.config["arguments"].(map[string]any); ok {
		for k, v := range configArgs {
			if selector, ok := v.(map[string]any); ok {
				if sel := parseSelector(selector["selector"]); sel != nil {
					if resolved, ok := n.runtimeState.VariablePool.Get(sel); ok {
						args[k] = resolved
						continue
					}
				}
			}
			args[k] = v
		}
	}
	return args
}
