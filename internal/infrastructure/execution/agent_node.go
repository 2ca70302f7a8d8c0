package execution

import (
	"context"

	domainexec "github.com/duragraph/duragraph/internal/domain/execution"
	"github.com/duragraph/duragraph/internal/infrastructure/llm"
	"github.com/duragraph/duragraph/internal/infrastructure/tools"
)

// AgentNode runs a bounded tool-calling loop: it asks the configured
// model for a completion, and if the model responds with tool calls,
// executes each through the registry and feeds the results back as
// follow-up user messages, then asks again. It makes at most 5 model
// calls; if the fifth still returns tool calls, the node fails with
// the agent log as its output.
type AgentNode struct {
	baseNode
	clients      map[string]llm.Client
	registry     *tools.Registry
	config       map[string]any
	runtimeState *domainexec.GraphRuntimeState
}

// NewAgentNodeConstructor builds an (agent, "1") Constructor.
func NewAgentNodeConstructor(clients map[string]llm.Client, registry *tools.Registry) domainexec.Constructor {
	return func(params domainexec.ConstructorParams) (domainexec.Node, error) {
		return &AgentNode{
			baseNode:     newBaseNode(params, domainexec.NodeTypeAgent),
			clients:      clients,
			registry:     registry,
			config:       params.Config,
			runtimeState: params.RuntimeState,
		}, nil
	}
}

func (n *AgentNode) Run(ctx context.Context) <-chan domainexec.NodeEvent {
	ch := make(chan domainexec.NodeEvent, 4)
	go n.run(ctx, ch)
	return ch
}

func (n *AgentNode) run(ctx context.Context, ch chan<- domainexec.NodeEvent) {
	defer close(ch)

	model, _ := n.config["model"].(string)
	if model == "" {
		ch <- domainexec.RunCompleted{Status: domainexec.RunStatusFailed, Error: "model is required for agent node"}
		return
	}
	provider := providerFromModel(model)
	client, ok := n.clients[provider]
	if !ok {
		ch <- domainexec.RunCompleted{Status: domainexec.RunStatusFailed, Error: "no client configured for provider: " + provider}
		return
	}

	instruction, _ := n.config["instruction"].(string)
	instruction = renderTemplate(instruction, n.runtimeState.VariablePool)

	messages := []llm.Message{{Role: "user", Content: instruction}}
	toolDefs := n.toolDefinitions()

	agentLog := []map[string]any{}

	for step := 0; step < 5; step++ {
		resp, err := client.Complete(ctx, llm.CompletionRequest{
			Model:    model,
			Messages: messages,
			Tools:    toolDefs,
		})
		if err != nil {
			ch <- domainexec.RunCompleted{Status: domainexec.RunStatusFailed, Error: err.Error()}
			return
		}

		if len(resp.ToolCalls) == 0 {
			ch <- domainexec.RunStreamChunk{ChunkContent: resp.Content}
			ch <- domainexec.RunCompleted{
				Status:  domainexec.RunStatusSucceeded,
				Outputs: map[string]any{"text": resp.Content, "model": model, "agent_log": agentLog},
			}
			return
		}

		messages = append(messages, llm.Message{Role: "assistant", Content: resp.Content})
		for _, call := range resp.ToolCalls {
			result, err := n.registry.Execute(ctx, call.Name, call.Arguments)
			entry := map[string]any{"tool": call.Name, "arguments": call.Arguments}
			if err != nil {
				entry["error"] = err.Error()
				messages = append(messages, llm.Message{Role: "user", Content: "tool " + call.Name + " failed: " + err.Error()})
			} else {
				entry["result"] = result
				messages = append(messages, llm.Message{Role: "user", Content: toolResultSummary(call.Name, result)})
			}
			agentLog = append(agentLog, entry)
		}
	}

	ch <- domainexec.RunCompleted{
		Status:  domainexec.RunStatusFailed,
		Error:   "agent exceeded maximum tool-calling steps",
		Outputs: map[string]any{"agent_log": agentLog},
	}
}

func (n *AgentNode) toolDefinitions() []llm.Tool {
	var defs []llm.Tool
	for _, t := range n.registry.List() {
		defs = append(defs, llm.Tool{Name: t.Name(), Description: t.Description(), Parameters: t.Schema()})
	}
	return defs
}

func toolResultSummary(name string, result map[string]any) string {
	if text, ok := result["text"].(string); ok {
		return name + " returned: " + text
	}
	return name + " completed"
}
