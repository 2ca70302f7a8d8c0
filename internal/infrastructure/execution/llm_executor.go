package execution

import (
	"context"
	"strings"

	domainexec "github.com/duragraph/duragraph/internal/domain/execution"
	"github.com/duragraph/duragraph/internal/infrastructure/llm"
)

// LLMNode calls a configured chat-completion provider, streaming
// content chunks as they arrive and merging token usage into the
// shared runtime state on success.
type LLMNode struct {
	baseNode
	clients      map[string]llm.Client
	config       map[string]any
	runtimeState *domainexec.GraphRuntimeState
}

// NewLLMNodeConstructor builds a (llm, "1") Constructor bound to a
// fixed set of provider clients, keyed by provider name.
func NewLLMNodeConstructor(clients map[string]llm.Client) domainexec.Constructor {
	return func(params domainexec.ConstructorParams) (domainexec.Node, error) {
		return &LLMNode{
			baseNode:     newBaseNode(params, domainexec.NodeTypeLLM),
			clients:      clients,
			config:       params.Config,
			runtimeState: params.RuntimeState,
		}, nil
	}
}

func (n *LLMNode) Run(ctx context.Context) <-chan domainexec.NodeEvent {
	ch := make(chan domainexec.NodeEvent, 4)
	go n.run(ctx, ch)
	return ch
}

func (n *LLMNode) run(ctx context.Context, ch chan<- domainexec.NodeEvent) {
	defer close(ch)

	model, _ := n.config["model"].(string)
	if model == "" {
		ch <- domainexec.RunCompleted{Status: domainexec.RunStatusFailed, Error: "model is required for LLM node"}
		return
	}

	provider := providerFromModel(model)
	client, ok := n.clients[provider]
	if !ok {
		ch <- domainexec.RunCompleted{Status: domainexec.RunStatusFailed, Error: "no client configured for provider: " + provider}
		return
	}

	messages := n.extractMessages()
	if len(messages) == 0 {
		ch <- domainexec.RunCompleted{Status: domainexec.RunStatusFailed, Error: "at least one message is required"}
		return
	}

	temperature := float32(0.7)
	if temp, ok := n.config["temperature"].(float64); ok {
		temperature = float32(temp)
	}
	maxTokens := 1000
	if max, ok := n.config["max_tokens"].(float64); ok {
		maxTokens = int(max)
	}

	req := llm.CompletionRequest{
		Model:       model,
		Messages:    messages,
		Temperature: temperature,
		MaxTokens:   maxTokens,
		Tools:       n.extractTools(),
		Stream:      true,
	}

	var content strings.Builder
	resp, err := client.CompleteStream(ctx, req, func(chunk llm.StreamChunk) error {
		if chunk.Content == "" {
			return nil
		}
		content.WriteString(chunk.Content)
		ch <- domainexec.RunStreamChunk{ChunkContent: chunk.Content}
		return nil
	})
	if err != nil {
		ch <- domainexec.RunCompleted{Status: domainexec.RunStatusFailed, Error: err.Error()}
		return
	}

	text := content.String()
	if text == "" && resp != nil {
		text = resp.Content
	}
	outputs := map[string]any{"text": text, "model": model, "provider": provider}
	usage := map[string]any{"provider": provider}
	if resp != nil {
		usage["prompt_tokens"] = int64(resp.Usage.PromptTokens)
		usage["completion_tokens"] = int64(resp.Usage.CompletionTokens)
		usage["total_tokens"] = int64(resp.Usage.TotalTokens)
		if len(resp.ToolCalls) > 0 {
			toolCalls := make([]map[string]any, len(resp.ToolCalls))
			for i, tc := range resp.ToolCalls {
				toolCalls[i] = map[string]any{"id": tc.ID, "name": tc.Name, "arguments": tc.Arguments}
			}
			outputs["tool_calls"] = toolCalls
		}
	}

	ch <- domainexec.RunCompleted{
		Status:   domainexec.RunStatusSucceeded,
		Outputs:  outputs,
		LLMUsage: usage,
	}
}

func providerFromModel(model string) string {
	switch {
	case len(model) >= 4 && model[:4] == "gpt-":
		return "openai"
	case len(model) >= 3 && model[:3] == "o1-":
		return "openai"
	case len(model) >= 7 && model[:7] == "chatgpt":
		return "openai"
	case len(model) >= 7 && model[:7] == "claude-":
		return "anthropic"
	default:
		return "openai"
	}
}

func (n *LLMNode) extractMessages() []llm.Message {
	var messages []llm.Message

	if systemPrompt, ok := n.config["system_prompt"].(string); ok && systemPrompt != "" {
		messages = append(messages, llm.Message{Role: "system", Content: systemPrompt})
	}

	if configMessages, ok := n.config["messages"].([]any); ok {
		for _, msg := range configMessages {
			msgMap, ok := msg.(map[string]any)
			if !ok {
				continue
			}
			role, _ := msgMap["role"].(string)
			content, _ := msgMap["content"].(string)
			if role != "" && content != "" {
				messages = append(messages, llm.Message{Role: role, Content: content})
			}
		}
	}

	if prompt, ok := n.config["prompt"].(string); ok && prompt != "" {
		messages = append(messages, llm.Message{Role: "user", Content: renderTemplate(prompt, n.runtimeState.VariablePool)})
	}

	return messages
}

func (n *LLMNode) extractTools() []llm.Tool {
	var tools []llm.Tool
	configTools, ok := n.config["tools"].([]any)
	if !ok {
		return tools
	}
	for _, tool := range configTools {
		toolMap, ok := tool.(map[string]any)
		if !ok {
			continue
		}
		name, _ := toolMap["name"].(string)
		if name == "" {
			continue
		}
		description, _ := toolMap["description"].(string)
		parameters, _ := toolMap["parameters"].(map[string]any)
		tools = append(tools, llm.Tool{Name: name, Description: description, Parameters: parameters})
	}
	return tools
}
