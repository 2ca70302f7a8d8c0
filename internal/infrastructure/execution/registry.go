package execution

import (
	"net/http"

	domainexec "github.com/duragraph/duragraph/internal/domain/execution"
	"github.com/duragraph/duragraph/internal/infrastructure/llm"
	"github.com/duragraph/duragraph/internal/infrastructure/tools"
)

// BuildRegistry wires every node type this module ships into a fresh
// registry. Each node type is registered under version "1"; callers
// that need a second wire-compatible revision register it alongside
// without touching the others.
func BuildRegistry(llmClients map[string]llm.Client, toolRegistry *tools.Registry, httpClient *http.Client) *domainexec.Registry {
	reg := domainexec.NewRegistry()

	reg.Register(domainexec.NodeTypeStart, "1", NewStartNode)
	reg.Register(domainexec.NodeTypeEnd, "1", NewEndNode)
	reg.Register(domainexec.NodeTypeAnswer, "1", NewAnswerNode)
	reg.Register(domainexec.NodeTypeCondition, "1", NewConditionNode)
	reg.Register(domainexec.NodeTypeCode, "1", NewCodeNode)
	reg.Register(domainexec.NodeTypeVariableAggregator, "1", NewVariableAggregatorNode)
	reg.Register(domainexec.NodeTypeLLM, "1", NewLLMNodeConstructor(llmClients))
	reg.Register(domainexec.NodeTypeTool, "1", NewToolNodeConstructor(toolRegistry))
	reg.Register(domainexec.NodeTypeAgent, "1", NewAgentNodeConstructor(llmClients, toolRegistry))
	reg.Register(domainexec.NodeTypeHTTPRequest, "1", NewHTTPRequestNodeConstructor(httpClient))

	// Iteration and loop nodes aren't registered here: the driver
	// special-cases them directly so it can recurse into their carved
	// member sub-graph through its own runFrom rather than through a
	// constructed Node instance.

	return reg
}
