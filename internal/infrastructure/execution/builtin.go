package execution

import (
	"context"
	"sort"
	"strings"

	domainexec "github.com/duragraph/duragraph/internal/domain/execution"
)

// StartNode seeds the run's user-supplied inputs into the variable
// pool under its own namespace. It is the graph's single root node.
type StartNode struct {
	baseNode
	inputs map[string]any
}

// NewStartNode is the (start, "1") constructor.
func NewStartNode(params domainexec.ConstructorParams) (domainexec.Node, error) {
	inputs, _ := params.Config["inputs"].(map[string]any)
	return &StartNode{
		baseNode: newBaseNode(params, domainexec.NodeTypeStart),
		inputs:   inputs,
	}, nil
}

func (n *StartNode) Run(ctx context.Context) <-chan domainexec.NodeEvent {
	return completed(domainexec.RunCompleted{Status: domainexec.RunStatusSucceeded, Outputs: n.inputs})
}

// EndNode snapshots the selectors it declares in config["outputs"] (a
// list of variable selectors [node_id, key]) from the runtime state's
// variable pool into its own outputs.
type EndNode struct {
	baseNode
	selectors    [][]string
	runtimeState *domainexec.GraphRuntimeState
}

// NewEndNode is the (end, "1") constructor.
func NewEndNode(params domainexec.ConstructorParams) (domainexec.Node, error) {
	return &EndNode{
		baseNode:     newBaseNode(params, domainexec.NodeTypeEnd),
		selectors:    parseSelectors(params.Config["outputs"]),
		runtimeState: params.RuntimeState,
	}, nil
}

func (n *EndNode) Run(ctx context.Context) <-chan domainexec.NodeEvent {
	outputs := make(map[string]any, len(n.selectors))
	for _, selector := range n.selectors {
		if len(selector) == 0 {
			continue
		}
		key := selector[len(selector)-1]
		if v, ok := n.runtimeState.VariablePool.Get(selector); ok {
			outputs[key] = v
		}
	}
	return completed(domainexec.RunCompleted{Status: domainexec.RunStatusSucceeded, Outputs: outputs})
}

// AnswerNode assembles a text answer from a template referencing
// variable selectors, e.g. "Result: {{#llm.text#}}".
type AnswerNode struct {
	baseNode
	template     string
	runtimeState *domainexec.GraphRuntimeState
}

// NewAnswerNode is the (answer, "1") constructor.
func NewAnswerNode(params domainexec.ConstructorParams) (domainexec.Node, error) {
	template, _ := params.Config["template"].(string)
	return &AnswerNode{
		baseNode:     newBaseNode(params, domainexec.NodeTypeAnswer),
		template:     template,
		runtimeState: params.RuntimeState,
	}, nil
}

func (n *AnswerNode) Run(ctx context.Context) <-chan domainexec.NodeEvent {
	text := renderTemplate(n.template, n.runtimeState.VariablePool)
	ch := make(chan domainexec.NodeEvent, 2)
	ch <- domainexec.RunStreamChunk{ChunkContent: text}
	ch <- domainexec.RunCompleted{Status: domainexec.RunStatusSucceeded, Outputs: map[string]any{"answer": text}}
	close(ch)
	return ch
}

// renderTemplate replaces {{#node_id.key#}} references with their
// resolved variable pool value. Illustrative only — no escaping rules
// beyond literal substring replacement.
func renderTemplate(template string, pool *domainexec.VariablePool) string {
	var sb strings.Builder
	rest := template
	for {
		start := strings.Index(rest, "{{#")
		if start < 0 {
			sb.WriteString(rest)
			break
		}
		end := strings.Index(rest[start:], "#}}")
		if end < 0 {
			sb.WriteString(rest)
			break
		}
		end += start
		sb.WriteString(rest[:start])
		selectorStr := rest[start+3 : end]
		selector := strings.Split(selectorStr, ".")
		if v, ok := pool.Get(selector); ok {
			sb.WriteString(toString(v))
		}
		rest = rest[end+3:]
	}
	return sb.String()
}

func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// ConditionNode evaluates an ordered list of named cases against the
// variable pool and reports which case matched. Downstream routing
// uses edge run_condition groups (see infrastructure/graph/condition.go)
// rather than this output directly, but the node still surfaces its
// own decision for observability.
type ConditionNode struct {
	baseNode
	cases        []conditionCase
	runtimeState *domainexec.GraphRuntimeState
}

type conditionCase struct {
	CaseID   string
	Selector []string
	Equals   any
}

// NewConditionNode is the (condition, "1") constructor.
func NewConditionNode(params domainexec.ConstructorParams) (domainexec.Node, error) {
	var cases []conditionCase
	if raw, ok := params.Config["cases"].([]any); ok {
		for _, c := range raw {
			m, ok := c.(map[string]any)
			if !ok {
				continue
			}
			caseID, _ := m["case_id"].(string)
			cases = append(cases, conditionCase{
				CaseID:   caseID,
				Selector: parseSelector(m["selector"]),
				Equals:   m["equals"],
			})
		}
	}
	return &ConditionNode{
		baseNode:     newBaseNode(params, domainexec.NodeTypeCondition),
		cases:        cases,
		runtimeState: params.RuntimeState,
	}, nil
}

func (n *ConditionNode) Run(ctx context.Context) <-chan domainexec.NodeEvent {
	selected := ""
	for _, c := range n.cases {
		v, ok := n.runtimeState.VariablePool.Get(c.Selector)
		if ok && v == c.Equals {
			selected = c.CaseID
			break
		}
	}
	return completed(domainexec.RunCompleted{
		Status:  domainexec.RunStatusSucceeded,
		Outputs: map[string]any{"selected_case": selected},
	})
}

// VariableAggregatorNode merges a declared list of variable selectors
// into a single "output" value, the last non-nil one winning.
type VariableAggregatorNode struct {
	baseNode
	selectors    [][]string
	runtimeState *domainexec.GraphRuntimeState
}

// NewVariableAggregatorNode is the (variable-aggregator, "1") constructor.
func NewVariableAggregatorNode(params domainexec.ConstructorParams) (domainexec.Node, error) {
	return &VariableAggregatorNode{
		baseNode:     newBaseNode(params, domainexec.NodeTypeVariableAggregator),
		selectors:    parseSelectors(params.Config["variables"]),
		runtimeState: params.RuntimeState,
	}, nil
}

func (n *VariableAggregatorNode) Run(ctx context.Context) <-chan domainexec.NodeEvent {
	var result any
	for _, selector := range n.selectors {
		if v, ok := n.runtimeState.VariablePool.Get(selector); ok && v != nil {
			result = v
		}
	}
	return completed(domainexec.RunCompleted{Status: domainexec.RunStatusSucceeded, Outputs: map[string]any{"output": result}})
}

// CodeNode evaluates a declarative key-copy mapping from inputs to
// outputs. A real sandboxed code-execution runtime is out of scope —
// this illustrates the uniform node contract, not an interpreter.
type CodeNode struct {
	baseNode
	assignments  map[string][]string
	runtimeState *domainexec.GraphRuntimeState
}

// NewCodeNode is the (code, "1") constructor.
func NewCodeNode(params domainexec.ConstructorParams) (domainexec.Node, error) {
	assignments := make(map[string][]string)
	if raw, ok := params.Config["outputs"].(map[string]any); ok {
		for k, v := range raw {
			assignments[k] = parseSelector(v)
		}
	}
	return &CodeNode{
		baseNode:     newBaseNode(params, domainexec.NodeTypeCode),
		assignments:  assignments,
		runtimeState: params.RuntimeState,
	}, nil
}

func (n *CodeNode) Run(ctx context.Context) <-chan domainexec.NodeEvent {
	outputs := make(map[string]any, len(n.assignments))
	keys := make([]string, 0, len(n.assignments))
	for k := range n.assignments {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if v, ok := n.runtimeState.VariablePool.Get(n.assignments[k]); ok {
			outputs[k] = v
		}
	}
	return completed(domainexec.RunCompleted{Status: domainexec.RunStatusSucceeded, Outputs: outputs})
}

func parseSelector(v any) []string {
	switch s := v.(type) {
	case []string:
		return s
	case []any:
		out := make([]string, 0, len(s))
		for _, item := range s {
			if str, ok := item.(string); ok {
				out = append(out, str)
			}
		}
		return out
	case string:
		return strings.Split(s, ".")
	default:
		return nil
	}
}

func parseSelectors(v any) [][]string {
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([][]string, 0, len(raw))
	for _, item := range raw {
		if sel := parseSelector(item); sel != nil {
			out = append(out, sel)
		}
	}
	return out
}
