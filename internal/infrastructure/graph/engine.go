package graph

import (
	"context"
	"fmt"
	"time"

	domainexec "github.com/duragraph/duragraph/internal/domain/execution"
	"github.com/duragraph/duragraph/internal/domain/workflow"
	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel/trace"
)

// Limits bounds a single run's resource consumption.
type Limits struct {
	MaxExecutionSteps int
	MaxExecutionTime  time.Duration
	MaxWorkers        int
	MaxSubmitCount    int
}

// DefaultLimits returns a conservative built-in ceiling. The server
// does not use it; cmd/server builds Limits from its engine config.
func DefaultLimits() Limits {
	return Limits{
		MaxExecutionSteps: 500,
		MaxExecutionTime:  10 * time.Minute,
		MaxWorkers:        10,
		MaxSubmitCount:    100,
	}
}

// Engine drives a single Graph from its root node to a terminal end
// node (or graph-fatal failure), emitting a lazy GraphEngineEvent
// sequence. One Engine instance is reused across runs; per-run state
// lives in the GraphRuntimeState and a per-run WorkerPool.
type Engine struct {
	registry   *domainexec.Registry
	conditions *ConditionManager
	pools      *PoolRegistry
	limits     Limits
	carveCache *CarveCache
	telemetry  *Telemetry
}

// NewEngine wires a registry of node constructors, a condition
// evaluator, and worker-pool limits into a driver.
func NewEngine(registry *domainexec.Registry, limits Limits) *Engine {
	return &Engine{
		registry:   registry,
		conditions: NewConditionManager(),
		pools:      NewPoolRegistry(limits.MaxWorkers, limits.MaxSubmitCount),
		limits:     limits,
	}
}

// WithCarveCache attaches a redis-backed cache for iteration/loop
// sub-graph carving. Optional; a nil cache (the zero value of Engine)
// leaves every carve uncached.
func (e *Engine) WithCarveCache(cache *CarveCache) *Engine {
	e.carveCache = cache
	return e
}

// WithTelemetry attaches span/metric recording to every node run.
// Optional; without it the engine runs with no tracing or metrics
// overhead.
func (e *Engine) WithTelemetry(t *Telemetry) *Engine {
	e.telemetry = t
	return e
}

// StartPoolCleanup schedules periodic reclamation of any per-run
// worker pool left behind by a run that never reached its own
// cleanup. See PoolRegistry.StartCleanup.
func (e *Engine) StartPoolCleanup(schedule string, maxAge time.Duration) (*cron.Cron, error) {
	return e.pools.StartCleanup(schedule, maxAge)
}

// RunInput carries everything a single graph run needs beyond the
// graph document itself.
type RunInput struct {
	RunID               string
	UserID              string
	AppID               string
	WorkflowID          string
	WorkflowExecutionID string
	InvokeFrom          string
	Inputs              map[string]any
	SystemValues        map[string]any
	EnvironmentValues   map[string]any
}

// Run starts the graph and returns a channel of events. The channel is
// closed after the terminal GraphRun* event. The driver itself runs on
// its own goroutine; callers should drain the channel promptly so a
// slow consumer doesn't stall node execution (node events are sent
// synchronously as they're produced).
func (e *Engine) Run(ctx context.Context, g *workflow.Graph, in RunInput) <-chan domainexec.GraphEngineEvent {
	out := make(chan domainexec.GraphEngineEvent, 16)
	go e.drive(ctx, g, in, out)
	return out
}

func (e *Engine) drive(ctx context.Context, g *workflow.Graph, in RunInput, out chan<- domainexec.GraphEngineEvent) {
	defer close(out)
	defer e.pools.Release(in.RunID)

	rt := domainexec.NewGraphRuntimeState()
	rt.VariablePool.SeedSystem(in.SystemValues)
	rt.VariablePool.SeedEnvironment(in.EnvironmentValues)
	rt.VariablePool.Add([]string{domainexec.NamespaceSystem, domainexec.SysUserID}, in.UserID)
	rt.VariablePool.Add([]string{domainexec.NamespaceSystem, domainexec.SysAppID}, in.AppID)
	rt.VariablePool.Add([]string{domainexec.NamespaceSystem, domainexec.SysWorkflowID}, in.WorkflowID)
	rt.VariablePool.Add([]string{domainexec.NamespaceSystem, domainexec.SysWorkflowExecutionID}, in.WorkflowExecutionID)

	out <- domainexec.NewGraphRunStarted(in.RunID)

	initParams := domainexec.GraphInitParams{
		UserID:              in.UserID,
		AppID:               in.AppID,
		WorkflowID:          in.WorkflowID,
		WorkflowExecutionID: in.WorkflowExecutionID,
		InvokeFrom:          in.InvokeFrom,
	}

	rootNode, ok := g.NodeByID(g.RootNodeID())
	if !ok {
		out <- domainexec.NewGraphRunFailed(in.RunID, "root node not found: "+g.RootNodeID(), 0)
		return
	}
	for _, n := range g.Nodes() {
		if n.Type == workflow.NodeTypeIteration || n.Type == workflow.NodeTypeLoop {
			continue
		}
		if _, err := e.registry.Lookup(n.Type, n.Version); err != nil {
			out <- domainexec.NewGraphRunFailed(in.RunID, fmt.Sprintf("graph: node %s: %s", n.ID, err.Error()), 0)
			return
		}
	}
	rootConfig := mergeConfig(rootNode.Config, map[string]any{"inputs": in.Inputs})

	exceptionsCount := 0
	reached, finalOutputs, err := e.runFrom(ctx, g, in.RunID, rootNode.ID, rootConfig, "", domainexec.ParallelContext{}, initParams, rt, out, &exceptionsCount)

	switch {
	case err != nil:
		out <- domainexec.NewGraphRunFailed(in.RunID, err.Error(), exceptionsCount)
	case reached:
		if exceptionsCount > 0 {
			out <- domainexec.NewGraphRunPartialSucceeded(in.RunID, finalOutputs, exceptionsCount)
		} else {
			out <- domainexec.NewGraphRunSucceeded(in.RunID, finalOutputs)
		}
	default:
		out <- domainexec.NewGraphRunFailed(in.RunID, "execution path ended without reaching an end node", exceptionsCount)
	}
}

// runFrom walks the graph sequentially starting at nodeID, dispatching
// parallel regions through the worker pool as it encounters multi-edge
// fan-outs, until it reaches an end-type node (reached=true), a dead
// end with no passing outgoing edges (reached=false, nil error), or a
// graph-fatal error.
func (e *Engine) runFrom(
	ctx context.Context,
	g *workflow.Graph,
	runID string,
	nodeID string,
	firstNodeConfig map[string]any,
	predecessorNodeID string,
	pc domainexec.ParallelContext,
	initParams domainexec.GraphInitParams,
	rt *domainexec.GraphRuntimeState,
	out chan<- domainexec.GraphEngineEvent,
	exceptionsCount *int,
) (bool, map[string]any, error) {
	var previousRouteState *domainexec.RouteNodeState
	configOverride := firstNodeConfig

	for {
		if rt.Steps() >= e.limits.MaxExecutionSteps {
			return false, nil, fmt.Errorf("graph: max execution steps (%d) exceeded", e.limits.MaxExecutionSteps)
		}
		if time.Since(rt.StartAt) > e.limits.MaxExecutionTime {
			return false, nil, fmt.Errorf("graph: max execution time (%s) exceeded", e.limits.MaxExecutionTime)
		}
		select {
		case <-ctx.Done():
			return false, nil, ctx.Err()
		default:
		}
		step := rt.NextStep()

		node, ok := g.NodeByID(nodeID)
		if !ok {
			return false, nil, fmt.Errorf("graph: node not found: %s", nodeID)
		}
		cfg := node.Config
		if configOverride != nil {
			cfg = configOverride
			configOverride = nil
		}

		var instance domainexec.Node
		var err error
		switch node.Type {
		case workflow.NodeTypeIteration, workflow.NodeTypeLoop:
			instance, err = e.buildContainerNode(ctx, g, node, cfg, runID, pc, initParams, rt, out, exceptionsCount)
		default:
			instance, err = e.registry.Build(node.Type, node.Version, domainexec.ConstructorParams{
				NodeID:          node.ID,
				Config:          cfg,
				GraphInitParams: initParams,
				RuntimeState:    rt,
				PreviousNodeID:  predecessorNodeID,
			})
		}
		if err != nil {
			return false, nil, fmt.Errorf("graph: building node %s: %w", node.ID, err)
		}

		routeState := domainexec.NewRouteNodeState(node.ID)
		routeState.Index = step
		out <- domainexec.NewNodeRunStarted(runID, routeState.StateID, node.ID, node.Type, routeState.StateID, predecessorNodeID, pc)

		result := e.executeNode(ctx, runID, instance, pc, out)
		routeState.SetFinished(result)
		rt.RecordRoute(previousRouteState, routeState)

		if result.Status == domainexec.RunStatusFailed {
			if instance.ContinueOnError() {
				*exceptionsCount++
				out <- domainexec.NewNodeRunException(runID, node.ID, node.Type, routeState.StateID, result.Error, pc)
				result = applyErrorStrategy(instance, result)
				routeState.NodeRunResult = result
			} else {
				out <- domainexec.NewNodeRunFailed(runID, node.ID, node.Type, routeState.StateID, result.Error, pc)
				return false, nil, fmt.Errorf("graph: node %s failed: %s", node.ID, result.Error)
			}
		} else {
			if instance.ContinueOnError() && instance.ErrorStrategy() == domainexec.ErrorStrategyFailBranch && len(g.OutgoingEdges(node.ID)) > 0 {
				result.EdgeSourceHandle = domainexec.EdgeHandleSuccess
			}
			out <- domainexec.NewNodeRunSucceeded(runID, node.ID, node.Type, routeState.StateID, result.Outputs, result.Metadata, pc)
		}

		for k, v := range result.Outputs {
			rt.VariablePool.AppendVariablesRecursively(node.ID, []string{k}, v)
		}
		if result.LLMUsage != nil {
			rt.MergeLLMUsage(result.LLMUsage)
		}

		if node.Type == workflow.NodeTypeEnd {
			rt.SetOutputs(result.Outputs)
			return true, rt.SnapshotOutputs(), nil
		}

		edges := g.OutgoingEdges(node.ID)
		if len(edges) == 0 {
			return false, nil, nil
		}

		targets, err := e.selectTargets(edges, rt.VariablePool, routeState)
		if err != nil {
			return false, nil, err
		}
		if len(targets) == 0 {
			return false, nil, nil
		}

		if len(targets) == 1 {
			next := targets[0]
			if pc.InParallel() && g.ParallelIDFor(next) != pc.ParallelID {
				return false, nil, nil
			}
			predecessorNodeID = node.ID
			nodeID = next
			previousRouteState = routeState
			continue
		}

		regionID := g.ParallelIDFor(targets[0])
		region, _ := g.RegionByID(regionID)
		branchPC := domainexec.ParallelContext{
			ParallelID:                regionID,
			ParallelStartNodeID:       node.ID,
			ParentParallelID:          pc.ParallelID,
			ParentParallelStartNodeID: pc.ParallelStartNodeID,
		}

		fns := make([]func(context.Context) error, len(targets))
		branchReached := make([]bool, len(targets))
		for i, target := range targets {
			i, target := i, target
			fns[i] = func(branchCtx context.Context) error {
				out <- domainexec.NewParallelBranchRunStarted(runID, branchPC)
				reached, _, branchErr := e.runFrom(branchCtx, g, runID, target, nil, node.ID, branchPC, initParams, rt, out, exceptionsCount)
				branchReached[i] = reached
				if branchErr != nil {
					out <- domainexec.NewParallelBranchRunFailed(runID, branchErr.Error(), branchPC)
					return branchErr
				}
				out <- domainexec.NewParallelBranchRunSucceeded(runID, branchPC)
				return nil
			}
		}

		pool := e.pools.PoolFor(runID)
		if err := pool.RunGroup(ctx, fns); err != nil {
			return false, nil, fmt.Errorf("graph: parallel region %s failed: %w", regionID, err)
		}

		if region.EndNodeID == "" {
			for _, ok := range branchReached {
				if !ok {
					return false, nil, nil
				}
			}
			return true, rt.SnapshotOutputs(), nil
		}
		predecessorNodeID = node.ID
		nodeID = region.EndNodeID
		previousRouteState = routeState
	}
}

// executeNode drains a node's event channel, forwarding stream and
// retriever events immediately, retrying on failure up to its declared
// retry policy, and returning the final RunCompleted.
func (e *Engine) executeNode(ctx context.Context, runID string, node domainexec.Node, pc domainexec.ParallelContext, out chan<- domainexec.GraphEngineEvent) *domainexec.RunCompleted {
	retry := node.Retry()
	attempt := 0
	var final *domainexec.RunCompleted

	nodeType := string(node.Type())
	var span trace.Span
	started := time.Now()
	if e.telemetry != nil {
		ctx, span = e.telemetry.StartNodeSpan(ctx, runID, node.NodeID(), nodeType)
	}
	defer func() {
		if e.telemetry == nil {
			return
		}
		status := string(domainexec.RunStatusSucceeded)
		errMsg := ""
		if final != nil {
			status = string(final.Status)
			if final.Status == domainexec.RunStatusFailed {
				errMsg = final.Error
			}
		}
		e.telemetry.EndNodeSpan(span, nodeType, started, status, errMsg)
	}()

	for {
		for ev := range node.Run(ctx) {
			switch v := ev.(type) {
			case domainexec.RunStreamChunk:
				out <- domainexec.NewNodeRunStreamChunk(runID, node.NodeID(), v.ChunkContent, v.FromVariableSelector, pc)
			case domainexec.RunRetrieverResource:
				out <- domainexec.NewNodeRunRetrieverResource(runID, node.NodeID(), v.RetrieverResources, pc)
			case domainexec.RunCompleted:
				r := v
				final = &r
			}
		}
		if final == nil {
			final = &domainexec.RunCompleted{Status: domainexec.RunStatusFailed, Error: "node produced no terminal result"}
		}
		if final.Status == domainexec.RunStatusSucceeded || attempt >= retry.MaxRetries {
			return final
		}
		attempt++
		out <- domainexec.NewNodeRunRetry(runID, node.NodeID(), node.Type(), "", attempt, final.Error, pc)
		if retry.RetryIntervalSeconds > 0 {
			select {
			case <-ctx.Done():
				return final
			case <-time.After(time.Duration(retry.RetryIntervalSeconds * float64(time.Second))):
			}
		}
	}
}

func applyErrorStrategy(node domainexec.Node, result *domainexec.RunCompleted) *domainexec.RunCompleted {
	switch node.ErrorStrategy() {
	case domainexec.ErrorStrategyDefaultValue:
		return &domainexec.RunCompleted{Status: domainexec.RunStatusSucceeded, Outputs: node.DefaultValue()}
	case domainexec.ErrorStrategyFailBranch:
		return &domainexec.RunCompleted{Status: domainexec.RunStatusSucceeded, Outputs: result.Outputs, EdgeSourceHandle: domainexec.EdgeHandleFailed}
	default:
		return &domainexec.RunCompleted{Status: domainexec.RunStatusSucceeded, Outputs: result.Outputs}
	}
}

func (e *Engine) selectTargets(edges []workflow.Edge, pool *domainexec.VariablePool, source *domainexec.RouteNodeState) ([]string, error) {
	groups := GroupEdgesByCondition(edges)
	var targets []string
	for _, group := range groups {
		ok, err := e.conditions.Evaluate(group[0].RunCondition, pool, source)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		for _, edge := range group {
			targets = append(targets, edge.Target)
		}
	}
	return targets, nil
}

func mergeConfig(base map[string]any, overrides map[string]any) map[string]any {
	merged := make(map[string]any, len(base)+len(overrides))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range overrides {
		merged[k] = v
	}
	return merged
}

// buildContainerNode carves the member sub-graph of an iteration/loop
// node and wraps it in a containerNode whose single RunCompleted
// summarizes however many nested walks it performed. Per-member node
// events (NodeRunStarted/Succeeded/...) are emitted exactly as for any
// other node, since the nested walk goes back through runFrom; the
// Iteration/LoopRun* events layered on top carry the per-step progress
// a plain node-run sequence wouldn't show.
func (e *Engine) buildContainerNode(
	ctx context.Context,
	g *workflow.Graph,
	node workflow.Node,
	cfg map[string]any,
	runID string,
	pc domainexec.ParallelContext,
	initParams domainexec.GraphInitParams,
	rt *domainexec.GraphRuntimeState,
	out chan<- domainexec.GraphEngineEvent,
	exceptionsCount *int,
) (domainexec.Node, error) {
	var sub *workflow.Graph
	var err error
	if e.carveCache != nil {
		sub, err = e.carveCache.Carve(ctx, g, g.AssistantID(), node.ID)
	} else {
		sub, err = Carve(g, g.AssistantID(), node.ID)
	}
	if err != nil {
		return nil, err
	}

	itemVar, _ := cfg["item_variable_name"].(string)
	if itemVar == "" {
		itemVar = "item"
	}
	indexVar, _ := cfg["index_variable_name"].(string)
	if indexVar == "" {
		indexVar = "index"
	}
	outputSelector := parseConfigSelector(cfg["output_selector"])
	outputKey := "value"

	runMember := func(ctx context.Context, index int) (map[string]any, error) {
		// The carved root is the container itself, so the walk starts at
		// its member entry nodes rather than re-entering the container.
		for _, edge := range sub.OutgoingEdges(node.ID) {
			reached, _, err := e.runFrom(ctx, sub, runID, edge.Target, nil, node.ID, pc, initParams, rt, out, exceptionsCount)
			_ = reached // member sub-graphs have no end node; a clean dead end is expected
			if err != nil {
				return nil, err
			}
		}
		value, _ := rt.VariablePool.Get(outputSelector)
		return map[string]any{outputKey: value}, nil
	}

	switch node.Type {
	case workflow.NodeTypeIteration:
		iteratorSelector := parseConfigSelector(cfg["iterator_selector"])
		return &containerNode{
			node: node,
			kind: workflow.NodeTypeIteration,
			onStart: func() {
				out <- domainexec.NewIterationRunStarted(runID, node.ID, map[string]any{"iterator_selector": iteratorSelector}, pc)
			},
			onSucceed: func(outputs map[string]any, _ int) {
				out <- domainexec.NewIterationRunSucceeded(runID, node.ID, outputs, rt.Steps(), pc)
			},
			iterate: func() ([]any, error) {
				raw, ok := rt.VariablePool.Get(iteratorSelector)
				if !ok {
					return nil, fmt.Errorf("graph: iteration %s: iterator_selector resolved nothing", node.ID)
				}
				items, ok := raw.([]any)
				if !ok {
					return nil, fmt.Errorf("graph: iteration %s: iterator_selector did not resolve to a list", node.ID)
				}
				return items, nil
			},
			run: func(ctx context.Context, index int) (map[string]any, error) {
				items, _ := rt.VariablePool.Get(iteratorSelector)
				list, _ := items.([]any)
				var item any
				if index < len(list) {
					item = list[index]
				}
				rt.VariablePool.Add([]string{node.ID, itemVar}, item)
				rt.VariablePool.Add([]string{node.ID, indexVar}, index)
				out <- domainexec.NewIterationRunNext(runID, node.ID, index, rt.Steps(), pc)
				result, err := runMember(ctx, index)
				if err != nil {
					out <- domainexec.NewIterationRunFailed(runID, node.ID, err.Error(), index, pc)
					return nil, err
				}
				return result, nil
			},
			outputKey: outputKey,
		}, nil

	default: // NodeTypeLoop
		maxLoops := defaultMaxLoopCount
		if v, ok := cfg["max_loop_count"].(int); ok && v > 0 {
			maxLoops = v
		} else if v, ok := cfg["max_loop_count"].(float64); ok && v > 0 {
			maxLoops = int(v)
		}
		breakCond := parseBreakCondition(cfg["break_condition"])
		conditions := NewConditionManager()

		return &containerNode{
			node: node,
			kind: workflow.NodeTypeLoop,
			onStart: func() {
				out <- domainexec.NewLoopRunStarted(runID, node.ID, nil, pc)
			},
			onSucceed: func(outputs map[string]any, _ int) {
				out <- domainexec.NewLoopRunSucceeded(runID, node.ID, outputs, rt.Steps(), pc)
			},
			loopUntil: func() (bool, error) {
				if breakCond == nil {
					return false, nil
				}
				ok, err := conditions.Evaluate(breakCond, rt.VariablePool, nil)
				return ok, err
			},
			run: func(ctx context.Context, index int) (map[string]any, error) {
				rt.VariablePool.Add([]string{node.ID, indexVar}, index)
				out <- domainexec.NewLoopRunNext(runID, node.ID, index, rt.Steps(), pc)
				result, err := runMember(ctx, index)
				if err != nil {
					out <- domainexec.NewLoopRunFailed(runID, node.ID, err.Error(), index, pc)
					return nil, err
				}
				return result, nil
			},
			outputKey: outputKey,
			maxLoops:  maxLoops,
		}, nil
	}
}

func parseConfigSelector(v any) []string {
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
	default:
		return nil
	}
}

func parseBreakCondition(v any) *workflow.RunCondition {
	m, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	kind, _ := m["kind"].(string)
	if kind == "" {
		return nil
	}
	payload, _ := m["payload"].(map[string]any)
	return &workflow.RunCondition{Kind: kind, Payload: payload}
}
