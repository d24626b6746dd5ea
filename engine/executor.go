package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/weftworks/weft/telemetry"
	"github.com/weftworks/weft/workflow"
	"github.com/weftworks/weft/workflow/store"
)

// DefaultParallelism is the executor's default worker budget per invocation.
const DefaultParallelism = 8

type (
	// Options configures an executor.
	Options struct {
		// Store loads workflow nodes and connections. Required.
		Store store.Store
		// Registry resolves node categories to action handlers. Required.
		Registry *Registry
		// Parallelism bounds concurrent node execution per invocation.
		// Defaults to DefaultParallelism.
		Parallelism int
		// Logger receives executor logs. Defaults to a no-op logger.
		Logger telemetry.Logger
		// Metrics receives executor counters. Defaults to a no-op recorder.
		Metrics telemetry.Metrics
	}

	// Executor evaluates workflow DAGs. One Executor serves many concurrent
	// invocations; all per-invocation state lives in the invocation value.
	Executor struct {
		store       store.Store
		registry    *Registry
		parallelism int
		log         telemetry.Logger
		metrics     telemetry.Metrics
	}

	// invocation is the per-run state: the graph under evaluation, the
	// shared completion map guarded by one mutex, and the join counters.
	invocation struct {
		workflowID int64
		graph      *workflow.Graph
		pool       *workerPool

		mu sync.Mutex
		// results is the completion map: node ID to produced result. A
		// node's entry is written exactly once, after its run completes;
		// failed nodes never appear.
		results map[int64]any
		// remaining counts each node's parents that have not yet committed
		// a result. The parent that decrements a counter to zero submits
		// the child; nodes whose counter never reaches zero are starved.
		remaining map[int64]int
	}
)

// New constructs an executor. Store and Registry are required.
func New(opts Options) (*Executor, error) {
	if opts.Store == nil {
		return nil, errors.New("workflow store is required")
	}
	if opts.Registry == nil {
		return nil, errors.New("action registry is required")
	}
	parallelism := opts.Parallelism
	if parallelism <= 0 {
		parallelism = DefaultParallelism
	}
	logger := opts.Logger
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = telemetry.NewNoopMetrics()
	}
	return &Executor{
		store:       opts.Store,
		registry:    opts.Registry,
		parallelism: parallelism,
		log:         logger,
		metrics:     metrics,
	}, nil
}

// ExecuteWorkflow loads the workflow's graph and evaluates it to completion.
// Node failures are contained: the failed node's descendants never run,
// sibling branches proceed, and the invocation still returns nil. Only load
// and graph construction errors surface to the caller.
func (e *Executor) ExecuteWorkflow(ctx context.Context, workflowID int64, ectx map[string]any) error {
	nodes, err := e.store.ListNodes(ctx, workflowID)
	if err != nil {
		return fmt.Errorf("load nodes for workflow %d: %w", workflowID, err)
	}
	conns, err := e.store.ListConnections(ctx, workflowID)
	if err != nil {
		return fmt.Errorf("load connections for workflow %d: %w", workflowID, err)
	}
	graph, err := workflow.NewGraph(nodes, conns)
	if err != nil {
		return fmt.Errorf("build graph for workflow %d: %w", workflowID, err)
	}
	if len(graph.Nodes) == 0 {
		e.log.Warn(ctx, "workflow has no nodes", "workflow_id", workflowID)
		return nil
	}

	inv := &invocation{
		workflowID: workflowID,
		graph:      graph,
		pool:       newWorkerPool(e.parallelism),
		results:    make(map[int64]any, len(graph.Nodes)),
		remaining:  make(map[int64]int, len(graph.Nodes)),
	}
	for id := range graph.Nodes {
		inv.remaining[id] = len(graph.Parents(id))
	}

	e.log.Info(ctx, "workflow execution started", "workflow_id", workflowID,
		"nodes", len(graph.Nodes), "roots", len(graph.Roots))
	start := time.Now()

	if ectx == nil {
		ectx = map[string]any{}
	}
	for _, rootID := range graph.Roots {
		root := graph.Nodes[rootID]
		rctx := cloneContext(ectx)
		inv.pool.Submit(func() { e.runNode(ctx, inv, root, rctx) })
	}
	inv.pool.Wait()

	e.metrics.RecordTimer("weft_workflow_duration", time.Since(start))
	e.log.Info(ctx, "workflow execution completed", "workflow_id", workflowID,
		"completed", inv.completedCount())
	return nil
}

// runNode evaluates one node: enhances the context with parent results, runs
// the action (or takes the trigger fast-path), commits the result to the
// completion map, and submits children whose join barrier is now satisfied.
func (e *Executor) runNode(ctx context.Context, inv *invocation, n *workflow.Node, ectx map[string]any) {
	enhanced := e.enhance(inv, n, ectx)

	var result any
	if n.IsTrigger() {
		// Trigger nodes start executions; they never run an action.
		result = map[string]any{"trigger_completed": true}
	} else {
		handler, err := e.registry.Get(n.Definition.Category)
		if err != nil {
			// Same containment as a handler failure: no result, children starve.
			e.log.Error(ctx, "node dispatch failed", "workflow_id", inv.workflowID, "node", n.ID, "err", err)
			e.metrics.IncCounter("weft_node_failures", 1, "category", n.Definition.Category)
			return
		}
		resolved := ResolveConfig(n.CustomConfig, enhanced)
		start := time.Now()
		result, err = handler.Run(ctx, resolved, enhanced)
		e.metrics.RecordTimer("weft_node_duration", time.Since(start), "category", n.Definition.Category)
		if err != nil {
			e.log.Error(ctx, "node execution failed", "workflow_id", inv.workflowID, "node", n.ID,
				"category", n.Definition.Category, "err", err)
			e.metrics.IncCounter("weft_node_failures", 1, "category", n.Definition.Category)
			return
		}
		e.metrics.IncCounter("weft_node_runs", 1, "category", n.Definition.Category)
	}

	inv.mu.Lock()
	inv.results[n.ID] = result
	inv.mu.Unlock()
	// Informational write-through; stripped before children see the context.
	enhanced[fmt.Sprintf("node_%d_output", n.ID)] = result

	e.log.Debug(ctx, "node finished", "workflow_id", inv.workflowID, "node", n.ID)
	e.submitChildren(ctx, inv, n, enhanced, result)
}

// enhance forks the node's context and overlays its parents' results from
// the completion map. All parents are guaranteed committed before the node
// is submitted, so the reads here never miss.
func (e *Executor) enhance(inv *invocation, n *workflow.Node, ectx map[string]any) map[string]any {
	enhanced := cloneContext(ectx)
	parents := inv.graph.Parents(n.ID)
	if len(parents) == 0 {
		return enhanced
	}

	inv.mu.Lock()
	defer inv.mu.Unlock()
	for _, p := range parents {
		enhanced[fmt.Sprintf("parent_%d_result", p)] = inv.results[p]
	}
	if len(parents) == 1 {
		enhanced[parentResultKey] = inv.results[parents[0]]
	} else {
		all := make([]any, 0, len(parents))
		for _, p := range parents {
			all = append(all, map[string]any{"parent_id": p, "result": inv.results[p]})
		}
		enhanced[allParentResultsKey] = all
	}
	return enhanced
}

// submitChildren forwards the node's result along its outgoing edges. A
// child is submitted by whichever parent decrements its join counter to
// zero; condition-gated edges that do not match never decrement, so the
// child's barrier cannot complete.
func (e *Executor) submitChildren(ctx context.Context, inv *invocation, n *workflow.Node, ectx map[string]any, result any) {
	for _, conn := range inv.graph.Children(n.ID) {
		if conn.Condition != "" && !conditionMet(conn.Condition, result) {
			e.log.Debug(ctx, "edge condition not met", "workflow_id", inv.workflowID,
				"from", conn.FromNode, "to", conn.ToNode, "condition", conn.Condition)
			continue
		}
		inv.mu.Lock()
		inv.remaining[conn.ToNode]--
		ready := inv.remaining[conn.ToNode] == 0
		inv.mu.Unlock()
		if !ready {
			continue
		}
		child := inv.graph.Nodes[conn.ToNode]
		cctx := childContext(ectx, result)
		inv.pool.Submit(func() { e.runNode(ctx, inv, child, cctx) })
	}
}

// conditionMet implements the baseline edge-condition semantic: forward only
// when the condition equals the result's "status" field and the result is a
// mapping carrying one.
func conditionMet(condition string, result any) bool {
	m, ok := result.(map[string]any)
	if !ok {
		return false
	}
	status, ok := m["status"].(string)
	if !ok {
		return false
	}
	return status == condition
}

func (inv *invocation) completedCount() int {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	return len(inv.results)
}
