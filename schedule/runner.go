package schedule

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"goa.design/pulse/pool"

	"github.com/weftworks/weft/events"
	"github.com/weftworks/weft/telemetry"
)

type (
	// NodeDispatcher routes trigger nodes to their category handlers:
	// Process installs external trigger state on activation/update, Remove
	// tears it down on deactivation/deletion. Implemented by the trigger
	// handler registry.
	NodeDispatcher interface {
		// Process performs the idempotent install side effect for a trigger
		// node (register a schedule, set a remote webhook, ...).
		Process(ctx context.Context, node events.NodeRef, workflowID int64) error
		// Remove performs the idempotent uninstall side effect.
		Remove(ctx context.Context, node events.NodeRef, workflowID int64) error
	}

	// RunnerOptions configures the scheduler runner loop.
	RunnerOptions struct {
		// Scheduler owns the ordered set. Required.
		Scheduler *Scheduler
		// Events delivers workflow lifecycle events. Required.
		Events *events.Subscriber
		// Dispatcher routes trigger nodes to category handlers. Required.
		Dispatcher NodeDispatcher
		// TickInterval is the drain cadence. Defaults to 1 second.
		TickInterval time.Duration
		// PoolNode optionally provides a Pulse pool node. When set, ticks
		// come from a distributed ticker so only one runner replica drains
		// at a time; when nil a local ticker is used and the deployment must
		// run a single scheduler replica.
		PoolNode *pool.Node
		// TickerName names the distributed ticker. Defaults to
		// "weft:scheduler:tick".
		TickerName string
		// Logger receives runner logs. Defaults to a no-op logger.
		Logger telemetry.Logger
	}

	// Runner is the scheduler's long-lived loop: it drains due schedules on
	// every tick and dispatches lifecycle events between ticks. Handler and
	// store errors are logged and never crash the loop.
	Runner struct {
		scheduler  *Scheduler
		events     *events.Subscriber
		dispatcher NodeDispatcher
		tick       time.Duration
		poolNode   *pool.Node
		tickerName string
		log        telemetry.Logger
	}
)

// NewRunner constructs a scheduler runner. Scheduler, Events and Dispatcher
// are required.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if opts.Scheduler == nil {
		return nil, errors.New("scheduler is required")
	}
	if opts.Events == nil {
		return nil, errors.New("event subscriber is required")
	}
	if opts.Dispatcher == nil {
		return nil, errors.New("node dispatcher is required")
	}
	tick := opts.TickInterval
	if tick <= 0 {
		tick = time.Second
	}
	tickerName := opts.TickerName
	if tickerName == "" {
		tickerName = "weft:scheduler:tick"
	}
	logger := opts.Logger
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	return &Runner{
		scheduler:  opts.Scheduler,
		events:     opts.Events,
		dispatcher: opts.Dispatcher,
		tick:       tick,
		poolNode:   opts.PoolNode,
		tickerName: tickerName,
		log:        logger,
	}, nil
}

// Run drains due schedules on every tick and handles lifecycle events as
// they arrive, until ctx is canceled.
func (r *Runner) Run(ctx context.Context) error {
	tickC, stop, err := r.ticks(ctx)
	if err != nil {
		return err
	}
	defer stop()

	r.log.Info(ctx, "scheduler running", "tick", r.tick.String())
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tickC:
			if _, err := r.scheduler.Drain(ctx, time.Now()); err != nil {
				// At-least-once firing: log and try again next tick.
				r.log.Error(ctx, "drain failed", "err", err)
			}
		case env, ok := <-r.events.Events():
			if !ok {
				return errors.New("event subscription closed")
			}
			r.HandleEvent(ctx, env)
		}
	}
}

// ticks returns the tick channel: a distributed Pulse ticker when a pool
// node is configured (single active scheduler across replicas), a local
// ticker otherwise.
func (r *Runner) ticks(ctx context.Context) (<-chan time.Time, func(), error) {
	if r.poolNode == nil {
		t := time.NewTicker(r.tick)
		return t.C, t.Stop, nil
	}
	ticker, err := r.poolNode.NewTicker(ctx, r.tickerName, r.tick)
	if err != nil {
		return nil, nil, err
	}
	return ticker.C, func() { ticker.Stop() }, nil
}

// HandleEvent dispatches one lifecycle event. Activation and update route
// each trigger node to its category handler; deactivation and deletion run
// handler cleanup and always retract the workflow's schedules (deletion
// payloads carry no nodes). Malformed payloads are logged and dropped.
func (r *Runner) HandleEvent(ctx context.Context, env events.Envelope) {
	var payload events.WorkflowPayload
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		r.log.Warn(ctx, "dropping malformed event payload", "kind", env.Type, "err", err)
		return
	}
	if payload.WorkflowID == 0 {
		r.log.Warn(ctx, "dropping event without workflow_id", "kind", env.Type)
		return
	}

	switch env.Type {
	case events.KindWorkflowActivated, events.KindWorkflowUpdated:
		for _, node := range payload.Nodes {
			if node.NodeType != "trigger" {
				continue
			}
			if err := r.dispatcher.Process(ctx, node, payload.WorkflowID); err != nil {
				// The workflow stays inert for this trigger; the rest of the
				// event is unaffected.
				r.log.Error(ctx, "trigger install failed", "workflow_id", payload.WorkflowID,
					"category", node.NodeCategory, "err", err)
			}
		}
	case events.KindWorkflowDeactivated, events.KindWorkflowDeleted:
		for _, node := range payload.Nodes {
			if err := r.dispatcher.Remove(ctx, node, payload.WorkflowID); err != nil {
				r.log.Error(ctx, "trigger cleanup failed", "workflow_id", payload.WorkflowID,
					"category", node.NodeCategory, "err", err)
			}
		}
		// Deletion events carry only the workflow ID; retract schedules
		// directly so the set never leaks retired workflows.
		if err := r.scheduler.Remove(ctx, payload.WorkflowID); err != nil {
			r.log.Error(ctx, "schedule retraction failed", "workflow_id", payload.WorkflowID, "err", err)
		}
	default:
		r.log.Warn(ctx, "ignoring unknown event kind", "kind", env.Type)
	}
}
