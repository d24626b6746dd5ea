package trigger

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/weftworks/weft/telemetry"
)

// ServicesKey is the execution-context slot holding the worker's shared
// service handles (DB store, credential decryptor, logger). Services are
// merged by reference and must never be serialized or deep-copied.
const ServicesKey = "services"

type (
	// Executor runs one workflow invocation to completion. Implemented by
	// the DAG executor; faked in tests.
	Executor interface {
		// ExecuteWorkflow evaluates the workflow's DAG with the given
		// execution context. A nil error means the invocation completed;
		// individual node failures are contained inside the invocation and
		// do not surface here.
		ExecuteWorkflow(ctx context.Context, workflowID int64, ectx map[string]any) error
	}

	// WorkerOptions configures a trigger worker.
	WorkerOptions struct {
		// Stream is the trigger stream client. Required.
		Stream *Stream
		// Executor runs claimed invocations. Required.
		Executor Executor
		// Services holds the shared handles merged into every invocation's
		// context under ServicesKey. Members must be concurrency-safe.
		Services map[string]any
		// Consumer names this worker inside the consumer group.
		// Defaults to "worker-<uuid>".
		Consumer string
		// Count bounds how many entries one read claims. Defaults to 1.
		Count int64
		// Block bounds each consumer-group read. Defaults to 5 seconds.
		Block time.Duration
		// Logger receives worker logs. Defaults to a no-op logger.
		Logger telemetry.Logger
		// Metrics receives worker counters. Defaults to a no-op recorder.
		Metrics telemetry.Metrics
	}

	// Worker is a stateless consumer-group member: it claims trigger
	// records, hydrates the execution context with shared services, invokes
	// the executor, and acknowledges on success. Failed or unparseable
	// entries are left pending for a claim-and-retry sweeper.
	Worker struct {
		stream   *Stream
		executor Executor
		services map[string]any
		consumer string
		count    int64
		block    time.Duration
		log      telemetry.Logger
		metrics  telemetry.Metrics
	}
)

// NewWorker constructs a trigger worker. Stream and Executor are required.
func NewWorker(opts WorkerOptions) (*Worker, error) {
	if opts.Stream == nil {
		return nil, errors.New("trigger stream is required")
	}
	if opts.Executor == nil {
		return nil, errors.New("executor is required")
	}
	consumer := opts.Consumer
	if consumer == "" {
		consumer = "worker-" + uuid.NewString()
	}
	count := opts.Count
	if count <= 0 {
		count = 1
	}
	block := opts.Block
	if block <= 0 {
		block = 5 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = telemetry.NewNoopMetrics()
	}
	return &Worker{
		stream:   opts.Stream,
		executor: opts.Executor,
		services: opts.Services,
		consumer: consumer,
		count:    count,
		block:    block,
		log:      logger,
		metrics:  metrics,
	}, nil
}

// Consumer returns the worker's consumer-group member name.
func (w *Worker) Consumer() string {
	return w.consumer
}

// Run joins the consumer group and processes trigger records until ctx is
// canceled. It returns ctx.Err() on shutdown; transient read errors are
// logged and retried.
func (w *Worker) Run(ctx context.Context) error {
	if err := w.stream.EnsureGroup(ctx); err != nil {
		return err
	}
	w.log.Info(ctx, "trigger worker listening", "consumer", w.consumer)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		msgs, err := w.stream.Read(ctx, w.consumer, w.count, w.block)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			w.log.Error(ctx, "trigger stream read failed", "err", err)
			continue
		}
		for _, msg := range msgs {
			w.process(ctx, msg)
		}
	}
}

// ProcessOnce performs a single read-execute-ack pass. Used by tests and by
// deployments that drive the worker from their own loop.
func (w *Worker) ProcessOnce(ctx context.Context) (int, error) {
	if err := w.stream.EnsureGroup(ctx); err != nil {
		return 0, err
	}
	msgs, err := w.stream.Read(ctx, w.consumer, w.count, w.block)
	if err != nil {
		return 0, err
	}
	for _, msg := range msgs {
		w.process(ctx, msg)
	}
	return len(msgs), nil
}

// process executes one raw entry. Parse failures and executor errors leave
// the entry unacknowledged in the pending list.
func (w *Worker) process(ctx context.Context, msg Message) {
	rec, err := ParseRecord(msg)
	if err != nil {
		w.log.Error(ctx, "unparseable trigger record", "entry", msg.ID, "err", err)
		w.metrics.IncCounter("weft_trigger_parse_failures", 1)
		return
	}

	// Shared services ride in the context by reference; downstream code
	// shallow-shares this slot when forking contexts.
	merged := map[string]any{}
	if existing, ok := rec.Context[ServicesKey].(map[string]any); ok {
		for k, v := range existing {
			merged[k] = v
		}
	}
	for k, v := range w.services {
		merged[k] = v
	}
	rec.Context[ServicesKey] = merged

	w.log.Info(ctx, "executing workflow", "workflow_id", rec.WorkflowID, "entry", rec.ID)
	start := time.Now()
	if err := w.executor.ExecuteWorkflow(ctx, rec.WorkflowID, rec.Context); err != nil {
		w.log.Error(ctx, "workflow execution failed", "workflow_id", rec.WorkflowID, "entry", rec.ID, "err", err)
		w.metrics.IncCounter("weft_invocations_failed", 1)
		return
	}
	w.metrics.RecordTimer("weft_invocation_duration", time.Since(start))
	if err := w.stream.Ack(ctx, rec.ID); err != nil {
		// The invocation succeeded; a failed ack means the entry may be
		// redelivered. Acceptable under at-least-once.
		w.log.Error(ctx, "ack failed", "entry", rec.ID, "err", err)
		return
	}
	w.metrics.IncCounter("weft_invocations_acked", 1)
	w.log.Info(ctx, "workflow done", "workflow_id", rec.WorkflowID, "entry", rec.ID)
}

// StripServices returns a copy of the execution context without the services
// slot, safe for JSON serialization onto the trigger stream.
func StripServices(ectx map[string]any) map[string]any {
	out := make(map[string]any, len(ectx))
	for k, v := range ectx {
		if k == ServicesKey {
			continue
		}
		out[k] = v
	}
	return out
}
