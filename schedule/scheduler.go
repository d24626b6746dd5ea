package schedule

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/weftworks/weft/telemetry"
	"github.com/weftworks/weft/trigger"
)

// SetKey is the sorted set holding pending schedules, scored by fire time.
const SetKey = "workflow_schedules_zset"

type (
	// SchedulerOptions configures a scheduler.
	SchedulerOptions struct {
		// Redis is the connection backing the ordered set. Required.
		Redis *redis.Client
		// Stream is the trigger stream drained schedules fire onto. Required.
		Stream *trigger.Stream
		// Key overrides the sorted-set key. Defaults to SetKey.
		Key string
		// Logger receives scheduler logs. Defaults to a no-op logger.
		Logger telemetry.Logger
		// Metrics receives scheduler counters. Defaults to a no-op recorder.
		Metrics telemetry.Metrics
	}

	// Scheduler owns the time-ordered set of pending fire-times. Register
	// and Remove mutate the set in response to lifecycle events; Drain moves
	// due entries onto the trigger stream. The set is exclusive to one
	// active scheduler; multi-replica deployments serialize Drain through
	// the runner's distributed ticker.
	Scheduler struct {
		rdb     *redis.Client
		stream  *trigger.Stream
		key     string
		log     telemetry.Logger
		metrics telemetry.Metrics
	}
)

// NewScheduler constructs a scheduler. Redis and Stream are required.
func NewScheduler(opts SchedulerOptions) (*Scheduler, error) {
	if opts.Redis == nil {
		return nil, errors.New("redis client is required")
	}
	if opts.Stream == nil {
		return nil, errors.New("trigger stream is required")
	}
	key := opts.Key
	if key == "" {
		key = SetKey
	}
	logger := opts.Logger
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = telemetry.NewNoopMetrics()
	}
	return &Scheduler{rdb: opts.Redis, stream: opts.Stream, key: key, log: logger, metrics: metrics}, nil
}

// Register installs a schedule, replacing any prior schedules for the same
// workflow. Updating a schedule is remove-then-insert, so N identical
// updates leave exactly one member in the set.
func (s *Scheduler) Register(ctx context.Context, sched *Schedule) error {
	if err := s.Remove(ctx, sched.WorkflowID); err != nil {
		return err
	}
	payload, err := sched.Marshal()
	if err != nil {
		return err
	}
	if err := s.rdb.ZAdd(ctx, s.key, redis.Z{Score: sched.Score(), Member: payload}).Err(); err != nil {
		return fmt.Errorf("register schedule for workflow %d: %w", sched.WorkflowID, err)
	}
	s.log.Info(ctx, "registered schedule", "workflow_id", sched.WorkflowID, "next_run", sched.NextRun)
	return nil
}

// Remove deletes every member whose payload belongs to the given workflow.
// A linear scan over the set; acceptable at the expected cardinalities.
func (s *Scheduler) Remove(ctx context.Context, workflowID int64) error {
	members, err := s.rdb.ZRange(ctx, s.key, 0, -1).Result()
	if err != nil {
		return fmt.Errorf("scan schedules: %w", err)
	}
	for _, raw := range members {
		sched, err := Unmarshal(raw)
		if err != nil {
			s.log.Warn(ctx, "skipping unparseable schedule member", "err", err)
			continue
		}
		if sched.WorkflowID != workflowID {
			continue
		}
		if err := s.rdb.ZRem(ctx, s.key, raw).Err(); err != nil {
			return fmt.Errorf("remove schedule for workflow %d: %w", workflowID, err)
		}
		s.log.Info(ctx, "removed schedule", "workflow_id", workflowID)
	}
	return nil
}

// Drain fires every schedule due at the given instant: each due member is
// emitted as a trigger record, removed from the set, and reinserted at its
// next fire time unless a termination predicate retires it. Returns the
// number of records emitted.
//
// Duplicate-fire safety: the emit happens before the removal, so a crash in
// between yields an extra firing, never a lost one (at-least-once). When a
// concurrent drain already removed the member, ZRem reports zero removals
// and the bookkeeping (reinsert) is skipped, so the set never accumulates
// duplicate members for one schedule.
func (s *Scheduler) Drain(ctx context.Context, now time.Time) (int, error) {
	start := time.Now()
	max := strconv.FormatFloat(float64(now.UTC().UnixNano())/float64(time.Second), 'f', -1, 64)
	due, err := s.rdb.ZRangeByScore(ctx, s.key, &redis.ZRangeBy{Min: "0", Max: max}).Result()
	if err != nil {
		return 0, fmt.Errorf("range due schedules: %w", err)
	}

	fired := 0
	for _, raw := range due {
		sched, err := Unmarshal(raw)
		if err != nil {
			// A malformed member can never fire; drop it instead of
			// rescanning it every tick.
			s.log.Error(ctx, "dropping unparseable schedule member", "err", err)
			_ = s.rdb.ZRem(ctx, s.key, raw).Err()
			continue
		}

		if _, err := s.stream.Add(ctx, sched.WorkflowID, sched.Context); err != nil {
			// Leave the member in place; next tick retries the emit.
			s.log.Error(ctx, "trigger emit failed", "workflow_id", sched.WorkflowID, "err", err)
			continue
		}
		fired++
		s.metrics.IncCounter("weft_schedules_fired", 1)
		s.log.Info(ctx, "triggered workflow", "workflow_id", sched.WorkflowID)

		removed, err := s.rdb.ZRem(ctx, s.key, raw).Result()
		if err != nil {
			s.log.Error(ctx, "schedule removal failed after emit", "workflow_id", sched.WorkflowID, "err", err)
			continue
		}
		if removed == 0 {
			// Another drain already advanced this member.
			continue
		}

		if stop := sched.Fired(now); stop {
			s.log.Info(ctx, "schedule retired", "workflow_id", sched.WorkflowID, "occurrences", sched.Occurrences)
			continue
		}
		payload, err := sched.Marshal()
		if err != nil {
			s.log.Error(ctx, "schedule reinsert marshal failed", "workflow_id", sched.WorkflowID, "err", err)
			continue
		}
		if err := s.rdb.ZAdd(ctx, s.key, redis.Z{Score: sched.Score(), Member: payload}).Err(); err != nil {
			s.log.Error(ctx, "schedule reinsert failed", "workflow_id", sched.WorkflowID, "err", err)
		}
	}
	s.metrics.RecordTimer("weft_drain_duration", time.Since(start))
	return fired, nil
}

// Pending returns the decoded members currently in the set, ordered by fire
// time. Primarily a test and operations helper.
func (s *Scheduler) Pending(ctx context.Context) ([]*Schedule, error) {
	members, err := s.rdb.ZRange(ctx, s.key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("scan schedules: %w", err)
	}
	out := make([]*Schedule, 0, len(members))
	for _, raw := range members {
		sched, err := Unmarshal(raw)
		if err != nil {
			continue
		}
		out = append(out, sched)
	}
	return out, nil
}
