package handlers

import (
	"context"
	"time"

	"github.com/weftworks/weft/events"
	"github.com/weftworks/weft/schedule"
)

// CategoryScheduler is the trigger category served by SchedulerHandler.
const CategoryScheduler = "scheduler"

// SchedulerHandler installs scheduler trigger nodes as durable schedule
// entries. Handle derives the schedule from the node's configuration and
// registers it; because registration replaces any prior schedule for the
// workflow, replayed activations and updates converge on one entry.
type SchedulerHandler struct {
	scheduler *schedule.Scheduler
	now       func() time.Time
}

var _ Handler = (*SchedulerHandler)(nil)

// NewSchedulerHandler wraps a scheduler as a trigger handler.
func NewSchedulerHandler(s *schedule.Scheduler) *SchedulerHandler {
	return &SchedulerHandler{scheduler: s, now: time.Now}
}

// Handle registers the node's schedule, first run at now plus the configured
// delay.
func (h *SchedulerHandler) Handle(ctx context.Context, node events.NodeRef, workflowID int64) error {
	sched := schedule.FromConfig(workflowID, node.CustomConfig, h.now())
	return h.scheduler.Register(ctx, sched)
}

// Cleanup retracts the workflow's schedules.
func (h *SchedulerHandler) Cleanup(ctx context.Context, _ events.NodeRef, workflowID int64) error {
	return h.scheduler.Remove(ctx, workflowID)
}
