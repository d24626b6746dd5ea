package schedule_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weftworks/weft/events"
	"github.com/weftworks/weft/schedule"
	"github.com/weftworks/weft/trigger"
)

type fakeDispatcher struct {
	mu        sync.Mutex
	processed []events.NodeRef
	removed   []events.NodeRef
}

func (d *fakeDispatcher) Process(_ context.Context, node events.NodeRef, _ int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.processed = append(d.processed, node)
	return nil
}

func (d *fakeDispatcher) Remove(_ context.Context, node events.NodeRef, _ int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.removed = append(d.removed, node)
	return nil
}

func newTestRunner(t *testing.T) (*schedule.Runner, *schedule.Scheduler, *fakeDispatcher) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	stream, err := trigger.NewStream(trigger.StreamOptions{Redis: rdb})
	require.NoError(t, err)
	scheduler, err := schedule.NewScheduler(schedule.SchedulerOptions{Redis: rdb, Stream: stream})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	sub, err := events.NewSubscriber(ctx, events.SubscriberOptions{Redis: rdb})
	require.NoError(t, err)
	t.Cleanup(func() { sub.Close() })

	dispatcher := &fakeDispatcher{}
	runner, err := schedule.NewRunner(schedule.RunnerOptions{
		Scheduler:  scheduler,
		Events:     sub,
		Dispatcher: dispatcher,
	})
	require.NoError(t, err)
	return runner, scheduler, dispatcher
}

func envelope(t *testing.T, kind string, payload events.WorkflowPayload) events.Envelope {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	return events.Envelope{Type: kind, Timestamp: time.Now().UTC(), Payload: body}
}

func TestHandleEventActivationInstallsTriggerNodes(t *testing.T) {
	runner, _, dispatcher := newTestRunner(t)
	ctx := context.Background()

	runner.HandleEvent(ctx, envelope(t, events.KindWorkflowActivated, events.WorkflowPayload{
		WorkflowID: 7,
		Nodes: []events.NodeRef{
			{NodeID: 1, NodeType: "trigger", NodeCategory: "scheduler"},
			{NodeID: 2, NodeType: "action", NodeCategory: "http"},
		},
	}))

	require.Len(t, dispatcher.processed, 1, "only trigger-typed nodes are installed")
	assert.EqualValues(t, 1, dispatcher.processed[0].NodeID)
	assert.Empty(t, dispatcher.removed)
}

func TestHandleEventUpdateReplaysInstall(t *testing.T) {
	runner, _, dispatcher := newTestRunner(t)
	ctx := context.Background()

	env := envelope(t, events.KindWorkflowUpdated, events.WorkflowPayload{
		WorkflowID: 7,
		Nodes:      []events.NodeRef{{NodeID: 1, NodeType: "trigger", NodeCategory: "scheduler"}},
	})
	runner.HandleEvent(ctx, env)
	runner.HandleEvent(ctx, env)

	assert.Len(t, dispatcher.processed, 2, "updates replay the install; handlers are idempotent")
}

func TestHandleEventDeletionRetractsSchedules(t *testing.T) {
	runner, scheduler, dispatcher := newTestRunner(t)
	ctx := context.Background()

	require.NoError(t, scheduler.Register(ctx, &schedule.Schedule{
		WorkflowID: 7,
		NextRun:    time.Now().UTC().Add(time.Hour),
	}))

	// Deletion events carry the workflow ID only.
	runner.HandleEvent(ctx, envelope(t, events.KindWorkflowDeleted, events.WorkflowPayload{WorkflowID: 7}))

	assert.Empty(t, dispatcher.processed)
	pending, err := scheduler.Pending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestHandleEventDeactivationCleansUpNodes(t *testing.T) {
	runner, _, dispatcher := newTestRunner(t)
	ctx := context.Background()

	runner.HandleEvent(ctx, envelope(t, events.KindWorkflowDeactivated, events.WorkflowPayload{
		WorkflowID: 7,
		Nodes:      []events.NodeRef{{NodeID: 1, NodeType: "trigger", NodeCategory: "telegram"}},
	}))

	require.Len(t, dispatcher.removed, 1)
	assert.Equal(t, "telegram", dispatcher.removed[0].NodeCategory)
}

func TestHandleEventDropsMalformedPayloads(t *testing.T) {
	runner, _, dispatcher := newTestRunner(t)
	ctx := context.Background()

	runner.HandleEvent(ctx, events.Envelope{Type: events.KindWorkflowActivated, Payload: []byte("{not json")})
	runner.HandleEvent(ctx, envelope(t, events.KindWorkflowActivated, events.WorkflowPayload{}))
	runner.HandleEvent(ctx, envelope(t, "SOMETHING_ELSE", events.WorkflowPayload{WorkflowID: 7}))

	assert.Empty(t, dispatcher.processed)
	assert.Empty(t, dispatcher.removed)
}
