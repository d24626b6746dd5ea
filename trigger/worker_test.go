package trigger_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weftworks/weft/trigger"
)

type fakeExecutor struct {
	mu    sync.Mutex
	err   error
	calls []executorCall
}

type executorCall struct {
	WorkflowID int64
	Ectx       map[string]any
}

func (f *fakeExecutor) ExecuteWorkflow(_ context.Context, workflowID int64, ectx map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, executorCall{WorkflowID: workflowID, Ectx: ectx})
	return f.err
}

func newTestWorker(t *testing.T, exec trigger.Executor, services map[string]any) (*trigger.Worker, *trigger.Stream, *redis.Client) {
	t.Helper()
	stream, rdb := newTestStream(t)
	w, err := trigger.NewWorker(trigger.WorkerOptions{
		Stream:   stream,
		Executor: exec,
		Services: services,
		Consumer: "test-worker",
		Block:    10 * time.Millisecond,
	})
	require.NoError(t, err)
	return w, stream, rdb
}

func TestWorkerExecutesAndAcks(t *testing.T) {
	exec := &fakeExecutor{}
	marker := &struct{}{}
	w, stream, _ := newTestWorker(t, exec, map[string]any{"marker": marker})
	ctx := context.Background()

	_, err := stream.Add(ctx, 7, map[string]any{"payload": "x"})
	require.NoError(t, err)

	n, err := w.ProcessOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.Len(t, exec.calls, 1)
	call := exec.calls[0]
	assert.EqualValues(t, 7, call.WorkflowID)
	assert.Equal(t, "x", call.Ectx["payload"])

	services, ok := call.Ectx[trigger.ServicesKey].(map[string]any)
	require.True(t, ok, "workers hydrate the services slot before executing")
	assert.Same(t, marker, services["marker"])

	pending, err := stream.Pending(ctx)
	require.NoError(t, err)
	assert.Zero(t, pending, "successful invocations are acknowledged")
}

func TestWorkerLeavesFailedInvocationPending(t *testing.T) {
	exec := &fakeExecutor{err: errors.New("load failed")}
	w, stream, _ := newTestWorker(t, exec, nil)
	ctx := context.Background()

	_, err := stream.Add(ctx, 7, nil)
	require.NoError(t, err)

	_, err = w.ProcessOnce(ctx)
	require.NoError(t, err)
	require.Len(t, exec.calls, 1)

	pending, err := stream.Pending(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, pending, "failed invocations stay pending for the retry sweeper")
}

func TestWorkerLeavesUnparseableEntryPending(t *testing.T) {
	exec := &fakeExecutor{}
	w, stream, rdb := newTestWorker(t, exec, nil)
	ctx := context.Background()
	require.NoError(t, stream.EnsureGroup(ctx))

	// Bypass Add to write a corrupt entry directly.
	_, err := rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: trigger.StreamName,
		Values: map[string]any{"workflow_id": "not-a-number", "context": "{}"},
	}).Result()
	require.NoError(t, err)

	_, err = w.ProcessOnce(ctx)
	require.NoError(t, err)
	assert.Empty(t, exec.calls, "unparseable entries never reach the executor")

	pending, err := stream.Pending(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, pending)
}

func TestStripServices(t *testing.T) {
	ectx := map[string]any{
		"payload":           "keep",
		trigger.ServicesKey: map[string]any{"db": &struct{}{}},
	}
	stripped := trigger.StripServices(ectx)
	assert.NotContains(t, stripped, trigger.ServicesKey)
	assert.Equal(t, "keep", stripped["payload"])
	assert.Contains(t, ectx, trigger.ServicesKey, "the original context is untouched")
}
