// Package trigger implements the trigger stream and its consumer-group
// worker. The scheduler (and webhook endpoints) append pending workflow
// invocations as stream records; workers in a shared consumer group claim
// records, run the DAG executor, and acknowledge on success. Consumer-group
// semantics give at-least-once delivery with per-entry mutual exclusion
// across workers.
package trigger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Stream and consumer-group names used by every scheduler and worker process.
const (
	// StreamName is the Redis stream trigger records are appended to.
	StreamName = "workflow_triggers"
	// GroupName is the consumer group workers join.
	GroupName = "workflow_group"
)

type (
	// Record is one pending workflow invocation read from the stream.
	Record struct {
		// ID is the stream-assigned monotonic entry ID.
		ID string
		// WorkflowID identifies the workflow to invoke.
		WorkflowID int64
		// Context seeds the invocation's execution context.
		Context map[string]any
	}

	// Message is a raw stream entry prior to parsing. Workers keep raw
	// entries around so parse failures can be logged without acknowledging.
	Message struct {
		// ID is the stream-assigned entry ID.
		ID string
		// Values holds the entry's field map.
		Values map[string]any
	}

	// StreamOptions configures a trigger stream client.
	StreamOptions struct {
		// Redis is the Redis connection backing the stream. Required.
		Redis *redis.Client
		// Stream overrides the stream key. Defaults to StreamName.
		Stream string
		// Group overrides the consumer group name. Defaults to GroupName.
		Group string
		// MaxLen bounds the stream length (approximate trim on add).
		// Zero means unbounded.
		MaxLen int64
	}

	// Stream is a typed client for the trigger stream: appends records,
	// reads them through the consumer group, and acknowledges processing.
	// It is safe for concurrent use.
	Stream struct {
		rdb    *redis.Client
		stream string
		group  string
		maxLen int64
	}
)

// NewStream constructs a trigger stream client. The Redis field in opts is
// required.
func NewStream(opts StreamOptions) (*Stream, error) {
	if opts.Redis == nil {
		return nil, errors.New("redis client is required")
	}
	stream := opts.Stream
	if stream == "" {
		stream = StreamName
	}
	group := opts.Group
	if group == "" {
		group = GroupName
	}
	return &Stream{rdb: opts.Redis, stream: stream, group: group, maxLen: opts.MaxLen}, nil
}

// Add appends a trigger record for the workflow with the given invocation
// context and returns the stream-assigned entry ID. The context is JSON
// encoded; callers must strip non-serializable values (services) first.
func (s *Stream) Add(ctx context.Context, workflowID int64, ectx map[string]any) (string, error) {
	if ectx == nil {
		ectx = map[string]any{}
	}
	body, err := json.Marshal(ectx)
	if err != nil {
		return "", fmt.Errorf("marshal trigger context: %w", err)
	}
	args := &redis.XAddArgs{
		Stream: s.stream,
		Values: map[string]any{
			"workflow_id": strconv.FormatInt(workflowID, 10),
			"context":     string(body),
		},
	}
	if s.maxLen > 0 {
		args.MaxLen = s.maxLen
		args.Approx = true
	}
	id, err := s.rdb.XAdd(ctx, args).Result()
	if err != nil {
		return "", fmt.Errorf("append trigger record: %w", err)
	}
	return id, nil
}

// EnsureGroup creates the consumer group (and the stream if missing).
// An already-existing group is not an error.
func (s *Stream) EnsureGroup(ctx context.Context) error {
	err := s.rdb.XGroupCreateMkStream(ctx, s.stream, s.group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create consumer group %q: %w", s.group, err)
	}
	return nil
}

// Read blocks up to the given duration for new entries assigned to this
// consumer. A nil slice with nil error means the read timed out with nothing
// pending.
func (s *Stream) Read(ctx context.Context, consumer string, count int64, block time.Duration) ([]Message, error) {
	res, err := s.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    s.group,
		Consumer: consumer,
		Streams:  []string{s.stream, ">"},
		Count:    count,
		Block:    block,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read trigger stream: %w", err)
	}
	var msgs []Message
	for _, str := range res {
		for _, m := range str.Messages {
			msgs = append(msgs, Message{ID: m.ID, Values: m.Values})
		}
	}
	return msgs, nil
}

// Ack acknowledges processing of the given entry IDs for the consumer group.
func (s *Stream) Ack(ctx context.Context, ids ...string) error {
	if err := s.rdb.XAck(ctx, s.stream, s.group, ids...).Err(); err != nil {
		return fmt.Errorf("ack trigger records: %w", err)
	}
	return nil
}

// Pending returns the number of delivered-but-unacknowledged entries in the
// consumer group. Deployments use this to drive a claim-and-retry sweeper.
func (s *Stream) Pending(ctx context.Context) (int64, error) {
	res, err := s.rdb.XPending(ctx, s.stream, s.group).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("pending trigger records: %w", err)
	}
	return res.Count, nil
}

// Claim transfers ownership of long-idle pending entries to the given
// consumer. It is the building block for external retry sweepers; the worker
// loop itself never claims.
func (s *Stream) Claim(ctx context.Context, consumer string, minIdle time.Duration, ids ...string) ([]Message, error) {
	res, err := s.rdb.XClaim(ctx, &redis.XClaimArgs{
		Stream:   s.stream,
		Group:    s.group,
		Consumer: consumer,
		MinIdle:  minIdle,
		Messages: ids,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim trigger records: %w", err)
	}
	msgs := make([]Message, 0, len(res))
	for _, m := range res {
		msgs = append(msgs, Message{ID: m.ID, Values: m.Values})
	}
	return msgs, nil
}

// ParseRecord decodes a raw stream entry into a Record. The entry must carry
// an ASCII integer "workflow_id" field and a JSON object "context" field.
func ParseRecord(msg Message) (Record, error) {
	rawID, ok := msg.Values["workflow_id"]
	if !ok {
		return Record{}, fmt.Errorf("entry %s: missing workflow_id field", msg.ID)
	}
	idStr, ok := rawID.(string)
	if !ok {
		return Record{}, fmt.Errorf("entry %s: workflow_id is not a string", msg.ID)
	}
	workflowID, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		return Record{}, fmt.Errorf("entry %s: parse workflow_id %q: %w", msg.ID, idStr, err)
	}
	ectx := map[string]any{}
	if rawCtx, ok := msg.Values["context"]; ok {
		ctxStr, ok := rawCtx.(string)
		if !ok {
			return Record{}, fmt.Errorf("entry %s: context is not a string", msg.ID)
		}
		if err := json.Unmarshal([]byte(ctxStr), &ectx); err != nil {
			return Record{}, fmt.Errorf("entry %s: parse context: %w", msg.ID, err)
		}
	}
	return Record{ID: msg.ID, WorkflowID: workflowID, Context: ectx}, nil
}
