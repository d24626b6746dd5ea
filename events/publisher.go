package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/weftworks/weft/telemetry"
)

type (
	// PublisherOptions configures a lifecycle event publisher.
	PublisherOptions struct {
		// Redis is the Redis connection events are published on. Required.
		Redis *redis.Client
		// Channel overrides the pub/sub topic. Defaults to Channel.
		Channel string
		// Logger receives publish failures. Defaults to a no-op logger.
		Logger telemetry.Logger
	}

	// Publisher emits workflow lifecycle events. Publication is fire and
	// forget: errors are returned to the caller but never retried, and
	// ordering per workflow relies on the single publisher per workflow that
	// the CRUD layer provides.
	Publisher struct {
		rdb     *redis.Client
		channel string
		log     telemetry.Logger
	}
)

// NewPublisher constructs a lifecycle event publisher. The Redis field in
// opts is required.
func NewPublisher(opts PublisherOptions) (*Publisher, error) {
	if opts.Redis == nil {
		return nil, errors.New("redis client is required")
	}
	channel := opts.Channel
	if channel == "" {
		channel = Channel
	}
	logger := opts.Logger
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	return &Publisher{rdb: opts.Redis, channel: channel, log: logger}, nil
}

// Publish marshals the payload into an envelope of the given kind and
// publishes it on the configured channel.
func (p *Publisher) Publish(ctx context.Context, kind string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", kind, err)
	}
	env := Envelope{Type: kind, Timestamp: time.Now().UTC(), Payload: body}
	msg, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal %s envelope: %w", kind, err)
	}
	if err := p.rdb.Publish(ctx, p.channel, msg).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", kind, err)
	}
	p.log.Debug(ctx, "published workflow event", "kind", kind)
	return nil
}

// PublishActivated publishes a WORKFLOW_ACTIVATED event for the workflow's
// trigger nodes.
func (p *Publisher) PublishActivated(ctx context.Context, workflowID int64, nodes []NodeRef) error {
	return p.Publish(ctx, KindWorkflowActivated, WorkflowPayload{WorkflowID: workflowID, Nodes: nodes})
}

// PublishUpdated publishes a WORKFLOW_UPDATED event. Emitted whenever a
// trigger node's configuration changes while the workflow is active.
func (p *Publisher) PublishUpdated(ctx context.Context, workflowID int64, nodes []NodeRef) error {
	return p.Publish(ctx, KindWorkflowUpdated, WorkflowPayload{WorkflowID: workflowID, Nodes: nodes})
}

// PublishDeactivated publishes a WORKFLOW_DEACTIVATED event.
func (p *Publisher) PublishDeactivated(ctx context.Context, workflowID int64, nodes []NodeRef) error {
	return p.Publish(ctx, KindWorkflowDeactivated, WorkflowPayload{WorkflowID: workflowID, Nodes: nodes})
}

// PublishDeleted publishes a WORKFLOW_DELETED event. The payload carries the
// workflow ID only.
func (p *Publisher) PublishDeleted(ctx context.Context, workflowID int64) error {
	return p.Publish(ctx, KindWorkflowDeleted, WorkflowPayload{WorkflowID: workflowID})
}
