package events

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/redis/go-redis/v9"

	"github.com/weftworks/weft/telemetry"
)

type (
	// SubscriberOptions configures a lifecycle event subscriber.
	SubscriberOptions struct {
		// Redis is the Redis connection to subscribe on. Required.
		Redis *redis.Client
		// Channel overrides the pub/sub topic. Defaults to Channel.
		Channel string
		// Buffer specifies the event channel capacity. Defaults to 64.
		Buffer int
		// Logger receives decode failures. Defaults to a no-op logger.
		Logger telemetry.Logger
	}

	// Subscriber consumes lifecycle events from the pub/sub channel and
	// delivers decoded envelopes. Malformed messages are logged and dropped;
	// the subscription never terminates on bad input.
	Subscriber struct {
		pubsub *redis.PubSub
		events chan Envelope
		log    telemetry.Logger
	}
)

// NewSubscriber subscribes to the lifecycle channel and starts the consume
// goroutine. The returned subscriber delivers envelopes on Events until
// Close is called or ctx is canceled.
func NewSubscriber(ctx context.Context, opts SubscriberOptions) (*Subscriber, error) {
	if opts.Redis == nil {
		return nil, errors.New("redis client is required")
	}
	channel := opts.Channel
	if channel == "" {
		channel = Channel
	}
	buffer := opts.Buffer
	if buffer <= 0 {
		buffer = 64
	}
	logger := opts.Logger
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	pubsub := opts.Redis.Subscribe(ctx, channel)
	// Force the subscription to be established before returning so callers
	// never miss events published right after construction.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, err
	}
	s := &Subscriber{
		pubsub: pubsub,
		events: make(chan Envelope, buffer),
		log:    logger,
	}
	go s.consume(ctx)
	return s, nil
}

// Events returns the channel decoded envelopes are delivered on. The channel
// is closed when the subscriber stops.
func (s *Subscriber) Events() <-chan Envelope {
	return s.events
}

// Close terminates the subscription. The events channel closes once the
// consume goroutine drains.
func (s *Subscriber) Close() error {
	return s.pubsub.Close()
}

// consume reads pub/sub messages, decodes envelopes, and emits them. Bad
// payloads never crash the loop.
func (s *Subscriber) consume(ctx context.Context) {
	defer close(s.events)
	ch := s.pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var env Envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				s.log.Warn(ctx, "dropping malformed workflow event", "err", err)
				continue
			}
			select {
			case s.events <- env:
			case <-ctx.Done():
				return
			}
		}
	}
}
