package distributed

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"uplinkpolicy/internal/core/ports"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const EventsChannel = "uplinkpolicy:events"

type EventType string

const (
	EventPolicyReplaced EventType = "policy.replaced"
	EventPolicyDeleted  EventType = "policy.deleted"
)

type Event struct {
	Type       EventType `json:"type"`
	InstanceID string    `json:"instance_id"`
	Timestamp  time.Time `json:"timestamp"`
	Policy     string    `json:"policy"`
	Version    uint64    `json:"version,omitempty"`
}

// PolicyInvalidator drops a locally compiled policy.
type PolicyInvalidator interface {
	Invalidate(name string)
}

// EventBus tells the other instances sharing a policy store that a table
// changed so they stop serving their compiled copy.
type EventBus struct {
	client     *redis.Client
	instanceID string
	logger     *zap.SugaredLogger
	pubsub     *redis.PubSub
}

func NewEventBus(client *redis.Client, instanceID string, logger *zap.SugaredLogger) *EventBus {
	return &EventBus{
		client:     client,
		instanceID: instanceID,
		logger:     logger,
	}
}

func (eb *EventBus) Publish(ctx context.Context, event *Event) error {
	event.InstanceID = eb.instanceID
	event.Timestamp = time.Now()

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := eb.client.Publish(ctx, EventsChannel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	eb.logger.Debugw("published event",
		"type", event.Type,
		"policy", event.Policy,
		"version", event.Version,
	)
	return nil
}

func (eb *EventBus) PublishPolicyReplaced(ctx context.Context, name string, version uint64) error {
	return eb.Publish(ctx, &Event{Type: EventPolicyReplaced, Policy: name, Version: version})
}

func (eb *EventBus) PublishPolicyDeleted(ctx context.Context, name string) error {
	return eb.Publish(ctx, &Event{Type: EventPolicyDeleted, Policy: name})
}

// Subscribe blocks, passing events from other instances to handler until
// ctx is done.
func (eb *EventBus) Subscribe(ctx context.Context, handler func(*Event) error) error {
	if eb.pubsub != nil {
		return fmt.Errorf("already subscribed")
	}

	eb.pubsub = eb.client.Subscribe(ctx, EventsChannel)
	defer eb.pubsub.Close()

	ch := eb.pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			eb.dispatch(msg.Payload, handler)
		}
	}
}

func (eb *EventBus) dispatch(payload string, handler func(*Event) error) {
	var event Event
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		eb.logger.Warnw("failed to unmarshal event",
			"error", err,
			"payload", payload,
		)
		return
	}

	if event.InstanceID == eb.instanceID {
		return
	}

	if err := handler(&event); err != nil {
		eb.logger.Warnw("error handling event",
			"type", event.Type,
			"policy", event.Policy,
			"error", err,
		)
	}
}

// InvalidateOnChange returns a handler that drops the local copy of any
// policy another instance replaced or deleted.
func InvalidateOnChange(policies PolicyInvalidator) func(*Event) error {
	return func(event *Event) error {
		switch event.Type {
		case EventPolicyReplaced, EventPolicyDeleted:
			policies.Invalidate(event.Policy)
			return nil
		default:
			return fmt.Errorf("unknown event type %q", event.Type)
		}
	}
}

func (eb *EventBus) Close() error {
	if eb.pubsub != nil {
		return eb.pubsub.Close()
	}
	return nil
}

var _ ports.PolicyEventPublisher = (*EventBus)(nil)
