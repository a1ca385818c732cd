package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	pubsub "cloud.google.com/go/pubsub/v2"

	"github.com/angelmondragon/numberpool/pkg/enums"
	pkgerrors "github.com/angelmondragon/numberpool/pkg/errors"
	"github.com/angelmondragon/numberpool/pkg/logger"
	"github.com/angelmondragon/numberpool/pkg/outbox"
	"github.com/angelmondragon/numberpool/pkg/outbox/idempotency"
	"github.com/angelmondragon/numberpool/pkg/outbox/payloads"
)

const orderConsumerName = "order-status"

type idempotencyChecker interface {
	Begin(ctx context.Context, consumer, eventID string) (idempotency.Status, error)
	Complete(ctx context.Context, consumer, eventID string) error
	Release(ctx context.Context, consumer, eventID string) error
}

type payloadDecoder interface {
	Decode(eventType enums.OutboxEventType, version int, payload json.RawMessage) (any, error)
}

type statusApplier interface {
	ApplyStatus(ctx context.Context, in StatusChange) (StatusChangeResult, error)
}

// Consumer feeds order status events from Pub/Sub into the order service.
// Deliveries are deduplicated by event id.
type Consumer struct {
	orders       statusApplier
	subscription *pubsub.Subscriber
	manager      idempotencyChecker
	decoder      payloadDecoder
	logg         *logger.Logger
}

// NewConsumer builds the order events consumer.
func NewConsumer(orders statusApplier, subscription *pubsub.Subscriber, manager idempotencyChecker, decoder payloadDecoder, logg *logger.Logger) (*Consumer, error) {
	if orders == nil {
		return nil, errors.New("order service is required")
	}
	if subscription == nil {
		return nil, errors.New("orders subscription is required")
	}
	if manager == nil {
		return nil, errors.New("idempotency manager is required")
	}
	if decoder == nil {
		return nil, errors.New("payload decoder is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}
	return &Consumer{
		orders:       orders,
		subscription: subscription,
		manager:      manager,
		decoder:      decoder,
		logg:         logg,
	}, nil
}

// Run processes messages until the context is canceled or the subscription errors.
func (c *Consumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		if c.Process(ctx, msg.ID, msg.Attributes, msg.Data).nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

type processResult struct {
	ack  bool
	nack bool
}

// Process handles one delivery. Malformed messages are acked so they do not
// redeliver forever; storage failures are nacked for retry.
func (c *Consumer) Process(ctx context.Context, messageID string, attrs map[string]string, data []byte) processResult {
	eventType := enums.OutboxEventType(attrs["event_type"])
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"message_id": messageID,
		"event_type": string(eventType),
	})

	if eventType != enums.EventOrderStatusChanged {
		c.logg.Info(logCtx, "skipping unsupported order event")
		return processResult{ack: true}
	}

	envelope, err := outbox.DecodeEnvelope(data)
	if err != nil {
		c.logg.Error(logCtx, "failed to decode envelope", err)
		return processResult{ack: true}
	}
	if envelope.EventID == "" {
		envelope.EventID = attrs["event_id"]
	}
	eventID := strings.TrimSpace(envelope.EventID)
	if eventID == "" {
		c.logg.Warn(logCtx, "order event without id")
		return processResult{ack: true}
	}
	logCtx = c.logg.WithField(logCtx, "event_id", eventID)

	decoded, err := c.decoder.Decode(eventType, envelope.Version, envelope.Data)
	if err != nil {
		c.logg.Error(logCtx, "failed to decode order event", err)
		return processResult{ack: true}
	}
	event, ok := decoded.(*payloads.OrderStatusChangedEvent)
	if !ok {
		c.logg.Error(logCtx, "unexpected order event payload", fmt.Errorf("got %T", decoded))
		return processResult{ack: true}
	}

	status, err := c.manager.Begin(ctx, orderConsumerName, eventID)
	if err != nil {
		c.logg.Error(logCtx, "idempotency check failed", err)
		return processResult{nack: true}
	}
	switch status {
	case idempotency.StatusDone:
		c.logg.Info(logCtx, "event already processed")
		return processResult{ack: true}
	case idempotency.StatusInFlight:
		c.logg.Info(logCtx, "event is being processed elsewhere")
		return processResult{nack: true}
	}

	result, err := c.orders.ApplyStatus(logCtx, ChangeFromEvent(*event))
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
			c.logg.Error(logCtx, "rejected order event", err)
			c.complete(ctx, logCtx, eventID)
			return processResult{ack: true}
		}
		c.logg.Error(logCtx, "failed to apply order status", err)
		if relErr := c.manager.Release(ctx, orderConsumerName, eventID); relErr != nil {
			c.logg.Warn(c.logg.WithField(logCtx, "error", relErr.Error()), "failed to release event lease")
		}
		return processResult{nack: true}
	}
	c.complete(ctx, logCtx, eventID)

	c.logg.Info(c.logg.WithFields(logCtx, map[string]any{
		"order_id": result.OrderID,
		"changed":  result.Changed,
	}), "order event applied")
	return processResult{ack: true}
}

// complete records the event as handled. A failure only means a redelivery
// reapplies a status, which the order service treats as a no-op.
func (c *Consumer) complete(ctx, logCtx context.Context, eventID string) {
	if err := c.manager.Complete(ctx, orderConsumerName, eventID); err != nil {
		c.logg.Warn(c.logg.WithField(logCtx, "error", err.Error()), "failed to mark event done")
	}
}
