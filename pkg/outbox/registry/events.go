// Package registry maps outbox rows to topics and typed payloads for the
// publisher, and versioned payload decoders for consumers.
package registry

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/numberpool/pkg/config"
	"github.com/angelmondragon/numberpool/pkg/db/models"
	"github.com/angelmondragon/numberpool/pkg/enums"
	"github.com/angelmondragon/numberpool/pkg/outbox"
	"github.com/angelmondragon/numberpool/pkg/outbox/payloads"
)

type EventDescriptor struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	Topic         string
	newPayload    func() any
}

type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    any
}

// PermanentError marks a failure that retrying the same row cannot fix.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	if e.Err == nil {
		return "permanent failure"
	}
	return e.Err.Error()
}

func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent wraps err so IsPermanent reports true for it.
func Permanent(err error) error {
	return &PermanentError{Err: err}
}

func IsPermanent(err error) bool {
	var p *PermanentError
	return errors.As(err, &p)
}

func permanentf(format string, args ...any) error {
	return Permanent(fmt.Errorf(format, args...))
}

type schema struct {
	eventType  enums.OutboxEventType
	aggregate  enums.OutboxAggregateType
	newPayload func() any
}

func payloadOf[T any]() func() any {
	return func() any { return new(T) }
}

// reservationEvents lists every event the numberpool emits. All of them share
// the reservation topic so subscribers see one ordered stream per aggregate.
var reservationEvents = []schema{
	{enums.EventReservationBlocked, enums.AggregateReservation, payloadOf[payloads.ReservationBlockedEvent]()},
	{enums.EventReservationOrdered, enums.AggregateReservation, payloadOf[payloads.ReservationOrderedEvent]()},
	{enums.EventReservationReleased, enums.AggregateReservation, payloadOf[payloads.ReservationReleasedEvent]()},
	{enums.EventReservationExpired, enums.AggregateReservation, payloadOf[payloads.ReservationReleasedEvent]()},
	{enums.EventReservationTransfered, enums.AggregateReservation, payloadOf[payloads.ReservationTransferredEvent]()},
	{enums.EventTimerExpired, enums.AggregateTimer, payloadOf[payloads.TimerExpiredEvent]()},
}

type EventRegistry struct {
	entries map[enums.OutboxEventType]EventDescriptor
}

func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	if cfg.ReservationTopic == "" {
		return nil, errors.New("reservation topic is required")
	}
	reg := &EventRegistry{entries: make(map[enums.OutboxEventType]EventDescriptor, len(reservationEvents))}
	for _, s := range reservationEvents {
		reg.entries[s.eventType] = EventDescriptor{
			EventType:     s.eventType,
			AggregateType: s.aggregate,
			Topic:         cfg.ReservationTopic,
			newPayload:    s.newPayload,
		}
	}
	return reg, nil
}

// Descriptor returns the registered descriptor for eventType.
func (r *EventRegistry) Descriptor(eventType enums.OutboxEventType) (EventDescriptor, bool) {
	desc, ok := r.entries[eventType]
	return desc, ok
}

// Resolve checks the row against its descriptor and decodes the typed
// payload. Every failure is permanent since the row never changes.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	desc, ok := r.entries[event.EventType]
	if !ok {
		return nil, permanentf("unsupported event type %s", event.EventType)
	}
	if desc.AggregateType != event.AggregateType {
		return nil, permanentf("%s: aggregate %s, want %s", event.EventType, event.AggregateType, desc.AggregateType)
	}
	if event.AggregateID == uuid.Nil {
		return nil, permanentf("%s: missing aggregate id", event.EventType)
	}

	env, err := outbox.DecodeEnvelope(event.Payload)
	if err != nil {
		return nil, permanentf("%s: %w", event.EventType, err)
	}
	payload := desc.newPayload()
	if err := json.Unmarshal(env.Data, payload); err != nil {
		return nil, permanentf("decode %s payload: %w", event.EventType, err)
	}
	return &ResolvedEvent{Descriptor: desc, Envelope: env, Payload: payload}, nil
}
