package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/numberpool/pkg/config"
	"github.com/angelmondragon/numberpool/pkg/db/models"
	"github.com/angelmondragon/numberpool/pkg/enums"
	"github.com/angelmondragon/numberpool/pkg/outbox"
	"github.com/angelmondragon/numberpool/pkg/outbox/payloads"
)

func TestResolveDecodesTypedPayload(t *testing.T) {
	t.Parallel()
	reg := testRegistry(t)
	reservationID := uuid.New()

	resolved, err := reg.Resolve(models.OutboxEvent{
		EventType:     enums.EventReservationOrdered,
		AggregateType: enums.AggregateReservation,
		AggregateID:   reservationID,
		Payload: envelopeOf(t, payloads.ReservationOrderedEvent{
			ReservationID:   reservationID,
			CartKey:         "abc",
			ParentProductID: 10,
			Numbers:         []int{3, 4},
			OrderID:         501,
			OrderStatus:     enums.OrderStatusProcessing,
			MatchedBy:       "cart_key",
		}),
	})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved.Descriptor.Topic != "np-reservations" {
		t.Fatalf("topic = %q", resolved.Descriptor.Topic)
	}
	ordered, ok := resolved.Payload.(*payloads.ReservationOrderedEvent)
	if !ok {
		t.Fatalf("payload type %T", resolved.Payload)
	}
	if ordered.OrderID != 501 || len(ordered.Numbers) != 2 {
		t.Fatalf("payload %+v", ordered)
	}
	if resolved.Envelope.EventID == "" || resolved.Envelope.OccurredAt.IsZero() {
		t.Fatalf("envelope metadata missing: %+v", resolved.Envelope)
	}
}

func TestResolveTransferUsesReservationAggregate(t *testing.T) {
	t.Parallel()
	reg := testRegistry(t)

	_, err := reg.Resolve(models.OutboxEvent{
		EventType:     enums.EventReservationTransfered,
		AggregateType: enums.AggregateReservation,
		AggregateID:   outbox.AggregateIDFor(enums.AggregateReservation, "acct_1"),
		Payload:       envelopeOf(t, payloads.ReservationTransferredEvent{FromActorID: "guest_x", ToActorID: "acct_1"}),
	})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
}

func TestResolveRejectsBadRowsPermanently(t *testing.T) {
	t.Parallel()
	reg := testRegistry(t)
	cases := map[string]models.OutboxEvent{
		"unknown type": {
			EventType:     enums.EventOrderStatusChanged,
			AggregateType: enums.AggregateOrder,
			AggregateID:   uuid.New(),
			Payload:       envelopeOf(t, map[string]int{"order_id": 1}),
		},
		"aggregate mismatch": {
			EventType:     enums.EventReservationReleased,
			AggregateType: enums.AggregateOrder,
			AggregateID:   uuid.New(),
			Payload:       envelopeOf(t, map[string]string{"reason": "removed"}),
		},
		"nil aggregate id": {
			EventType:     enums.EventTimerExpired,
			AggregateType: enums.AggregateTimer,
			Payload:       envelopeOf(t, map[string]string{}),
		},
		"null data": {
			EventType:     enums.EventReservationBlocked,
			AggregateType: enums.AggregateReservation,
			AggregateID:   uuid.New(),
			Payload:       envelopeOf(t, nil),
		},
		"broken envelope": {
			EventType:     enums.EventReservationBlocked,
			AggregateType: enums.AggregateReservation,
			AggregateID:   uuid.New(),
			Payload:       json.RawMessage(`{"data":`),
		},
	}
	for name, row := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := reg.Resolve(row)
			if !IsPermanent(err) {
				t.Fatalf("expected permanent error, got %v", err)
			}
		})
	}
}

func TestPermanentSurvivesWrapping(t *testing.T) {
	t.Parallel()
	cause := errors.New("topic missing")
	err := fmt.Errorf("publish: %w", Permanent(cause))
	if !IsPermanent(err) {
		t.Fatal("wrapped permanent error not detected")
	}
	if !errors.Is(err, cause) {
		t.Fatal("cause lost")
	}
	if IsPermanent(cause) {
		t.Fatal("plain error reported permanent")
	}
}

func TestNewEventRegistryRequiresTopic(t *testing.T) {
	t.Parallel()
	if _, err := NewEventRegistry(config.PubSubConfig{}); err == nil {
		t.Fatal("expected missing topic to fail")
	}
}

func TestEveryEmittedEventIsRegistered(t *testing.T) {
	t.Parallel()
	reg := testRegistry(t)
	for _, eventType := range []enums.OutboxEventType{
		enums.EventReservationBlocked,
		enums.EventReservationOrdered,
		enums.EventReservationReleased,
		enums.EventReservationExpired,
		enums.EventReservationTransfered,
		enums.EventTimerExpired,
	} {
		if _, ok := reg.Descriptor(eventType); !ok {
			t.Fatalf("%s not registered", eventType)
		}
	}
}

func testRegistry(t *testing.T) *EventRegistry {
	t.Helper()
	reg, err := NewEventRegistry(config.PubSubConfig{ReservationTopic: "np-reservations"})
	if err != nil {
		t.Fatalf("build registry: %v", err)
	}
	return reg
}

func envelopeOf(t *testing.T, data any) json.RawMessage {
	t.Helper()
	body, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("marshal data: %v", err)
	}
	raw, err := json.Marshal(outbox.PayloadEnvelope{
		Version:    outbox.CurrentVersion,
		EventID:    uuid.NewString(),
		OccurredAt: time.Now().UTC(),
		Data:       body,
	})
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return raw
}
