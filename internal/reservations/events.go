package reservations

import (
	"github.com/angelmondragon/numberpool/pkg/db/models"
	"github.com/angelmondragon/numberpool/pkg/outbox/payloads"
)

func blockedPayload(r *models.ReservationRecord) payloads.ReservationBlockedEvent {
	return payloads.ReservationBlockedEvent{
		ReservationID:   r.ID,
		CartKey:         r.CartKey,
		ActorID:         r.ActorID,
		ParentProductID: r.ParentProductID,
		ProductID:       r.ProductID,
		Numbers:         []int(r.Numbers),
		ExpiresAt:       r.ExpiresAt,
	}
}

func orderedPayload(r *models.ReservationRecord, matchedBy string) payloads.ReservationOrderedEvent {
	event := payloads.ReservationOrderedEvent{
		ReservationID:   r.ID,
		CartKey:         r.CartKey,
		ParentProductID: r.ParentProductID,
		Numbers:         []int(r.Numbers),
		MatchedBy:       matchedBy,
	}
	if r.OrderID != nil {
		event.OrderID = *r.OrderID
	}
	if r.OrderItemID != nil {
		event.OrderItemID = *r.OrderItemID
	}
	if r.OrderStatus != nil {
		event.OrderStatus = *r.OrderStatus
	}
	return event
}

func releasedPayload(r models.ReservationRecord, reason ReleaseReason) payloads.ReservationReleasedEvent {
	return payloads.ReservationReleasedEvent{
		ReservationID:   r.ID,
		CartKey:         r.CartKey,
		ActorID:         r.ActorID,
		ParentProductID: r.ParentProductID,
		Numbers:         []int(r.Numbers),
		Reason:          string(reason),
		OrderID:         r.OrderID,
	}
}

func transferredPayload(from, to string, rows int64) payloads.ReservationTransferredEvent {
	return payloads.ReservationTransferredEvent{
		FromActorID: from,
		ToActorID:   to,
		Rows:        rows,
	}
}
