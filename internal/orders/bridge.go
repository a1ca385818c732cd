package orders

import (
	"context"
	"errors"
	"fmt"

	"github.com/angelmondragon/numberpool/internal/events"
	"github.com/angelmondragon/numberpool/internal/identity"
	"github.com/angelmondragon/numberpool/internal/reservations"
	"github.com/angelmondragon/numberpool/pkg/db/models"
	"github.com/angelmondragon/numberpool/pkg/enums"
	"github.com/angelmondragon/numberpool/pkg/logger"
)

// Ledger is the slice of the reservation store the bridge drives.
type Ledger interface {
	FinalizeOrder(ctx context.Context, in reservations.FinalizeInput) (reservations.FinalizeResult, error)
	UpdateOrderStatus(ctx context.Context, orderID int64, status enums.OrderStatus) (int64, error)
	DeleteByOrder(ctx context.Context, orderID int64) ([]models.ReservationRecord, error)
}

type idleCanceller interface {
	CancelIfIdle(ctx context.Context, actor identity.Actor) (bool, error)
}

// Bridge moves reservations along with their order: blocked rows become
// ordered on creation, later statuses are copied onto them, and cancelling
// statuses delete them. Failures are logged and never returned so order
// processing is unaffected by reservation bookkeeping.
type Bridge struct {
	ledger Ledger
	timers idleCanceller
	logg   *logger.Logger
}

// NewBridge wires the order-status bridge. timers may be nil.
func NewBridge(ledger Ledger, timers idleCanceller, logg *logger.Logger) (*Bridge, error) {
	if ledger == nil {
		return nil, fmt.Errorf("reservation ledger required")
	}
	return &Bridge{ledger: ledger, timers: timers, logg: logg}, nil
}

// Register subscribes the bridge to order status changes.
func (b *Bridge) Register(bus *events.Bus) {
	bus.OnOrderStatusChanged(b.HandleOrderStatusChanged)
}

// HandleOrderStatusChanged applies one order event to the ledger.
func (b *Bridge) HandleOrderStatusChanged(ctx context.Context, e events.OrderStatusChanged) error {
	if b.logg != nil {
		ctx = b.logg.WithFields(ctx, map[string]any{
			"order_id":   e.OrderID,
			"actor_id":   e.ActorID,
			"old_status": string(e.OldStatus),
			"new_status": string(e.NewStatus),
		})
	}

	if e.OldStatus == "" {
		b.finalize(ctx, e)
	}
	switch {
	case e.NewStatus.ReleasesNumbers():
		rows, err := b.ledger.DeleteByOrder(ctx, e.OrderID)
		if err != nil {
			b.error(ctx, "release order reservations", err)
			break
		}
		b.info(ctx, fmt.Sprintf("released %d reservations of cancelled order", len(rows)))
	case e.OldStatus != "":
		if _, err := b.ledger.UpdateOrderStatus(ctx, e.OrderID, e.NewStatus); err != nil {
			b.error(ctx, "update reservation order status", err)
		}
	}

	if b.timers != nil && e.ActorID != "" {
		if _, err := b.timers.CancelIfIdle(ctx, identity.ActorForID(e.ActorID)); err != nil {
			b.error(ctx, "cancel idle timer", err)
		}
	}
	return nil
}

func (b *Bridge) finalize(ctx context.Context, e events.OrderStatusChanged) {
	for _, item := range e.Items {
		if len(item.Numbers) == 0 {
			continue
		}
		res, err := b.ledger.FinalizeOrder(ctx, reservations.FinalizeInput{
			CartKey:         item.CartKey,
			ParentProductID: item.ParentProductID,
			Numbers:         item.Numbers,
			OrderID:         e.OrderID,
			OrderItemID:     item.ID,
			OrderStatus:     e.NewStatus,
		})
		if err == nil {
			if res.Finalized && res.MatchedBy == reservations.MatchedByNumbers {
				b.warn(b.itemCtx(ctx, item), "reservation matched by numbers, cart key was out of sync")
			}
			continue
		}
		itemCtx := b.itemCtx(ctx, item)
		if errors.Is(err, reservations.ErrNoMatchingReservation) || errors.Is(err, reservations.ErrOrderedElsewhere) {
			if b.logg != nil {
				itemCtx = b.logg.WithFields(itemCtx, map[string]any{"reconcile": "manual", "reason": err.Error()})
			}
			b.warn(itemCtx, "order numbers are not tracked by any reservation")
			continue
		}
		b.error(itemCtx, "finalize reservation", err)
	}
}

func (b *Bridge) itemCtx(ctx context.Context, item models.OrderItem) context.Context {
	if b.logg == nil {
		return ctx
	}
	return b.logg.WithFields(ctx, map[string]any{
		"order_item_id":     item.ID,
		"cart_key":          item.CartKey,
		"parent_product_id": item.ParentProductID,
		"numbers":           item.Numbers.String(),
	})
}

func (b *Bridge) info(ctx context.Context, msg string) {
	if b.logg != nil {
		b.logg.Info(ctx, msg)
	}
}

func (b *Bridge) warn(ctx context.Context, msg string) {
	if b.logg != nil {
		b.logg.Warn(ctx, msg)
	}
}

func (b *Bridge) error(ctx context.Context, msg string, err error) {
	if b.logg != nil {
		b.logg.Error(ctx, msg, err)
	}
}
