package orders

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/angelmondragon/numberpool/internal/events"
	"github.com/angelmondragon/numberpool/pkg/db/models"
	pkgerrors "github.com/angelmondragon/numberpool/pkg/errors"
	"github.com/angelmondragon/numberpool/pkg/logger"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type statusPublisher interface {
	PublishOrderStatusChanged(ctx context.Context, event events.OrderStatusChanged) error
}

// Service records storefront orders and announces their status changes.
type Service interface {
	ApplyStatus(ctx context.Context, in StatusChange) (StatusChangeResult, error)
	Get(ctx context.Context, orderID int64) (*models.Order, error)
}

type service struct {
	repo Repository
	tx   txRunner
	bus  statusPublisher
	logg *logger.Logger
}

// NewService wires the order service.
func NewService(repo Repository, tx txRunner, bus statusPublisher, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if bus == nil {
		return nil, fmt.Errorf("event bus required")
	}
	return &service{repo: repo, tx: tx, bus: bus, logg: logg}, nil
}

// ApplyStatus stores the order on first sight, or moves it to the reported
// status. Repeating the current status is a no-op and publishes nothing.
func (s *service) ApplyStatus(ctx context.Context, in StatusChange) (StatusChangeResult, error) {
	if err := in.validate(); err != nil {
		return StatusChangeResult{}, err
	}

	result := StatusChangeResult{OrderID: in.OrderID, NewStatus: in.Status}
	var order *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		existing, err := repo.FindByID(ctx, in.OrderID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			order = &models.Order{
				ID:      in.OrderID,
				ActorID: in.ActorID,
				Status:  in.Status,
				Items:   in.itemModels(),
			}
			if err := repo.Create(ctx, order); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create order")
			}
			result.Changed = true
			return nil
		}
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
		}

		order = existing
		result.OldStatus = existing.Status
		if len(existing.Items) == 0 && len(in.Items) > 0 {
			items := in.itemModels()
			if err := repo.AddItems(ctx, items); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "store order items")
			}
			order.Items = items
		}
		if existing.Status == in.Status {
			return nil
		}
		if err := repo.UpdateStatus(ctx, in.OrderID, in.Status); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update order status")
		}
		order.Status = in.Status
		result.Changed = true
		return nil
	})
	if err != nil {
		return StatusChangeResult{}, err
	}

	ctx = s.withOrderFields(ctx, result)
	if !result.Changed {
		s.info(ctx, "order status unchanged")
		return result, nil
	}

	actorID := order.ActorID
	if actorID == "" {
		actorID = in.ActorID
	}
	if err := s.bus.PublishOrderStatusChanged(ctx, events.OrderStatusChanged{
		OrderID:   order.ID,
		ActorID:   actorID,
		OldStatus: result.OldStatus,
		NewStatus: result.NewStatus,
		Items:     order.Items,
	}); err != nil && s.logg != nil {
		// The order itself is stored; subscribers report their own failures.
		s.logg.Warn(ctx, "order status subscribers failed: "+err.Error())
	}
	s.info(ctx, "order status applied")
	return result, nil
}

// Get returns an order with its items.
func (s *service) Get(ctx context.Context, orderID int64) (*models.Order, error) {
	order, err := s.repo.FindByID(ctx, orderID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
	}
	return order, nil
}

func (s *service) withOrderFields(ctx context.Context, r StatusChangeResult) context.Context {
	if s.logg == nil {
		return ctx
	}
	return s.logg.WithFields(ctx, map[string]any{
		"order_id":   r.OrderID,
		"old_status": string(r.OldStatus),
		"new_status": string(r.NewStatus),
	})
}

func (s *service) info(ctx context.Context, msg string) {
	if s.logg != nil {
		s.logg.Info(ctx, msg)
	}
}
