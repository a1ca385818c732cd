package webhooks

import (
	"context"
	"net/http"

	"github.com/angelmondragon/numberpool/api/responses"
	"github.com/angelmondragon/numberpool/api/validators"
	"github.com/angelmondragon/numberpool/internal/orders"
	dbtypes "github.com/angelmondragon/numberpool/pkg/db/types"
	"github.com/angelmondragon/numberpool/pkg/enums"
	pkgerrors "github.com/angelmondragon/numberpool/pkg/errors"
	"github.com/angelmondragon/numberpool/pkg/logger"
)

type OrderStatusService interface {
	ApplyStatus(ctx context.Context, in orders.StatusChange) (orders.StatusChangeResult, error)
}

// OrderWebhookRequest is posted by the shop when an order is created or its
// status moves. Items are only needed on the first call for an order.
type OrderWebhookRequest struct {
	OrderID int64              `json:"orderId" validate:"gt=0"`
	ActorID string             `json:"actorId" validate:"max=128"`
	Status  string             `json:"status" validate:"required"`
	Items   []OrderWebhookItem `json:"items" validate:"dive"`
}

type OrderWebhookItem struct {
	ID              int64  `json:"id" validate:"gt=0"`
	CartKey         string `json:"cartKey" validate:"max=64"`
	ParentProductID int64  `json:"parentProductId" validate:"gt=0"`
	ProductID       int64  `json:"productId" validate:"omitempty,gt=0"`
	Numbers         []int  `json:"numbers" validate:"omitempty,unique"`
}

func (req OrderWebhookRequest) toStatusChange() orders.StatusChange {
	items := make([]orders.ItemInput, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, orders.ItemInput{
			ID:              it.ID,
			CartKey:         validators.SanitizeString(it.CartKey, 64),
			ParentProductID: it.ParentProductID,
			ProductID:       it.ProductID,
			Numbers:         dbtypes.NumberList(it.Numbers),
		})
	}
	return orders.StatusChange{
		OrderID: req.OrderID,
		ActorID: validators.SanitizeString(req.ActorID, 128),
		Status:  enums.OrderStatus(req.Status),
		Items:   items,
	}
}

// OrderWebhook records an order status change. Replays are absorbed by the
// idempotency middleware and by ApplyStatus treating a repeated status as a
// no-op.
func OrderWebhook(svc OrderStatusService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "order service unavailable"))
			return
		}

		var payload OrderWebhookRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		result, err := svc.ApplyStatus(ctx, payload.toStatusChange())
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if logg != nil {
			logCtx := logg.WithFields(ctx, map[string]any{
				"order_id":   result.OrderID,
				"old_status": string(result.OldStatus),
				"new_status": string(result.NewStatus),
				"changed":    result.Changed,
			})
			logg.Info(logCtx, "order webhook processed")
		}
		responses.WriteSuccess(ctx, w, result)
	}
}
