package orders

import (
	"github.com/angelmondragon/numberpool/pkg/db/models"
	dbtypes "github.com/angelmondragon/numberpool/pkg/db/types"
	"github.com/angelmondragon/numberpool/pkg/enums"
	pkgerrors "github.com/angelmondragon/numberpool/pkg/errors"
	"github.com/angelmondragon/numberpool/pkg/outbox/payloads"
)

// StatusChange is an order creation or status update reported by the shop.
type StatusChange struct {
	OrderID int64
	ActorID string
	Status  enums.OrderStatus
	Items   []ItemInput
}

// ItemInput is one order line captured at checkout.
type ItemInput struct {
	ID              int64
	CartKey         string
	ParentProductID int64
	ProductID       int64
	Numbers         dbtypes.NumberList
}

// StatusChangeResult reports what ApplyStatus persisted.
type StatusChangeResult struct {
	OrderID   int64             `json:"orderId"`
	OldStatus enums.OrderStatus `json:"oldStatus,omitempty"`
	NewStatus enums.OrderStatus `json:"newStatus"`
	Changed   bool              `json:"changed"`
}

// ChangeFromEvent converts an inbound order event into a StatusChange. The
// event's old status is ignored; the persisted order is authoritative.
func ChangeFromEvent(e payloads.OrderStatusChangedEvent) StatusChange {
	items := make([]ItemInput, 0, len(e.Items))
	for _, it := range e.Items {
		items = append(items, ItemInput{
			ID:              it.ID,
			CartKey:         it.CartKey,
			ParentProductID: it.ParentProductID,
			ProductID:       it.ProductID,
			Numbers:         dbtypes.NumberList(it.Numbers),
		})
	}
	return StatusChange{
		OrderID: e.OrderID,
		ActorID: e.ActorID,
		Status:  e.NewStatus,
		Items:   items,
	}
}

func (in StatusChange) validate() error {
	if in.OrderID <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	if !in.Status.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "unknown order status")
	}
	seen := make(map[int64]struct{}, len(in.Items))
	for _, it := range in.Items {
		if it.ID <= 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "order item id is required")
		}
		if _, dup := seen[it.ID]; dup {
			return pkgerrors.New(pkgerrors.CodeValidation, "duplicate order item id")
		}
		seen[it.ID] = struct{}{}
		if it.ParentProductID <= 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "order item product is required")
		}
		if it.Numbers.HasDuplicates() {
			return pkgerrors.New(pkgerrors.CodeValidation, "order item numbers must be unique")
		}
	}
	return nil
}

func (in StatusChange) itemModels() []models.OrderItem {
	items := make([]models.OrderItem, 0, len(in.Items))
	for _, it := range in.Items {
		productID := it.ProductID
		if productID == 0 {
			productID = it.ParentProductID
		}
		numbers := it.Numbers
		if numbers == nil {
			numbers = dbtypes.NumberList{}
		}
		items = append(items, models.OrderItem{
			ID:              it.ID,
			OrderID:         in.OrderID,
			CartKey:         it.CartKey,
			ParentProductID: it.ParentProductID,
			ProductID:       productID,
			Numbers:         numbers,
		})
	}
	return items
}
