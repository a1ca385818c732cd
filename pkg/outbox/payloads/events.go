package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/numberpool/pkg/enums"
)

// ReservationBlockedEvent is emitted when a cart line first claims numbers or
// changes the numbers it holds.
type ReservationBlockedEvent struct {
	ReservationID   uuid.UUID `json:"reservation_id"`
	CartKey         string    `json:"cart_key"`
	ActorID         string    `json:"actor_id"`
	ParentProductID int64     `json:"parent_product_id"`
	ProductID       int64     `json:"product_id"`
	Numbers         []int     `json:"numbers"`
	ExpiresAt       time.Time `json:"expires_at"`
}

// ReservationOrderedEvent reports the blocked to ordered transition.
type ReservationOrderedEvent struct {
	ReservationID   uuid.UUID         `json:"reservation_id"`
	CartKey         string            `json:"cart_key"`
	ParentProductID int64             `json:"parent_product_id"`
	Numbers         []int             `json:"numbers"`
	OrderID         int64             `json:"order_id"`
	OrderItemID     int64             `json:"order_item_id"`
	OrderStatus     enums.OrderStatus `json:"order_status"`
	MatchedBy       string            `json:"matched_by"`
}

// ReservationReleasedEvent reports numbers returning to the pool.
type ReservationReleasedEvent struct {
	ReservationID   uuid.UUID `json:"reservation_id"`
	CartKey         string    `json:"cart_key"`
	ActorID         string    `json:"actor_id"`
	ParentProductID int64     `json:"parent_product_id"`
	Numbers         []int     `json:"numbers"`
	Reason          string    `json:"reason"`
	OrderID         *int64    `json:"order_id,omitempty"`
}

// ReservationTransferredEvent reports a guest to account ownership hand-off.
type ReservationTransferredEvent struct {
	FromActorID string `json:"from_actor_id"`
	ToActorID   string `json:"to_actor_id"`
	Rows        int64  `json:"rows"`
}

// TimerExpiredEvent reports an expiry cascade for one actor.
type TimerExpiredEvent struct {
	ActorID      string    `json:"actor_id"`
	ExpiredAt    time.Time `json:"expired_at"`
	ReleasedRows int       `json:"released_rows"`
	RemovedLines int       `json:"removed_lines"`
}

// OrderStatusChangedEvent is the inbound storefront notification consumed by
// the worker. OldStatus is empty when the order was just created.
type OrderStatusChangedEvent struct {
	OrderID   int64             `json:"order_id"`
	OldStatus enums.OrderStatus `json:"old_status,omitempty"`
	NewStatus enums.OrderStatus `json:"new_status"`
	ActorID   string            `json:"actor_id,omitempty"`
	Items     []OrderItem       `json:"items,omitempty"`
}

// OrderItem is one order line as captured at checkout.
type OrderItem struct {
	ID              int64  `json:"id"`
	CartKey         string `json:"cart_key"`
	ParentProductID int64  `json:"parent_product_id"`
	ProductID       int64  `json:"product_id"`
	Numbers         []int  `json:"numbers"`
}
