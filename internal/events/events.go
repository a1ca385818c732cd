// Package events is the in-process bus connecting the reservation components.
// It carries exactly three event kinds and dispatches synchronously.
package events

import (
	"time"

	"github.com/angelmondragon/numberpool/internal/identity"
	"github.com/angelmondragon/numberpool/pkg/db/models"
	dbtypes "github.com/angelmondragon/numberpool/pkg/db/types"
	"github.com/angelmondragon/numberpool/pkg/enums"
)

type Kind string

const (
	KindOrderStatusChanged Kind = "order-status-changed"
	KindCartLineChanged    Kind = "cart-line-changed"
	KindTimerExpired       Kind = "timer-expired"
)

// OrderStatusChanged fires when the storefront reports a new order status.
// OldStatus is empty for a newly created order.
type OrderStatusChanged struct {
	OrderID   int64
	ActorID   string
	OldStatus enums.OrderStatus
	NewStatus enums.OrderStatus
	Items     []models.OrderItem
}

// LineChange names what happened to a cart line's reservation.
type LineChange string

const (
	LineClaimed  LineChange = "claimed"
	LineReleased LineChange = "released"
	LineRemoved  LineChange = "removed"
)

// CartLineChanged fires after the reconciler wrote or dropped numbers.
type CartLineChanged struct {
	Actor           identity.Actor
	CartKey         string
	ParentProductID int64
	Numbers         dbtypes.NumberList
	Change          LineChange
}

// TimerExpired fires once an actor's countdown ran out and their blocked
// reservations were deleted.
type TimerExpired struct {
	Actor     identity.Actor
	ExpiredAt time.Time
	CartKeys  []string
}
