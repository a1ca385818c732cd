package reservations

import (
	"time"

	"github.com/angelmondragon/numberpool/pkg/db/models"
	dbtypes "github.com/angelmondragon/numberpool/pkg/db/types"
	"github.com/angelmondragon/numberpool/pkg/enums"
	pkgerrors "github.com/angelmondragon/numberpool/pkg/errors"
)

// ClaimInput describes the numbers a cart line wants to hold.
type ClaimInput struct {
	CartKey         string
	ActorID         string
	ParentProductID int64
	ProductID       int64
	ProductType     enums.ProductType
	Numbers         dbtypes.NumberList
	ExpiresAt       time.Time
}

func (in ClaimInput) validate() error {
	switch {
	case in.CartKey == "":
		return pkgerrors.New(pkgerrors.CodeValidation, "cart key required")
	case in.ActorID == "":
		return pkgerrors.New(pkgerrors.CodeValidation, "actor id required")
	case in.ParentProductID == 0:
		return pkgerrors.New(pkgerrors.CodeValidation, "parent product id required")
	case len(in.Numbers) == 0:
		return pkgerrors.New(pkgerrors.CodeValidation, "at least one number required")
	case in.ExpiresAt.IsZero():
		return pkgerrors.New(pkgerrors.CodeValidation, "expiry required")
	}
	return nil
}

func (in ClaimInput) productType() enums.ProductType {
	if in.ProductType == "" {
		return enums.ProductTypeSimple
	}
	return in.ProductType
}

// ClaimResult reports whether the claim was written. Conflicts lists the
// requested numbers another live row holds when it was skipped.
type ClaimResult struct {
	Record    *models.ReservationRecord
	Applied   bool
	Conflicts dbtypes.NumberList
}

const (
	MatchedByCartKey = "cart_key"
	MatchedByNumbers = "numbers"
)

// FinalizeInput carries one order item captured at checkout.
type FinalizeInput struct {
	CartKey         string
	ParentProductID int64
	Numbers         dbtypes.NumberList
	OrderID         int64
	OrderItemID     int64
	OrderStatus     enums.OrderStatus
}

// FinalizeResult reports the row an order item was matched to.
type FinalizeResult struct {
	Record    *models.ReservationRecord
	MatchedBy string
	Finalized bool
}

// ReleaseReason explains why numbers returned to the pool.
type ReleaseReason string

const (
	ReasonLineRemoved      ReleaseReason = "line_removed"
	ReasonQuantityDecrease ReleaseReason = "quantity_decreased"
	ReasonMerged           ReleaseReason = "merged"
	ReasonQuotaTrim        ReleaseReason = "quota_trimmed"
	ReasonStale            ReleaseReason = "stale"
	ReasonExpired          ReleaseReason = "expired"
	ReasonCartEmptied      ReleaseReason = "cart_emptied"
	ReasonLogout           ReleaseReason = "logout"
	ReasonLoginDiscard     ReleaseReason = "login_discard"
	ReasonOrderCancelled   ReleaseReason = "order_cancelled"
)

func (r ReleaseReason) event() Event {
	switch r {
	case ReasonExpired:
		return EventExpire
	case ReasonOrderCancelled:
		return EventCancel
	default:
		return EventRelease
	}
}
