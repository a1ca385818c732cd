package enums

import (
	"fmt"
	"strings"
)

// OrderStatus mirrors the storefront order lifecycle.
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusOnHold     OrderStatus = "on-hold"
	OrderStatusCompleted  OrderStatus = "completed"
	OrderStatusCancelled  OrderStatus = "cancelled"
	OrderStatusRefunded   OrderStatus = "refunded"
	OrderStatusFailed     OrderStatus = "failed"
)

var validOrderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusProcessing,
	OrderStatusOnHold,
	OrderStatusCompleted,
	OrderStatusCancelled,
	OrderStatusRefunded,
	OrderStatusFailed,
}

func (s OrderStatus) String() string {
	return string(s)
}

func (s OrderStatus) IsValid() bool {
	return oneOf(s, validOrderStatuses)
}

// ReleasesNumbers reports whether an order in this status gives its numbers
// back to the pool.
func (s OrderStatus) ReleasesNumbers() bool {
	switch s {
	case OrderStatusCancelled, OrderStatusRefunded, OrderStatusFailed:
		return true
	default:
		return false
	}
}

// ParseOrderStatus accepts the canonical value with an optional "wc-" prefix.
func ParseOrderStatus(value string) (OrderStatus, error) {
	status, err := parse("order status", strings.TrimPrefix(strings.ToLower(strings.TrimSpace(value)), "wc-"), validOrderStatuses)
	if err != nil {
		return "", fmt.Errorf("invalid order status %q", value)
	}
	return status, nil
}
