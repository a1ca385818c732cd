package models

import (
	"time"

	dbtypes "github.com/angelmondragon/numberpool/pkg/db/types"
)

// CartLine is one row of a live shopping cart. Quantity may exceed the number
// of assigned numbers; the difference is the count of empty slots.
type CartLine struct {
	CartKey         string             `gorm:"column:cart_key;primaryKey"`
	SessionKey      string             `gorm:"column:session_key;not null;index"`
	ActorID         string             `gorm:"column:actor_id;not null;index"`
	ParentProductID int64              `gorm:"column:parent_product_id;not null;index"`
	ProductID       int64              `gorm:"column:product_id;not null"`
	VariationID     int64              `gorm:"column:variation_id;not null;default:0"`
	Quantity        int                `gorm:"column:quantity;not null"`
	Numbers         dbtypes.NumberList `gorm:"column:numbers;type:text;not null"`
	Position        int64              `gorm:"column:position;not null"`
	CreatedAt       time.Time          `gorm:"column:created_at;not null"`
	UpdatedAt       time.Time          `gorm:"column:updated_at;not null"`
}

func (CartLine) TableName() string {
	return "cart_lines"
}

// EmptySlots returns how many units of the line have no number yet.
func (l CartLine) EmptySlots() int {
	if missing := l.Quantity - len(l.Numbers); missing > 0 {
		return missing
	}
	return 0
}

// LineProductID is the concrete purchasable item: the variation when set.
func (l CartLine) LineProductID() int64 {
	if l.VariationID != 0 {
		return l.VariationID
	}
	return l.ProductID
}
