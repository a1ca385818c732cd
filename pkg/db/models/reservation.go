package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	dbtypes "github.com/angelmondragon/numberpool/pkg/db/types"
	"github.com/angelmondragon/numberpool/pkg/enums"
)

// ReservationRecord is one claim batch: the numbers a single cart line holds
// for a limited product. Column names follow the legacy limit table so rows can
// be migrated in place.
type ReservationRecord struct {
	ID              uuid.UUID               `gorm:"column:id;type:uuid;primaryKey"`
	CartKey         string                  `gorm:"column:cart_key;not null;index"`
	ActorID         string                  `gorm:"column:user_id;not null;index"`
	ParentProductID int64                   `gorm:"column:parent_product_id;not null;index"`
	ProductID       int64                   `gorm:"column:product_id;not null"`
	ProductType     enums.ProductType       `gorm:"column:product_type;type:text;not null;default:'simple'"`
	Numbers         dbtypes.NumberList      `gorm:"column:limit_no;type:text;not null"`
	Status          enums.ReservationStatus `gorm:"column:status;type:text;not null;index"`
	CreatedAt       time.Time               `gorm:"column:time;not null"`
	ExpiresAt       time.Time               `gorm:"column:expiry_time;not null;index"`
	OrderID         *int64                  `gorm:"column:order_id;index"`
	OrderItemID     *int64                  `gorm:"column:order_item_id"`
	OrderStatus     *enums.OrderStatus      `gorm:"column:order_status;type:text"`
}

func (ReservationRecord) TableName() string {
	return "limit_reservations"
}

func (r *ReservationRecord) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

// ReservationNumber is the normalized membership row. The composite primary
// key makes a number claimable by at most one live reservation per product.
type ReservationNumber struct {
	ParentProductID int64     `gorm:"column:parent_product_id;primaryKey;autoIncrement:false"`
	Number          int       `gorm:"column:number;primaryKey;autoIncrement:false"`
	ReservationID   uuid.UUID `gorm:"column:reservation_id;type:uuid;not null;index"`
}

func (ReservationNumber) TableName() string {
	return "limit_reservation_numbers"
}
