package models

import (
	"time"

	dbtypes "github.com/angelmondragon/numberpool/pkg/db/types"
	"github.com/angelmondragon/numberpool/pkg/enums"
)

// Order is the storefront order as last reported to the service.
type Order struct {
	ID        int64             `gorm:"column:id;primaryKey;autoIncrement:false"`
	ActorID   string            `gorm:"column:actor_id;not null;default:''"`
	Status    enums.OrderStatus `gorm:"column:status;type:text;not null"`
	Items     []OrderItem       `gorm:"foreignKey:OrderID"`
	CreatedAt time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

func (Order) TableName() string {
	return "orders"
}

// OrderItem carries the cart key and numbers captured at checkout.
type OrderItem struct {
	ID              int64              `gorm:"column:id;primaryKey;autoIncrement:false"`
	OrderID         int64              `gorm:"column:order_id;not null;index"`
	CartKey         string             `gorm:"column:cart_key;not null;default:''"`
	ParentProductID int64              `gorm:"column:parent_product_id;not null"`
	ProductID       int64              `gorm:"column:product_id;not null"`
	Numbers         dbtypes.NumberList `gorm:"column:numbers;type:text;not null"`
}

func (OrderItem) TableName() string {
	return "order_items"
}
