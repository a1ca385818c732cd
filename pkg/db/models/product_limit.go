package models

import "time"

// ProductLimit is the per-product limited edition configuration.
type ProductLimit struct {
	ProductID   int64     `gorm:"column:product_id;primaryKey;autoIncrement:false"`
	Enabled     bool      `gorm:"column:enabled;not null;default:false"`
	Start       int       `gorm:"column:start_number;not null"`
	End         int       `gorm:"column:end_number;not null"`
	MaxQuantity int       `gorm:"column:max_quantity;not null;default:0"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (ProductLimit) TableName() string {
	return "product_limits"
}
