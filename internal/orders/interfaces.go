package orders

import (
	"context"

	"gorm.io/gorm"

	"github.com/angelmondragon/numberpool/pkg/db/models"
	"github.com/angelmondragon/numberpool/pkg/enums"
)

// Repository captures persistence operations for storefront orders.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, order *models.Order) error
	FindByID(ctx context.Context, id int64) (*models.Order, error)
	UpdateStatus(ctx context.Context, id int64, status enums.OrderStatus) error
	AddItems(ctx context.Context, items []models.OrderItem) error
}
