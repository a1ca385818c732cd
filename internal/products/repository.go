package products

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/numberpool/pkg/db/models"
	pkgerrors "github.com/angelmondragon/numberpool/pkg/errors"
)

// Repository reads and writes per-product number pool configuration.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a product limit repository bound to the provided DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// GetLimit returns the pool configuration for a product. Products without a
// row, or with the pool disabled, are reported as not found.
func (r *Repository) GetLimit(ctx context.Context, productID int64) (*models.ProductLimit, error) {
	var limit models.ProductLimit
	err := r.db.WithContext(ctx).
		Where("product_id = ?", productID).
		First(&limit).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product has no limited number pool")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product limit")
	}
	if !limit.Enabled {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "limited numbers are disabled for this product")
	}
	return &limit, nil
}

// Upsert inserts or replaces a product's configuration.
func (r *Repository) Upsert(ctx context.Context, limit *models.ProductLimit) error {
	if err := Validate(*limit); err != nil {
		return err
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "product_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"enabled", "start_number", "end_number", "max_quantity", "updated_at"}),
		}).
		Create(limit).Error
}

// List returns every configured product ordered by id.
func (r *Repository) List(ctx context.Context) ([]models.ProductLimit, error) {
	var rows []models.ProductLimit
	err := r.db.WithContext(ctx).Order("product_id ASC").Find(&rows).Error
	return rows, err
}

// Validate checks the range and cap of a configuration.
func Validate(limit models.ProductLimit) error {
	switch {
	case limit.ProductID <= 0:
		return pkgerrors.New(pkgerrors.CodeValidation, "product id must be positive")
	case limit.Start > limit.End:
		return pkgerrors.New(pkgerrors.CodeValidation, "start number must not exceed end number").
			WithDetails(map[string]int{"start": limit.Start, "end": limit.End})
	case limit.MaxQuantity < 0:
		return pkgerrors.New(pkgerrors.CodeValidation, "max quantity must not be negative")
	}
	return nil
}
