package products

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"github.com/angelmondragon/numberpool/pkg/db/models"
	"github.com/angelmondragon/numberpool/pkg/logger"
)

// CatalogEntry is one product in a seed file.
type CatalogEntry struct {
	ProductID   int64 `yaml:"productId"`
	Enabled     *bool `yaml:"enabled"`
	Start       int   `yaml:"start"`
	End         int   `yaml:"end"`
	MaxQuantity int   `yaml:"maxQuantity"`
}

// Catalog is the seed file layout:
//
//	products:
//	  - productId: 100
//	    start: 1
//	    end: 500
//	    maxQuantity: 2
type Catalog struct {
	Products []CatalogEntry `yaml:"products"`
}

// LoadCatalog reads and validates a YAML seed file. Entries default to enabled.
func LoadCatalog(path string) ([]models.ProductLimit, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %q: %w", path, err)
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes seed YAML into product limits.
func ParseCatalog(data []byte) ([]models.ProductLimit, error) {
	var catalog Catalog
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}

	seen := make(map[int64]struct{}, len(catalog.Products))
	limits := make([]models.ProductLimit, 0, len(catalog.Products))
	var errs error
	for i, entry := range catalog.Products {
		limit := models.ProductLimit{
			ProductID:   entry.ProductID,
			Enabled:     entry.Enabled == nil || *entry.Enabled,
			Start:       entry.Start,
			End:         entry.End,
			MaxQuantity: entry.MaxQuantity,
		}
		if err := Validate(limit); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("products[%d]: %w", i, err))
			continue
		}
		if _, dup := seen[limit.ProductID]; dup {
			errs = multierr.Append(errs, fmt.Errorf("products[%d]: duplicate product id %d", i, limit.ProductID))
			continue
		}
		seen[limit.ProductID] = struct{}{}
		limits = append(limits, limit)
	}
	if errs != nil {
		return nil, errs
	}
	return limits, nil
}

// Seed upserts every catalog entry.
func Seed(ctx context.Context, repo *Repository, limits []models.ProductLimit, logg *logger.Logger) error {
	for i := range limits {
		if err := repo.Upsert(ctx, &limits[i]); err != nil {
			return fmt.Errorf("seed product %d: %w", limits[i].ProductID, err)
		}
	}
	if logg != nil {
		logg.Info(logg.WithField(ctx, "products", len(limits)), "product limit catalog seeded")
	}
	return nil
}
