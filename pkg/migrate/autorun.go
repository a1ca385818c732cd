package migrate

import (
	"context"
	"fmt"

	"github.com/angelmondragon/numberpool/pkg/config"
	"github.com/angelmondragon/numberpool/pkg/db"
	"github.com/angelmondragon/numberpool/pkg/db/models"
	"github.com/angelmondragon/numberpool/pkg/logger"
)

// MaybeRunDev brings the schema up to date on dev boots with the AutoMigrate
// flag set. SQLite is synced from the gorm models since the SQL files use
// Postgres features.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if !cfg.App.IsDev() || !cfg.FeatureFlags.AutoMigrate {
		return nil
	}
	conn := client.DB().WithContext(ctx)

	if cfg.DB.IsSQLite() || cfg.FeatureFlags.UseSQLite {
		logg.Info(logg.WithField(ctx, "driver", config.DBDriverSQLite), "syncing sqlite schema from models")
		if err := conn.AutoMigrate(models.All()...); err != nil {
			return fmt.Errorf("sqlite automigrate: %w", err)
		}
		return nil
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return fmt.Errorf("sql handle: %w", err)
	}
	ctx = logg.WithField(ctx, "dir", DefaultDir)
	logg.Info(ctx, "applying pending migrations")
	if err := Run(ctx, sqlDB, DefaultDir, "up"); err != nil {
		return fmt.Errorf("goose up: %w", err)
	}
	logg.Info(ctx, "migrations applied")
	return nil
}
