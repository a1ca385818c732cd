package migrate

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"

	"github.com/pressly/goose/v3"
)

const DefaultDir = "pkg/migrate/migrations"

const defaultDialect = "postgres"

var runnable = map[string]bool{
	"up":      true,
	"down":    true,
	"status":  true,
	"redo":    true,
	"version": true,
}

// Run executes a goose command against db.
func Run(ctx context.Context, db *sql.DB, dir string, command string, args ...string) error {
	if db == nil {
		return fmt.Errorf("db is required")
	}
	if !runnable[command] {
		return fmt.Errorf("unsupported goose command %q", command)
	}
	if err := ValidateDir(dir); err != nil {
		return err
	}
	if err := goose.SetDialect(defaultDialect); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	if err := goose.RunContext(ctx, command, db, dir, args...); err != nil {
		return fmt.Errorf("goose %s: %w", command, err)
	}
	return nil
}

// MigrateToVersion moves the schema up or down to targetVersion, which must
// name a migration present in dir.
func MigrateToVersion(ctx context.Context, db *sql.DB, dir string, targetVersion string) error {
	target, err := strconv.ParseInt(targetVersion, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid version %q (expected YYYYMMDDHHMMSS): %w", targetVersion, err)
	}
	files, err := ListDir(dir)
	if err != nil {
		return err
	}
	if !hasVersion(files, target) {
		return fmt.Errorf("no migration with version %d in %s", target, dir)
	}

	if err := goose.SetDialect(defaultDialect); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	current, err := goose.GetDBVersionContext(ctx, db)
	if err != nil {
		return fmt.Errorf("get db version: %w", err)
	}

	switch {
	case current == target:
		return nil
	case current < target:
		if err := goose.UpToContext(ctx, db, dir, target); err != nil {
			return fmt.Errorf("goose up-to %d: %w", target, err)
		}
	default:
		if err := goose.DownToContext(ctx, db, dir, target); err != nil {
			return fmt.Errorf("goose down-to %d: %w", target, err)
		}
	}
	return nil
}

func hasVersion(files []File, version int64) bool {
	for _, f := range files {
		if f.Version == version {
			return true
		}
	}
	return false
}
