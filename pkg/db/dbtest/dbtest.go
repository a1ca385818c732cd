// Package dbtest opens isolated SQLite databases migrated with every model.
package dbtest

import (
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/angelmondragon/numberpool/pkg/db/models"
)

// Open returns a private in-memory database for the calling test.
func Open(t *testing.T, name string) *gorm.DB {
	t.Helper()
	dsn := "file:" + name + "_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Discard,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := conn.AutoMigrate(models.All()...); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })
	return conn
}

// SeedLimit stores a product limit configuration.
func SeedLimit(t *testing.T, conn *gorm.DB, limit models.ProductLimit) {
	t.Helper()
	if err := conn.Create(&limit).Error; err != nil {
		t.Fatalf("seed product limit: %v", err)
	}
}

// CountRows counts rows of model matching an optional condition.
func CountRows(t *testing.T, conn *gorm.DB, model any, query string, args ...any) int64 {
	t.Helper()
	var count int64
	q := conn.Model(model)
	if query != "" {
		q = q.Where(query, args...)
	}
	if err := q.Count(&count).Error; err != nil {
		t.Fatalf("count rows: %v", err)
	}
	return count
}
