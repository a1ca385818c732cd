package db

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/numberpool/pkg/logger"
)

type testModel struct {
	ID   int
	Name string
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{
		SkipDefaultTransaction: true,
	})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := conn.AutoMigrate(&testModel{}); err != nil {
		t.Fatalf("failed to migrate sqlite: %v", err)
	}
	return conn
}

func TestWithTx_CommitsAndRollbacks(t *testing.T) {
	db := newTestDB(t)
	client := &Client{conn: db}

	ctx := context.Background()
	if err := client.WithTx(ctx, func(tx *gorm.DB) error {
		return tx.Create(&testModel{Name: "committed"}).Error
	}); err != nil {
		t.Fatalf("WithTx commit failed: %v", err)
	}

	var count int64
	if err := db.Model(&testModel{}).Count(&count).Error; err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 record, got %d", count)
	}

	err := client.WithTx(ctx, func(tx *gorm.DB) error {
		if err := tx.Create(&testModel{Name: "rolled"}).Error; err != nil {
			return err
		}
		return errors.New("boom")
	})
	if err == nil {
		t.Fatal("expected WithTx to return an error")
	}
	if err := db.Model(&testModel{}).Count(&count).Error; err != nil {
		t.Fatalf("count failed after rollback: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected rollback to leave 1 record, got %d", count)
	}
}

func TestWithTxRollsBackOnPanic(t *testing.T) {
	db := newTestDB(t)
	client := Wrap(db)

	func() {
		defer func() {
			if recover() == nil {
				t.Fatal("expected panic to propagate")
			}
		}()
		_ = client.WithTx(context.Background(), func(tx *gorm.DB) error {
			tx.Create(&testModel{Name: "panicked"})
			panic("boom")
		})
	}()

	var count int64
	db.Model(&testModel{}).Where("name = ?", "panicked").Count(&count)
	if count != 0 {
		t.Fatalf("expected rollback after panic, got %d rows", count)
	}
}

func TestGormLoggerReportsSlowAndFailedStatements(t *testing.T) {
	var buf bytes.Buffer
	logg := logger.New(logger.Options{ServiceName: "test", Level: zerolog.DebugLevel, Output: &buf})
	gl := newGormLogger(logg, 10*time.Millisecond)
	sql := func() (string, int64) { return "SELECT 1", 1 }

	gl.Trace(context.Background(), time.Now(), sql, nil)
	gl.Trace(context.Background(), time.Now(), sql, gorm.ErrRecordNotFound)
	if buf.Len() != 0 {
		t.Fatalf("fast or not-found statements must stay quiet, got %s", buf.String())
	}

	gl.Trace(context.Background(), time.Now().Add(-time.Second), sql, nil)
	if !strings.Contains(buf.String(), "slow sql statement") {
		t.Fatalf("expected slow statement warning, got %s", buf.String())
	}
	buf.Reset()
	gl.Trace(context.Background(), time.Now(), sql, errors.New("relation missing"))
	if !strings.Contains(buf.String(), "sql statement failed") || !strings.Contains(buf.String(), "SELECT 1") {
		t.Fatalf("expected failure log with sql, got %s", buf.String())
	}
	if newGormLogger(nil, time.Second) == nil {
		t.Fatal("expected discard logger without a service logger")
	}
}

func TestPing(t *testing.T) {
	db := newTestDB(t)
	client := &Client{conn: db}
	if err := client.Ping(context.Background()); err != nil {
		t.Fatalf("unexpected ping error: %v", err)
	}
}

type uniqueModel struct {
	ID   int
	Code string `gorm:"uniqueIndex"`
}

func TestIsUniqueViolation_SQLite(t *testing.T) {
	conn, err := gorm.Open(sqlite.Open("file:unique_test?mode=memory&cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := conn.AutoMigrate(&uniqueModel{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	if err := conn.Create(&uniqueModel{Code: "a"}).Error; err != nil {
		t.Fatalf("first insert: %v", err)
	}
	err = conn.Create(&uniqueModel{Code: "a"}).Error
	if !IsUniqueViolation(err, "") {
		t.Fatalf("expected unique violation, got %v", err)
	}
	if IsUniqueViolation(errors.New("connection reset"), "") {
		t.Fatalf("unrelated error reported as unique violation")
	}
}

func TestWrapExposesConnection(t *testing.T) {
	conn := newTestDB(t)
	if Wrap(conn).DB() != conn {
		t.Fatal("expected wrapped connection to be returned")
	}
}

func TestIsUniqueViolationMatchesPostgresConstraint(t *testing.T) {
	err := fmt.Errorf("claim: %w", &pgconn.PgError{Code: "23505", ConstraintName: "uq_limit_reservation_numbers_number"})
	if !IsUniqueViolation(err, "") {
		t.Fatalf("expected unique violation")
	}
	if !IsUniqueViolation(err, "uq_limit_reservation_numbers_number") {
		t.Fatalf("expected constraint match")
	}
	if IsUniqueViolation(err, "other_constraint") {
		t.Fatalf("constraint name must narrow the match")
	}
	if IsUniqueViolation(&pgconn.PgError{Code: "23514"}, "") {
		t.Fatalf("check violation is not a unique violation")
	}
}
