package db

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/angelmondragon/numberpool/pkg/logger"
)

// gormLogger forwards slow statements and driver errors to the service
// logger. Record-not-found is an expected outcome and stays quiet, as do
// ordinary statements.
type gormLogger struct {
	logg *logger.Logger
	slow time.Duration
}

func newGormLogger(logg *logger.Logger, slow time.Duration) gormlogger.Interface {
	if logg == nil {
		return gormlogger.Discard
	}
	return &gormLogger{logg: logg, slow: slow}
}

func (g *gormLogger) LogMode(gormlogger.LogLevel) gormlogger.Interface { return g }

func (g *gormLogger) Info(ctx context.Context, msg string, _ ...any) { g.logg.Debug(ctx, msg) }

func (g *gormLogger) Warn(ctx context.Context, msg string, _ ...any) { g.logg.Warn(ctx, msg) }

func (g *gormLogger) Error(ctx context.Context, msg string, _ ...any) {
	g.logg.Error(ctx, msg, errors.New(msg))
}

func (g *gormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	elapsed := time.Since(begin)
	slow := g.slow > 0 && elapsed >= g.slow
	failed := err != nil && !errors.Is(err, gorm.ErrRecordNotFound) && !errors.Is(err, context.Canceled)
	if !slow && !failed {
		return
	}
	sql, rows := fc()
	logCtx := g.logg.WithFields(ctx, map[string]any{
		"sql":         sql,
		"rows":        rows,
		"duration_ms": elapsed.Milliseconds(),
	})
	if failed {
		g.logg.Error(logCtx, "sql statement failed", err)
		return
	}
	g.logg.Warn(logCtx, "slow sql statement")
}
