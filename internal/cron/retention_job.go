package cron

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/numberpool/pkg/logger"
)

const (
	defaultRetentionDays = 30
	defaultMinAttempts   = 5
	// Dead letters are kept longer than delivered rows so they can be replayed.
	dlqRetentionFactor = 3
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPurger interface {
	DeletePublishedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time, minAttemptCount int) (int64, error)
}

type dlqPurger interface {
	DeleteFailedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error)
}

type RetentionJobParams struct {
	Logger        *logger.Logger
	DB            txRunner
	Outbox        outboxPurger
	DeadLetters   dlqPurger
	RetentionDays int
	MinAttempts   int
}

// NewRetentionJob builds the job that trims delivered outbox rows and old
// dead letters. DeadLetters is optional.
func NewRetentionJob(params RetentionJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox repository required")
	}
	days := params.RetentionDays
	if days <= 0 {
		days = defaultRetentionDays
	}
	minAttempts := params.MinAttempts
	if minAttempts <= 0 {
		minAttempts = defaultMinAttempts
	}
	return &retentionJob{
		logg:        params.Logger,
		db:          params.DB,
		outbox:      params.Outbox,
		dlq:         params.DeadLetters,
		retention:   time.Duration(days) * 24 * time.Hour,
		minAttempts: minAttempts,
		now:         time.Now,
	}, nil
}

type retentionJob struct {
	logg        *logger.Logger
	db          txRunner
	outbox      outboxPurger
	dlq         dlqPurger
	retention   time.Duration
	minAttempts int
	now         func() time.Time
}

func (j *retentionJob) Name() string { return "outbox-retention" }

func (j *retentionJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	outboxCutoff := now.Add(-j.retention)
	dlqCutoff := now.Add(-j.retention * dlqRetentionFactor)

	var events, deadLetters int64
	err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		if events, err = j.outbox.DeletePublishedBefore(ctx, tx, outboxCutoff, j.minAttempts); err != nil {
			return fmt.Errorf("outbox events: %w", err)
		}
		if j.dlq == nil {
			return nil
		}
		if deadLetters, err = j.dlq.DeleteFailedBefore(ctx, tx, dlqCutoff); err != nil {
			return fmt.Errorf("dead letters: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("outbox retention: %w", err)
	}

	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"outbox_cutoff":        outboxCutoff,
		"dlq_cutoff":           dlqCutoff,
		"min_attempts":         j.minAttempts,
		"events_deleted":       events,
		"dead_letters_deleted": deadLetters,
	}), "outbox retention cleanup complete")
	return nil
}
