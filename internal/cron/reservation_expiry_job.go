package cron

import (
	"context"
	"fmt"

	"github.com/angelmondragon/numberpool/internal/timer"
	"github.com/angelmondragon/numberpool/pkg/logger"
)

const defaultSweepBatch = 200

type expirySweeper interface {
	Sweep(ctx context.Context, limit int) (timer.SweepResult, error)
}

type ReservationExpiryJobParams struct {
	Logger    *logger.Logger
	Sweeper   expirySweeper
	BatchSize int
}

// NewReservationExpiryJob builds the job that runs the expiry cascade for
// every actor holding blocked rows past their deadline.
func NewReservationExpiryJob(params ReservationExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Sweeper == nil {
		return nil, fmt.Errorf("timer coordinator required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultSweepBatch
	}
	return &reservationExpiryJob{
		logg:    params.Logger,
		sweeper: params.Sweeper,
		batch:   batch,
	}, nil
}

type reservationExpiryJob struct {
	logg    *logger.Logger
	sweeper expirySweeper
	batch   int
}

func (j *reservationExpiryJob) Name() string { return "reservation-expiry" }

// Run sweeps in batches until a batch comes back short. Failed actors are
// reported but do not stop the sweep.
func (j *reservationExpiryJob) Run(ctx context.Context) error {
	var total timer.SweepResult
	for {
		res, err := j.sweeper.Sweep(ctx, j.batch)
		total.Expired += res.Expired
		total.Released += res.Released
		total.Failed += res.Failed
		if err != nil {
			j.log(ctx, total)
			return fmt.Errorf("reservation expiry: %w", err)
		}
		if res.Expired+res.Failed < j.batch || res.Expired == 0 {
			break
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	j.log(ctx, total)
	return nil
}

func (j *reservationExpiryJob) log(ctx context.Context, total timer.SweepResult) {
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"actors_expired":   total.Expired,
		"numbers_released": total.Released,
		"actors_failed":    total.Failed,
	})
	j.logg.Info(logCtx, "reservation expiry sweep complete")
}
