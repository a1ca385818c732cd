package main

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/numberpool/internal/bootstrap"
	"github.com/angelmondragon/numberpool/internal/cron"
	"github.com/angelmondragon/numberpool/pkg/metrics"
	"github.com/angelmondragon/numberpool/pkg/outbox"
)

func main() {
	proc := bootstrap.Start("cron-worker")
	defer proc.Close()
	proc.AutoMigrate()

	cfg, logg := proc.Config, proc.Logger
	redisClient := proc.Redis()

	domain, err := bootstrap.NewDomain(bootstrap.Params{
		Config:     cfg,
		Logger:     logg,
		DB:         proc.DB.DB(),
		Tx:         proc.DB,
		Redis:      redisClient,
		Registerer: prometheus.DefaultRegisterer,
	})
	proc.Must("reservation domain", err)

	expiry, err := cron.NewReservationExpiryJob(cron.ReservationExpiryJobParams{
		Logger:    logg,
		Sweeper:   domain.Timers,
		BatchSize: cfg.Reservation.SweepBatchSize,
	})
	proc.Must("reservation expiry job", err)

	retention, err := cron.NewRetentionJob(cron.RetentionJobParams{
		Logger:        logg,
		DB:            proc.DB,
		Outbox:        outbox.NewRepository(proc.DB.DB()),
		DeadLetters:   outbox.NewDLQRepository(proc.DB.DB()),
		RetentionDays: cfg.Outbox.RetentionDays,
	})
	proc.Must("outbox retention job", err)

	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey("cron-worker"), cfg.Cron.LockTTL)
	proc.Must("cron lock", err)

	jobs := cron.NewRegistry(expiry)
	jobs.RegisterEvery(retention, cfg.Cron.RetentionEvery)

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: jobs,
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Cron.Interval,
		// a job must not outlive the lease that keeps other instances out
		JobTimeout: cfg.Cron.LockTTL,
	})
	proc.Must("cron service", err)

	proc.Run(service.Run)
}
