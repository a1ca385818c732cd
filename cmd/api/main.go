package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/angelmondragon/numberpool/api/routes"
	"github.com/angelmondragon/numberpool/internal/bootstrap"
	"github.com/angelmondragon/numberpool/pkg/metrics"
)

const (
	shutdownTimeout   = 15 * time.Second
	readHeaderTimeout = 10 * time.Second
)

func main() {
	proc := bootstrap.Start("api")
	defer proc.Close()
	proc.AutoMigrate()

	cfg, logg := proc.Config, proc.Logger
	redisClient := proc.Redis()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	domain, err := bootstrap.NewDomain(bootstrap.Params{
		Config:     cfg,
		Logger:     logg,
		DB:         proc.DB.DB(),
		Tx:         proc.DB,
		Redis:      redisClient,
		Registerer: reg,
	})
	proc.Must("reservation domain", err)
	proc.Must("product catalog", bootstrap.SeedCatalog(proc.Context(), cfg.Catalog, domain.Products, logg))

	// PORT is set by the hosting platform and wins over the configured port.
	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	server := &http.Server{
		Addr: ":" + port,
		Handler: routes.NewRouter(routes.Dependencies{
			Config:       cfg,
			Logger:       logg,
			DB:           proc.DB,
			Redis:        redisClient,
			Gatherer:     reg,
			HTTPMetrics:  metrics.NewHTTPMetrics(reg),
			Resolver:     domain.Resolver,
			Migrator:     domain.Migrator,
			Availability: domain.Availability,
			Cart:         domain.Cart,
			Timer:        domain.Timers,
			Orders:       domain.Orders,
		}),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	proc.Run(func(ctx context.Context) error {
		logg.Info(logg.WithField(ctx, "addr", server.Addr), "listening")
		served := make(chan error, 1)
		go func() { served <- server.ListenAndServe() }()

		select {
		case err := <-served:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		}
	})
}
