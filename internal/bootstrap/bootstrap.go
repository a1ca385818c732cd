// Package bootstrap assembles the reservation domain for the cmd binaries so
// every process subscribes the same handlers to the event bus.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"

	"github.com/angelmondragon/numberpool/internal/availability"
	"github.com/angelmondragon/numberpool/internal/cart"
	"github.com/angelmondragon/numberpool/internal/events"
	"github.com/angelmondragon/numberpool/internal/identity"
	"github.com/angelmondragon/numberpool/internal/orders"
	"github.com/angelmondragon/numberpool/internal/products"
	"github.com/angelmondragon/numberpool/internal/reservations"
	"github.com/angelmondragon/numberpool/internal/timer"
	"github.com/angelmondragon/numberpool/pkg/clock"
	"github.com/angelmondragon/numberpool/pkg/config"
	"github.com/angelmondragon/numberpool/pkg/logger"
	"github.com/angelmondragon/numberpool/pkg/metrics"
	"github.com/angelmondragon/numberpool/pkg/outbox"
	"github.com/angelmondragon/numberpool/pkg/redis"
)

// NewLogger builds the process logger from the app config.
func NewLogger(service string, app config.AppConfig) *logger.Logger {
	opts := logger.Options{
		ServiceName: service,
		Level:       logger.ParseLevel(app.LogLevel),
		Format:      app.LogFormat,
		WarnStack:   app.LogWarnStack,
	}
	if app.LogFile != "" {
		opts.File = &logger.FileOptions{
			Path:       app.LogFile,
			MaxSizeMB:  app.LogMaxSizeMB,
			MaxBackups: app.LogMaxBackups,
			MaxAgeDays: app.LogMaxAgeDays,
			Compress:   app.LogCompression,
		}
	}
	return logger.New(opts)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type Params struct {
	Config     *config.Config
	Logger     *logger.Logger
	DB         *gorm.DB
	Tx         txRunner
	Redis      *redis.Client
	Registerer prometheus.Registerer
	Clock      clock.Clock
}

// Domain is the wired reservation subsystem.
type Domain struct {
	Bus          *events.Bus
	Products     *products.Repository
	Store        *reservations.Store
	Timers       *timer.Coordinator
	Availability *availability.Engine
	Cart         cart.Service
	Resolver     *identity.Resolver
	Migrator     *identity.Migrator
	Orders       orders.Service
	Bridge       *orders.Bridge
}

// NewDomain builds every component and registers the bus handlers.
func NewDomain(p Params) (*Domain, error) {
	if p.Config == nil || p.DB == nil || p.Tx == nil || p.Redis == nil {
		return nil, fmt.Errorf("config, db, tx runner and redis required")
	}
	cfg := p.Config
	if p.Clock == nil {
		p.Clock = clock.NewSystem()
	}

	resMetrics := metrics.NewReservationMetrics(p.Registerer)
	emitter := outbox.NewService(outbox.NewRepository(p.DB), p.Logger)
	bus := events.NewBus(p.Logger)

	resolver, err := identity.NewResolver(cfg.Identity)
	if err != nil {
		return nil, fmt.Errorf("identity resolver: %w", err)
	}

	store, err := reservations.NewStore(reservations.StoreParams{
		DB:      p.DB,
		Outbox:  emitter,
		Clock:   p.Clock,
		Logger:  p.Logger,
		Metrics: resMetrics,
	})
	if err != nil {
		return nil, fmt.Errorf("reservation store: %w", err)
	}

	timers, err := timer.NewCoordinator(timer.Params{
		Store:    timer.NewRedisStore(p.Redis),
		Ledger:   store,
		Bus:      bus,
		Tx:       p.Tx,
		Outbox:   emitter,
		Clock:    p.Clock,
		Duration: cfg.Reservation.TimerDuration(),
		GuestTTL: resolver.GuestSessionTTL(),
		Logger:   p.Logger,
		Metrics:  resMetrics,
	})
	if err != nil {
		return nil, fmt.Errorf("timer coordinator: %w", err)
	}

	limits := products.NewRepository(p.DB)
	lines := cart.NewRepository(p.DB)

	engine, err := availability.NewEngine(availability.Params{
		Limits:  limits,
		Ledger:  store,
		Cart:    lines,
		Expirer: timers,
		Clock:   p.Clock,
		Logger:  p.Logger,
		Metrics: resMetrics,
	})
	if err != nil {
		return nil, fmt.Errorf("availability engine: %w", err)
	}

	cartSvc, err := cart.NewService(cart.ServiceParams{
		Lines:        lines,
		Ledger:       store,
		Availability: engine,
		Limits:       limits,
		Timers:       timers,
		Bus:          bus,
		Logger:       p.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("cart service: %w", err)
	}

	migrator, err := identity.NewMigrator(identity.MigratorParams{
		Ledger: store,
		Timers: timers,
		Carts:  lines,
		Clock:  p.Clock,
		Logger: p.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("login migrator: %w", err)
	}

	orderSvc, err := orders.NewService(orders.NewRepository(p.DB), p.Tx, bus, p.Logger)
	if err != nil {
		return nil, fmt.Errorf("order service: %w", err)
	}
	bridge, err := orders.NewBridge(store, timers, p.Logger)
	if err != nil {
		return nil, fmt.Errorf("order bridge: %w", err)
	}

	// The bridge finalizes reservations before the cart drops the ordered lines.
	timers.Register(bus)
	bridge.Register(bus)
	cart.Register(bus, cartSvc)

	return &Domain{
		Bus:          bus,
		Products:     limits,
		Store:        store,
		Timers:       timers,
		Availability: engine,
		Cart:         cartSvc,
		Resolver:     resolver,
		Migrator:     migrator,
		Orders:       orderSvc,
		Bridge:       bridge,
	}, nil
}

// SeedCatalog loads the configured catalog file, if any, into the product
// limit table.
func SeedCatalog(ctx context.Context, cfg config.CatalogConfig, repo *products.Repository, logg *logger.Logger) error {
	if cfg.File == "" {
		return nil
	}
	limits, err := products.LoadCatalog(cfg.File)
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}
	return products.Seed(ctx, repo, limits, logg)
}
