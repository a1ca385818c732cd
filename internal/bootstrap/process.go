package bootstrap

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/numberpool/pkg/config"
	"github.com/angelmondragon/numberpool/pkg/db"
	"github.com/angelmondragon/numberpool/pkg/instance"
	"github.com/angelmondragon/numberpool/pkg/logger"
	"github.com/angelmondragon/numberpool/pkg/migrate"
	"github.com/angelmondragon/numberpool/pkg/redis"
)

// Process is the startup state every binary shares: config, logger and
// database, plus the cleanups to run on exit.
type Process struct {
	Kind   string
	Config *config.Config
	Logger *logger.Logger
	DB     *db.Client

	ctx      context.Context
	cleanups []cleanup
}

type cleanup struct {
	name string
	fn   func() error
}

// Start loads .env and the config, builds the logger and opens the database.
// It exits the process when any of them fails.
func Start(kind string) *Process {
	ctx := context.Background()
	early := logger.New(logger.Options{ServiceName: kind})
	if err := godotenv.Load(); err != nil {
		early.Debug(ctx, ".env file not found, relying on environment")
	}
	cfg, err := config.Load()
	if err != nil {
		early.Error(ctx, "failed to load config", err)
		os.Exit(1)
	}
	cfg.Service.Kind = kind

	p := &Process{Kind: kind, Config: cfg, Logger: NewLogger(kind, cfg.App)}
	p.ctx = p.Logger.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": kind,
		"instance":    instance.GetID(),
	})

	p.DB, err = db.New(p.ctx, cfg.DB, p.Logger)
	p.Must("database", err)
	p.OnClose("database", p.DB.Close)
	return p
}

// Context carries the process log fields.
func (p *Process) Context() context.Context {
	return p.ctx
}

// Must exits after running the cleanups when err is set.
func (p *Process) Must(resource string, err error) {
	if err == nil {
		return
	}
	p.Logger.Error(p.ctx, "resource not working: "+resource, err)
	p.Close()
	os.Exit(1)
}

// OnClose registers fn to run on Close. Cleanups run in reverse order.
func (p *Process) OnClose(name string, fn func() error) {
	p.cleanups = append(p.cleanups, cleanup{name: name, fn: fn})
}

func (p *Process) Close() {
	for i := len(p.cleanups) - 1; i >= 0; i-- {
		c := p.cleanups[i]
		if err := c.fn(); err != nil {
			p.Logger.Error(p.ctx, "error closing "+c.name, err)
		}
	}
	p.cleanups = nil
	_ = p.Logger.Close()
}

// AutoMigrate applies migrations in dev when the feature flag asks for it.
func (p *Process) AutoMigrate() {
	p.Must("dev migrations", migrate.MaybeRunDev(p.ctx, p.Config, p.Logger, p.DB))
}

// Redis opens the shared redis client and closes it with the process.
func (p *Process) Redis() *redis.Client {
	client, err := redis.New(p.ctx, p.Config.Redis, p.Logger)
	p.Must("redis", err)
	p.OnClose("redis", client.Close)
	return client
}

// Run blocks in run until SIGINT or SIGTERM cancels its context. Any other
// error exits with status 1.
func (p *Process) Run(run func(ctx context.Context) error) {
	ctx, stop := signal.NotifyContext(p.ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	p.Logger.Info(ctx, "starting "+p.Kind)
	if err := run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		p.Logger.Error(ctx, p.Kind+" stopped unexpectedly", err)
		stop()
		p.Close()
		os.Exit(1)
	}
	p.Logger.Info(ctx, p.Kind+" shut down gracefully")
}
