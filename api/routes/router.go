package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/numberpool/api/controllers"
	cartcontrollers "github.com/angelmondragon/numberpool/api/controllers/cart"
	webhookcontrollers "github.com/angelmondragon/numberpool/api/controllers/webhooks"
	"github.com/angelmondragon/numberpool/api/middleware"
	"github.com/angelmondragon/numberpool/internal/cart"
	"github.com/angelmondragon/numberpool/internal/identity"
	"github.com/angelmondragon/numberpool/pkg/config"
	"github.com/angelmondragon/numberpool/pkg/logger"
	"github.com/angelmondragon/numberpool/pkg/metrics"
	pkgredis "github.com/angelmondragon/numberpool/pkg/redis"
)

// RedisStore is the Redis surface the HTTP layer needs.
type RedisStore interface {
	pkgredis.IdempotencyStore
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
	Ping(ctx context.Context) error
}

type actorResolver interface {
	Resolve(accountID, remoteAddr, sessionID string) (identity.Actor, error)
	Guest(remoteAddr, sessionID string) (identity.Actor, error)
}

// Dependencies carries everything the router hands to controllers.
type Dependencies struct {
	Config       *config.Config
	Logger       *logger.Logger
	DB           controllers.Pinger
	Redis        RedisStore
	Gatherer     prometheus.Gatherer
	HTTPMetrics  *metrics.HTTPMetrics
	Resolver     actorResolver
	Migrator     controllers.LoginMigrator
	Availability controllers.AvailabilityService
	Cart         cart.Service
	Timer        controllers.TimerService
	Orders       webhookcontrollers.OrderStatusService
}

func NewRouter(d Dependencies) http.Handler {
	cfg, logg := d.Config, d.Logger

	trusted, err := cfg.App.TrustedProxyPrefixes()
	if err != nil && logg != nil {
		logg.Error(context.Background(), "ignoring trusted proxies", err)
	}

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.ClientAddress(trusted),
		middleware.Logging(logg, d.HTTPMetrics),
		middleware.CORS(cfg.App.CORSOrigins),
		middleware.Notices(),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, d.DB, d.Redis))
	})

	if d.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))
	}

	idempotent := middleware.Idempotency(d.Redis, middleware.CartIdempotencyTTL, logg)
	actorLimit := middleware.ActorRateLimit(d.Redis, cfg.RateLimit.ActorLimit, cfg.RateLimit.ActorWindow, logg)
	clientLimit := middleware.ClientRateLimit(cfg.RateLimit.AvailabilityPerSecond, cfg.RateLimit.AvailabilityBurst, logg)

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Use(middleware.WebhookSecret(cfg.Webhook.OrdersSecret, logg))
		r.With(middleware.Idempotency(d.Redis, middleware.WebhookIdempotencyTTL, logg)).Post("/orders", webhookcontrollers.OrderWebhook(d.Orders, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Actor(cfg.JWT, d.Resolver, logg))

		r.Route("/products/{productId}", func(r chi.Router) {
			r.Use(clientLimit, actorLimit)
			r.Get("/numbers", controllers.AvailabilityBatch(d.Availability, logg))
			r.Get("/numbers/{number}", controllers.AvailabilityCheck(d.Availability, logg))
			r.Get("/availability", controllers.AvailabilitySnapshot(d.Availability, logg))
		})

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", cartcontrollers.CartFetch(d.Cart, logg))
			r.With(actorLimit).Delete("/", cartcontrollers.CartEmpty(d.Cart, logg))
			r.With(actorLimit, idempotent).Post("/lines", cartcontrollers.CartAddLine(d.Cart, logg))
			r.With(actorLimit).Put("/lines/{cartKey}/numbers", cartcontrollers.CartSetNumbers(d.Cart, logg))
			r.With(actorLimit, idempotent).Post("/lines/{cartKey}/increase", cartcontrollers.CartIncrease(d.Cart, logg))
			r.With(actorLimit, idempotent).Post("/lines/{cartKey}/decrease", cartcontrollers.CartDecrease(d.Cart, logg))
			r.With(actorLimit).Delete("/lines/{cartKey}", cartcontrollers.CartRemoveLine(d.Cart, logg))
		})

		r.Get("/timer", controllers.TimerStatus(d.Timer, logg))

		r.Route("/identity", func(r chi.Router) {
			r.Get("/me", controllers.IdentityMe(logg))
			r.With(idempotent).Post("/login", controllers.IdentityLogin(d.Resolver, d.Migrator, d.Cart, logg))
			r.Post("/logout", controllers.IdentityLogout(d.Cart, logg))
		})
	})

	return r
}
