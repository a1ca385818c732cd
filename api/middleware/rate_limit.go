package middleware

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/angelmondragon/numberpool/api/responses"
	"github.com/angelmondragon/numberpool/internal/identity"
	pkgerrors "github.com/angelmondragon/numberpool/pkg/errors"
	"github.com/angelmondragon/numberpool/pkg/logger"
)

const clientLimiterIdle = 10 * time.Minute

type windowStore interface {
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

// ClientRateLimit throttles availability lookups per client address with a
// token bucket held in process memory.
func ClientRateLimit(perSecond float64, burst int, logg *logger.Logger) func(http.Handler) http.Handler {
	limiters := newClientLimiters(rate.Limit(perSecond), burst)
	return func(next http.Handler) http.Handler {
		if perSecond <= 0 || burst <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := ClientIP(r)
			if !limiters.allow(ip, time.Now()) {
				respondRateLimited(r.Context(), logg, w, "client", ip, burst)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ActorRateLimit caps cart mutations per actor with a Redis fixed window so
// the limit holds across API instances. Requests without an actor pass.
func ActorRateLimit(store windowStore, limit int, window time.Duration, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if store == nil || limit <= 0 || window <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			actor, ok := identity.ActorFromContext(ctx)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}
			allowed, _, err := store.FixedWindowAllow(ctx, "actor:"+actor.ID, int64(limit), window)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rate limiting"))
				return
			}
			if !allowed {
				respondRateLimited(ctx, logg, w, "actor", actor.ID, limit)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func respondRateLimited(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, scope, subject string, limit int) {
	if logg != nil {
		logCtx := logg.WithFields(ctx, map[string]any{
			"scope":   scope,
			"subject": subject,
			"limit":   limit,
		})
		logg.Warn(logCtx, "rate_limit.blocked")
	}
	responses.WriteError(ctx, nil, w, pkgerrors.New(pkgerrors.CodeRateLimit, "too many requests, slow down"))
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type clientLimiters struct {
	mu      sync.Mutex
	limit   rate.Limit
	burst   int
	clients map[string]*clientLimiter
	swept   time.Time
}

func newClientLimiters(limit rate.Limit, burst int) *clientLimiters {
	return &clientLimiters{
		limit:   limit,
		burst:   burst,
		clients: make(map[string]*clientLimiter),
	}
}

func (c *clientLimiters) allow(ip string, now time.Time) bool {
	ip = strings.TrimSpace(ip)
	c.mu.Lock()
	defer c.mu.Unlock()

	if now.Sub(c.swept) > clientLimiterIdle {
		for key, entry := range c.clients {
			if now.Sub(entry.lastSeen) > clientLimiterIdle {
				delete(c.clients, key)
			}
		}
		c.swept = now
	}

	entry, ok := c.clients[ip]
	if !ok {
		entry = &clientLimiter{limiter: rate.NewLimiter(c.limit, c.burst)}
		c.clients[ip] = entry
	}
	entry.lastSeen = now
	return entry.limiter.AllowN(now, 1)
}
