package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/angelmondragon/numberpool/api/responses"
	"github.com/angelmondragon/numberpool/pkg/config"
	pkgerrors "github.com/angelmondragon/numberpool/pkg/errors"
	"github.com/angelmondragon/numberpool/pkg/logger"
)

const readinessTimeout = 2 * time.Second

// Pinger is any dependency the readiness probe checks.
type Pinger interface {
	Ping(ctx context.Context) error
}

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Numberpool-Env", cfg.App.Env)
		responses.WriteSuccess(r.Context(), w, map[string]string{"status": "live"})
	}
}

// HealthReady reports ready only when the database and Redis answer.
func HealthReady(cfg *config.Config, logg *logger.Logger, db Pinger, cache Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Numberpool-Env", cfg.App.Env)
		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		defer cancel()

		checks := map[string]string{"database": "ok", "redis": "ok"}
		failed := false
		for name, dep := range map[string]Pinger{"database": db, "redis": cache} {
			if dep == nil {
				continue
			}
			if err := dep.Ping(ctx); err != nil {
				checks[name] = "unavailable"
				failed = true
				if logg != nil {
					logg.Error(logg.WithField(r.Context(), "dependency", name), "readiness check failed", err)
				}
			}
		}
		if failed {
			responses.WriteError(r.Context(), nil, w, pkgerrors.New(pkgerrors.CodeDependency, "dependencies unavailable").WithDetails(checks))
			return
		}
		responses.WriteSuccess(r.Context(), w, map[string]any{"status": "ready", "checks": checks})
	}
}
