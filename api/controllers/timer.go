package controllers

import (
	"context"
	"net/http"

	"github.com/angelmondragon/numberpool/api/responses"
	"github.com/angelmondragon/numberpool/internal/identity"
	"github.com/angelmondragon/numberpool/internal/notices"
	"github.com/angelmondragon/numberpool/internal/timer"
	"github.com/angelmondragon/numberpool/pkg/enums"
	"github.com/angelmondragon/numberpool/pkg/logger"
)

type TimerService interface {
	Status(ctx context.Context, actor identity.Actor) (timer.Status, error)
}

// TimerStatus returns the countdown. Storefronts call it when the page
// regains focus, which is also when an overdue cart gets expired.
func TimerStatus(svc TimerService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		actor, ok := requireActor(w, r, svc != nil, logg)
		if !ok {
			return
		}
		status, err := svc.Status(ctx, actor)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if status.State == enums.TimerStateExpired {
			notices.FromContext(ctx).Errorf("Your reservation time ran out and your numbers were released.")
		}
		responses.WriteSuccess(ctx, w, status)
	}
}
