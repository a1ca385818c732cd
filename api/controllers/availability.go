package controllers

import (
	"context"
	"net/http"

	"github.com/angelmondragon/numberpool/api/responses"
	"github.com/angelmondragon/numberpool/api/validators"
	"github.com/angelmondragon/numberpool/internal/availability"
	"github.com/angelmondragon/numberpool/internal/identity"
	"github.com/angelmondragon/numberpool/internal/notices"
	dbtypes "github.com/angelmondragon/numberpool/pkg/db/types"
	pkgerrors "github.com/angelmondragon/numberpool/pkg/errors"
	"github.com/angelmondragon/numberpool/pkg/logger"
)

type AvailabilityService interface {
	Check(ctx context.Context, parentProductID int64, number int, actor identity.Actor, excludingCartKey string) (availability.Verdict, error)
	CheckNumbers(ctx context.Context, in availability.CheckInput) ([]availability.Verdict, error)
	Snapshot(ctx context.Context, parentProductID int64, actor identity.Actor) (availability.Snapshot, error)
}

const maxBatchNumbers = 50

// AvailabilityCheck answers whether the actor may take one number. Pass
// excludingCartKey when editing a line so its own numbers do not count.
func AvailabilityCheck(svc AvailabilityService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		actor, ok := requireActor(w, r, svc != nil, logg)
		if !ok {
			return
		}
		productID, err := validators.ParsePathInt64(r, "productId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		number, err := validators.ParsePathInt(r, "number")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		excluding := validators.QueryString(r, "excludingCartKey", 64)

		verdict, err := svc.Check(ctx, productID, number, actor, excluding)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if !verdict.Available {
			notices.FromContext(ctx).Errorf("%s", verdict.Message())
		}
		responses.WriteSuccess(ctx, w, verdict)
	}
}

// AvailabilityBatch checks a picker selection in one call. Earlier numbers of
// the batch count toward the quota of later ones.
func AvailabilityBatch(svc AvailabilityService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		actor, ok := requireActor(w, r, svc != nil, logg)
		if !ok {
			return
		}
		productID, err := validators.ParsePathInt64(r, "productId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		numbers, err := validators.QueryNumbers(r, "numbers", maxBatchNumbers)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		verdicts, err := svc.CheckNumbers(ctx, availability.CheckInput{
			ParentProductID:  productID,
			Numbers:          dbtypes.NumberList(numbers),
			Actor:            actor,
			ExcludingCartKey: validators.QueryString(r, "excludingCartKey", 64),
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		collector := notices.FromContext(ctx)
		for _, v := range verdicts {
			if !v.Available {
				collector.Errorf("%s", v.Message())
			}
		}
		responses.WriteSuccess(ctx, w, verdicts)
	}
}

// AvailabilitySnapshot classifies every number of a product for pickers.
func AvailabilitySnapshot(svc AvailabilityService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		actor, ok := requireActor(w, r, svc != nil, logg)
		if !ok {
			return
		}
		productID, err := validators.ParsePathInt64(r, "productId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		snapshot, err := svc.Snapshot(ctx, productID, actor)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(ctx, w, snapshot)
	}
}

func requireActor(w http.ResponseWriter, r *http.Request, wired bool, logg *logger.Logger) (identity.Actor, bool) {
	if !wired {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "service unavailable"))
		return identity.Actor{}, false
	}
	actor, ok := identity.ActorFromContext(r.Context())
	if !ok {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "shopper not identified"))
		return identity.Actor{}, false
	}
	return actor, true
}
