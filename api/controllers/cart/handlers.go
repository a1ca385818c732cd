package cart

import (
	"net/http"

	cartdto "github.com/angelmondragon/numberpool/api/controllers/cart/dto"
	"github.com/angelmondragon/numberpool/api/responses"
	"github.com/angelmondragon/numberpool/api/validators"
	cartsvc "github.com/angelmondragon/numberpool/internal/cart"
	"github.com/angelmondragon/numberpool/internal/identity"
	dbtypes "github.com/angelmondragon/numberpool/pkg/db/types"
	pkgerrors "github.com/angelmondragon/numberpool/pkg/errors"
	"github.com/angelmondragon/numberpool/pkg/logger"
)

const maxCartKeyLen = 64

// CartFetch returns the actor's cart. Viewing checks the countdown, so an
// overdue cart is emptied before it is shown.
func CartFetch(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorOrError(w, r, svc, logg)
		if !ok {
			return
		}
		view, err := svc.View(r.Context(), actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(r.Context(), w, view)
	}
}

// CartAddLine adds a line and reserves its numbers.
func CartAddLine(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorOrError(w, r, svc, logg)
		if !ok {
			return
		}
		var payload cartdto.AddLineRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		view, err := svc.AddLine(r.Context(), actor, toAddLineInput(payload))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(r.Context(), w, http.StatusCreated, view)
	}
}

// CartSetNumbers replaces the numbers of an existing line.
func CartSetNumbers(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorOrError(w, r, svc, logg)
		if !ok {
			return
		}
		cartKey, err := validators.PathString(r, "cartKey", maxCartKeyLen)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload cartdto.SetNumbersRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		view, err := svc.SetNumbers(r.Context(), actor, cartKey, dbtypes.NumberList(payload.Numbers))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(r.Context(), w, view)
	}
}

// CartIncrease adds one empty slot to a line.
func CartIncrease(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorOrError(w, r, svc, logg)
		if !ok {
			return
		}
		cartKey, err := validators.PathString(r, "cartKey", maxCartKeyLen)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		view, err := svc.IncreaseQuantity(r.Context(), actor, cartKey)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(r.Context(), w, view)
	}
}

// CartDecrease lowers a line's quantity. The body is optional and defaults to
// one unit.
func CartDecrease(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorOrError(w, r, svc, logg)
		if !ok {
			return
		}
		cartKey, err := validators.PathString(r, "cartKey", maxCartKeyLen)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload cartdto.DecreaseRequest
		if r.ContentLength != 0 {
			if err := validators.DecodeJSONBody(r, &payload); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}
		view, err := svc.DecreaseQuantity(r.Context(), actor, cartKey, toDecreaseInput(payload))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(r.Context(), w, view)
	}
}

// CartRemoveLine deletes a line and releases its numbers.
func CartRemoveLine(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorOrError(w, r, svc, logg)
		if !ok {
			return
		}
		cartKey, err := validators.PathString(r, "cartKey", maxCartKeyLen)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		view, err := svc.RemoveLine(r.Context(), actor, cartKey)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(r.Context(), w, view)
	}
}

// CartEmpty removes every line and stops the countdown.
func CartEmpty(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorOrError(w, r, svc, logg)
		if !ok {
			return
		}
		view, err := svc.Empty(r.Context(), actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(r.Context(), w, view)
	}
}

func actorOrError(w http.ResponseWriter, r *http.Request, svc cartsvc.Service, logg *logger.Logger) (identity.Actor, bool) {
	if svc == nil {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart service unavailable"))
		return identity.Actor{}, false
	}
	actor, ok := identity.ActorFromContext(r.Context())
	if !ok {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "shopper not identified"))
		return identity.Actor{}, false
	}
	return actor, true
}
