package controllers

import (
	"context"
	"net/http"

	"github.com/angelmondragon/numberpool/api/middleware"
	"github.com/angelmondragon/numberpool/api/responses"
	"github.com/angelmondragon/numberpool/internal/cart"
	"github.com/angelmondragon/numberpool/internal/identity"
	"github.com/angelmondragon/numberpool/internal/notices"
	pkgerrors "github.com/angelmondragon/numberpool/pkg/errors"
	"github.com/angelmondragon/numberpool/pkg/logger"
)

type GuestResolver interface {
	Guest(remoteAddr, sessionID string) (identity.Actor, error)
}

type LoginMigrator interface {
	Migrate(ctx context.Context, guest, account identity.Actor) (identity.MergeResult, error)
}

type CartSession interface {
	Reconcile(ctx context.Context, actor identity.Actor) error
	Logout(ctx context.Context, actor identity.Actor) (cart.LogoutResult, error)
}

// IdentityMe returns the actor the request resolved to.
func IdentityMe(logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r, true, logg)
		if !ok {
			return
		}
		responses.WriteSuccess(r.Context(), w, actor)
	}
}

// IdentityLogin runs the login merge for a freshly authenticated account. The
// guest is the visitor behind the same address and cart session header.
func IdentityLogin(resolver GuestResolver, migrator LoginMigrator, carts CartSession, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if resolver == nil || migrator == nil || carts == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "identity service unavailable"))
			return
		}
		account, ok := accountActor(w, r, logg)
		if !ok {
			return
		}
		guest, err := resolver.Guest(middleware.ClientIP(r), r.Header.Get(middleware.SessionHeader))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "cannot identify guest session"))
			return
		}

		result, err := migrator.Migrate(ctx, guest, account)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if err := carts.Reconcile(ctx, account); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if result.Outcome == identity.MergeDiscarded && result.Released > 0 {
			notices.FromContext(ctx).Infof("Your account already had numbers on hold, so the %d number(s) picked before login were released.", result.Released)
		}
		responses.WriteSuccess(ctx, w, result)
	}
}

// IdentityLogout applies the logout policy to the account's cart.
func IdentityLogout(carts CartSession, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if carts == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart service unavailable"))
			return
		}
		account, ok := accountActor(w, r, logg)
		if !ok {
			return
		}
		result, err := carts.Logout(ctx, account)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(ctx, w, result)
	}
}

func accountActor(w http.ResponseWriter, r *http.Request, logg *logger.Logger) (identity.Actor, bool) {
	actor, ok := identity.ActorFromContext(r.Context())
	if !ok || actor.IsGuest() || middleware.AccountIDFromContext(r.Context()) == "" {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "account token required"))
		return identity.Actor{}, false
	}
	return actor, true
}
