package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/angelmondragon/numberpool/api/responses"
	"github.com/angelmondragon/numberpool/internal/identity"
	pkgAuth "github.com/angelmondragon/numberpool/pkg/auth"
	"github.com/angelmondragon/numberpool/pkg/config"
	pkgerrors "github.com/angelmondragon/numberpool/pkg/errors"
	"github.com/angelmondragon/numberpool/pkg/logger"
)

// SessionHeader carries the guest's cart session id.
const SessionHeader = "X-Session-Id"

type accountKey struct{}

// AccountIDFromContext returns the account id proven by a bearer token. It is
// empty for guests even though they carry an identity.Actor.
func AccountIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(accountKey{}).(string)
	return id
}

func WithAccountID(ctx context.Context, accountID string) context.Context {
	return context.WithValue(ctx, accountKey{}, accountID)
}

type actorResolver interface {
	Resolve(accountID, remoteAddr, sessionID string) (identity.Actor, error)
}

// Actor resolves who the request acts for. A bearer token selects the
// account; otherwise the caller is a guest keyed by its hashed address and
// cart session header. An invalid token is rejected rather than downgraded.
func Actor(cfg config.JWTConfig, resolver actorResolver, logg *logger.Logger) func(http.Handler) http.Handler {
	signer, signerErr := pkgAuth.NewSigner(cfg)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			accountID := ""
			if raw := r.Header.Get("Authorization"); strings.TrimSpace(raw) != "" {
				token, ok := pkgAuth.BearerToken(raw)
				if !ok {
					responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
					return
				}
				if signerErr != nil {
					responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, signerErr, "token verification unavailable"))
					return
				}
				id, err := signer.Verify(token)
				if err != nil {
					responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token"))
					return
				}
				accountID = id
				ctx = WithAccountID(ctx, accountID)
			}

			actor, err := resolver.Resolve(accountID, ClientIP(r), r.Header.Get(SessionHeader))
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "cannot identify shopper"))
				return
			}
			ctx = identity.WithActor(ctx, actor)
			if logg != nil {
				ctx = logg.WithFields(ctx, map[string]any{
					"actor_id":   actor.ID,
					"actor_kind": string(actor.Kind),
				})
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
