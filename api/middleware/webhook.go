package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/angelmondragon/numberpool/api/responses"
	pkgerrors "github.com/angelmondragon/numberpool/pkg/errors"
	"github.com/angelmondragon/numberpool/pkg/logger"
)

// WebhookSecretHeader carries the shared secret of the order system.
const WebhookSecretHeader = "X-Webhook-Secret"

// WebhookSecret rejects calls that do not present the configured secret. An
// empty secret refuses every call.
func WebhookSecret(secret string, logg *logger.Logger) func(http.Handler) http.Handler {
	expected := []byte(strings.TrimSpace(secret))
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := []byte(strings.TrimSpace(r.Header.Get(WebhookSecretHeader)))
			if len(expected) == 0 || subtle.ConstantTimeCompare(got, expected) != 1 {
				if logg != nil {
					logg.Warn(r.Context(), "webhook.secret_rejected")
				}
				responses.WriteError(r.Context(), nil, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid webhook secret"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
