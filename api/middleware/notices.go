package middleware

import (
	"net/http"

	"github.com/angelmondragon/numberpool/internal/notices"
)

// Notices gives every request a collector for shopper-facing messages.
func Notices() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := notices.WithCollector(r.Context(), notices.NewCollector())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
