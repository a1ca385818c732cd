package middleware

import (
	"net/http"

	"github.com/go-chi/cors"
)

const corsPreflightCache = 5 * 60

// CORS lets the storefront origins call the API with their session header and
// read the headers the cart widgets act on.
func CORS(origins []string) func(http.Handler) http.Handler {
	opts := cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete},
		AllowedHeaders: []string{
			"Authorization", "Content-Type", SessionHeader, IdempotencyHeader, requestIDHeader,
		},
		ExposedHeaders:   []string{requestIDHeader, replayHeader, "Retry-After"},
		AllowCredentials: true,
		MaxAge:           corsPreflightCache,
	}
	return cors.Handler(opts)
}
