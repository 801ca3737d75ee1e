package middleware

import (
	"net/http"

	"github.com/go-chi/cors"
)

var defaultCORSOrigins = []string{
	"http://localhost:3000", // local dev
	"http://localhost:5173", // kiosk dev server
}

// CORS returns middleware that applies the API's allowed origin policy.
// Outside production an empty origins list falls back to the local
// development origins; in production it allows no cross-origin callers.
func CORS(origins []string, production bool) func(http.Handler) http.Handler {
	if len(origins) == 0 && !production {
		origins = defaultCORSOrigins
	}
	opts := cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "Idempotency-Key", "X-Request-Id", "X-Requested-With"},
		ExposedHeaders:   []string{"X-Request-Id", "Retry-After", "Idempotent-Replayed"},
		AllowCredentials: false,
		MaxAge:           300,
	}
	if len(origins) == 0 {
		// go-chi/cors reads an empty list as "allow all"
		opts.AllowOriginFunc = func(*http.Request, string) bool { return false }
	}
	return cors.New(opts).Handler
}
