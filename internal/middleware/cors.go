package middleware

import (
	"net/http"

	"github.com/rs/cors"
	"go.uber.org/zap"
)

// CORS allows browser calls from the configured storefront origins only.
// Requests without an Origin header (the gateway, curl, mobile apps) pass
// through untouched.
func CORS(allowedOrigins []string, logger *zap.Logger) func(http.Handler) http.Handler {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}

	c := cors.New(cors.Options{
		AllowOriginFunc: func(origin string) bool {
			if allowed[origin] {
				return true
			}
			logger.Warn("CORS blocked request", zap.String("origin", origin))
			return false
		},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           600,
	})
	return c.Handler
}
