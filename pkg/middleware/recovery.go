package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	httputil "github.com/kevin07696/mpesa-bridge/pkg/http"
	"go.uber.org/zap"
)

// Recovery turns a handler panic into a JSON 500 {error}. The panic value
// is only echoed to the caller when exposeErrors is set (non-production).
func Recovery(logger *zap.Logger, exposeErrors bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				logger.Error("Panic recovered in HTTP handler",
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.String("request_id", RequestIDFromContext(r.Context())),
					zap.Any("panic", rec),
					zap.String("stack", string(debug.Stack())),
				)

				message := "Internal server error"
				if exposeErrors {
					message = fmt.Sprint(rec)
				}
				httputil.WriteJSON(w, http.StatusInternalServerError, map[string]string{"error": message})
			}()

			next.ServeHTTP(w, r)
		})
	}
}
