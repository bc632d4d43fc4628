package middleware

import (
	"net/http"
	"time"

	httputil "github.com/kevin07696/mpesa-bridge/pkg/http"
	"go.uber.org/zap"
)

// Logging writes one structured access log line per request.
// 5xx responses log at Error, 4xx at Warn.
func Logging(logger *zap.Logger, trustProxy bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := httputil.NewStatusRecorder(w)

			next.ServeHTTP(rec, r)

			fields := []zap.Field{
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", rec.Status),
				zap.Int("bytes", rec.Bytes),
				zap.Duration("duration", time.Since(start)),
				zap.String("remote_ip", ClientIP(r, trustProxy)),
				zap.String("user_agent", r.UserAgent()),
			}
			if id := RequestIDFromContext(r.Context()); id != "" {
				fields = append(fields, zap.String("request_id", id))
			}

			switch {
			case rec.Status >= 500:
				logger.Error("HTTP request", fields...)
			case rec.Status >= 400:
				logger.Warn("HTTP request", fields...)
			default:
				logger.Info("HTTP request", fields...)
			}
		})
	}
}
