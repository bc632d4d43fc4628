package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RegisterRoutes mounts the Prometheus exposition and the health probes
// on the service mux.
func RegisterRoutes(mux *http.ServeMux, health *HealthChecker) {
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /health", health.HealthHandler())
	mux.HandleFunc("GET /ready", health.ReadyHandler())
}
