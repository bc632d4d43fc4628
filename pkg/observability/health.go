package observability

import (
	"context"
	"net/http"
	"sort"
	"sync/atomic"
	"time"

	pkghttp "github.com/kevin07696/mpesa-bridge/pkg/http"
)

const (
	statusHealthy   = "healthy"
	statusUnhealthy = "unhealthy"
)

// Pinger is anything whose reachability can be probed: the transaction
// store, a pgx pool, a redis client wrapper.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthStatus represents the health status of the service
type HealthStatus struct {
	Status      string            `json:"status"`
	Timestamp   time.Time         `json:"timestamp"`
	Environment string            `json:"environment"`
	Checks      map[string]string `json:"checks"`
}

// HealthChecker runs named dependency checks for /health and tracks
// readiness for /ready.
type HealthChecker struct {
	checks       map[string]Pinger
	environment  string
	checkTimeout time.Duration
	draining     atomic.Bool
	now          func() time.Time
}

// NewHealthChecker creates a HealthChecker tagged with the deployment environment
func NewHealthChecker(environment string) *HealthChecker {
	return &HealthChecker{
		checks:       make(map[string]Pinger),
		environment:  environment,
		checkTimeout: 2 * time.Second,
		now:          time.Now,
	}
}

// AddCheck registers a dependency probe; call before serving
func (h *HealthChecker) AddCheck(name string, p Pinger) {
	h.checks[name] = p
}

// SetDraining flips readiness off so load balancers stop routing new
// traffic while in-flight requests finish.
func (h *HealthChecker) SetDraining() {
	h.draining.Store(true)
}

// Check performs health checks and returns the status
func (h *HealthChecker) Check(ctx context.Context) HealthStatus {
	checks := make(map[string]string, len(h.checks))
	overall := statusHealthy

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		checkCtx, cancel := context.WithTimeout(ctx, h.checkTimeout)
		err := h.checks[name].Ping(checkCtx)
		cancel()

		if err != nil {
			checks[name] = statusUnhealthy + ": " + err.Error()
			overall = statusUnhealthy
		} else {
			checks[name] = statusHealthy
		}
	}

	return HealthStatus{
		Status:      overall,
		Timestamp:   h.now().UTC(),
		Environment: h.environment,
		Checks:      checks,
	}
}

// HealthHandler returns an HTTP handler for health checks
func (h *HealthChecker) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := h.Check(r.Context())

		code := http.StatusOK
		if status.Status != statusHealthy {
			code = http.StatusServiceUnavailable
		}
		pkghttp.WriteJSON(w, code, status)
	}
}

// ReadyHandler reports 503 once draining has started
func (h *HealthChecker) ReadyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h.draining.Load() {
			pkghttp.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "draining"})
			return
		}
		pkghttp.WriteJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}
