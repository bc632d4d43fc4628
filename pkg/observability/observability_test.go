package observability

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestHTTPMetrics_LabelsByPattern(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /things/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	h := HTTPMetrics(mux)

	counter := httpRequestsTotal.WithLabelValues("GET /things/{id}", http.MethodGet, "404")
	before := testutil.ToFloat64(counter)

	for _, id := range []string{"a", "b"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/things/"+id, nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	}

	assert.Equal(t, before+2, testutil.ToFloat64(counter))
	assert.Equal(t, float64(0), testutil.ToFloat64(httpRequestsInFlight))
}

func TestHTTPMetrics_Unmatched(t *testing.T) {
	h := HTTPMetrics(http.NewServeMux())

	counter := httpRequestsTotal.WithLabelValues(unmatchedRoute, http.MethodGet, "404")
	before := testutil.ToFloat64(counter)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/wp-login.php", nil))

	assert.Equal(t, before+1, testutil.ToFloat64(counter))
}

func TestHealthChecker(t *testing.T) {
	fixed := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	t.Run("healthy", func(t *testing.T) {
		hc := NewHealthChecker("sandbox")
		hc.now = func() time.Time { return fixed }
		hc.AddCheck("store", pingFunc(func(context.Context) error { return nil }))

		rec := httptest.NewRecorder()
		hc.HealthHandler()(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		var body HealthStatus
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "healthy", body.Status)
		assert.Equal(t, "sandbox", body.Environment)
		assert.Equal(t, fixed, body.Timestamp)
		assert.Equal(t, map[string]string{"store": "healthy"}, body.Checks)
	})

	t.Run("unhealthy dependency", func(t *testing.T) {
		hc := NewHealthChecker("production")
		hc.AddCheck("store", pingFunc(func(context.Context) error { return errors.New("connection refused") }))
		hc.AddCheck("cache", pingFunc(func(context.Context) error { return nil }))

		rec := httptest.NewRecorder()
		hc.HealthHandler()(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

		require.Equal(t, http.StatusServiceUnavailable, rec.Code)
		var body HealthStatus
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "unhealthy", body.Status)
		assert.Equal(t, "unhealthy: connection refused", body.Checks["store"])
		assert.Equal(t, "healthy", body.Checks["cache"])
	})

	t.Run("check is bounded", func(t *testing.T) {
		hc := NewHealthChecker("sandbox")
		hc.checkTimeout = 10 * time.Millisecond
		hc.AddCheck("store", pingFunc(func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		}))

		status := hc.Check(context.Background())
		assert.Equal(t, "unhealthy", status.Status)
		assert.Contains(t, status.Checks["store"], "deadline exceeded")
	})
}

func TestReadyHandler_Draining(t *testing.T) {
	hc := NewHealthChecker("sandbox")

	rec := httptest.NewRecorder()
	hc.ReadyHandler()(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	hc.SetDraining()

	rec = httptest.NewRecorder()
	hc.ReadyHandler()(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, `{"status":"draining"}`, rec.Body.String())
}

func TestRegisterRoutes(t *testing.T) {
	mux := http.NewServeMux()
	RegisterRoutes(mux, NewHealthChecker("sandbox"))

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/health", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestBusinessMetrics(t *testing.T) {
	before := testutil.ToFloat64(transactionTransitionsTotal.WithLabelValues("completed"))
	revenue := testutil.ToFloat64(paymentAmountKES.WithLabelValues("completed"))

	RecordTransition("completed", 1500, true)

	assert.Equal(t, before+1, testutil.ToFloat64(transactionTransitionsTotal.WithLabelValues("completed")))
	assert.Equal(t, revenue+1500, testutil.ToFloat64(paymentAmountKES.WithLabelValues("completed")))

	failedRevenue := testutil.ToFloat64(paymentAmountKES.WithLabelValues("failed"))
	RecordTransition("failed", 900, false)
	assert.Equal(t, failedRevenue, testutil.ToFloat64(paymentAmountKES.WithLabelValues("failed")))
}
