package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMiddleware_UsesRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Middleware())
	r.Get("/api/v1/records/{entity}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "/api/v1/records/{entity}"))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/records/appointments", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	after := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "/api/v1/records/{entity}"))
	assert.Equal(t, before+1, after)
}

func TestQueueMetrics(t *testing.T) {
	before := testutil.ToFloat64(queueDeliveriesTotal.WithLabelValues(ResultDeadLettered))
	ObserveDelivery(ResultDeadLettered, time.Now())
	assert.Equal(t, before+1, testutil.ToFloat64(queueDeliveriesTotal.WithLabelValues(ResultDeadLettered)))

	SetQueueDepth(7)
	assert.Equal(t, float64(7), testutil.ToFloat64(queueDepth))

	SetOnline(true)
	assert.Equal(t, float64(1), testutil.ToFloat64(connectivityOnline))
	SetOnline(false)
	assert.Equal(t, float64(0), testutil.ToFloat64(connectivityOnline))
}

func TestHandler_ExposesMetrics(t *testing.T) {
	ObserveCacheLookup(true)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "clinicsync_cache_lookups_total"))
}
