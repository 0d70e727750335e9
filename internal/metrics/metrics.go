package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Delivery results
const (
	ResultDelivered    = "delivered"
	ResultFailed       = "failed"
	ResultDeadLettered = "dead_lettered"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clinicsync_http_requests_total",
		Help: "Total number of HTTP requests processed.",
	}, []string{"method", "route"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "clinicsync_http_request_duration_seconds",
		Help:    "Histogram of latencies for HTTP requests.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})

	queueDeliveriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clinicsync_queue_deliveries_total",
		Help: "Queue delivery attempts by result.",
	}, []string{"result"})

	queueDeliveryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "clinicsync_queue_delivery_duration_seconds",
		Help:    "Histogram of queue delivery attempt latencies.",
		Buckets: prometheus.DefBuckets,
	}, []string{"result"})

	queueDrainsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clinicsync_queue_drains_total",
		Help: "Drain passes, including passes skipped by the single-drain guard.",
	}, []string{"skipped"})

	queueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "clinicsync_queue_depth",
		Help: "Items left in the sync queue after the last drain.",
	})

	cacheLookupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clinicsync_cache_lookups_total",
		Help: "Response cache lookups by result.",
	}, []string{"result"})

	realtimeEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clinicsync_realtime_events_total",
		Help: "Change events received from the feed.",
	}, []string{"entity", "kind"})

	connectivityOnline = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "clinicsync_connectivity_online",
		Help: "1 when the remote service is reachable.",
	})
)

// Middleware records request metrics using the chi route pattern as label
func Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			// Шаблон маршрута известен только после роутинга
			route := routePattern(r)
			status := strconv.Itoa(ww.Status())
			httpRequestsTotal.WithLabelValues(r.Method, route).Inc()
			httpRequestDuration.WithLabelValues(r.Method, route, status).Observe(time.Since(start).Seconds())
		})
	}
}

// Handler exposes the Prometheus metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveDelivery records one queue delivery attempt
func ObserveDelivery(result string, start time.Time) {
	queueDeliveriesTotal.WithLabelValues(result).Inc()
	queueDeliveryDuration.WithLabelValues(result).Observe(time.Since(start).Seconds())
}

// ObserveDrain counts a drain pass
func ObserveDrain(skipped bool) {
	queueDrainsTotal.WithLabelValues(strconv.FormatBool(skipped)).Inc()
}

// SetQueueDepth reports the number of items still queued
func SetQueueDepth(n int) {
	queueDepth.Set(float64(n))
}

// ObserveCacheLookup counts a cache hit or miss
func ObserveCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	cacheLookupsTotal.WithLabelValues(result).Inc()
}

// ObserveChange counts a change event received from the feed
func ObserveChange(entity, kind string) {
	realtimeEventsTotal.WithLabelValues(entity, kind).Inc()
}

// SetOnline reports the connectivity state
func SetOnline(online bool) {
	if online {
		connectivityOnline.Set(1)
		return
	}
	connectivityOnline.Set(0)
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := strings.TrimSpace(rctx.RoutePattern()); pattern != "" {
			return pattern
		}
	}
	return "unmatched"
}
