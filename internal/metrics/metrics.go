// Package metrics provides Prometheus instrumentation for the swap engine.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// SwapsTotal counts executed AMM swaps.
	SwapsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dnft_swaps_total",
		Help: "Total number of AMM swaps executed",
	})

	// TradesTotal counts matched order-book fills, partitioned by taker side.
	TradesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dnft_trades_total",
		Help: "Total number of matched order-book fills",
	}, []string{"taker_side"})

	// OrdersTotal counts limit orders accepted, partitioned by side.
	OrdersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dnft_orders_total",
		Help: "Total number of limit orders accepted",
	}, []string{"side"})

	// ActivePools tracks the number of initialized liquidity pools.
	ActivePools = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dnft_active_pools",
		Help: "Number of initialized liquidity pools",
	})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dnft_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dnft_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dnft_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})

	// RejectedOperations counts engine calls rejected with a domain error,
	// partitioned by operation.
	RejectedOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dnft_rejected_operations_total",
		Help: "Engine operations rejected with a domain error",
	}, []string{"operation"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		// Use the route pattern for path label to avoid high cardinality.
		path := r.URL.Path
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
