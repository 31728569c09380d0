// Package metrics provides Prometheus instrumentation for the quest engine.
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
	// TradesTotal counts quest trades executed, partitioned by side.
	TradesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "blazeit_trades_total",
		Help: "Total number of quest trades executed",
	}, []string{"side"})

	// TradeLatency tracks trade execution latency.
	TradeLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "blazeit_trade_latency_seconds",
		Help:    "Trade execution latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"side"})

	// SnapshotCaptures counts snapshot capture attempts by kind and outcome.
	SnapshotCaptures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "blazeit_snapshot_captures_total",
		Help: "Price snapshot capture attempts",
	}, []string{"kind", "outcome"})

	// LeaderboardsComputed counts leaderboard computations.
	LeaderboardsComputed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "blazeit_leaderboards_computed_total",
		Help: "Leaderboards computed",
	})

	// ActiveQuests tracks the number of quests currently in the active state.
	ActiveQuests = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "blazeit_active_quests",
		Help: "Number of currently active quests",
	})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "blazeit_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "blazeit_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "blazeit_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})

	// TradeLimitRejections counts buys rejected by the trade limiter.
	TradeLimitRejections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "blazeit_trade_limit_rejections_total",
		Help: "Buys rejected by the trade limiter",
	})

	// PriceRefreshes counts price feed refresh cycles by outcome.
	PriceRefreshes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "blazeit_price_refreshes_total",
		Help: "Price feed refresh cycles",
	}, []string{"outcome"})
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
