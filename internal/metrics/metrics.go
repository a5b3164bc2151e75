// Package metrics exposes Prometheus metrics for the authorization flow and the web host.
package metrics

import (
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// codeRequestsTotal counts authorization requests by result.
	codeRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authflow_code_requests_total",
			Help: "Total number of authorization code requests dispatched",
		},
		[]string{"result"},
	)

	// tokenExchangesTotal counts token exchanges by result.
	tokenExchangesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authflow_token_exchanges_total",
			Help: "Total number of authorization code exchanges",
		},
		[]string{"result"},
	)

	tokenExchangeDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "authflow_token_exchange_duration_seconds",
			Help:    "Duration of authorization code exchanges in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authflow_http_requests_total",
			Help: "Total number of HTTP requests processed",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "authflow_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// activeSessions tracks the number of web sessions holding a provider.
	activeSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "authflow_active_sessions",
			Help: "Number of web sessions with a login provider",
		},
	)

	metricsRegistered atomic.Bool
	metricsEnabled    atomic.Bool
)

// SetEnabled toggles metrics collection.
func SetEnabled(enabled bool) {
	metricsEnabled.Store(enabled)
	if enabled {
		Register()
	}
}

// Enabled reports whether metrics are collected.
func Enabled() bool {
	return metricsEnabled.Load()
}

// Register registers all collectors with the default registry.
// It is safe to call multiple times.
func Register() {
	if !metricsRegistered.CompareAndSwap(false, true) {
		return
	}
	prometheus.MustRegister(
		codeRequestsTotal,
		tokenExchangesTotal,
		tokenExchangeDurationSeconds,
		httpRequestsTotal,
		httpRequestDurationSeconds,
		activeSessions,
	)
}

// ObserveCodeRequest records the result of one authorization request.
func ObserveCodeRequest(result string) {
	if !Enabled() {
		return
	}
	codeRequestsTotal.WithLabelValues(result).Inc()
}

// ObserveTokenExchange records the result and duration of one code exchange.
func ObserveTokenExchange(result string, duration time.Duration) {
	if !Enabled() {
		return
	}
	tokenExchangesTotal.WithLabelValues(result).Inc()
	tokenExchangeDurationSeconds.Observe(duration.Seconds())
}

// SetActiveSessions sets the session gauge.
func SetActiveSessions(n int) {
	if !Enabled() {
		return
	}
	activeSessions.Set(float64(n))
}

// PrometheusMiddleware returns a gin middleware recording request counts and durations.
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !Enabled() || c.Request.URL.Path == "/metrics" {
			c.Next()
			return
		}

		path := normalizePath(c.FullPath())
		method := c.Request.Method
		start := time.Now()

		c.Next()

		status := strconv.Itoa(c.Writer.Status())
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpRequestDurationSeconds.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
	}
}

// normalizePath keeps label cardinality bounded: unmatched routes collapse to one label.
func normalizePath(route string) string {
	if route != "" {
		return route
	}
	return "unmatched"
}

// Handler returns the /metrics handler. It answers 404 while metrics are disabled.
func Handler() gin.HandlerFunc {
	handler := promhttp.Handler()
	return func(c *gin.Context) {
		if !Enabled() {
			c.AbortWithStatus(http.StatusNotFound)
			return
		}
		handler.ServeHTTP(c.Writer, c.Request)
	}
}
