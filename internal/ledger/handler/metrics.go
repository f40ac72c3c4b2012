package handler

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	h2BatchesTotal = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "h2_batches_total",
		Help: "Total number of production batches by status.",
	}, []string{"status"})

	h2CreditsTotal = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "h2_credits_total",
		Help: "Total number of credits by status.",
	}, []string{"status"})

	h2RequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "h2_requests_total",
		Help: "Total HTTP requests by method, path, and response status.",
	}, []string{"method", "path", "status"})

	h2RequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "h2_request_duration_seconds",
		Help:    "Request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	h2EventsAppended = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "h2_credit_events_total",
		Help: "Total credit lifecycle events appended by type.",
	}, []string{"type"})

	h2HealthChecksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "h2_health_checks_total",
		Help: "Total health check probes by result.",
	}, []string{"result"})
)

// PrometheusMiddleware returns a Gin middleware that records per-request metrics.
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())
		method := c.Request.Method
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		h2RequestsTotal.WithLabelValues(method, path, status).Inc()
		h2RequestDuration.WithLabelValues(method, path).Observe(duration)
	}
}

// MetricsHandler returns a Gin handler that serves Prometheus metrics.
func MetricsHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// RecordEventAppend records an event log append by lifecycle type.
func RecordEventAppend(eventType string) {
	h2EventsAppended.WithLabelValues(eventType).Inc()
}

// RecordHealthCheck records a health check probe result.
func RecordHealthCheck(success bool) {
	if success {
		h2HealthChecksTotal.WithLabelValues("success").Inc()
	} else {
		h2HealthChecksTotal.WithLabelValues("failure").Inc()
	}
}

// SetBatchesGauge sets the batch count gauge for a given status.
func SetBatchesGauge(status string, count float64) {
	h2BatchesTotal.WithLabelValues(status).Set(count)
}

// SetCreditsGauge sets the credit count gauge for a given status.
func SetCreditsGauge(status string, count float64) {
	h2CreditsTotal.WithLabelValues(status).Set(count)
}
