package metrics

import (
	"strconv"
	"time"

	"mercator-hq/corsgate/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// RequestMetrics tracks completed HTTP requests.
//
// Metrics:
//   - corsgate_requests_total: Total requests by method and status code
//   - corsgate_request_duration_seconds: Request duration histogram by method
type RequestMetrics struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

// NewRequestMetrics creates and registers request metrics with the provided registry.
func NewRequestMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *RequestMetrics {
	rm := &RequestMetrics{
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "requests_total",
				Help:      "Total number of HTTP requests processed",
			},
			[]string{"method", "code"},
		),

		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Name:      "request_duration_seconds",
				Help:      "Duration of HTTP requests in seconds",
				// Up to the default 5 minute request deadline
				Buckets: []float64{0.005, 0.025, 0.1, 0.5, 1, 5, 30, 120, 300},
			},
			[]string{"method"},
		),
	}

	registry.MustRegister(
		rm.requestsTotal,
		rm.requestDuration,
	)

	return rm
}

// RecordRequest records a completed request.
func (rm *RequestMetrics) RecordRequest(method string, status int, duration time.Duration) {
	rm.requestsTotal.WithLabelValues(method, strconv.Itoa(status)).Inc()
	rm.requestDuration.WithLabelValues(method).Observe(duration.Seconds())
}
