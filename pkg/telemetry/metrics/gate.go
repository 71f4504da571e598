package metrics

import (
	"mercator-hq/corsgate/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// GateMetrics tracks request gate outcomes.
//
// Metrics:
//   - corsgate_decisions_total: Gate decisions by kind and outcome
//   - corsgate_preflight_failures_total: Rejected preflights by failed check
//   - corsgate_middleware_errors_total: Internal faults recovered by fallback
//   - corsgate_timeouts_total: Requests that exceeded the deadline
type GateMetrics struct {
	decisionsTotal         *prometheus.CounterVec
	preflightFailuresTotal *prometheus.CounterVec
	middlewareErrorsTotal  prometheus.Counter
	timeoutsTotal          prometheus.Counter
}

// NewGateMetrics creates and registers gate metrics with the provided registry.
func NewGateMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *GateMetrics {
	gm := &GateMetrics{
		decisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "decisions_total",
				Help:      "Total number of CORS gate decisions",
			},
			[]string{"kind", "outcome"},
		),

		preflightFailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "preflight_failures_total",
				Help:      "Total number of rejected preflight requests by failed check",
			},
			[]string{"reason"},
		),

		middlewareErrorsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "middleware_errors_total",
				Help:      "Total number of internal gate faults handled by the fallback path",
			},
		),

		timeoutsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "timeouts_total",
				Help:      "Total number of requests that exceeded the request deadline",
			},
		),
	}

	registry.MustRegister(
		gm.decisionsTotal,
		gm.preflightFailuresTotal,
		gm.middlewareErrorsTotal,
		gm.timeoutsTotal,
	)

	return gm
}

// RecordDecision increments the decision counter.
func (gm *GateMetrics) RecordDecision(kind, outcome string) {
	gm.decisionsTotal.WithLabelValues(kind, outcome).Inc()
}

// RecordPreflightFailure increments the preflight failure counter.
func (gm *GateMetrics) RecordPreflightFailure(reason string) {
	gm.preflightFailuresTotal.WithLabelValues(reason).Inc()
}

// RecordMiddlewareError increments the middleware error counter.
func (gm *GateMetrics) RecordMiddlewareError() {
	gm.middlewareErrorsTotal.Inc()
}

// RecordTimeout increments the timeout counter.
func (gm *GateMetrics) RecordTimeout() {
	gm.timeoutsTotal.Inc()
}
