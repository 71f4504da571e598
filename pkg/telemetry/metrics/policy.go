package metrics

import (
	"mercator-hq/corsgate/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// PolicyMetrics tracks the CORS policy lifecycle.
//
// Metrics:
//   - corsgate_policy_changes_total: Publishes, rejections and resets by source
//   - corsgate_policy_revision: Revision of the active policy
//   - corsgate_policy_allowed_origins: Number of origins in the active policy
type PolicyMetrics struct {
	changesTotal   *prometheus.CounterVec
	revision       prometheus.Gauge
	allowedOrigins prometheus.Gauge
}

// NewPolicyMetrics creates and registers policy metrics with the provided registry.
func NewPolicyMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *PolicyMetrics {
	pm := &PolicyMetrics{
		changesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "policy_changes_total",
				Help:      "Total number of CORS policy change attempts",
			},
			[]string{"source", "result"},
		),

		revision: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Name:      "policy_revision",
				Help:      "Revision of the active CORS policy",
			},
		),

		allowedOrigins: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Name:      "policy_allowed_origins",
				Help:      "Number of allowed origins in the active CORS policy",
			},
		),
	}

	registry.MustRegister(
		pm.changesTotal,
		pm.revision,
		pm.allowedOrigins,
	)

	return pm
}

// RecordChange records one store change event. The gauges follow the
// published policy and are left alone by rejections and resets.
func (pm *PolicyMetrics) RecordChange(ev config.ChangeEvent) {
	result := "published"
	switch {
	case !ev.Success:
		result = "rejected"
	case ev.Current == nil:
		result = "reset"
	}
	pm.changesTotal.WithLabelValues(string(ev.Source), result).Inc()

	if ev.Success && ev.Current != nil {
		pm.revision.Set(float64(ev.Current.Revision))
		pm.allowedOrigins.Set(float64(len(ev.Current.AllowedOrigins)))
	}
}
