package metrics

import (
	"mercator-hq/corsgate/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// CacheMetrics tracks origin decision cache performance.
//
// Metrics:
//   - corsgate_cache_hits_total: Total cache hits
//   - corsgate_cache_misses_total: Total cache misses (including expired entries)
//   - corsgate_cache_entries: Current number of entries in cache
//   - corsgate_cache_evictions_total: Total evictions by reason
type CacheMetrics struct {
	hitsTotal      prometheus.Counter
	missesTotal    prometheus.Counter
	entries        prometheus.Gauge
	evictionsTotal *prometheus.CounterVec
}

// NewCacheMetrics creates and registers cache metrics with the provided registry.
func NewCacheMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *CacheMetrics {
	cm := &CacheMetrics{
		hitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "cache_hits_total",
				Help:      "Total number of origin cache hits",
			},
		),

		missesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "cache_misses_total",
				Help:      "Total number of origin cache misses",
			},
		),

		entries: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Name:      "cache_entries",
				Help:      "Current number of entries in the origin cache",
			},
		),

		evictionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "cache_evictions_total",
				Help:      "Total number of origin cache evictions",
			},
			[]string{"reason"},
		),
	}

	registry.MustRegister(
		cm.hitsTotal,
		cm.missesTotal,
		cm.entries,
		cm.evictionsTotal,
	)

	return cm
}

// RecordHit records a cache hit.
func (cm *CacheMetrics) RecordHit() {
	cm.hitsTotal.Inc()
}

// RecordMiss records a cache miss.
func (cm *CacheMetrics) RecordMiss() {
	cm.missesTotal.Inc()
}

// UpdateSize sets the current number of entries.
func (cm *CacheMetrics) UpdateSize(size int) {
	cm.entries.Set(float64(size))
}

// RecordEviction records n evictions.
//
// Reasons:
//   - capacity: the cache was full and the oldest entry made room
//   - expired: the entry outlived the TTL
//   - cleared: the policy changed or the cache was flushed
//
// The hit rate is derived in PromQL:
//
//	rate(corsgate_cache_hits_total[5m]) /
//	(rate(corsgate_cache_hits_total[5m]) + rate(corsgate_cache_misses_total[5m]))
func (cm *CacheMetrics) RecordEviction(reason string, n int) {
	cm.evictionsTotal.WithLabelValues(reason).Add(float64(n))
}
