// Package metrics provides Prometheus metrics collection for corsgate.
//
// # Metrics Categories
//
//   - Gate Metrics: decisions by kind and outcome, preflight failures,
//     recovered middleware faults, request timeouts
//   - Cache Metrics: origin cache hits, misses, evictions and size
//   - Policy Metrics: policy changes by source and result, active revision
//   - Request Metrics: request count and duration by method and status
//
// # Usage
//
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
//
//	cache := origin.NewCache(origin.WithObserver(collector))
//	store.OnChange(collector.ConfigListener())
//	gate := middleware.NewGate(store, validator, logger, middleware.WithRecorder(collector))
//
//	adminRouter.Handle("/metrics", collector.Handler())
//
// # Prometheus Endpoint
//
// Metrics are exposed on the admin listener only:
//
//	# HELP corsgate_decisions_total Total number of CORS gate decisions
//	# TYPE corsgate_decisions_total counter
//	corsgate_decisions_total{kind="simple",outcome="allowed"} 1234
//
// # Cardinality Management
//
// Request methods come from clients, so the method label is capped by a
// CardinalityLimiter; values beyond the limit are aggregated into "other".
// Origins are never used as label values.
package metrics
