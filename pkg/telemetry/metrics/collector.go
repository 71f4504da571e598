package metrics

import (
	"sync"
	"time"

	"mercator-hq/corsgate/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector owns every Prometheus metric exposed by corsgate. It implements
// the gate's decision recorder, the origin cache observer and a policy change
// listener, so each component reports through one registry.
//
// When metrics are disabled every Record method is a no-op.
type Collector struct {
	config   *config.MetricsConfig
	registry *prometheus.Registry

	// Gate decisions, preflight failures, faults and timeouts
	gateMetrics *GateMetrics

	// Origin decision cache
	cacheMetrics *CacheMetrics

	// Policy publishes, rejections and the active revision
	policyMetrics *PolicyMetrics

	// Completed requests seen by the access log
	requestMetrics *RequestMetrics

	// Methods are client controlled, so their label values are bounded
	cardinalityLimiter *CardinalityLimiter
}

// NewCollector creates a collector and registers its metrics with registry.
// If registry is nil a new one is created.
//
// Example:
//
//	cfg := &config.MetricsConfig{Enabled: true, Namespace: "corsgate"}
//	collector := metrics.NewCollector(cfg, nil)
func NewCollector(cfg *config.MetricsConfig, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	if cfg.Namespace == "" {
		cfg.Namespace = config.DefaultMetricsNamespace
	}

	c := &Collector{
		config:             cfg,
		registry:           registry,
		cardinalityLimiter: NewCardinalityLimiter(64),
	}

	c.gateMetrics = NewGateMetrics(cfg, registry)
	c.cacheMetrics = NewCacheMetrics(cfg, registry)
	c.policyMetrics = NewPolicyMetrics(cfg, registry)
	c.requestMetrics = NewRequestMetrics(cfg, registry)

	return c
}

// RecordDecision counts one gate decision.
//
// Parameters:
//   - kind: "simple" or "preflight"
//   - outcome: "allowed", "rejected" or "error"
func (c *Collector) RecordDecision(kind, outcome string) {
	if !c.config.Enabled {
		return
	}
	c.gateMetrics.RecordDecision(kind, outcome)
}

// RecordPreflightFailure counts a rejected preflight by failed check
// ("origin", "method" or "headers").
func (c *Collector) RecordPreflightFailure(reason string) {
	if !c.config.Enabled {
		return
	}
	c.gateMetrics.RecordPreflightFailure(reason)
}

// RecordMiddlewareError counts an internal fault recovered by the gate.
func (c *Collector) RecordMiddlewareError() {
	if !c.config.Enabled {
		return
	}
	c.gateMetrics.RecordMiddlewareError()
}

// RecordTimeout counts a request that exceeded its deadline.
func (c *Collector) RecordTimeout() {
	if !c.config.Enabled {
		return
	}
	c.gateMetrics.RecordTimeout()
}

// RecordRequest records a completed request.
//
// Parameters:
//   - method: HTTP method; unknown methods beyond the cardinality limit are
//     aggregated into "other"
//   - status: response status code
//   - duration: time from first byte read to handler return
func (c *Collector) RecordRequest(method string, status int, duration time.Duration) {
	if !c.config.Enabled {
		return
	}
	if !c.cardinalityLimiter.Allow(method) {
		method = "other"
	}
	c.requestMetrics.RecordRequest(method, status, duration)
}

// CacheHit implements origin.Observer.
func (c *Collector) CacheHit() {
	if !c.config.Enabled {
		return
	}
	c.cacheMetrics.RecordHit()
}

// CacheMiss implements origin.Observer.
func (c *Collector) CacheMiss() {
	if !c.config.Enabled {
		return
	}
	c.cacheMetrics.RecordMiss()
}

// CacheEviction implements origin.Observer.
func (c *Collector) CacheEviction(reason string, n int) {
	if !c.config.Enabled {
		return
	}
	c.cacheMetrics.RecordEviction(reason, n)
}

// CacheSize implements origin.Observer.
func (c *Collector) CacheSize(size int) {
	if !c.config.Enabled {
		return
	}
	c.cacheMetrics.UpdateSize(size)
}

// ConfigListener returns a config.Store change listener that records policy
// publishes and rejections.
func (c *Collector) ConfigListener() func(config.ChangeEvent) {
	return func(ev config.ChangeEvent) {
		if !c.config.Enabled {
			return
		}
		c.policyMetrics.RecordChange(ev)
	}
}

// Enabled reports whether metrics are collected.
func (c *Collector) Enabled() bool {
	return c.config.Enabled
}

// Registry returns the Prometheus registry used by this collector.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// CardinalityLimiter prevents metric cardinality explosion by limiting
// the number of unique values a label may take.
type CardinalityLimiter struct {
	maxCardinality int
	current        map[string]struct{}
	mu             sync.RWMutex
}

// NewCardinalityLimiter creates a new cardinality limiter with the specified
// maximum cardinality.
func NewCardinalityLimiter(maxCardinality int) *CardinalityLimiter {
	return &CardinalityLimiter{
		maxCardinality: maxCardinality,
		current:        make(map[string]struct{}),
	}
}

// Allow reports whether value may be used as a label. Values already seen
// are always allowed; new values are allowed until the limit is reached.
func (cl *CardinalityLimiter) Allow(value string) bool {
	cl.mu.RLock()
	if _, exists := cl.current[value]; exists {
		cl.mu.RUnlock()
		return true
	}
	cl.mu.RUnlock()

	cl.mu.Lock()
	defer cl.mu.Unlock()

	// Double-check after acquiring write lock
	if _, exists := cl.current[value]; exists {
		return true
	}

	if len(cl.current) >= cl.maxCardinality {
		return false
	}

	cl.current[value] = struct{}{}
	return true
}

// Count returns the current cardinality.
func (cl *CardinalityLimiter) Count() int {
	cl.mu.RLock()
	defer cl.mu.RUnlock()
	return len(cl.current)
}
