package origin

import (
	"container/list"
	"sync"
	"time"

	"mercator-hq/corsgate/pkg/telemetry/logging"
)

const (
	// DefaultCapacity is the maximum number of cached decisions.
	DefaultCapacity = 1000

	// DefaultTTL is how long a cached decision stays valid.
	DefaultTTL = time.Hour
)

// Eviction reasons reported to the Observer.
const (
	EvictCapacity = "capacity"
	EvictExpired  = "expired"
	EvictCleared  = "cleared"
)

// Decision is the memoized outcome of matching one origin against a policy.
type Decision struct {
	// MatchedOrigin is the policy entry, in its configured casing, that
	// matched. Empty when Matched is false.
	MatchedOrigin string
	Matched       bool

	// Revision and StoreID identify the published policy the decision was
	// computed under.
	Revision uint64
	StoreID  uint64
}

// Entry is a cached decision.
type Entry struct {
	Key        string
	Decision   Decision
	InsertedAt time.Time
}

// CacheStats is a point-in-time view of the cache.
type CacheStats struct {
	Size     int           `json:"size"`
	Capacity int           `json:"capacity"`
	TTL      time.Duration `json:"ttl"`
}

// Observer receives cache events, typically for metrics.
type Observer interface {
	CacheHit()
	CacheMiss()
	CacheEviction(reason string, n int)
	CacheSize(size int)
}

type nopObserver struct{}

func (nopObserver) CacheHit() {}
func (nopObserver) CacheMiss() {}
func (nopObserver) CacheEviction(string, int) {}
func (nopObserver) CacheSize(int) {}

// Cache is a bounded, TTL-limited map of origin decisions. When full it
// evicts the oldest inserted entry. Overwriting a key keeps its original
// insertion position and time.
//
// Cache is safe for concurrent use.
type Cache struct {
	capacity int
	ttl      time.Duration
	now      func() time.Time
	logger   *logging.Logger
	observer Observer

	mu      sync.Mutex
	entries map[string]*list.Element
	order   *list.List // front = oldest
}

// CacheOption configures a Cache.
type CacheOption func(*Cache)

// WithCapacity sets the maximum number of entries.
func WithCapacity(n int) CacheOption {
	return func(c *Cache) {
		if n > 0 {
			c.capacity = n
		}
	}
}

// WithTTL sets the entry lifetime.
func WithTTL(ttl time.Duration) CacheOption {
	return func(c *Cache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithClock overrides the time source. Used by tests.
func WithClock(now func() time.Time) CacheOption {
	return func(c *Cache) { c.now = now }
}

// WithCacheLogger sets the diagnostic logger.
func WithCacheLogger(l *logging.Logger) CacheOption {
	return func(c *Cache) { c.logger = l }
}

// WithObserver registers an Observer for hits, misses and evictions.
func WithObserver(o Observer) CacheOption {
	return func(c *Cache) {
		if o != nil {
			c.observer = o
		}
	}
}

// NewCache creates an empty cache with DefaultCapacity and DefaultTTL unless
// overridden.
func NewCache(opts ...CacheOption) *Cache {
	c := &Cache{
		capacity: DefaultCapacity,
		ttl:      DefaultTTL,
		now:      time.Now,
		logger:   logging.Default(),
		observer: nopObserver{},
		entries:  make(map[string]*list.Element),
		order:    list.New(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Lookup returns the decision stored under key. Expired entries are removed
// and reported as absent.
func (c *Cache) Lookup(key string) (Decision, bool) {
	c.mu.Lock()
	el, ok := c.entries[key]
	if !ok {
		c.mu.Unlock()
		c.observer.CacheMiss()
		c.logger.Cache(logging.CacheMiss, logging.Fields{"key": key})
		return Decision{}, false
	}

	entry := el.Value.(*Entry)
	if c.expired(entry) {
		c.removeLocked(el)
		size := len(c.entries)
		c.mu.Unlock()

		c.observer.CacheEviction(EvictExpired, 1)
		c.observer.CacheSize(size)
		c.observer.CacheMiss()
		c.logger.Cache(logging.CacheExpire, logging.Fields{"key": key})
		return Decision{}, false
	}
	d := entry.Decision
	c.mu.Unlock()

	c.observer.CacheHit()
	c.logger.Cache(logging.CacheHit, logging.Fields{"key": key})
	return d, true
}

// Store inserts or overwrites the decision for key. When the cache is full
// and key is new, the oldest entry is evicted first.
func (c *Cache) Store(key string, d Decision) {
	c.mu.Lock()
	if el, ok := c.entries[key]; ok {
		el.Value.(*Entry).Decision = d
		c.mu.Unlock()
		c.logger.Cache(logging.CacheStore, logging.Fields{"key": key, "overwrite": true})
		return
	}

	var evicted string
	if len(c.entries) >= c.capacity {
		if oldest := c.order.Front(); oldest != nil {
			evicted = oldest.Value.(*Entry).Key
			c.removeLocked(oldest)
		}
	}

	c.entries[key] = c.order.PushBack(&Entry{
		Key:        key,
		Decision:   d,
		InsertedAt: c.now(),
	})
	size := len(c.entries)
	c.mu.Unlock()

	if evicted != "" {
		c.observer.CacheEviction(EvictCapacity, 1)
		c.logger.Cache(logging.CacheEvict, logging.Fields{"key": evicted, "size": size})
	}
	c.observer.CacheSize(size)
	c.logger.Cache(logging.CacheStore, logging.Fields{"key": key, "size": size})
}

// Clear drops every entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	n := len(c.entries)
	c.entries = make(map[string]*list.Element)
	c.order.Init()
	c.mu.Unlock()

	if n > 0 {
		c.observer.CacheEviction(EvictCleared, n)
	}
	c.observer.CacheSize(0)
	c.logger.Cache(logging.CacheClear, logging.Fields{"removed": n})
}

// Sweep removes every expired entry and returns how many were removed.
// Entries are ordered by insertion time, so the scan stops at the first
// live entry.
func (c *Cache) Sweep() int {
	c.mu.Lock()
	removed := 0
	for el := c.order.Front(); el != nil; {
		if !c.expired(el.Value.(*Entry)) {
			break
		}
		next := el.Next()
		c.removeLocked(el)
		removed++
		el = next
	}
	size := len(c.entries)
	c.mu.Unlock()

	if removed > 0 {
		c.observer.CacheEviction(EvictExpired, removed)
		c.observer.CacheSize(size)
	}
	c.logger.Cache(logging.CacheSweep, logging.Fields{"removed": removed, "size": size})
	return removed
}

// Stats returns the current size, capacity and TTL.
func (c *Cache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CacheStats{
		Size:     len(c.entries),
		Capacity: c.capacity,
		TTL:      c.ttl,
	}
}

// Entries returns a copy of the live entries, oldest first.
func (c *Cache) Entries() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Entry, 0, len(c.entries))
	for el := c.order.Front(); el != nil; el = el.Next() {
		e := el.Value.(*Entry)
		if c.expired(e) {
			continue
		}
		out = append(out, *e)
	}
	return out
}

func (c *Cache) expired(e *Entry) bool {
	return c.now().Sub(e.InsertedAt) >= c.ttl
}

func (c *Cache) removeLocked(el *list.Element) {
	delete(c.entries, el.Value.(*Entry).Key)
	c.order.Remove(el)
}
