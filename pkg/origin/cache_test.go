package origin

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"mercator-hq/corsgate/pkg/telemetry/logging"
)

// fakeClock is a manually advanced time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

// countingObserver records observer calls.
type countingObserver struct {
	mu        sync.Mutex
	hits      int
	misses    int
	evictions map[string]int
	size      int
}

func newCountingObserver() *countingObserver {
	return &countingObserver{evictions: make(map[string]int)}
}

func (o *countingObserver) CacheHit() {
	o.mu.Lock()
	o.hits++
	o.mu.Unlock()
}

func (o *countingObserver) CacheMiss() {
	o.mu.Lock()
	o.misses++
	o.mu.Unlock()
}

func (o *countingObserver) CacheEviction(reason string, n int) {
	o.mu.Lock()
	o.evictions[reason] += n
	o.mu.Unlock()
}

func (o *countingObserver) CacheSize(size int) {
	o.mu.Lock()
	o.size = size
	o.mu.Unlock()
}

func newTestCache(opts ...CacheOption) *Cache {
	return NewCache(append([]CacheOption{WithCacheLogger(logging.Discard())}, opts...)...)
}

func TestCache_LookupMissAndHit(t *testing.T) {
	obs := newCountingObserver()
	c := newTestCache(WithObserver(obs))

	if _, ok := c.Lookup("https://a.example.com"); ok {
		t.Fatal("expected miss on empty cache")
	}

	want := Decision{MatchedOrigin: "https://A.example.com", Matched: true, Revision: 3}
	c.Store("https://a.example.com", want)

	got, ok := c.Lookup("https://a.example.com")
	if !ok {
		t.Fatal("expected hit after Store")
	}
	if got != want {
		t.Errorf("Lookup = %+v, want %+v", got, want)
	}
	if obs.hits != 1 || obs.misses != 1 {
		t.Errorf("hits=%d misses=%d, want 1/1", obs.hits, obs.misses)
	}
	if obs.size != 1 {
		t.Errorf("observed size = %d, want 1", obs.size)
	}
}

func TestCache_FIFOEviction(t *testing.T) {
	obs := newCountingObserver()
	c := newTestCache(WithCapacity(3), WithObserver(obs))

	c.Store("a", Decision{})
	c.Store("b", Decision{})
	c.Store("c", Decision{})

	// Reading "a" does not refresh it; eviction is by insertion order.
	if _, ok := c.Lookup("a"); !ok {
		t.Fatal("a should be cached")
	}

	c.Store("d", Decision{})

	if _, ok := c.Lookup("a"); ok {
		t.Error("a should have been evicted as the oldest entry")
	}
	for _, k := range []string{"b", "c", "d"} {
		if _, ok := c.Lookup(k); !ok {
			t.Errorf("%s should still be cached", k)
		}
	}
	if got := c.Stats().Size; got != 3 {
		t.Errorf("Size = %d, want 3", got)
	}
	if obs.evictions[EvictCapacity] != 1 {
		t.Errorf("capacity evictions = %d, want 1", obs.evictions[EvictCapacity])
	}
}

func TestCache_OverwriteKeepsInsertionOrder(t *testing.T) {
	c := newTestCache(WithCapacity(2))

	c.Store("a", Decision{Revision: 1})
	c.Store("b", Decision{Revision: 1})
	c.Store("a", Decision{Revision: 2})

	if d, _ := c.Lookup("a"); d.Revision != 2 {
		t.Errorf("overwrite not applied, revision = %d", d.Revision)
	}
	if got := c.Stats().Size; got != 2 {
		t.Errorf("overwrite changed size to %d", got)
	}

	c.Store("c", Decision{})

	if _, ok := c.Lookup("a"); ok {
		t.Error("a should be evicted first despite its recent overwrite")
	}
	if _, ok := c.Lookup("b"); !ok {
		t.Error("b should still be cached")
	}
}

func TestCache_NeverExceedsCapacity(t *testing.T) {
	c := newTestCache(WithCapacity(10))
	for i := 0; i < 100; i++ {
		c.Store(fmt.Sprintf("https://o%d.example.com", i), Decision{})
		if size := c.Stats().Size; size > 10 {
			t.Fatalf("size %d exceeds capacity after %d stores", size, i+1)
		}
	}
}

func TestCache_TTLExpiry(t *testing.T) {
	clock := newFakeClock()
	obs := newCountingObserver()
	c := newTestCache(WithTTL(time.Hour), WithClock(clock.Now), WithObserver(obs))

	c.Store("a", Decision{Matched: true})

	clock.Advance(59 * time.Minute)
	if _, ok := c.Lookup("a"); !ok {
		t.Fatal("entry should be live before TTL")
	}

	clock.Advance(time.Minute)
	if _, ok := c.Lookup("a"); ok {
		t.Fatal("entry should be expired at TTL")
	}
	if got := c.Stats().Size; got != 0 {
		t.Errorf("expired entry not purged, size = %d", got)
	}
	if obs.evictions[EvictExpired] != 1 {
		t.Errorf("expired evictions = %d, want 1", obs.evictions[EvictExpired])
	}
}

func TestCache_OverwriteDoesNotExtendTTL(t *testing.T) {
	clock := newFakeClock()
	c := newTestCache(WithTTL(time.Hour), WithClock(clock.Now))

	c.Store("a", Decision{})
	clock.Advance(50 * time.Minute)
	c.Store("a", Decision{Matched: true})
	clock.Advance(10 * time.Minute)

	if _, ok := c.Lookup("a"); ok {
		t.Error("overwrite should not reset insertion time")
	}
}

func TestCache_Sweep(t *testing.T) {
	clock := newFakeClock()
	c := newTestCache(WithTTL(time.Hour), WithClock(clock.Now))

	c.Store("old1", Decision{})
	c.Store("old2", Decision{})
	clock.Advance(30 * time.Minute)
	c.Store("fresh", Decision{})
	clock.Advance(31 * time.Minute)

	if removed := c.Sweep(); removed != 2 {
		t.Errorf("Sweep removed %d, want 2", removed)
	}

	entries := c.Entries()
	if len(entries) != 1 || entries[0].Key != "fresh" {
		t.Errorf("Entries = %+v, want only fresh", entries)
	}

	if removed := c.Sweep(); removed != 0 {
		t.Errorf("second Sweep removed %d, want 0", removed)
	}
}

func TestCache_Clear(t *testing.T) {
	obs := newCountingObserver()
	c := newTestCache(WithObserver(obs))
	c.Store("a", Decision{})
	c.Store("b", Decision{})

	c.Clear()

	if got := c.Stats().Size; got != 0 {
		t.Errorf("Size after Clear = %d", got)
	}
	if _, ok := c.Lookup("a"); ok {
		t.Error("a survived Clear")
	}
	if obs.evictions[EvictCleared] != 2 {
		t.Errorf("cleared evictions = %d, want 2", obs.evictions[EvictCleared])
	}

	// Usable after Clear.
	c.Store("c", Decision{})
	if _, ok := c.Lookup("c"); !ok {
		t.Error("cache unusable after Clear")
	}
}

func TestCache_Stats(t *testing.T) {
	c := newTestCache()
	s := c.Stats()
	if s.Capacity != DefaultCapacity || s.TTL != DefaultTTL || s.Size != 0 {
		t.Errorf("Stats = %+v", s)
	}
}

func TestCache_Concurrent(t *testing.T) {
	c := newTestCache(WithCapacity(50))

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				key := fmt.Sprintf("k%d", (g*31+i)%120)
				c.Store(key, Decision{Revision: uint64(i)})
				c.Lookup(key)
				if i%97 == 0 {
					c.Clear()
				}
				if i%53 == 0 {
					c.Sweep()
				}
			}
		}(g)
	}
	wg.Wait()

	s := c.Stats()
	if s.Size > s.Capacity {
		t.Errorf("size %d exceeds capacity %d", s.Size, s.Capacity)
	}
	if got := len(c.Entries()); got != s.Size {
		t.Errorf("Entries() has %d items, Stats().Size = %d", got, s.Size)
	}
}

func BenchmarkCache_LookupHit(b *testing.B) {
	c := newTestCache()
	c.Store("https://app.example.com", Decision{Matched: true})

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c.Lookup("https://app.example.com")
	}
}
