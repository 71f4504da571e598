package origin

import (
	"strings"
	"testing"
	"unicode"

	"mercator-hq/corsgate/pkg/config"
	"mercator-hq/corsgate/pkg/telemetry/logging"
)

func testPolicy(origins ...string) config.Policy {
	p := config.DefaultPolicy()
	p.AllowedOrigins = origins
	p.Revision = 1
	p.StoreID = 1
	return p
}

func TestValidator_Validate(t *testing.T) {
	tests := []struct {
		name   string
		origin string
		policy config.Policy
		want   Result
	}{
		{
			name:   "no origin header",
			origin: "",
			policy: testPolicy("https://app.example.com"),
			want:   Result{Allowed: true, Reason: ReasonNoOrigin},
		},
		{
			name:   "exact match",
			origin: "https://app.example.com",
			policy: testPolicy("https://app.example.com"),
			want:   Result{Allowed: true, MatchedOrigin: "https://app.example.com", Reason: ReasonMatched},
		},
		{
			name:   "upper-case request origin",
			origin: "HTTPS://APP.EXAMPLE.COM",
			policy: testPolicy("https://app.example.com"),
			want:   Result{Allowed: true, MatchedOrigin: "https://app.example.com", Reason: ReasonMatched},
		},
		{
			name:   "policy casing is reported",
			origin: "https://app.example.com",
			policy: testPolicy("https://App.Example.com"),
			want:   Result{Allowed: true, MatchedOrigin: "https://App.Example.com", Reason: ReasonMatched},
		},
		{
			name:   "first matching entry wins",
			origin: "https://app.example.com",
			policy: testPolicy("https://other.example.com", "https://APP.example.com", "https://app.example.com"),
			want:   Result{Allowed: true, MatchedOrigin: "https://APP.example.com", Reason: ReasonMatched},
		},
		{
			name:   "not in list",
			origin: "https://evil.com",
			policy: testPolicy("https://app.example.com"),
			want:   Result{Allowed: false, Reason: ReasonNotAllowed},
		},
		{
			name:   "port is significant",
			origin: "https://app.example.com:8443",
			policy: testPolicy("https://app.example.com"),
			want:   Result{Allowed: false, Reason: ReasonNotAllowed},
		},
		{
			name:   "development mode bypass",
			origin: "http://localhost:5173",
			policy: func() config.Policy {
				p := testPolicy("https://app.example.com")
				p.DevelopmentMode = true
				return p
			}(),
			want: Result{Allowed: true, Reason: ReasonDevelopment},
		},
		{
			name:   "development mode still reports real match",
			origin: "https://app.example.com",
			policy: func() config.Policy {
				p := testPolicy("https://app.example.com")
				p.DevelopmentMode = true
				return p
			}(),
			want: Result{Allowed: true, MatchedOrigin: "https://app.example.com", Reason: ReasonMatched},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := NewValidator(newTestCache())
			if got := v.Validate(tt.origin, tt.policy); got != tt.want {
				t.Errorf("Validate(%q) = %+v, want %+v", tt.origin, got, tt.want)
			}
		})
	}
}

// casePermutations returns a handful of case variants of s.
func casePermutations(s string) []string {
	flip := func(pred func(i int) bool) string {
		var b strings.Builder
		for i, r := range s {
			if pred(i) {
				b.WriteRune(unicode.ToUpper(r))
			} else {
				b.WriteRune(unicode.ToLower(r))
			}
		}
		return b.String()
	}
	return []string{
		s,
		strings.ToUpper(s),
		strings.ToLower(s),
		flip(func(i int) bool { return i%2 == 0 }),
		flip(func(i int) bool { return i%3 == 1 }),
	}
}

func TestValidator_CaseInsensitiveMatching(t *testing.T) {
	policy := testPolicy("https://App.Example.com", "http://localhost:3000", "https://API.example.org:8443")
	v := NewValidator(newTestCache())

	for _, allowed := range policy.AllowedOrigins {
		for _, variant := range casePermutations(allowed) {
			got := v.Validate(variant, policy)
			if !got.Allowed {
				t.Errorf("Validate(%q) rejected", variant)
			}
			if got.MatchedOrigin != allowed {
				t.Errorf("Validate(%q).MatchedOrigin = %q, want %q", variant, got.MatchedOrigin, allowed)
			}
		}
	}
}

func TestValidator_CacheTransparency(t *testing.T) {
	policy := testPolicy("https://app.example.com")
	origins := []string{"https://app.example.com", "https://APP.example.com", "https://evil.com", ""}

	for _, origin := range origins {
		uncached := NewValidator(newTestCache()).Validate(origin, policy)

		v := NewValidator(newTestCache())
		for i := 0; i < 5; i++ {
			if got := v.Validate(origin, policy); got != uncached {
				t.Fatalf("call %d for %q = %+v, want %+v", i, origin, got, uncached)
			}
		}
	}
}

func TestValidator_CachesByLowerCasedOrigin(t *testing.T) {
	cache := newTestCache()
	v := NewValidator(cache)
	policy := testPolicy("https://app.example.com")

	v.Validate("HTTPS://APP.EXAMPLE.COM", policy)
	v.Validate("https://app.example.com", policy)

	if got := cache.Stats().Size; got != 1 {
		t.Errorf("cache size = %d, want 1", got)
	}
	d, ok := cache.Lookup("https://app.example.com")
	if !ok || !d.Matched || d.MatchedOrigin != "https://app.example.com" {
		t.Errorf("cached decision = %+v, %v", d, ok)
	}
}

func TestValidator_StaleRevisionIsRecomputed(t *testing.T) {
	cache := newTestCache()
	v := NewValidator(cache)

	oldPolicy := testPolicy("https://app.example.com")
	if !v.Validate("https://app.example.com", oldPolicy).Allowed {
		t.Fatal("expected allowed under old policy")
	}

	// A new policy with a new revision but no cache clear: the old decision
	// must not leak through.
	newPolicy := testPolicy("https://other.example.com")
	newPolicy.Revision = 2

	got := v.Validate("https://app.example.com", newPolicy)
	if got.Allowed {
		t.Errorf("stale cached decision served: %+v", got)
	}
	d, _ := cache.Lookup("https://app.example.com")
	if d.Revision != 2 {
		t.Errorf("cached revision = %d, want 2", d.Revision)
	}
}

func TestValidator_UnpublishedPoliciesBypassCache(t *testing.T) {
	cache := newTestCache()
	v := NewValidator(cache)

	polA := config.DefaultPolicy()
	polA.AllowedOrigins = []string{"https://a.example"}
	polB := config.DefaultPolicy()
	polB.AllowedOrigins = []string{"https://b.example"}

	if !v.Validate("https://a.example", polA).Allowed {
		t.Fatal("expected allowed under polA")
	}
	got := v.Validate("https://a.example", polB)
	want := NewValidator(newTestCache()).Validate("https://a.example", polB)
	if got != want {
		t.Errorf("Validate under polB = %+v, want %+v", got, want)
	}
	if got.Allowed {
		t.Error("decision for polA served for polB")
	}
	if size := cache.Stats().Size; size != 0 {
		t.Errorf("cache size = %d, want 0 for unpublished policies", size)
	}
}

func TestValidator_StoresSharingCache(t *testing.T) {
	newStore := func(origin string) *config.Store {
		return config.NewStore(
			config.WithLookup(config.MapLookup(map[string]string{config.EnvAllowedOrigins: origin})),
			config.WithLogger(logging.Discard()),
		)
	}
	storeA := newStore("https://a.example")
	storeB := newStore("https://b.example")
	polA, polB := storeA.Get(), storeB.Get()
	if polA.Revision != polB.Revision {
		t.Fatalf("revisions = %d, %d; want equal", polA.Revision, polB.Revision)
	}

	v := NewValidator(newTestCache())
	if !v.Validate("https://a.example", polA).Allowed {
		t.Fatal("expected allowed under store A")
	}
	if got := v.Validate("https://a.example", polB); got.Allowed {
		t.Errorf("store A decision served for store B: %+v", got)
	}
	if got := v.Validate("https://b.example", polB); !got.Allowed {
		t.Errorf("Validate under store B = %+v, want allowed", got)
	}
}

func TestValidator_DoesNotMutatePolicy(t *testing.T) {
	policy := testPolicy("https://App.example.com")
	before := policy.Clone()

	NewValidator(nil).Validate("https://app.example.com", policy)

	if policy.AllowedOrigins[0] != before.AllowedOrigins[0] {
		t.Errorf("policy mutated: %v", policy.AllowedOrigins)
	}
}

func TestClearOnChange(t *testing.T) {
	cache := newTestCache()
	listener := ClearOnChange(cache)

	cache.Store("a", Decision{})
	listener(config.ChangeEvent{Success: false})
	if cache.Stats().Size != 1 {
		t.Error("rejected update should not clear the cache")
	}

	listener(config.ChangeEvent{Success: true})
	if cache.Stats().Size != 0 {
		t.Error("successful change should clear the cache")
	}
}

func TestClearOnChange_WithStore(t *testing.T) {
	cache := newTestCache()
	v := NewValidator(cache)
	store := config.NewStore(
		config.WithLookup(config.MapLookup(map[string]string{config.EnvAllowedOrigins: "https://app.example.com"})),
	)
	store.OnChange(ClearOnChange(cache))

	v.Validate("https://app.example.com", store.Get())
	if cache.Stats().Size != 1 {
		t.Fatalf("expected one cached decision")
	}

	res := store.Update(config.PolicyUpdate{AllowedOrigins: []string{"https://new.example.com"}})
	if !res.Success {
		t.Fatalf("update failed: %v", res.Errors)
	}
	if cache.Stats().Size != 0 {
		t.Error("cache not cleared on update")
	}
	if v.Validate("https://app.example.com", store.Get()).Allowed {
		t.Error("old origin still allowed after update")
	}
}

func BenchmarkValidator_Validate(b *testing.B) {
	v := NewValidator(newTestCache())
	policy := testPolicy("https://a.example.com", "https://b.example.com", "https://app.example.com")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		v.Validate("https://APP.example.com", policy)
	}
}
