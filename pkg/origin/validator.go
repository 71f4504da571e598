package origin

import (
	"strings"

	"mercator-hq/corsgate/pkg/config"
	"mercator-hq/corsgate/pkg/telemetry/logging"
)

// Reasons reported in Result.Reason.
const (
	ReasonNoOrigin    = "no origin header"
	ReasonMatched     = "origin matched allowed list"
	ReasonDevelopment = "development mode bypass"
	ReasonNotAllowed  = "origin not in allowed list"
)

// Result is the outcome of validating one request origin.
type Result struct {
	Allowed       bool   `json:"allowed"`
	MatchedOrigin string `json:"matchedOrigin,omitempty"`
	Reason        string `json:"reason"`
}

// Validator matches request origins against a policy, memoizing the match in
// a Cache. It never mutates the policy and performs no I/O.
type Validator struct {
	cache *Cache
}

// NewValidator returns a Validator backed by cache. A nil cache gets a fresh
// default one.
func NewValidator(cache *Cache) *Validator {
	if cache == nil {
		cache = NewCache(WithCacheLogger(logging.Discard()))
	}
	return &Validator{cache: cache}
}

// Cache returns the decision cache.
func (v *Validator) Cache() *Cache {
	return v.cache
}

// Validate decides whether origin may access resources under policy. An
// empty origin means the header was absent.
//
// Matching is case-insensitive; MatchedOrigin is the first policy entry that
// matches, in its configured casing. Only policies published by a
// config.Store use the cache; a cached decision computed under a different
// store or revision is ignored and recomputed.
func (v *Validator) Validate(origin string, policy config.Policy) Result {
	if origin == "" {
		return Result{Allowed: true, Reason: ReasonNoOrigin}
	}

	key := strings.ToLower(origin)
	var d Decision
	if !published(policy) {
		d = match(key, policy)
	} else if cached, ok := v.cache.Lookup(key); ok && cached.Revision == policy.Revision && cached.StoreID == policy.StoreID {
		d = cached
	} else {
		d = match(key, policy)
		v.cache.Store(key, d)
	}

	switch {
	case d.Matched:
		return Result{Allowed: true, MatchedOrigin: d.MatchedOrigin, Reason: ReasonMatched}
	case policy.DevelopmentMode:
		return Result{Allowed: true, Reason: ReasonDevelopment}
	default:
		return Result{Allowed: false, Reason: ReasonNotAllowed}
	}
}

func published(p config.Policy) bool {
	return p.Revision != 0 && p.StoreID != 0
}

// match scans the allowed origins in order for a case-insensitive match of
// the lower-cased key.
func match(key string, policy config.Policy) Decision {
	for _, allowed := range policy.AllowedOrigins {
		if strings.ToLower(allowed) == key {
			return Decision{MatchedOrigin: allowed, Matched: true, Revision: policy.Revision, StoreID: policy.StoreID}
		}
	}
	return Decision{Revision: policy.Revision, StoreID: policy.StoreID}
}

// ClearOnChange returns a config change listener that empties cache whenever
// a new policy is published or the store is reset.
func ClearOnChange(cache *Cache) func(config.ChangeEvent) {
	return func(ev config.ChangeEvent) {
		if ev.Success {
			cache.Clear()
		}
	}
}
