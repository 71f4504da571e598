// Package origin decides whether a request Origin is allowed by the active
// CORS policy and memoizes those decisions.
//
// Validator.Validate matches case-insensitively and reports the policy entry
// that matched in its configured casing:
//
//	v := origin.NewValidator(origin.NewCache())
//	res := v.Validate(r.Header.Get("Origin"), store.Get())
//	if !res.Allowed {
//	    // 403
//	}
//
// Decisions are cached by lower-cased origin in a Cache bounded to
// DefaultCapacity entries with a DefaultTTL lifetime. Eviction is by
// insertion order, not by access. The cache only affects latency: each entry
// records the policy revision it was computed under and is ignored once the
// policy changes, and ClearOnChange empties it whenever the config.Store
// publishes.
//
// A Sweeper removes expired entries on a cron schedule so idle origins do not
// keep occupying capacity.
package origin
