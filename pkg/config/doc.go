// Package config manages the CORS policy and the process configuration of
// corsgate.
//
// # Policy
//
// A Policy is one validated snapshot of allowed origins, methods, headers,
// credentials flag, preflight max age and the development/debug switches.
// The Store holds exactly one active snapshot:
//
//	store := config.NewStore(config.WithPolicyFile("cors.yaml"))
//	policy := store.Get() // deep copy, loads lazily on first call
//
// Policies are assembled in this order (later overrides earlier):
//
//  1. DefaultPolicy
//  2. the optional YAML policy file
//  3. environment keys (ALLOWED_ORIGINS or CORS_ORIGIN, CORS_CREDENTIALS,
//     ALLOWED_METHODS or CORS_METHODS, ALLOWED_HEADERS or CORS_HEADERS,
//     CORS_MAX_AGE, NODE_ENV, CORS_DEBUG or DEBUG)
//
// A field that is absent or fails to parse keeps its earlier value. If the
// assembled candidate fails ValidatePolicy, the initial load publishes
// DefaultPolicy instead; a Reload keeps the active policy.
//
// # Runtime updates
//
// Update merges a partial policy over the active one and publishes the result
// only if it validates:
//
//	maxAge := 600
//	res := store.Update(config.PolicyUpdate{MaxAge: &maxAge})
//	if !res.Success {
//	    for _, fe := range res.Errors {
//	        fmt.Println(fe.Field, fe.Message)
//	    }
//	}
//
// Publishing swaps an atomic pointer, so concurrent readers see either the
// old or the new snapshot, never a mix. Each published snapshot gets a new
// Revision. OnChange listeners run after every publish, rejected update and
// reset; the origin cache uses this to drop decisions made under an older
// policy.
//
// # Process configuration
//
// Config is loaded from YAML with CORSGATE_* environment overrides:
//
//	cfg, err := config.LoadConfigWithEnvOverrides("corsgate.yaml", config.OSLookup)
//
// # Thread Safety
//
// Store is safe for concurrent use. Config values are plain structs and are
// not synchronized.
package config
