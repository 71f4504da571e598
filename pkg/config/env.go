package config

import (
	"os"
	"strconv"
	"strings"
)

// Environment keys read by the policy loader.
const (
	EnvAllowedOrigins = "ALLOWED_ORIGINS"
	EnvCORSOrigin     = "CORS_ORIGIN"
	EnvCredentials    = "CORS_CREDENTIALS"
	EnvAllowedMethods = "ALLOWED_METHODS"
	EnvCORSMethods    = "CORS_METHODS"
	EnvAllowedHeaders = "ALLOWED_HEADERS"
	EnvCORSHeaders    = "CORS_HEADERS"
	EnvMaxAge         = "CORS_MAX_AGE"
	EnvNodeEnv        = "NODE_ENV"
	EnvCORSDebug      = "CORS_DEBUG"
	EnvDebug          = "DEBUG"
	EnvLogLevel       = "CORS_LOG_LEVEL"
)

// LookupFunc reads an environment-style key. It has the signature of
// os.LookupEnv so tests can substitute a map.
type LookupFunc func(key string) (string, bool)

// OSLookup reads the process environment.
var OSLookup LookupFunc = os.LookupEnv

// MapLookup returns a LookupFunc backed by m.
func MapLookup(m map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

// first returns the value of the first key that is set to a non-blank value.
func (lookup LookupFunc) first(keys ...string) (string, bool) {
	for _, key := range keys {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			return v, true
		}
	}
	return "", false
}

// PolicyFromEnv parses the CORS policy keys into a partial policy. Each field
// has its own parse rule; a field that is absent or fails to parse is left
// out so the caller's defaults apply.
func PolicyFromEnv(lookup LookupFunc) PolicyUpdate {
	var u PolicyUpdate

	if raw, ok := lookup.first(EnvAllowedOrigins, EnvCORSOrigin); ok {
		if origins := SplitList(raw); len(origins) > 0 {
			u.AllowedOrigins = origins
		}
	}

	if raw, ok := lookup.first(EnvCredentials); ok {
		v := parseTruthy(raw)
		u.AllowCredentials = &v
	}

	if raw, ok := lookup.first(EnvAllowedMethods, EnvCORSMethods); ok {
		if methods := SplitList(raw); len(methods) > 0 {
			u.AllowedMethods = methods
		}
	}

	if raw, ok := lookup.first(EnvAllowedHeaders, EnvCORSHeaders); ok {
		if headers := SplitList(raw); len(headers) > 0 {
			u.AllowedHeaders = headers
		}
	}

	if raw, ok := lookup.first(EnvMaxAge); ok {
		if n, err := strconv.Atoi(strings.TrimSpace(raw)); err == nil && n >= 0 {
			u.MaxAge = &n
		}
	}

	if raw, ok := lookup.first(EnvNodeEnv); ok {
		env := strings.ToLower(strings.TrimSpace(raw))
		v := env == "development" || env == "dev"
		u.DevelopmentMode = &v
	}

	if raw, ok := lookup.first(EnvCORSDebug, EnvDebug); ok {
		v := parseTruthy(raw)
		u.DebugMode = &v
	}

	return u
}

// SplitList splits a comma-separated list, trims each element, drops empty
// elements and removes case-insensitive duplicates. The first occurrence
// wins and keeps its original casing.
func SplitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	seen := make(map[string]struct{}, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key := strings.ToLower(part)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, part)
	}
	return out
}

func parseTruthy(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "true", "1", "yes":
		return true
	default:
		return false
	}
}
