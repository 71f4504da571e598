package logging

import (
	"context"
	"log/slog"
	"net/http"
)

// Category tags every diagnostic entry with the subsystem event it records.
type Category string

const (
	CategoryValidationFailure Category = "VALIDATION_FAILURE"
	CategoryValidationSuccess Category = "VALIDATION_SUCCESS"
	CategoryPreflight         Category = "PREFLIGHT"
	CategoryMissingHeaders    Category = "MISSING_HEADERS"
	CategoryMiddlewareError   Category = "MIDDLEWARE_ERROR"
	CategoryConfigUpdate      Category = "CONFIG_UPDATE"
	CategoryCache             Category = "CACHE"
	CategoryTimeout           Category = "TIMEOUT"
)

// PreflightKind is the outcome subtype of a PREFLIGHT entry.
type PreflightKind string

const (
	PreflightSuccess           PreflightKind = "SUCCESS"
	PreflightOriginValidation  PreflightKind = "ORIGIN_VALIDATION"
	PreflightMethodValidation  PreflightKind = "METHOD_VALIDATION"
	PreflightHeadersValidation PreflightKind = "HEADERS_VALIDATION"
)

// ConfigEvent is the subtype of a CONFIG_UPDATE entry.
type ConfigEvent string

const (
	ConfigLoaded       ConfigEvent = "LOADED"
	ConfigFallback     ConfigEvent = "FALLBACK"
	ConfigUpdated      ConfigEvent = "UPDATED"
	ConfigRejected     ConfigEvent = "REJECTED"
	ConfigReloaded     ConfigEvent = "RELOADED"
	ConfigReloadFailed ConfigEvent = "RELOAD_FAILED"
	ConfigReset        ConfigEvent = "RESET"
	ConfigSourceError  ConfigEvent = "SOURCE_ERROR"
)

// CacheAction is the subtype of a CACHE entry.
type CacheAction string

const (
	CacheHit    CacheAction = "HIT"
	CacheMiss   CacheAction = "MISS"
	CacheStore  CacheAction = "STORE"
	CacheEvict  CacheAction = "EVICT"
	CacheExpire CacheAction = "EXPIRE"
	CacheClear  CacheAction = "CLEAR"
	CacheSweep  CacheAction = "SWEEP"
)

// Response header names inspected by MissingHeaders.
var requiredCORSHeaders = []string{
	"Access-Control-Allow-Origin",
	"Access-Control-Allow-Methods",
	"Access-Control-Allow-Headers",
}

// ValidationFailure records a rejected cross-origin request.
func (l *Logger) ValidationFailure(ctx context.Context, origin, reason, path, method string) {
	l.Emit(ctx, Entry{
		Level:    slog.LevelWarn,
		Category: CategoryValidationFailure,
		Message:  "CORS origin validation failed",
		Fields: Fields{
			"origin": origin,
			"reason": reason,
			"path":   path,
			"method": method,
		},
	})
}

// ValidationSuccess records an accepted origin.
func (l *Logger) ValidationSuccess(ctx context.Context, origin, matchedOrigin, reason string) {
	l.Emit(ctx, Entry{
		Level:    slog.LevelInfo,
		Category: CategoryValidationSuccess,
		Message:  "CORS origin validated",
		Fields: Fields{
			"origin":         origin,
			"matched_origin": matchedOrigin,
			"reason":         reason,
		},
	})
}

// Preflight records the outcome of an OPTIONS preflight. Failures are WARN,
// success is DEBUG.
func (l *Logger) Preflight(ctx context.Context, kind PreflightKind, data Fields) {
	level := slog.LevelWarn
	msg := "CORS preflight rejected"
	if kind == PreflightSuccess {
		level = slog.LevelDebug
		msg = "CORS preflight accepted"
	}
	fields := copyFields(data, 1)
	fields["kind"] = string(kind)
	l.Emit(ctx, Entry{
		Level:    level,
		Category: CategoryPreflight,
		Message:  msg,
		Fields:   fields,
	})
}

// MissingHeaders checks h for the mandatory CORS response headers. When any
// is missing it logs a WARN entry naming them and returns true; otherwise it
// returns false and logs nothing.
func (l *Logger) MissingHeaders(ctx context.Context, h http.Header, data Fields) bool {
	var missing []string
	for _, name := range requiredCORSHeaders {
		if h.Get(name) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) == 0 {
		return false
	}
	fields := copyFields(data, 1)
	fields["missing"] = missing
	l.Emit(ctx, Entry{
		Level:    slog.LevelWarn,
		Category: CategoryMissingHeaders,
		Message:  "CORS response is missing required headers",
		Fields:   fields,
	})
	return true
}

// MiddlewareError records an internal fault in the request pipeline.
func (l *Logger) MiddlewareError(ctx context.Context, err error, stack []byte, data Fields) {
	fields := copyFields(data, 2)
	if err != nil {
		fields["error"] = err.Error()
	}
	if len(stack) > 0 {
		fields["stack"] = string(stack)
	}
	l.Emit(ctx, Entry{
		Level:    slog.LevelError,
		Category: CategoryMiddlewareError,
		Message:  "CORS middleware error",
		Fields:   fields,
	})
}

// ConfigUpdate records a policy lifecycle event. The level follows the
// event: rejections are WARN, fallbacks and source errors are ERROR.
func (l *Logger) ConfigUpdate(kind ConfigEvent, data Fields) {
	level := slog.LevelInfo
	switch kind {
	case ConfigRejected, ConfigReloadFailed:
		level = slog.LevelWarn
	case ConfigFallback, ConfigSourceError:
		level = slog.LevelError
	}
	fields := copyFields(data, 1)
	fields["kind"] = string(kind)
	l.Emit(context.Background(), Entry{
		Level:    level,
		Category: CategoryConfigUpdate,
		Message:  "CORS configuration " + configMessage(kind),
		Fields:   fields,
	})
}

// Cache records an origin cache event. Per-key actions are DEBUG; clears and
// sweeps are INFO.
func (l *Logger) Cache(action CacheAction, data Fields) {
	level := slog.LevelDebug
	if action == CacheClear || action == CacheSweep {
		level = slog.LevelInfo
	}
	if !l.Enabled(level) {
		return
	}
	fields := copyFields(data, 1)
	fields["action"] = string(action)
	l.Emit(context.Background(), Entry{
		Level:    level,
		Category: CategoryCache,
		Message:  "origin cache " + string(action),
		Fields:   fields,
	})
}

// Timeout records a request that exceeded its deadline.
func (l *Logger) Timeout(ctx context.Context, data Fields) {
	l.Emit(ctx, Entry{
		Level:    slog.LevelError,
		Category: CategoryTimeout,
		Message:  "request timeout",
		Fields:   copyFields(data, 0),
	})
}

func configMessage(kind ConfigEvent) string {
	switch kind {
	case ConfigLoaded:
		return "loaded"
	case ConfigFallback:
		return "invalid, using defaults"
	case ConfigUpdated:
		return "updated"
	case ConfigRejected:
		return "update rejected"
	case ConfigReloaded:
		return "reloaded"
	case ConfigReloadFailed:
		return "reload failed"
	case ConfigReset:
		return "reset"
	case ConfigSourceError:
		return "source error"
	default:
		return string(kind)
	}
}

func copyFields(data Fields, extra int) Fields {
	out := make(Fields, len(data)+extra)
	for k, v := range data {
		out[k] = v
	}
	return out
}
