// Package logging provides categorized, leveled diagnostic logging for the
// CORS gate.
//
// Every entry carries a Category (VALIDATION_FAILURE, PREFLIGHT,
// CONFIG_UPDATE, ...) and a level fixed by the category and event:
//
//	VALIDATION_FAILURE  WARN
//	VALIDATION_SUCCESS  INFO   (only emitted in debug mode)
//	PREFLIGHT           WARN on failure, DEBUG on success
//	MISSING_HEADERS     WARN
//	MIDDLEWARE_ERROR    ERROR
//	CONFIG_UPDATE       INFO, WARN on rejection, ERROR on fallback
//	CACHE               DEBUG, INFO for clear and sweep
//	TIMEOUT             ERROR
//
// All category methods build an Entry and pass it to Emit, which drops
// entries below the configured minimum level before formatting. The level can
// be changed at runtime with SetLevel.
//
// Output goes through a log/slog handler (JSON by default):
//
//	{
//	  "time": "2025-11-16T10:30:00Z",
//	  "level": "WARN",
//	  "msg": "CORS origin validation failed",
//	  "category": "VALIDATION_FAILURE",
//	  "request_id": "5f0c8d2e-...",
//	  "method": "GET",
//	  "origin": "https://evil.com",
//	  "path": "/api/devices",
//	  "reason": "origin not in allowed list"
//	}
//
// # Thread Safety
//
// A Logger is safe for concurrent use.
package logging
