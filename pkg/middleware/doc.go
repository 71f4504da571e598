// Package middleware provides the HTTP request pipeline of corsgate.
//
// # Middleware Chain
//
// The server assembles the chain with Chain, outermost first:
//
//	handler = Chain(app,
//	    Recovery(logger.Slog()),
//	    RequestID,
//	    AccessLog(logger.Slog(), collector),
//	    guard.Middleware,
//	    gate.Middleware,
//	)
//
// Order (outermost to innermost):
//  1. Recovery: Recover from panics, return 500
//  2. RequestID: Assign an ID, add it to context and response headers
//  3. AccessLog: Log method, path, status and latency
//  4. TimeoutGuard: Answer 504 when the request outlives its deadline
//  5. Gate: Enforce the CORS policy
//
// # CORS Gate
//
// Gate reads the active policy on every request, so runtime policy updates
// take effect on the next request without restarting.
//
// Simple (non-OPTIONS) requests:
//   - No Origin header: allowed, headers use the policy's first origin
//   - Listed origin (case-insensitive): allowed, Allow-Origin echoes it
//   - Unlisted origin in development mode: allowed
//   - Otherwise: 403 with a JSON body, the application is not called
//
// Preflight (OPTIONS) requests are always answered by the gate:
//
//	403  origin not allowed
//	400  Access-Control-Request-Method not in the allowed methods
//	400  an Access-Control-Request-Headers entry not in the allowed headers
//	200  CORS headers, empty body
//
// If the gate fails internally it logs MIDDLEWARE_ERROR with a stack trace,
// sets the baseline headers as a best effort and lets the request through.
//
// # Timeout Guard
//
// TimeoutGuard runs the rest of the chain with a request context that
// expires after the configured deadline (default 5 minutes). A handler that
// has not sent headers by then is cut off with:
//
//	HTTP/1.1 504 Gateway Timeout
//	{"error":"Gateway Timeout","message":"Request exceeded 5 minute timeout","elapsedTime":300001}
//
// A handler that already started its response is left to finish; the
// timeout is only logged.
//
// # Request ID
//
// RequestID reuses a valid client X-Request-ID or generates a UUID v4:
//
//	X-Request-ID: 550e8400-e29b-41d4-a716-446655440000
//
// The ID is attached to every diagnostic entry logged for the request.
package middleware
