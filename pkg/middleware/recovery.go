package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"runtime/debug"

	"mercator-hq/corsgate/pkg/telemetry/logging"
)

// Recovery recovers from panics in downstream handlers, logs them with a
// stack trace and answers 500 with a generic JSON error. http.ErrAbortHandler
// is re-raised so the server can abort the connection as usual.
//
// Example usage:
//
//	handler = Recovery(logger.Slog())(handler)
func Recovery(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if err, ok := rec.(error); ok && errors.Is(err, http.ErrAbortHandler) {
					panic(rec)
				}

				logger.ErrorContext(r.Context(), "panic in handler",
					"error", rec,
					"request_id", logging.GetRequestID(r.Context()),
					"method", r.Method,
					"path", r.URL.Path,
					"stack", string(debug.Stack()),
				)

				writeJSON(w, http.StatusInternalServerError, errorBody{
					Error:   "Internal Server Error",
					Message: "An internal error occurred. Please try again later.",
				})
			}()

			next.ServeHTTP(w, r)
		})
	}
}
