package middleware

import (
	"net/http"

	"mercator-hq/corsgate/pkg/telemetry/logging"

	"github.com/google/uuid"
	"golang.org/x/net/http/httpguts"
)

const (
	// RequestIDHeader is the HTTP header for request ID.
	RequestIDHeader = "X-Request-ID"

	// maxRequestIDLength bounds client-supplied request IDs.
	maxRequestIDLength = 128
)

// RequestID assigns every request an ID, stores it in the request context
// for diagnostic logging and echoes it in the X-Request-ID response header.
// A client-supplied X-Request-ID is reused when it is a short, valid header
// value; otherwise a UUID v4 is generated.
//
// Example usage:
//
//	handler = RequestID(handler)
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(RequestIDHeader)
		if !validRequestID(requestID) {
			requestID = uuid.NewString()
		}

		ctx := logging.WithRequestID(r.Context(), requestID)
		w.Header().Set(RequestIDHeader, requestID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func validRequestID(id string) bool {
	return id != "" && len(id) <= maxRequestIDLength && httpguts.ValidHeaderFieldValue(id)
}
