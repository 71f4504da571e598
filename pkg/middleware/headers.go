package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"

	"mercator-hq/corsgate/pkg/config"
)

// CORS header names.
const (
	HeaderOrigin           = "Origin"
	HeaderAllowOrigin      = "Access-Control-Allow-Origin"
	HeaderAllowMethods     = "Access-Control-Allow-Methods"
	HeaderAllowHeaders     = "Access-Control-Allow-Headers"
	HeaderAllowCredentials = "Access-Control-Allow-Credentials"
	HeaderMaxAge           = "Access-Control-Max-Age"
	HeaderRequestMethod    = "Access-Control-Request-Method"
	HeaderRequestHeaders   = "Access-Control-Request-Headers"
	HeaderVary             = "Vary"
)

// ErrNoAllowedOrigins is returned when headers are requested from a policy
// without any allowed origin.
var ErrNoAllowedOrigins = errors.New("policy has no allowed origins")

// PolicySource provides the active CORS policy. *config.Store implements it.
type PolicySource interface {
	Get() config.Policy
}

// SetBaselineHeaders sets the minimal CORS header set used when the normal
// decision path cannot run: Allow-Origin is the policy's first allowed
// origin, plus Allow-Methods, Allow-Headers and Allow-Credentials.
func SetBaselineHeaders(h http.Header, p config.Policy) error {
	first := p.FirstOrigin()
	if first == "" {
		return ErrNoAllowedOrigins
	}
	h.Set(HeaderAllowOrigin, first)
	h.Set(HeaderAllowMethods, strings.Join(p.AllowedMethods, ", "))
	h.Set(HeaderAllowHeaders, strings.Join(p.AllowedHeaders, ", "))
	h.Set(HeaderAllowCredentials, strconv.FormatBool(p.AllowCredentials))
	return nil
}

// setPolicyHeaders sets the full header set for an accepted request.
// Allow-Origin echoes origin when present, otherwise it is the policy's
// first allowed origin.
func setPolicyHeaders(h http.Header, p config.Policy, origin string) error {
	allowOrigin := origin
	if allowOrigin == "" {
		allowOrigin = p.FirstOrigin()
	}
	if allowOrigin == "" {
		return ErrNoAllowedOrigins
	}

	h.Set(HeaderAllowOrigin, allowOrigin)
	h.Set(HeaderAllowMethods, strings.Join(p.AllowedMethods, ", "))
	h.Set(HeaderAllowHeaders, strings.Join(p.AllowedHeaders, ", "))
	h.Set(HeaderAllowCredentials, strconv.FormatBool(p.AllowCredentials))
	h.Set(HeaderMaxAge, strconv.Itoa(p.MaxAge))
	if origin != "" {
		addVary(h, HeaderOrigin)
	}
	return nil
}

// addVary appends value to the Vary header unless it is already listed.
func addVary(h http.Header, value string) {
	for _, v := range h.Values(HeaderVary) {
		for _, part := range strings.Split(v, ",") {
			if strings.EqualFold(strings.TrimSpace(part), value) {
				return
			}
		}
	}
	h.Add(HeaderVary, value)
}

// safeBaselineHeaders fetches the current policy and applies the baseline
// headers, converting a panic in either step into an error.
func safeBaselineHeaders(h http.Header, policies PolicySource) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = newPanicError(rec)
		}
	}()
	return SetBaselineHeaders(h, policies.Get())
}

// panicError is a recovered panic carrying the stack where it happened.
type panicError struct {
	value any
	stack []byte
}

func newPanicError(value any) *panicError {
	return &panicError{value: value, stack: debug.Stack()}
}

func (e *panicError) Error() string {
	return fmt.Sprintf("panic: %v", e.value)
}

// Unwrap exposes a panicked error value.
func (e *panicError) Unwrap() error {
	if err, ok := e.value.(error); ok {
		return err
	}
	return nil
}

// stackOf returns the recovered stack of err, if it carries one.
func stackOf(err error) []byte {
	var pe *panicError
	if errors.As(err, &pe) {
		return pe.stack
	}
	return nil
}
