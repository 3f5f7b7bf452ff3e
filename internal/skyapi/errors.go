package skyapi

import (
	"errors"
	"fmt"
)

// Sentinel errors for the API client.
var (
	// ErrUpstream matches every *StatusError.
	ErrUpstream = errors.New("skyapi: upstream returned non-success status")

	// ErrNoTokenSource is returned by authenticated calls made before
	// SetTokenSource.
	ErrNoTokenSource = errors.New("skyapi: no token source configured")

	// ErrNoSessionCookie is returned when a successful login response
	// carries no session cookie.
	ErrNoSessionCookie = errors.New("skyapi: login response has no session cookie")

	// ErrMalformedResponse is returned when a 2xx body cannot be decoded
	// into the expected shape.
	ErrMalformedResponse = errors.New("skyapi: malformed response")
)

// StatusError is a non-success response to a request/response call.
type StatusError struct {
	// Op names the call, e.g. "login" or "systems".
	Op string

	// Status is the HTTP status code returned upstream.
	Status int

	// Body is a truncated copy of the response body, for diagnostics.
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("skyapi: %s: upstream status %d", e.Op, e.Status)
	}
	return fmt.Sprintf("skyapi: %s: upstream status %d: %s", e.Op, e.Status, e.Body)
}

// Is reports ErrUpstream so callers can match any status failure.
func (e *StatusError) Is(target error) bool {
	return target == ErrUpstream
}

// StatusCode extracts the upstream status from err, or 0 if err is not a
// *StatusError.
func StatusCode(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Status
	}
	return 0
}
