package fetch

import (
	"errors"
	"fmt"
	"net/http"
)

// RequestError wraps a transport-level failure, a request that never
// produced a usable response.
type RequestError struct {
	Method  string
	URL     string
	Err     error
	Timeout bool
}

func (e *RequestError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("%s %s: request timed out: %v", e.Method, e.URL, e.Err)
	}
	return fmt.Sprintf("%s %s: request failed: %v", e.Method, e.URL, e.Err)
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// StatusError reports a response that carried an error status (400-599).
type StatusError struct {
	Method string
	URL    string
	Code   int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf(
		"%s %s: unexpected status %d %s",
		e.Method, e.URL, e.Code, http.StatusText(e.Code),
	)
}

// IsTimeout reports whether err stems from a request timeout.
func IsTimeout(err error) bool {
	var reqErr *RequestError
	return errors.As(err, &reqErr) && reqErr.Timeout
}
