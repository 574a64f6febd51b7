package transport

import (
	"fmt"
	"net/http"
)

// Error is returned when a call could not be completed.
// Status is zero when no response was ever received.
type Error struct {
	Method   string
	Path     string
	Status   int
	Attempts int
	Body     string
	Err      error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s %s: status %d after %d attempt(s)", e.Method, e.Path, e.Status, e.Attempts)
	}
	return fmt.Sprintf("%s %s: no response after %d attempt(s): %v", e.Method, e.Path, e.Attempts, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Received reports whether the service answered at all.
func (e *Error) Received() bool {
	return e.Status != 0
}

// IsRetryableStatus classifies statuses that indicate a transient upstream failure.
func IsRetryableStatus(code int) bool {
	switch code {
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

// IsWrite reports whether method may change state on the server.
func IsWrite(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	default:
		return false
	}
}
