package discord

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// StatusError is a non-2xx response from the platform.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("discord: HTTP %d", e.Code)
	}
	return fmt.Sprintf("discord: HTTP %d: %s", e.Code, e.Body)
}

// Transient reports whether the status is worth retrying: rate limits
// and server-side errors.
func (e *StatusError) Transient() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= 500
}

// IsAuth reports whether err is an authentication/permission failure
// (401/403). Such failures are never retried.
func IsAuth(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code == http.StatusUnauthorized || se.Code == http.StatusForbidden
	}
	return false
}

// IsTransient reports whether err is a transient transport failure:
// a retryable status, a timeout, or a temporary network error.
func IsTransient(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Transient()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return ne.Timeout()
	}
	return false
}
