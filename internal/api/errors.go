package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Error is a non-2xx API response.
type Error struct {
	StatusCode int
	RequestID  string
	Message    string
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.RequestID != "" {
		return fmt.Sprintf("api: status %d (request %s): %s", e.StatusCode, e.RequestID, e.Message)
	}

	return fmt.Sprintf("api: status %d: %s", e.StatusCode, e.Message)
}

// Retryable reports whether the response class is worth another attempt:
// throttling, request timeout, and server-side errors. Other 4xx responses
// indicate a request the server will never accept.
func (e *Error) Retryable() bool {
	switch {
	case e.StatusCode == http.StatusTooManyRequests:
		return true
	case e.StatusCode == http.StatusRequestTimeout:
		return true
	case e.StatusCode >= http.StatusInternalServerError:
		return true
	default:
		return false
	}
}

// IsRetryable classifies a transmission failure. Network-level errors are
// transient by assumption; API errors delegate to their status class;
// context cancellation is never retried.
func IsRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Retryable()
	}

	return true
}
