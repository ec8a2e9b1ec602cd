package merrors

import (
	"context"
	"errors"
)

// IsTransient reports whether err represents a condition worth retrying:
// connect failures, socket closure, and context deadline/cancellation all
// qualify. The transports' connect loops do not consult it; they retry
// every error not wrapped with backoff.NonRetryable.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var connErr *ConnectError
	if errors.As(err, &connErr) {
		return true
	}
	var closedErr *SocketClosedError
	if errors.As(err, &closedErr) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	return false
}

// IsTimeout reports whether err is a *TimeoutError raised by a deadline
// queue read.
func IsTimeout(err error) bool {
	var t *TimeoutError
	return errors.As(err, &t)
}
