// Package backoff provides fixed-delay retry logic for the connect loops of
// the transports (pub/sub broker connections, socket clients).
package backoff

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// NonRetryableError wraps errors that should not be retried.
type NonRetryableError struct {
	Err error
}

func (e *NonRetryableError) Error() string { return fmt.Sprintf("non-retryable: %v", e.Err) }
func (e *NonRetryableError) Unwrap() error { return e.Err }

// NonRetryable wraps an error to indicate it should not be retried.
func NonRetryable(err error) error {
	if err == nil {
		return nil
	}
	return &NonRetryableError{Err: err}
}

// IsNonRetryable reports whether err was wrapped with NonRetryable.
func IsNonRetryable(err error) bool {
	var nre *NonRetryableError
	return errors.As(err, &nre)
}

// Schedule configures a reconnect retry loop. MaxAttempts follows the
// pub/sub and socket-client transport convention: 0 or 1 means try once
// with no retry, -1 means retry forever, any positive N caps attempts at N.
type Schedule struct {
	MaxAttempts int           // -1 = forever, <=1 = no retry
	Wait        time.Duration // fixed delay between attempts
}

// ConnectSchedule builds a Schedule from a maxConnectAttempts/
// connectTimeWait pair, applying their documented defaults.
func ConnectSchedule(maxConnectAttempts int, connectTimeWait time.Duration) Schedule {
	if maxConnectAttempts == 0 {
		maxConnectAttempts = 1
	}
	if connectTimeWait <= 0 {
		connectTimeWait = 2 * time.Second
	}
	return Schedule{MaxAttempts: maxConnectAttempts, Wait: connectTimeWait}
}

// Do runs fn, retrying with a fixed delay according to sched until it
// succeeds, the attempt budget is exhausted, fn returns a NonRetryable
// error, or ctx is cancelled.
func Do(ctx context.Context, sched Schedule, fn func(attempt int) error) error {
	maxAttempts := sched.MaxAttempts
	if maxAttempts == 0 {
		maxAttempts = 1
	}
	var lastErr error
	for attempt := 1; maxAttempts < 0 || attempt <= maxAttempts; attempt++ {
		err := fn(attempt)
		if err == nil {
			return nil
		}
		lastErr = err

		if IsNonRetryable(err) {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("backoff: cancelled before attempt %d: %w", attempt, ctxErr)
		}
		if maxAttempts >= 0 && attempt == maxAttempts {
			break
		}

		timer := time.NewTimer(sched.Wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("backoff: cancelled during wait before attempt %d: %w", attempt+1, ctx.Err())
		case <-timer.C:
		}
	}
	return fmt.Errorf("backoff: exhausted after %d attempts: %w", maxAttempts, lastErr)
}
