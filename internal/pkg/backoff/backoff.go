// Copyright 2026 Peter Edge
//
// All rights reserved.

// Package backoff provides exponential backoff with jitter for retrying operations.
package backoff

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"time"
)

// StatusError is returned by HTTP clients when a response has an unexpected status.
type StatusError struct {
	StatusCode int
	Body       string
}

// Error implements error.
func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Body)
}

// Retryable returns true if the status indicates a transient server-side condition.
func (e *StatusError) Retryable() bool {
	return RetryableStatus(e.StatusCode)
}

// RetryableStatus returns true for 429 and all 5xx statuses.
func RetryableStatus(statusCode int) bool {
	return statusCode == http.StatusTooManyRequests || statusCode >= http.StatusInternalServerError
}

// IsRetryable reports whether err is worth retrying.
//
// Context cancellation is never retryable. A *StatusError is retryable per its
// status code. Any other error is assumed to be a transport failure and is retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var statusError *StatusError
	if errors.As(err, &statusError) {
		return statusError.Retryable()
	}
	return true
}

// Retry calls f repeatedly until it succeeds, returns a non-retryable error,
// or the maximum number of attempts is reached. Between attempts, it waits with
// exponential backoff and jitter.
//
// f returns the result, whether the error is retryable, and any error.
// If retryable is true and err is non-nil, Retry will wait and try again.
// If retryable is false, Retry returns immediately with the result and error.
func Retry[T any](
	ctx context.Context,
	maxAttempts int,
	initialDelay time.Duration,
	maxDelay time.Duration,
	f func(ctx context.Context, attempt int) (T, bool, error),
) (T, error) {
	var zero T
	delay := initialDelay
	for attempt := range maxAttempts {
		result, retryable, err := f(ctx, attempt)
		if err == nil {
			return result, nil
		}
		if !retryable {
			return zero, err
		}
		if attempt == maxAttempts-1 {
			return zero, fmt.Errorf("failed after %d attempts: %w", maxAttempts, err)
		}
		// Random duration between delay/2 and delay.
		jitteredDelay := delay/2 + time.Duration(rand.Int64N(int64(delay/2+1)))
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(jitteredDelay):
		}
		delay = min(delay*2, maxDelay)
	}
	return zero, fmt.Errorf("failed after %d attempts", maxAttempts)
}

// RetryFunc wraps Retry for functions that classify their own errors with IsRetryable.
func RetryFunc[T any](
	ctx context.Context,
	maxAttempts int,
	initialDelay time.Duration,
	maxDelay time.Duration,
	f func(ctx context.Context) (T, error),
) (T, error) {
	return Retry(
		ctx,
		maxAttempts,
		initialDelay,
		maxDelay,
		func(ctx context.Context, _ int) (T, bool, error) {
			result, err := f(ctx)
			return result, IsRetryable(err), err
		},
	)
}
