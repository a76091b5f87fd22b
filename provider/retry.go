// Copyright 2025 Chorus
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package provider

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"
)

// RetryConfig bounds the retry behavior of a client. MaxAttempts counts
// total attempts, so MaxAttempts=3 means at most two retries after the
// first call.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryConfig matches the documented policy: up to 3 attempts with
// 2^attempt seconds of backoff, capped at 30s.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		MaxDelay:    30 * time.Second,
	}
}

// APIError is an HTTP-level provider error carrying enough information to
// decide retryability.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return e.Message
}

// IsRetryable reports whether this error is worth retrying: rate limits
// and server-side failures are, every other HTTP status is not.
func (e *APIError) IsRetryable() bool {
	switch e.StatusCode {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return transientMessage(e.Message)
}

// transientMessage matches error text that indicates a transient provider
// condition.
func transientMessage(msg string) bool {
	lowered := strings.ToLower(msg)
	for _, marker := range []string{"overloaded", "rate limit", "timeout", "connection", "server error"} {
		if strings.Contains(lowered, marker) {
			return true
		}
	}
	return false
}

// retryable decides whether an arbitrary error should be retried.
// Connection and timeout failures follow the same backoff policy as
// retryable HTTP statuses.
func retryable(err error) bool {
	if err == nil {
		return false
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.IsRetryable()
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	// Transport-level errors (dial refused, reset, timeout) surface as
	// *url.Error with descriptive text
	return transientMessage(err.Error())
}

// retryWithBackoff runs fn up to cfg.MaxAttempts times with exponential
// backoff between attempts. The backoff wait is tied to ctx so a caller
// cancellation aborts the sequence mid-backoff. After exhausting attempts
// the last error is returned, never swallowed.
func retryWithBackoff[T any](ctx context.Context, cfg RetryConfig, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error

	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	for attempt := 0; attempt < attempts; attempt++ {
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !retryable(err) {
			return zero, err
		}
		if attempt == attempts-1 {
			break
		}

		backoff := cfg.BaseDelay << attempt
		if cfg.MaxDelay > 0 && backoff > cfg.MaxDelay {
			backoff = cfg.MaxDelay
		}

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(backoff):
		}
	}

	return zero, lastErr
}
