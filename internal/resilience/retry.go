// Package resilience provides retry logic for upstream calls.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"net"
	"strings"
	"time"
)

// RetryConfig configuration for retry logic
type RetryConfig struct {
	MaxRetries  int
	BackoffBase time.Duration
	BackoffMax  time.Duration
	Jitter      bool

	// AttemptTimeouts applies a per-attempt deadline; when there are more
	// attempts than entries the last entry repeats. Empty means no
	// per-attempt deadline beyond the parent context.
	AttemptTimeouts []time.Duration

	RetryOnTimeout     bool
	RetryOnRateLimit   bool
	RetryOnServerError bool
}

// Retry executes fn with backoff retry logic. fn receives a context that
// carries the per-attempt deadline when AttemptTimeouts is set.
func Retry(ctx context.Context, config RetryConfig, fn func(ctx context.Context) error) error {
	var lastErr error

	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		if attempt > 0 && config.BackoffBase > 0 {
			backoff := calculateBackoff(attempt, config.BackoffBase, config.BackoffMax, config.Jitter)

			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		attemptCtx := ctx
		var cancel context.CancelFunc
		if timeout := attemptTimeout(config.AttemptTimeouts, attempt); timeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, timeout)
		}

		err := fn(attemptCtx)
		if cancel != nil {
			cancel()
		}
		if err == nil {
			return nil
		}

		lastErr = err

		if !isRetryableError(err, config) {
			return err
		}
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

func attemptTimeout(timeouts []time.Duration, attempt int) time.Duration {
	if len(timeouts) == 0 {
		return 0
	}
	if attempt >= len(timeouts) {
		return timeouts[len(timeouts)-1]
	}
	return timeouts[attempt]
}

// calculateBackoff calculates exponential backoff with optional jitter
func calculateBackoff(attempt int, base, max time.Duration, jitter bool) time.Duration {
	backoff := base * time.Duration(math.Pow(2, float64(attempt)))

	if backoff > max {
		backoff = max
	}

	if jitter {
		jitterRange := float64(backoff) * 0.25
		jitterAmount := (rand.Float64() - 0.5) * 2 * jitterRange
		backoff = backoff + time.Duration(jitterAmount)
	}

	if backoff < 0 {
		backoff = base
	}

	return backoff
}

// IsTimeout reports whether err represents a timeout, from the context, the
// transport, or an upstream error message.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "timeout") || strings.Contains(errStr, "deadline exceeded")
}

// isRetryableError checks if an error should be retried
func isRetryableError(err error, config RetryConfig) bool {
	if err == nil {
		return false
	}

	if config.RetryOnTimeout && IsTimeout(err) {
		return true
	}

	errStr := strings.ToLower(err.Error())

	if config.RetryOnRateLimit && (strings.Contains(errStr, "rate limit") || strings.Contains(errStr, "429")) {
		return true
	}

	if config.RetryOnServerError && (strings.Contains(errStr, "500") || strings.Contains(errStr, "502") ||
		strings.Contains(errStr, "503") || strings.Contains(errStr, "504") ||
		strings.Contains(errStr, "connection refused") || strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "broken pipe")) {
		return true
	}

	return false
}
