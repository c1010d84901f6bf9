package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRetry(t *testing.T) {
	t.Run("success on first try", func(t *testing.T) {
		attempts := 0
		config := RetryConfig{
			MaxRetries:  3,
			BackoffBase: 10 * time.Millisecond,
			BackoffMax:  100 * time.Millisecond,
		}

		err := Retry(context.Background(), config, func(ctx context.Context) error {
			attempts++
			return nil
		})

		if err != nil {
			t.Errorf("Expected no error, got: %v", err)
		}
		if attempts != 1 {
			t.Errorf("Expected 1 attempt, got %d", attempts)
		}
	})

	t.Run("success after retries", func(t *testing.T) {
		attempts := 0
		config := RetryConfig{
			MaxRetries:     3,
			BackoffBase:    10 * time.Millisecond,
			BackoffMax:     100 * time.Millisecond,
			RetryOnTimeout: true,
		}

		err := Retry(context.Background(), config, func(ctx context.Context) error {
			attempts++
			if attempts < 3 {
				return errors.New("request timeout")
			}
			return nil
		})

		if err != nil {
			t.Errorf("Expected no error, got: %v", err)
		}
		if attempts != 3 {
			t.Errorf("Expected 3 attempts, got %d", attempts)
		}
	})

	t.Run("max retries exceeded", func(t *testing.T) {
		attempts := 0
		config := RetryConfig{
			MaxRetries:     1,
			RetryOnTimeout: true,
		}

		err := Retry(context.Background(), config, func(ctx context.Context) error {
			attempts++
			return context.DeadlineExceeded
		})

		if err == nil {
			t.Error("Expected error after max retries")
		}
		if attempts != 2 { // initial + 1 retry
			t.Errorf("Expected 2 attempts, got %d", attempts)
		}
	})

	t.Run("non-retryable error stops immediately", func(t *testing.T) {
		attempts := 0
		config := RetryConfig{
			MaxRetries:     3,
			RetryOnTimeout: true, // timeouts only
		}

		err := Retry(context.Background(), config, func(ctx context.Context) error {
			attempts++
			return errors.New("400 bad request")
		})

		if err == nil {
			t.Error("Expected error for non-retryable")
		}
		if attempts != 1 {
			t.Errorf("Expected 1 attempt for non-retryable, got %d", attempts)
		}
	})

	t.Run("per-attempt timeouts apply and escalate", func(t *testing.T) {
		var deadlines []time.Duration
		config := RetryConfig{
			MaxRetries:      1,
			AttemptTimeouts: []time.Duration{90 * time.Second, 120 * time.Second},
			RetryOnTimeout:  true,
		}

		start := time.Now()
		_ = Retry(context.Background(), config, func(ctx context.Context) error {
			dl, ok := ctx.Deadline()
			if !ok {
				t.Fatal("expected per-attempt deadline")
			}
			deadlines = append(deadlines, dl.Sub(start).Round(time.Second))
			return context.DeadlineExceeded
		})

		if len(deadlines) != 2 {
			t.Fatalf("expected 2 attempts, got %d", len(deadlines))
		}
		if deadlines[0] > 91*time.Second {
			t.Errorf("first attempt deadline too long: %v", deadlines[0])
		}
		if deadlines[1] < deadlines[0] {
			t.Errorf("second attempt deadline %v should exceed first %v", deadlines[1], deadlines[0])
		}
	})

	t.Run("context cancellation", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		attempts := 0
		config := RetryConfig{
			MaxRetries:     10,
			BackoffBase:    100 * time.Millisecond,
			BackoffMax:     1 * time.Second,
			RetryOnTimeout: true,
		}

		go func() {
			time.Sleep(50 * time.Millisecond)
			cancel()
		}()

		err := Retry(ctx, config, func(ctx context.Context) error {
			attempts++
			return errors.New("timeout")
		})

		if !errors.Is(err, context.Canceled) {
			t.Errorf("Expected context.Canceled, got: %v", err)
		}
		if attempts > 2 {
			t.Errorf("Should have stopped early due to cancellation, got %d attempts", attempts)
		}
	})
}

func TestCalculateBackoff(t *testing.T) {
	t.Run("exponential growth", func(t *testing.T) {
		base := 100 * time.Millisecond
		max := 10 * time.Second

		b1 := calculateBackoff(1, base, max, false)
		b2 := calculateBackoff(2, base, max, false)
		b3 := calculateBackoff(3, base, max, false)

		if b1 >= b2 || b2 >= b3 {
			t.Error("Backoff should grow exponentially")
		}
	})

	t.Run("respects max", func(t *testing.T) {
		base := 100 * time.Millisecond
		max := 500 * time.Millisecond

		b := calculateBackoff(10, base, max, false)
		if b > max {
			t.Errorf("Backoff %v exceeds max %v", b, max)
		}
	})

	t.Run("jitter adds variation", func(t *testing.T) {
		base := 100 * time.Millisecond
		max := 10 * time.Second

		results := make(map[time.Duration]bool)
		for i := 0; i < 100; i++ {
			b := calculateBackoff(2, base, max, true)
			results[b] = true
		}

		if len(results) < 5 {
			t.Error("Jitter should produce variation in backoff values")
		}
	})
}

func TestIsTimeout(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil", nil, false},
		{"deadline exceeded", context.DeadlineExceeded, true},
		{"wrapped deadline", errors.Join(errors.New("request failed"), context.DeadlineExceeded), true},
		{"timeout string", errors.New("i/o timeout"), true},
		{"plain error", errors.New("connection refused"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTimeout(tt.err); got != tt.expected {
				t.Errorf("IsTimeout(%v) = %v, want %v", tt.err, got, tt.expected)
			}
		})
	}
}

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		config   RetryConfig
		expected bool
	}{
		{
			name:     "nil error",
			err:      nil,
			config:   RetryConfig{},
			expected: false,
		},
		{
			name:     "timeout with retry enabled",
			err:      context.DeadlineExceeded,
			config:   RetryConfig{RetryOnTimeout: true},
			expected: true,
		},
		{
			name:     "timeout with retry disabled",
			err:      context.DeadlineExceeded,
			config:   RetryConfig{RetryOnTimeout: false},
			expected: false,
		},
		{
			name:     "rate limit with retry enabled",
			err:      errors.New("status 429: rate limit"),
			config:   RetryConfig{RetryOnRateLimit: true},
			expected: true,
		},
		{
			name:     "server error 503",
			err:      errors.New("503 service unavailable"),
			config:   RetryConfig{RetryOnServerError: true},
			expected: true,
		},
		{
			name:     "client error not retried",
			err:      errors.New("400 bad request"),
			config:   RetryConfig{RetryOnServerError: true},
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := isRetryableError(tt.err, tt.config)
			if result != tt.expected {
				t.Errorf("isRetryableError() = %v, want %v", result, tt.expected)
			}
		})
	}
}
