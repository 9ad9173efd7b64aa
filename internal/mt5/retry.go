package mt5

import (
	"context"
	"fmt"
	"math/rand"
	"time"
)

// RetryConfig represents retry configuration for gateway calls
type RetryConfig struct {
	MaxRetries  int
	InitialWait time.Duration
	MaxWait     time.Duration
	Factor      float64
	Jitter      float64
}

// DefaultRetryConfig returns the default retry configuration
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxRetries:  3,
		InitialWait: 100 * time.Millisecond,
		MaxWait:     5 * time.Second,
		Factor:      2.0,
		Jitter:      0.1,
	}
}

// APIError is an error response from the gateway
type APIError struct {
	StatusCode int    `json:"status_code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gateway error %d: %s", e.StatusCode, e.Message)
}

// IsRetryableError determines if a gateway error should be retried
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}

	if e, ok := err.(*APIError); ok {
		switch e.StatusCode {
		case 429, 500, 502, 503, 504:
			return true
		}
		return false
	}

	// Transport-level failures (dial, reset, timeout) arrive as plain
	// errors from net/http and are worth one more attempt.
	return true
}

// RetryWithResult wraps a gateway call with exponential backoff and jitter
func RetryWithResult[T any](ctx context.Context, fn func(context.Context) (T, error), config *RetryConfig) (T, error) {
	if config == nil {
		config = DefaultRetryConfig()
	}

	var (
		result T
		err    error
		wait   = config.InitialWait
	)

	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		result, err = fn(ctx)
		if err == nil {
			return result, nil
		}

		if !IsRetryableError(err) {
			return result, err
		}

		if attempt == config.MaxRetries {
			return result, fmt.Errorf("max retries exceeded: %w", err)
		}

		jitter := 1.0 + (config.Jitter * (2*rand.Float64() - 1))
		wait = time.Duration(float64(wait) * config.Factor * jitter)
		if wait > config.MaxWait {
			wait = config.MaxWait
		}

		select {
		case <-ctx.Done():
			return result, ctx.Err()
		case <-time.After(wait):
		}
	}

	return result, err
}
