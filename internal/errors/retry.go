package errors

import (
	"context"
	"fmt"
	"math/rand"
	"time"
)

// RetryConfig configures retry behavior.
type RetryConfig struct {
	// MaxRetries is the maximum number of retry attempts (not including initial attempt).
	MaxRetries int

	// InitialDelay is the delay before the first retry.
	InitialDelay time.Duration

	// MaxDelay is the maximum delay between retries.
	MaxDelay time.Duration

	// Multiplier is the factor by which delay increases after each retry.
	// Ignored when Linear is set.
	Multiplier float64

	// Linear grows the delay by InitialDelay per attempt (d, 2d, 3d, ...).
	Linear bool

	// Jitter adds randomness to delay to prevent thundering herd.
	Jitter bool

	// OnRetry is called before each wait with the attempt number (1-based) and the error.
	OnRetry func(attempt int, err error)
}

// DefaultRetryConfig returns sensible default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:   3,
		InitialDelay: 1 * time.Second,
		MaxDelay:     16 * time.Second,
		Multiplier:   2.0,
	}
}

// LinearRetryConfig returns the monitor's retry policy: a fixed number of
// total attempts with linearly growing waits between them.
func LinearRetryConfig(attempts int, step time.Duration) RetryConfig {
	if attempts < 1 {
		attempts = 1
	}
	return RetryConfig{
		MaxRetries:   attempts - 1,
		InitialDelay: step,
		MaxDelay:     step * time.Duration(attempts),
		Linear:       true,
	}
}

// nextDelay returns the wait before the given retry (1-based).
func (cfg RetryConfig) nextDelay(retry int, prev time.Duration) time.Duration {
	var d time.Duration
	switch {
	case retry == 1:
		d = cfg.InitialDelay
	case cfg.Linear:
		d = cfg.InitialDelay * time.Duration(retry)
	default:
		d = time.Duration(float64(prev) * cfg.Multiplier)
	}
	if cfg.MaxDelay > 0 && d > cfg.MaxDelay {
		d = cfg.MaxDelay
	}
	return d
}

// Retry executes fn until it succeeds, MaxRetries is exhausted, or ctx is done.
// Errors that carry a non-retryable UnsupportedInput code stop immediately.
func Retry(ctx context.Context, cfg RetryConfig, fn func() error) error {
	_, err := RetryWithResult(ctx, cfg, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// RetryWithResult executes a function that returns a value with retry logic.
func RetryWithResult[T any](ctx context.Context, cfg RetryConfig, fn func() (T, error)) (T, error) {
	var zero T
	var lastErr error
	var delay time.Duration

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		default:
		}

		result, err := fn()
		if err == nil {
			return result, nil
		}
		lastErr = err

		if GetCode(err) == ErrCodeUnsupportedInput {
			return zero, err
		}
		if attempt >= cfg.MaxRetries {
			break
		}

		delay = cfg.nextDelay(attempt+1, delay)
		wait := delay
		if cfg.Jitter {
			wait = time.Duration(float64(delay) * (0.5 + rand.Float64()*0.5))
		}
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt+1, err)
		}

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(wait):
		}
	}

	return zero, fmt.Errorf("failed after %d retries: %w", cfg.MaxRetries, lastErr)
}
