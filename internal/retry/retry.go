// Package retry implements the exponential backoff policy wrapped around
// every backend call.
package retry

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"github.com/perchdata/membank/internal/backend"
	"github.com/perchdata/membank/internal/config"
)

// Options controls one retried operation.
type Options struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	Jitter       bool

	// ShouldRetry decides whether a failed attempt may be retried. The
	// default retries only errors the taxonomy marks retryable (timeouts,
	// 429, 5xx, unavailable) and never validation or not-found errors.
	ShouldRetry func(err error, attempt int) bool

	// OnRetry is invoked before each wait, for observability. Never called
	// when the first attempt succeeds.
	OnRetry func(err error, attempt int, delay time.Duration)
}

// DefaultOptions returns the backoff policy defaults.
func DefaultOptions() Options {
	return Options{
		MaxAttempts:  3,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     10 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
	}
}

// FromConfig builds Options from resolved configuration.
func FromConfig(cfg config.Retry) Options {
	return Options{
		MaxAttempts:  cfg.MaxAttempts,
		InitialDelay: cfg.InitialDelay(),
		MaxDelay:     cfg.MaxDelay(),
		Multiplier:   cfg.Multiplier,
		Jitter:       cfg.Jitter,
	}
}

// Do runs fn, retrying retryable failures with exponential backoff.
// Exhausting all attempts returns the last error unchanged so callers can
// still inspect its kind.
func Do[T any](ctx context.Context, opts Options, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}
	shouldRetry := opts.ShouldRetry
	if shouldRetry == nil {
		shouldRetry = func(err error, _ int) bool { return backend.Retryable(err) }
	}

	var lastErr error
	for attempt := 1; attempt <= opts.MaxAttempts; attempt++ {
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if attempt == opts.MaxAttempts || !shouldRetry(err, attempt) {
			break
		}

		delay := Delay(opts, attempt)
		if ra := retryAfterHint(err); ra > delay {
			delay = ra
		}
		if opts.OnRetry != nil {
			opts.OnRetry(err, attempt, delay)
		}

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return zero, lastErr
		}
	}
	return zero, lastErr
}

// Run is Do for operations without a result value.
func Run(ctx context.Context, opts Options, fn func(ctx context.Context) error) error {
	_, err := Do(ctx, opts, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// Delay computes the wait before the retry that follows the given attempt
// (1-based): min(maxDelay, initial * multiplier^(attempt-1)), plus up to
// 50% random jitter when enabled.
func Delay(opts Options, attempt int) time.Duration {
	delay := float64(opts.InitialDelay)
	for i := 1; i < attempt; i++ {
		delay *= opts.Multiplier
	}
	if max := float64(opts.MaxDelay); opts.MaxDelay > 0 && delay > max {
		delay = max
	}

	d := time.Duration(delay)
	if opts.Jitter && d > 0 {
		d += time.Duration(rand.Int64N(int64(d)/2 + 1))
	}
	return d
}

func retryAfterHint(err error) time.Duration {
	var be *backend.Error
	if errors.As(err, &be) {
		return be.RetryAfter
	}
	return 0
}
