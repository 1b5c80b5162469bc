package apperror

import (
	"context"
	"math/rand/v2"
	"time"
)

// RetryConfig bounds how often a failing operation is repeated.
type RetryConfig struct {
	// MaxAttempts counts the first call. Values below 1 mean 1.
	MaxAttempts int

	// InitialBackoff is the wait before the second attempt.
	InitialBackoff time.Duration

	// MaxBackoff caps the wait. Zero means no cap.
	MaxBackoff time.Duration

	// BackoffFactor grows the wait after each attempt. Values below 1
	// keep it constant.
	BackoffFactor float64

	// Jitter spreads each wait by up to this fraction in either direction.
	Jitter float64

	// Retryable decides whether an error is worth another attempt.
	// Default: IsTransient.
	Retryable func(error) bool
}

// PersistRetry suits quick local persistence calls made while the
// application is already degraded: one retry, short backoff.
var PersistRetry = RetryConfig{
	MaxAttempts:    2,
	InitialBackoff: 25 * time.Millisecond,
	MaxBackoff:     200 * time.Millisecond,
	BackoffFactor:  2.0,
	Jitter:         0.1,
}

// NoRetry makes exactly one attempt.
var NoRetry = RetryConfig{MaxAttempts: 1}

// wait returns the pause after the given zero-based attempt.
func (c RetryConfig) wait(attempt int) time.Duration {
	d := float64(c.InitialBackoff)
	if c.BackoffFactor > 1 {
		for range attempt {
			d *= c.BackoffFactor
		}
	}
	if c.MaxBackoff > 0 && d > float64(c.MaxBackoff) {
		d = float64(c.MaxBackoff)
	}
	if c.Jitter > 0 {
		d += d * c.Jitter * (2*rand.Float64() - 1)
	}
	return time.Duration(d)
}

func (c RetryConfig) retryable(err error) bool {
	if c.Retryable != nil {
		return c.Retryable(err)
	}
	return IsTransient(err)
}

// RetryResult reports how a retried operation ended.
type RetryResult[T any] struct {
	Value T

	// Err is the last error, unwrapped, so errors.Is/As still match it.
	Err error

	// Attempts is how many times fn ran.
	Attempts int

	Duration time.Duration
}

// WithRetryContext runs fn until it succeeds, fails with a non-retryable
// error, runs out of attempts or ctx is done.
func WithRetryContext[T any](ctx context.Context, cfg RetryConfig, fn func(context.Context) (T, error)) RetryResult[T] {
	var res RetryResult[T]
	start := time.Now()
	defer func() { res.Duration = time.Since(start) }()

	limit := max(cfg.MaxAttempts, 1)
	for res.Attempts < limit {
		if err := ctx.Err(); err != nil {
			if res.Err == nil {
				res.Err = err
			}
			return res
		}

		res.Attempts++
		res.Value, res.Err = fn(ctx)
		if res.Err == nil || !cfg.retryable(res.Err) || res.Attempts == limit {
			return res
		}

		t := time.NewTimer(cfg.wait(res.Attempts - 1))
		select {
		case <-ctx.Done():
			t.Stop()
			return res
		case <-t.C:
		}
	}
	return res
}

// Retry is WithRetryContext for operations without a value.
func Retry(ctx context.Context, cfg RetryConfig, fn func(context.Context) error) error {
	return WithRetryContext(ctx, cfg, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	}).Err
}
