package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/sha1n/relic-search/internal/domain"
)

// RetryPolicy bounds backend calls.
type RetryPolicy struct {
	// Attempts is the number of retries after the first try.
	Attempts int

	// Timeout bounds a single attempt. Zero disables the per-attempt timeout.
	Timeout time.Duration

	// InitialInterval is the first backoff delay.
	InitialInterval time.Duration
}

// DefaultRetryPolicy returns the policy used when none is configured.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Attempts:        3,
		Timeout:         30 * time.Second,
		InitialInterval: 200 * time.Millisecond,
	}
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, domain.ErrPermanent) || errors.Is(err, domain.ErrInvalidQuery) {
		return false
	}
	if errors.Is(err, domain.ErrTransient) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// withRetry runs fn with a per-attempt timeout, retrying transient failures
// with exponential backoff. Cancellation of ctx stops retrying.
func withRetry[T any](ctx context.Context, policy RetryPolicy, logger *slog.Logger, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	attempt := 0
	start := time.Now()

	operation := func() (T, error) {
		attempt++
		attemptCtx := ctx
		if policy.Timeout > 0 {
			var cancel context.CancelFunc
			attemptCtx, cancel = context.WithTimeout(ctx, policy.Timeout)
			defer cancel()
		}

		res, err := fn(attemptCtx)
		if err == nil {
			if attempt > 1 {
				logger.Info("Operation recovered after retries", "operation", op, "attempts", attempt, "total_time", time.Since(start))
			}
			return res, nil
		}
		if ctx.Err() != nil {
			return res, backoff.Permanent(fmt.Errorf("%s canceled: %w", op, ctx.Err()))
		}
		if !IsTransient(err) {
			return res, backoff.Permanent(err)
		}
		return res, err
	}

	b := backoff.NewExponentialBackOff()
	if policy.InitialInterval > 0 {
		b.InitialInterval = policy.InitialInterval
	}

	attempts := policy.Attempts
	if attempts < 0 {
		attempts = 0
	}

	res, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(attempts+1)),
		backoff.WithNotify(func(err error, next time.Duration) {
			logger.Debug("Retrying after transient error", "operation", op, "attempt", attempt, "backoff", next, "error", err)
		}),
	)
	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		err = permanent.Unwrap()
	}
	if err != nil && IsTransient(err) && attempt > attempts {
		logger.Warn("Operation failed after all retries exhausted", "operation", op, "total_attempts", attempt, "total_time", time.Since(start), "error", err)
		return res, fmt.Errorf("%s failed after %d attempts: %w", op, attempt, err)
	}
	return res, err
}

// withRetryErr is withRetry for operations without a result.
func withRetryErr(ctx context.Context, policy RetryPolicy, logger *slog.Logger, op string, fn func(ctx context.Context) error) error {
	_, err := withRetry(ctx, policy, logger, op, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}
