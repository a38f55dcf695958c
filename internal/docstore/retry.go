package docstore

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/rs/zerolog"
)

// errConflict marks a commit that lost an optimistic concurrency race.
var errConflict = errors.New("transaction conflict")

// runWithRetry invokes attempt until it succeeds, fails with a non-retryable
// error, or the budget runs out.
func runWithRetry(
	ctx context.Context,
	o options,
	opts []TxOption,
	retryable func(error) bool,
	logger zerolog.Logger,
	attempt func(ctx context.Context) error,
) error {
	to := txOptions{maxAttempts: o.maxAttempts}
	for _, opt := range opts {
		opt(&to)
	}

	var lastErr error
	for i := 1; i <= to.maxAttempts; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := attempt(ctx)
		if err == nil {
			return nil
		}
		if !retryable(err) {
			return err
		}
		lastErr = err

		logger.Debug().
			Err(err).
			Int("attempt", i).
			Int("max_attempts", to.maxAttempts).
			Msg("transaction conflict, retrying")

		if i < to.maxAttempts {
			if err := sleep(ctx, backoff(o.baseBackoff, i)); err != nil {
				return err
			}
		}
	}

	logger.Warn().
		Err(lastErr).
		Int("attempts", to.maxAttempts).
		Msg("transaction retry budget exhausted")

	return fmt.Errorf("%w after %d attempts: %v", ErrTooManyRetries, to.maxAttempts, lastErr)
}

// backoff returns an exponentially growing, fully jittered delay.
func backoff(base time.Duration, attempt int) time.Duration {
	if base <= 0 {
		return 0
	}
	limit := base << min(attempt-1, 6)
	return time.Duration(rand.Int64N(int64(limit) + 1))
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
