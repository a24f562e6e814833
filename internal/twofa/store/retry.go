package store

import (
	"context"
	"errors"
	"time"

	"github.com/sethvargo/go-retry"
)

const (
	conflictRetryBase = 5 * time.Millisecond
	conflictRetryCap  = 250 * time.Millisecond
	conflictRetryMax  = 8
)

// RetryOnConflict runs attempt until it stops failing with ErrConflict, backing
// off on a capped Fibonacci schedule. Any other error ends the loop at once.
// When the retry budget is spent ErrConflict is returned.
func RetryOnConflict(ctx context.Context, attempt func(ctx context.Context) error) error {
	b := retry.NewFibonacci(conflictRetryBase)
	b = retry.WithCappedDuration(conflictRetryCap, b)
	b = retry.WithMaxRetries(conflictRetryMax, b)

	return retry.Do(ctx, b, func(ctx context.Context) error {
		err := attempt(ctx)
		if errors.Is(err, ErrConflict) {
			return retry.RetryableError(err)
		}
		return err
	})
}
