package database

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
)

// WaitFor retries probe with exponential backoff (100ms doubling, capped at
// 10s between attempts) until it succeeds or maxElapsed passes. It is meant
// for process bootstrap only; request paths never retry.
func WaitFor(ctx context.Context, name string, maxElapsed time.Duration, logger *zap.Logger, probe func(context.Context) error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.Multiplier = 2
	b.MaxInterval = 10 * time.Second

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, probe(ctx)
	},
		backoff.WithBackOff(b),
		backoff.WithMaxElapsedTime(maxElapsed),
		backoff.WithNotify(func(err error, next time.Duration) {
			logger.Warn("dependency not ready", zap.String("dependency", name), zap.Duration("retry_in", next), zap.Error(err))
		}),
	)
	return err
}
