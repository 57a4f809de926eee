package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

type Config struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 1
	}
	if c.InitialInterval <= 0 {
		c.InitialInterval = 200 * time.Millisecond
	}
	if c.MaxInterval < c.InitialInterval {
		c.MaxInterval = c.InitialInterval
	}
	return c
}

// Do runs op until it succeeds, returns an error rejected by retryable,
// runs out of attempts or ctx is done.
func Do(ctx context.Context, cfg Config, name string, retryable func(error) bool, op func(ctx context.Context) error) error {
	cfg = cfg.withDefaults()
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = cfg.InitialInterval
	exp.MaxInterval = cfg.MaxInterval
	exp.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(exp, uint64(cfg.MaxAttempts-1)), ctx)

	attempt := 0
	var lastErr error
	err := backoff.RetryNotify(func() error {
		attempt++
		err := op(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
		if retryable != nil && !retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, policy, func(err error, wait time.Duration) {
		logutil.GetLogger(ctx).Warn("operation failed, retrying",
			zap.String("op", name),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
	})
	if err != nil && lastErr != nil && ctx.Err() != nil && !errors.Is(lastErr, ctx.Err()) {
		return fmt.Errorf("%w: %w", lastErr, ctx.Err())
	}
	return err
}
