// Package retry runs operations with exponential backoff.
//
// It is available to any caller but is not wired into Provider.Query:
// queries never retry on their own, callers opt in explicitly.
package retry

import (
	"context"
	"time"

	"github.com/koustreak/dblens/internal/errs"
	"github.com/koustreak/dblens/internal/logger"
)

// Config defines retry behaviour with exponential backoff.
type Config struct {
	MaxAttempts  int           // total attempts, including the first
	InitialDelay time.Duration // delay before the second attempt
	Multiplier   float64       // delay growth per attempt
	MaxDelay     time.Duration // delay ceiling

	// sleep waits for d or until ctx is done. Tests replace it.
	sleep func(ctx context.Context, d time.Duration) error
}

// DefaultConfig returns 3 attempts, 1s initial delay doubling up to 10s.
func DefaultConfig() *Config {
	return &Config{
		MaxAttempts:  3,
		InitialDelay: time.Second,
		Multiplier:   2,
		MaxDelay:     10 * time.Second,
	}
}

// withDefaults returns a copy of c with every unset field taken from
// DefaultConfig. A nil c yields the defaults.
func (c *Config) withDefaults() Config {
	def := DefaultConfig()
	if c == nil {
		return *def
	}
	out := *c
	if out.MaxAttempts <= 0 {
		out.MaxAttempts = def.MaxAttempts
	}
	if out.InitialDelay <= 0 {
		out.InitialDelay = def.InitialDelay
	}
	if out.Multiplier <= 0 {
		out.Multiplier = def.Multiplier
	}
	if out.MaxDelay <= 0 {
		out.MaxDelay = def.MaxDelay
	}
	return out
}

// Predicate decides whether an error is worth another attempt.
type Predicate func(error) bool

// Do executes op until it succeeds, returns a non-retryable error, or the
// attempts are exhausted; the last error is returned unchanged. A nil
// predicate uses errs.IsRetryable.
func Do(ctx context.Context, cfg *Config, op func(ctx context.Context) error, isRetryable Predicate) error {
	_, err := DoWithResult(ctx, cfg, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	}, isRetryable)
	return err
}

// DoWithResult is Do for operations that return a value. Zero fields in cfg
// fall back to DefaultConfig; cfg itself is not modified.
func DoWithResult[T any](ctx context.Context, c *Config, op func(ctx context.Context) (T, error), isRetryable Predicate) (T, error) {
	cfg := c.withDefaults()
	if isRetryable == nil {
		isRetryable = errs.IsRetryable
	}
	sleep := cfg.sleep
	if sleep == nil {
		sleep = sleepCtx
	}
	attempts := cfg.MaxAttempts

	log := logger.FromContext(ctx)
	delay := cfg.InitialDelay

	for attempt := 1; ; attempt++ {
		v, err := op(ctx)
		if err == nil {
			return v, nil
		}
		if attempt >= attempts || !isRetryable(err) {
			return v, err
		}

		log.WarnWith("operation failed, retrying", err, map[string]interface{}{
			"attempt":      attempt,
			"max_attempts": attempts,
			"delay_ms":     delay.Milliseconds(),
		})

		if serr := sleep(ctx, delay); serr != nil {
			return v, serr
		}

		delay = time.Duration(float64(delay) * cfg.Multiplier)
		if delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
