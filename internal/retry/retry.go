// Package retry implements bounded exponential backoff for outbound
// provider calls.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"
)

// Config configures retry behavior.
type Config struct {
	MaxAttempts  int           // total attempts, including the first
	InitialDelay time.Duration // delay before the first retry
	MaxDelay     time.Duration // cap on the delay between retries
	Multiplier   float64       // exponential backoff multiplier
}

// DefaultConfig returns the retry schedule used by provider clients:
// 3 attempts, 500ms, 1s (capped at 10s).
func DefaultConfig() *Config {
	return &Config{
		MaxAttempts:  3,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     10 * time.Second,
		Multiplier:   2.0,
	}
}

// Func is a unit of retryable work. The attempt counter starts at 1.
type Func func(ctx context.Context, attempt int) error

// PermanentError wraps a failure that retrying cannot fix; Do stops
// immediately and returns the wrapped error.
type PermanentError struct{ Err error }

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent marks err as non-retryable.
func Permanent(err error) error {
	return &PermanentError{Err: err}
}

// Do executes fn with exponential backoff until it succeeds, attempts are
// exhausted, or the context is cancelled. The last error is wrapped with the
// attempt count.
func Do(ctx context.Context, cfg *Config, fn Func) error {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn(ctx, attempt)
		if lastErr == nil {
			return nil
		}
		var permanent *PermanentError
		if errors.As(lastErr, &permanent) {
			return permanent.Err
		}
		if attempt == cfg.MaxAttempts {
			break
		}

		select {
		case <-time.After(delayFor(cfg, attempt)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return fmt.Errorf("operation failed after %d attempts: %w", cfg.MaxAttempts, lastErr)
}

func delayFor(cfg *Config, attempt int) time.Duration {
	delay := float64(cfg.InitialDelay) * math.Pow(cfg.Multiplier, float64(attempt-1))
	if delay > float64(cfg.MaxDelay) {
		delay = float64(cfg.MaxDelay)
	}
	return time.Duration(delay)
}
