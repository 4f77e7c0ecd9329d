package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"
)

// RetryConfig shapes the backoff between attempts. Zero fields take
// defaults: 3 attempts, 100ms doubling up to 10s, ±10% jitter.
type RetryConfig struct {
	MaxAttempts    int
	InitialDelay   time.Duration
	MaxDelay       time.Duration
	Multiplier     float64
	JitterFraction float64
}

func (c RetryConfig) withDefaults() RetryConfig {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.InitialDelay <= 0 {
		c.InitialDelay = 100 * time.Millisecond
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 10 * time.Second
	}
	if c.Multiplier < 1 {
		c.Multiplier = 2
	}
	if c.JitterFraction <= 0 {
		c.JitterFraction = 0.1
	}
	return c
}

// Delay returns the pause after the given failed attempt (1-based), with
// defaults applied to zero fields.
func (c RetryConfig) Delay(attempt int) time.Duration {
	c = c.withDefaults()
	d := float64(c.InitialDelay)
	for i := 1; i < attempt && d < float64(c.MaxDelay); i++ {
		d *= c.Multiplier
	}
	d += d * c.JitterFraction * (2*rand.Float64() - 1)
	return time.Duration(min(max(d, float64(c.InitialDelay)/2), float64(c.MaxDelay)))
}

type permanentError struct{ err error }

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent marks err as not worth retrying. Retry returns the wrapped
// error at once.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Retry calls fn until it succeeds, returns a Permanent error, ctx ends or
// the attempts run out.
func Retry(ctx context.Context, name string, cfg RetryConfig, fn func() error) error {
	cfg = cfg.withDefaults()
	logger := slog.Default().With("component", "retry", "operation", name)

	var err error
	for attempt := 1; ; attempt++ {
		if err = fn(); err == nil {
			if attempt > 1 {
				logger.Info("succeeded after retry", "attempt", attempt)
			}
			return nil
		}
		var perm *permanentError
		if errors.As(err, &perm) {
			return perm.err
		}
		if attempt >= cfg.MaxAttempts {
			return fmt.Errorf("%s: giving up after %d attempts: %w", name, attempt, err)
		}

		wait := cfg.Delay(attempt)
		logger.Warn("attempt failed", "attempt", attempt, "next_delay", wait, "error", err)
		t := time.NewTimer(wait)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return fmt.Errorf("%s: %w (last error: %v)", name, ctx.Err(), err)
		}
	}
}
