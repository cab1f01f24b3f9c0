// Package resilience provides the bounded retry loop used by upload workers
// and a context-based timeout wrapper for single calls.
package resilience

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/strobe-loadgen/pkg/errors"
)

// Backoff returns the delay to wait after the given failed attempt (1-based).
type Backoff func(attempt int) time.Duration

// Sleeper blocks for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Linear waits base × attempt.
func Linear(base time.Duration) Backoff {
	return func(attempt int) time.Duration {
		return base * time.Duration(attempt)
	}
}

type ExponentialConfig struct {
	InitialDelay   time.Duration
	MaxDelay       time.Duration
	Multiplier     float64
	JitterFraction float64
}

func defaultExponentialConfig() ExponentialConfig {
	return ExponentialConfig{
		InitialDelay:   100 * time.Millisecond,
		MaxDelay:       10 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.1,
	}
}

// Exponential grows the delay by Multiplier per attempt with symmetric jitter,
// capped at MaxDelay. Zero fields take defaults.
func Exponential(cfg ExponentialConfig) Backoff {
	defaults := defaultExponentialConfig()
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = defaults.InitialDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = defaults.MaxDelay
	}
	if cfg.Multiplier <= 0 {
		cfg.Multiplier = defaults.Multiplier
	}
	if cfg.JitterFraction < 0 {
		cfg.JitterFraction = defaults.JitterFraction
	}
	return func(attempt int) time.Duration {
		return computeDelay(attempt, cfg)
	}
}

func computeDelay(attempt int, cfg ExponentialConfig) time.Duration {
	backoff := float64(cfg.InitialDelay) * math.Pow(cfg.Multiplier, float64(attempt-1))
	jitter := backoff * cfg.JitterFraction * (2*rand.Float64() - 1)
	backoff += jitter
	if backoff > float64(cfg.MaxDelay) {
		backoff = float64(cfg.MaxDelay)
	}
	if backoff < 0 {
		backoff = float64(cfg.InitialDelay)
	}
	return time.Duration(backoff)
}

// Sleep is the wall-clock Sleeper.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type RetryConfig struct {
	// MaxRetries bounds the retries after the first attempt, so fn runs at
	// most MaxRetries+1 times.
	MaxRetries int
	Backoff    Backoff
	Sleep      Sleeper
	// Retryable decides whether a failure is worth another attempt. Nil
	// means errors.IsRetryable.
	Retryable func(error) bool
	Logger    *slog.Logger
}

// Retry runs fn until it succeeds, fails with a non-retryable error, or the
// retry budget is spent. It returns the number of attempts made. Exhaustion
// is reported as ErrRetriesExhausted wrapping the last failure.
func Retry(ctx context.Context, name string, cfg RetryConfig, fn func(ctx context.Context, attempt int) error) (int, error) {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.Backoff == nil {
		cfg.Backoff = Linear(500 * time.Millisecond)
	}
	if cfg.Sleep == nil {
		cfg.Sleep = Sleep
	}
	if cfg.Retryable == nil {
		cfg.Retryable = apperrors.IsRetryable
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "retry", "operation", name)

	for attempt := 1; ; attempt++ {
		err := fn(ctx, attempt)
		if err == nil {
			if attempt > 1 {
				logger.Info("succeeded after retry", "attempt", attempt)
			}
			return attempt, nil
		}
		if !cfg.Retryable(err) {
			return attempt, err
		}
		if attempt > cfg.MaxRetries {
			return attempt, fmt.Errorf("%s: %w after %d attempts: %w", name, apperrors.ErrRetriesExhausted, attempt, err)
		}
		if ctx.Err() != nil {
			return attempt, fmt.Errorf("retry aborted: %w", ctx.Err())
		}
		delay := cfg.Backoff(attempt)
		logger.Warn("operation failed, retrying", "attempt", attempt, "max_attempts", cfg.MaxRetries+1, "error", err, "next_delay", delay)
		if err := cfg.Sleep(ctx, delay); err != nil {
			return attempt, fmt.Errorf("retry aborted during backoff: %w", err)
		}
	}
}
