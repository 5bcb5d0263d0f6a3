// Package retry provides retry with exponential backoff and jitter for
// transient failures: aggregate loads, Redis round trips and completion API
// calls. Saves are deliberately never retried through this package because a
// blind re-save can interleave with a newer write.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"
)

// Permanent wraps an error that must not be retried.
type Permanent struct {
	Err error
}

// Error implements the error interface.
func (p *Permanent) Error() string { return fmt.Sprintf("permanent: %v", p.Err) }

// Unwrap returns the wrapped error.
func (p *Permanent) Unwrap() error { return p.Err }

// Stop marks an error as permanent so Do gives up immediately.
func Stop(err error) error {
	if err == nil {
		return nil
	}
	return &Permanent{Err: err}
}

// IsPermanent reports whether the error was marked with Stop.
func IsPermanent(err error) bool {
	var p *Permanent
	return errors.As(err, &p)
}

// Config holds retry tuning.
type Config struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int

	// InitialDelay is the delay before the second attempt.
	InitialDelay time.Duration

	// MaxDelay caps the backoff.
	MaxDelay time.Duration

	// Multiplier grows the delay between attempts.
	Multiplier float64

	// Jitter adds up to this fraction of the delay randomly.
	Jitter float64

	// ShouldRetry classifies errors; nil retries every non-permanent error.
	ShouldRetry func(error) bool

	// OnRetry is invoked before each re-attempt.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// Option tweaks a Config.
type Option func(*Config)

// WithMaxAttempts sets the attempt budget.
func WithMaxAttempts(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.MaxAttempts = n
		}
	}
}

// WithInitialDelay sets the first backoff delay.
func WithInitialDelay(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.InitialDelay = d
		}
	}
}

// WithMaxDelay caps the backoff delay.
func WithMaxDelay(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.MaxDelay = d
		}
	}
}

// WithMultiplier sets the backoff growth factor.
func WithMultiplier(m float64) Option {
	return func(c *Config) {
		if m >= 1 {
			c.Multiplier = m
		}
	}
}

// WithShouldRetry sets the error classifier.
func WithShouldRetry(fn func(error) bool) Option {
	return func(c *Config) { c.ShouldRetry = fn }
}

// WithOnRetry sets the re-attempt callback.
func WithOnRetry(fn func(attempt int, err error, delay time.Duration)) Option {
	return func(c *Config) { c.OnRetry = fn }
}

func defaultConfig() Config {
	return Config{
		MaxAttempts:  3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
		Jitter:       0.2,
	}
}

// Do runs fn until it succeeds, the attempts are spent, the error is
// permanent, or the context is done.
func Do(ctx context.Context, fn func(context.Context) error, opts ...Option) error {
	_, err := DoWithData(ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	}, opts...)
	return err
}

// DoWithData is Do for functions that return a value.
func DoWithData[T any](ctx context.Context, fn func(context.Context) (T, error), opts ...Option) (T, error) {
	config := defaultConfig()
	for _, opt := range opts {
		opt(&config)
	}

	var zero T
	var lastErr error
	delay := config.InitialDelay

	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if IsPermanent(err) {
			return zero, err
		}
		if config.ShouldRetry != nil && !config.ShouldRetry(err) {
			return zero, err
		}
		if attempt == config.MaxAttempts {
			break
		}

		sleep := delay
		if config.Jitter > 0 {
			sleep += time.Duration(rand.Float64() * config.Jitter * float64(delay))
		}
		if config.OnRetry != nil {
			config.OnRetry(attempt, err, sleep)
		}

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(sleep):
		}

		delay = time.Duration(float64(delay) * config.Multiplier)
		if delay > config.MaxDelay {
			delay = config.MaxDelay
		}
	}

	return zero, fmt.Errorf("all %d attempts failed: %w", config.MaxAttempts, lastErr)
}
