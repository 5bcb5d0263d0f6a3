// Package circuitbreaker implements the circuit breaker pattern for calls to
// external services, primarily the text-completion API. It protects the chat
// path from hammering a failing upstream.
package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"
)

// State is the current breaker state.
type State int

const (
	// StateClosed allows requests through.
	StateClosed State = iota
	// StateOpen blocks all requests until the cooldown elapses.
	StateOpen
	// StateHalfOpen lets a limited number of probes through.
	StateHalfOpen
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

var (
	// ErrOpen is returned while the breaker blocks requests.
	ErrOpen = errors.New("circuit breaker is open")
	// ErrTooManyProbes is returned when the half-open probe budget is spent.
	ErrTooManyProbes = errors.New("too many probes in half-open state")
)

// Config holds breaker tuning.
type Config struct {
	// Name identifies this breaker in logs and state-change callbacks.
	Name string

	// FailureThreshold is the consecutive failures that open the circuit.
	FailureThreshold int

	// SuccessThreshold is the consecutive half-open successes that close it.
	SuccessThreshold int

	// Cooldown is how long the circuit stays open before probing.
	Cooldown time.Duration

	// MaxProbes is the number of requests allowed while half-open.
	MaxProbes int

	// OnStateChange is invoked on every transition.
	OnStateChange func(name string, from, to State)

	// IsFailure classifies errors; nil counts every non-nil error.
	IsFailure func(error) bool
}

// Option tweaks a Config.
type Option func(*Config)

// WithFailureThreshold sets the consecutive-failure limit.
func WithFailureThreshold(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.FailureThreshold = n
		}
	}
}

// WithSuccessThreshold sets the half-open success requirement.
func WithSuccessThreshold(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.SuccessThreshold = n
		}
	}
}

// WithCooldown sets the open-state cooldown.
func WithCooldown(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.Cooldown = d
		}
	}
}

// WithMaxProbes sets the half-open probe budget.
func WithMaxProbes(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.MaxProbes = n
		}
	}
}

// WithOnStateChange sets the transition callback.
func WithOnStateChange(fn func(name string, from, to State)) Option {
	return func(c *Config) { c.OnStateChange = fn }
}

// WithIsFailure sets the error classifier.
func WithIsFailure(fn func(error) bool) Option {
	return func(c *Config) { c.IsFailure = fn }
}

// Breaker is a three-state circuit breaker.
type Breaker struct {
	config Config

	mu           sync.Mutex
	state        State
	consecFails  int
	consecOKs    int
	probesInUse  int
	openedAt     time.Time
	totalAllowed int64
	totalBlocked int64
}

// New creates a breaker with sensible defaults.
func New(name string, opts ...Option) *Breaker {
	config := Config{
		Name:             name,
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Cooldown:         30 * time.Second,
		MaxProbes:        1,
	}
	for _, opt := range opts {
		opt(&config)
	}
	return &Breaker{config: config, state: StateClosed}
}

// Do runs fn if the circuit allows it and records the outcome.
func (b *Breaker) Do(ctx context.Context, fn func(context.Context) error) error {
	if err := b.allow(); err != nil {
		return err
	}
	err := fn(ctx)
	b.record(err)
	return err
}

func (b *Breaker) allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		b.totalAllowed++
		return nil
	case StateOpen:
		if time.Since(b.openedAt) >= b.config.Cooldown {
			b.transition(StateHalfOpen)
			b.probesInUse = 1
			b.totalAllowed++
			return nil
		}
		b.totalBlocked++
		return ErrOpen
	case StateHalfOpen:
		if b.probesInUse < b.config.MaxProbes {
			b.probesInUse++
			b.totalAllowed++
			return nil
		}
		b.totalBlocked++
		return ErrTooManyProbes
	default:
		return ErrOpen
	}
}

func (b *Breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	failed := err != nil
	if err != nil && b.config.IsFailure != nil {
		failed = b.config.IsFailure(err)
	}

	if failed {
		b.consecFails++
		b.consecOKs = 0
		switch b.state {
		case StateClosed:
			if b.consecFails >= b.config.FailureThreshold {
				b.openedAt = time.Now()
				b.transition(StateOpen)
			}
		case StateHalfOpen:
			// A failed probe reopens immediately.
			b.openedAt = time.Now()
			b.transition(StateOpen)
		}
		return
	}

	b.consecOKs++
	b.consecFails = 0
	if b.state == StateHalfOpen && b.consecOKs >= b.config.SuccessThreshold {
		b.transition(StateClosed)
	}
}

func (b *Breaker) transition(to State) {
	if b.state == to {
		return
	}
	from := b.state
	b.state = to
	b.consecFails = 0
	b.consecOKs = 0
	b.probesInUse = 0
	if b.config.OnStateChange != nil {
		b.config.OnStateChange(b.config.Name, from, to)
	}
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Reset returns the breaker to closed with zeroed counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateClosed
	b.consecFails = 0
	b.consecOKs = 0
	b.probesInUse = 0
}

// CompletionAPIBreaker returns a breaker tuned for the text-completion API.
// The upstream rate limits aggressively, so the cooldown is generous.
func CompletionAPIBreaker(onStateChange func(name string, from, to State)) *Breaker {
	return New(
		"completion-api",
		WithFailureThreshold(3),
		WithSuccessThreshold(2),
		WithCooldown(60*time.Second),
		WithMaxProbes(1),
		WithOnStateChange(onStateChange),
	)
}
