// Package circuitbreaker guards calls to flaky external dependencies
// (DNS-over-HTTPS providers, SMTP hosts, blacklist zones) so that a failing
// dependency is short-circuited for a cooldown period instead of adding
// latency to every validation.
package circuitbreaker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// State is the current state of a breaker.
type State int32

const (
	// StateClosed allows requests through.
	StateClosed State = iota
	// StateOpen blocks all requests.
	StateOpen
	// StateHalfOpen lets requests through to probe for recovery.
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

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Config holds the breaker thresholds.
type Config struct {
	// FailureThreshold is the number of consecutive failures that opens the circuit. Default: 5
	FailureThreshold int
	// ResetTimeout is how long the circuit stays open before probing. Default: 30s
	ResetTimeout time.Duration
	// SuccessThreshold is the number of half-open successes that close the circuit. Default: 2
	SuccessThreshold int
}

// DefaultConfig returns the default thresholds.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		ResetTimeout:     30 * time.Second,
		SuccessThreshold: 2,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = def.FailureThreshold
	}
	if c.ResetTimeout <= 0 {
		c.ResetTimeout = def.ResetTimeout
	}
	if c.SuccessThreshold <= 0 {
		c.SuccessThreshold = def.SuccessThreshold
	}
	return c
}

// OpenError is returned when a request is rejected by an open circuit.
type OpenError struct {
	Name    string
	RetryIn time.Duration
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("circuit breaker %q is open, retry in %s", e.Name, e.RetryIn.Round(time.Millisecond))
}

// Stats is a snapshot of a breaker's counters.
type Stats struct {
	Name           string    `json:"name"`
	State          State     `json:"state"`
	Failures       int       `json:"failures"`
	Successes      int       `json:"successes"`
	TotalRequests  int64     `json:"totalRequests"`
	TotalFailures  int64     `json:"totalFailures"`
	TotalSuccesses int64     `json:"totalSuccesses"`
	LastFailure    time.Time `json:"lastFailure,omitzero"`
	LastSuccess    time.Time `json:"lastSuccess,omitzero"`
}

// Breaker is a single circuit breaker. The zero value is not usable; use
// New or Registry.Get.
type Breaker struct {
	name   string
	cfg    Config
	now    func() time.Time
	logger *slog.Logger

	mu             sync.Mutex
	state          State
	openedAt       time.Time
	failures       int
	successes      int
	totalRequests  int64
	totalFailures  int64
	totalSuccesses int64
	lastFailure    time.Time
	lastSuccess    time.Time
}

// New creates a closed breaker.
func New(name string, cfg Config) *Breaker {
	return newBreaker(name, cfg, time.Now, slog.Default())
}

func newBreaker(name string, cfg Config, now func() time.Time, logger *slog.Logger) *Breaker {
	return &Breaker{
		name:   name,
		cfg:    cfg.withDefaults(),
		now:    now,
		logger: logger,
		state:  StateClosed,
	}
}

// Name returns the dependency name the breaker guards.
func (b *Breaker) Name() string { return b.name }

// State returns the current state. An open circuit whose reset timeout has
// elapsed reports (and moves to) half-open.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.advanceLocked()
	return b.state
}

// Allow reports whether a request may proceed. It returns *OpenError while
// the circuit is open.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.advanceLocked()
	if b.state == StateOpen {
		return &OpenError{Name: b.name, RetryIn: b.cfg.ResetTimeout - b.now().Sub(b.openedAt)}
	}
	return nil
}

// RecordSuccess records a successful call.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.advanceLocked()
	b.totalRequests++
	b.totalSuccesses++
	b.lastSuccess = b.now()

	switch b.state {
	case StateClosed:
		b.failures = 0
	case StateHalfOpen:
		b.successes++
		if b.successes >= b.cfg.SuccessThreshold {
			b.transitionLocked(StateClosed)
		}
	case StateOpen:
		b.logger.Warn("success recorded in open state", "breaker", b.name)
	}
}

// RecordFailure records a failed call.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.advanceLocked()
	b.totalRequests++
	b.totalFailures++
	b.lastFailure = b.now()

	switch b.state {
	case StateClosed:
		b.failures++
		if b.failures >= b.cfg.FailureThreshold {
			b.transitionLocked(StateOpen)
		}
	case StateHalfOpen:
		b.transitionLocked(StateOpen)
	}
}

// Reset forces the breaker back to closed and clears the consecutive counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.transitionLocked(StateClosed)
}

// Stats returns a snapshot of the breaker's counters.
func (b *Breaker) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.advanceLocked()
	return Stats{
		Name:           b.name,
		State:          b.state,
		Failures:       b.failures,
		Successes:      b.successes,
		TotalRequests:  b.totalRequests,
		TotalFailures:  b.totalFailures,
		TotalSuccesses: b.totalSuccesses,
		LastFailure:    b.lastFailure,
		LastSuccess:    b.lastSuccess,
	}
}

// advanceLocked moves an open circuit to half-open once the reset timeout elapsed.
func (b *Breaker) advanceLocked() {
	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.cfg.ResetTimeout {
		b.transitionLocked(StateHalfOpen)
	}
}

func (b *Breaker) transitionLocked(to State) {
	from := b.state
	b.state = to
	b.failures = 0
	b.successes = 0
	if to == StateOpen {
		b.openedAt = b.now()
	}
	if from != to {
		b.logger.Info("circuit breaker state transition",
			"breaker", b.name,
			"from", from.String(),
			"to", to.String())
	}
}

// Execute runs fn if the breaker allows it and records the outcome.
// A failure while ctx itself is done is the caller giving up and is not
// recorded. Deadlines fn sets on its own derived context still count.
func Execute[T any](ctx context.Context, b *Breaker, fn func(context.Context) (T, error)) (T, error) {
	if err := b.Allow(); err != nil {
		var zero T
		return zero, err
	}
	v, err := fn(ctx)
	if err != nil {
		if ctx.Err() == nil {
			b.RecordFailure()
		}
		return v, err
	}
	b.RecordSuccess()
	return v, nil
}

// ExecuteWithFallback is Execute, except that an open circuit yields
// fallback instead of an error.
func ExecuteWithFallback[T any](ctx context.Context, b *Breaker, fn func(context.Context) (T, error), fallback T) (T, error) {
	if err := b.Allow(); err != nil {
		return fallback, nil
	}
	return Execute(ctx, b, fn)
}
