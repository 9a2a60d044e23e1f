// Package circuitbreaker stops issuing commands to a host that keeps failing.
//
// A threshold query against an unreachable SSH host would otherwise wait out
// its full timeout for every device in the fleet. Once the breaker opens,
// calls fail immediately with ErrCircuitOpen and callers fall back to their
// defaults.
//
// States:
//   - Closed: calls pass through
//   - Open: calls rejected with ErrCircuitOpen
//   - HalfOpen: probing, a successful streak closes the breaker again
package circuitbreaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrCircuitOpen is returned instead of running the call while the breaker
// is open.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State is the breaker position.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

// String returns the state name used in logs and metrics.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// Config holds breaker tuning. Zero fields take the DefaultConfig value.
type Config struct {
	// Threshold is the number of consecutive failures that opens the breaker.
	Threshold int

	// Cooldown is how long the breaker stays open before probing.
	Cooldown time.Duration

	// SuccessThreshold is the number of consecutive half-open successes
	// that closes the breaker.
	SuccessThreshold int

	// OnStateChange, if set, is called after every transition. It runs
	// with the breaker unlocked.
	OnStateChange func(name string, from, to State)
}

// DefaultConfig suits a remote host answering smartctl/nvme queries.
func DefaultConfig() Config {
	return Config{
		Threshold:        3,
		Cooldown:         time.Minute,
		SuccessThreshold: 1,
	}
}

// CircuitBreaker is safe for concurrent use.
type CircuitBreaker struct {
	name string
	cfg  Config

	mu        sync.Mutex
	state     State
	failures  int
	successes int
	openedAt  time.Time
	nowFunc   func() time.Time
}

// New creates a closed breaker.
func New(name string, cfg Config) *CircuitBreaker {
	def := DefaultConfig()
	if cfg.Threshold <= 0 {
		cfg.Threshold = def.Threshold
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = def.Cooldown
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = def.SuccessThreshold
	}
	return &CircuitBreaker{
		name:    name,
		cfg:     cfg,
		state:   StateClosed,
		nowFunc: time.Now,
	}
}

// Execute runs fn unless the breaker is open. A context error returned by
// fn because ctx was cancelled by the caller does not count as a failure of
// the host; a deadline exceeded does.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if err := cb.admit(); err != nil {
		return err
	}

	err := fn(ctx)
	if err != nil && errors.Is(err, context.Canceled) && ctx.Err() != nil {
		return err
	}
	cb.record(err)
	return err
}

func (cb *CircuitBreaker) admit() error {
	cb.mu.Lock()
	from := cb.state
	cb.expireLocked()
	to := cb.state
	cb.mu.Unlock()

	cb.notify(from, to)
	if to == StateOpen {
		return fmt.Errorf("%s: %w", cb.name, ErrCircuitOpen)
	}
	return nil
}

func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	from := cb.state
	if err != nil {
		cb.failLocked()
	} else {
		cb.succeedLocked()
	}
	to := cb.state
	cb.mu.Unlock()

	cb.notify(from, to)
}

// expireLocked moves an open breaker to half-open once the cooldown passed.
func (cb *CircuitBreaker) expireLocked() {
	if cb.state == StateOpen && cb.nowFunc().Sub(cb.openedAt) >= cb.cfg.Cooldown {
		cb.state = StateHalfOpen
		cb.successes = 0
	}
}

func (cb *CircuitBreaker) failLocked() {
	switch cb.state {
	case StateClosed:
		cb.failures++
		if cb.failures >= cb.cfg.Threshold {
			cb.state = StateOpen
			cb.openedAt = cb.nowFunc()
		}
	case StateHalfOpen:
		cb.state = StateOpen
		cb.openedAt = cb.nowFunc()
		cb.successes = 0
	}
}

func (cb *CircuitBreaker) succeedLocked() {
	switch cb.state {
	case StateClosed:
		cb.failures = 0
	case StateHalfOpen:
		cb.successes++
		if cb.successes >= cb.cfg.SuccessThreshold {
			cb.state = StateClosed
			cb.failures = 0
			cb.successes = 0
		}
	}
}

func (cb *CircuitBreaker) notify(from, to State) {
	if from != to && cb.cfg.OnStateChange != nil {
		cb.cfg.OnStateChange(cb.name, from, to)
	}
}

// State returns the current state, applying any cooldown expiry.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	from := cb.state
	cb.expireLocked()
	to := cb.state
	cb.mu.Unlock()

	cb.notify(from, to)
	return to
}

// Name returns the breaker name.
func (cb *CircuitBreaker) Name() string {
	return cb.name
}

// Failures returns the consecutive failure count in the closed state.
func (cb *CircuitBreaker) Failures() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.failures
}

// Reset closes the breaker and clears its counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	from := cb.state
	cb.state = StateClosed
	cb.failures = 0
	cb.successes = 0
	cb.mu.Unlock()

	cb.notify(from, StateClosed)
}
