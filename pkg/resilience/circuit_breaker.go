package resilience

import (
	"errors"
	"sync"
	"time"
)

// CircuitState represents the current state of a circuit breaker
type CircuitState int

const (
	// StateClosed lets calls through
	StateClosed CircuitState = iota
	// StateOpen rejects calls until the cool-down elapses
	StateOpen
	// StateHalfOpen admits a limited number of probe calls
	StateHalfOpen
)

func (s CircuitState) String() string {
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
	// ErrCircuitOpen is returned when the breaker is open
	ErrCircuitOpen = errors.New("circuit breaker is open")
	// ErrTooManyProbes is returned when the half-open probe budget is used up
	ErrTooManyProbes = errors.New("too many requests in half-open state")
)

// CircuitBreakerConfig configures circuit breaker behavior
type CircuitBreakerConfig struct {
	// MaxFailures is the number of consecutive failures before opening
	MaxFailures uint32
	// CoolDown is how long the breaker stays open before probing
	CoolDown time.Duration
	// MaxProbes is the number of calls admitted while half-open
	MaxProbes uint32
}

// DefaultCircuitBreakerConfig returns the settings used for the payment gateway
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		MaxFailures: 5,
		CoolDown:    30 * time.Second,
		MaxProbes:   1,
	}
}

// CircuitBreaker stops hammering an upstream that keeps failing
type CircuitBreaker struct {
	mu        sync.Mutex
	state     CircuitState
	failures  uint32
	probes    uint32
	changedAt time.Time
	config    CircuitBreakerConfig
	now       func() time.Time
}

// NewCircuitBreaker creates a closed circuit breaker
func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	return &CircuitBreaker{
		state:     StateClosed,
		changedAt: time.Now(),
		config:    config,
		now:       time.Now,
	}
}

// Call runs fn when the breaker admits it and records the outcome.
// Errors for which ignore returns true count as successes: a well-formed
// rejection from the upstream says nothing about its health.
func (cb *CircuitBreaker) Call(fn func() error, ignore ...func(error) bool) error {
	if err := cb.admit(); err != nil {
		return err
	}

	err := fn()

	failed := err != nil
	for _, skip := range ignore {
		if failed && skip(err) {
			failed = false
		}
	}
	cb.record(failed)

	return err
}

func (cb *CircuitBreaker) admit() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return nil
	case StateOpen:
		if cb.now().Sub(cb.changedAt) > cb.config.CoolDown {
			cb.transition(StateHalfOpen)
			cb.probes++
			return nil
		}
		return ErrCircuitOpen
	case StateHalfOpen:
		if cb.probes >= cb.config.MaxProbes {
			return ErrTooManyProbes
		}
		cb.probes++
		return nil
	default:
		return ErrCircuitOpen
	}
}

func (cb *CircuitBreaker) record(failed bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if !failed {
		if cb.state == StateHalfOpen {
			cb.transition(StateClosed)
		}
		cb.failures = 0
		return
	}

	cb.failures++
	switch cb.state {
	case StateClosed:
		if cb.failures >= cb.config.MaxFailures {
			cb.transition(StateOpen)
		}
	case StateHalfOpen:
		cb.transition(StateOpen)
	}
}

// transition must be called with mu held
func (cb *CircuitBreaker) transition(next CircuitState) {
	if cb.state == next {
		return
	}
	cb.state = next
	cb.changedAt = cb.now()
	cb.probes = 0
	if next != StateOpen {
		cb.failures = 0
	}
}

// State returns the current circuit state
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Failures returns the consecutive failure count
func (cb *CircuitBreaker) Failures() uint32 {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.failures
}
