// Package resilience wraps every provider call with a circuit breaker, a
// token-bucket rate limiter and bounded retry with exponential backoff, so
// a sustained outage degrades to fast, logged failures instead of
// hammering the provider.
package resilience

import (
	"sync/atomic"
	"time"
)

// State is the circuit breaker's current posture.
type State int32

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateHalfOpen:
		return "half_open"
	case StateOpen:
		return "open"
	default:
		return "closed"
	}
}

// CircuitBreakerConfig parameterizes the breaker.
type CircuitBreakerConfig struct {
	FailureThreshold int64         // consecutive failures to trip open
	OpenTimeout      time.Duration // how long to stay open before probing
	HalfOpenSuccesses int64        // successes in half-open needed to close
}

// DefaultCircuitBreakerConfig matches the resilience defaults named in the
// configuration surface.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold:  5,
		OpenTimeout:       30 * time.Second,
		HalfOpenSuccesses: 2,
	}
}

// CircuitBreaker guards a single external dependency (a quote provider, a
// holdings provider). It is safe for concurrent use.
type CircuitBreaker struct {
	name   string
	cfg    CircuitBreakerConfig

	state          int32
	stateChangedAt int64 // unix nanos

	consecutiveFailures int64
	halfOpenSuccesses   int64
}

// NewCircuitBreaker creates a closed breaker named name.
func NewCircuitBreaker(name string, cfg CircuitBreakerConfig) *CircuitBreaker {
	return &CircuitBreaker{name: name, cfg: cfg, stateChangedAt: time.Now().UnixNano()}
}

// Allow reports whether a call may proceed right now, transitioning the
// breaker from open to half-open once OpenTimeout has elapsed.
func (cb *CircuitBreaker) Allow() bool {
	switch State(atomic.LoadInt32(&cb.state)) {
	case StateOpen:
		changedAt := time.Unix(0, atomic.LoadInt64(&cb.stateChangedAt))
		if time.Since(changedAt) >= cb.cfg.OpenTimeout {
			cb.transition(StateHalfOpen)
			return true
		}
		return false
	default:
		return true
	}
}

// RecordSuccess registers a successful call outcome.
func (cb *CircuitBreaker) RecordSuccess() {
	switch State(atomic.LoadInt32(&cb.state)) {
	case StateHalfOpen:
		if atomic.AddInt64(&cb.halfOpenSuccesses, 1) >= cb.cfg.HalfOpenSuccesses {
			cb.transition(StateClosed)
		}
	default:
		atomic.StoreInt64(&cb.consecutiveFailures, 0)
	}
}

// RecordFailure registers a failed call outcome, tripping the breaker open
// once the failure threshold is reached.
func (cb *CircuitBreaker) RecordFailure() {
	if State(atomic.LoadInt32(&cb.state)) == StateHalfOpen {
		cb.transition(StateOpen)
		return
	}
	if atomic.AddInt64(&cb.consecutiveFailures, 1) >= cb.cfg.FailureThreshold {
		cb.transition(StateOpen)
	}
}

func (cb *CircuitBreaker) transition(to State) {
	atomic.StoreInt32(&cb.state, int32(to))
	atomic.StoreInt64(&cb.stateChangedAt, time.Now().UnixNano())
	atomic.StoreInt64(&cb.consecutiveFailures, 0)
	atomic.StoreInt64(&cb.halfOpenSuccesses, 0)
}

// CurrentState reports the breaker's current posture.
func (cb *CircuitBreaker) CurrentState() State {
	return State(atomic.LoadInt32(&cb.state))
}

// ErrOpen is returned by Call when the breaker is open.
type ErrOpen struct{ Name string }

func (e *ErrOpen) Error() string { return "circuit breaker " + e.Name + " is open" }

// Call executes fn if the breaker allows it, recording the outcome.
func (cb *CircuitBreaker) Call(fn func() error) error {
	if !cb.Allow() {
		return &ErrOpen{Name: cb.name}
	}
	err := fn()
	if err != nil {
		cb.RecordFailure()
		return err
	}
	cb.RecordSuccess()
	return nil
}
