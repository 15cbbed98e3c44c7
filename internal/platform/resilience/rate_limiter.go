package resilience

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter paces outbound provider calls with a token bucket, grounded
// on the same per-dependency limiter shape used elsewhere in the stack but
// built on golang.org/x/time/rate instead of a hand-rolled bucket.
type RateLimiter struct {
	limiter *rate.Limiter
}

// NewRateLimiter creates a limiter allowing ratePerSecond sustained calls
// with a burst capacity of burst.
func NewRateLimiter(ratePerSecond float64, burst int) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{limiter: rate.NewLimiter(rate.Limit(ratePerSecond), burst)}
}

// Wait blocks until a token is available or ctx is cancelled.
func (r *RateLimiter) Wait(ctx context.Context) error {
	return r.limiter.Wait(ctx)
}

// Allow reports whether a call may proceed immediately, without blocking.
func (r *RateLimiter) Allow() bool {
	return r.limiter.Allow()
}

// ProviderCall composes the rate limiter, circuit breaker and retry helper
// around a single provider invocation — the seam every quote/holdings
// fetch in the engine and backtest driver goes through.
type ProviderCall struct {
	Limiter *RateLimiter
	Breaker *CircuitBreaker
	Retry   RetryConfig
	Timeout time.Duration
}

// NewProviderCall builds a ProviderCall with the resilience defaults named
// in the configuration surface (10s timeout, 3 attempts, circuit breaker
// per dependency name).
func NewProviderCall(name string) *ProviderCall {
	return &ProviderCall{
		Limiter: NewRateLimiter(20, 20),
		Breaker: NewCircuitBreaker(name, DefaultCircuitBreakerConfig()),
		Retry:   DefaultRetryConfig(),
		Timeout: 10 * time.Second,
	}
}

// Do runs fn with a timeout, through the rate limiter, the circuit
// breaker, and bounded retry, in that order.
func (p *ProviderCall) Do(ctx context.Context, transient IsTransient, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	if err := p.Limiter.Wait(ctx); err != nil {
		return err
	}

	return p.Breaker.Call(func() error {
		return Retry(ctx, p.Retry, transient, func() error {
			return fn(ctx)
		})
	})
}
