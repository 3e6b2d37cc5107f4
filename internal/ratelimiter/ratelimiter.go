// Package ratelimiter throttles outbound inventory requests with a token
// bucket (golang.org/x/time/rate).
//
// Simulators drop or kick clients that flood them with inventory requests;
// the manager waits on the limiter before every send.
package ratelimiter

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimiter is a token bucket. All methods are safe for concurrent use.
type RateLimiter struct {
	limiter *rate.Limiter
}

// New creates a limiter allowing requestsPerSecond sustained with bursts of
// up to burst requests.
//
// Special cases:
//   - requestsPerSecond = 0: No rate limiting
//   - burst = 0: Burst defaults to requestsPerSecond (at least 1)
//
// Example:
//
//	// 20 requests/s sustained, bursts of 40 (the login fetch storm)
//	limiter := New(20, 40)
func New(requestsPerSecond, burst uint) *RateLimiter {
	if requestsPerSecond == 0 {
		return &RateLimiter{limiter: rate.NewLimiter(rate.Inf, 0)}
	}
	if burst == 0 {
		burst = requestsPerSecond
	}
	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), int(burst)),
	}
}

// Allow consumes a token if one is available, without waiting.
func (r *RateLimiter) Allow() bool {
	return r.limiter.Allow()
}

// Wait blocks until a token is available or the context is done.
//
// Returns:
//   - nil if a token was acquired
//   - an error if ctx was cancelled first or its deadline is too close for
//     a token to become available
func (r *RateLimiter) Wait(ctx context.Context) error {
	return r.limiter.Wait(ctx)
}

// SetLimit changes the sustained rate; 0 disables limiting.
func (r *RateLimiter) SetLimit(requestsPerSecond uint) {
	if requestsPerSecond == 0 {
		r.limiter.SetLimit(rate.Inf)
		return
	}
	r.limiter.SetLimit(rate.Limit(requestsPerSecond))
	if r.limiter.Burst() == 0 {
		r.limiter.SetBurst(int(requestsPerSecond))
	}
}

// SetBurst changes the bucket capacity.
func (r *RateLimiter) SetBurst(burst uint) {
	r.limiter.SetBurst(int(burst))
}

// Unlimited reports whether the limiter lets everything through.
func (r *RateLimiter) Unlimited() bool {
	return r.limiter.Limit() == rate.Inf
}

// Tokens returns the tokens currently in the bucket, for monitoring.
func (r *RateLimiter) Tokens() float64 {
	return r.limiter.Tokens()
}
