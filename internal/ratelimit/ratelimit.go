// Package ratelimit throttles outbound RPC and API traffic using
// golang.org/x/time/rate.
package ratelimit

import (
	"context"

	"golang.org/x/time/rate"
)

// Limiter paces calls against a shared upstream. Public Ethereum endpoints
// and price APIs enforce per-second quotas, so the limiter is expressed in
// calls per second rather than per minute.
type Limiter struct {
	limiter *rate.Limiter
}

// New creates a limiter allowing callsPerSecond sustained calls with a
// burst of the same size, so a cold start can fan a pool list out at once
// before the steady rate applies.
func New(callsPerSecond int) *Limiter {
	if callsPerSecond < 1 {
		callsPerSecond = 1
	}
	return NewWithBurst(float64(callsPerSecond), callsPerSecond)
}

// NewWithBurst creates a limiter with an explicit burst size.
func NewWithBurst(callsPerSecond float64, burst int) *Limiter {
	if burst < 1 {
		burst = 1
	}
	return &Limiter{
		limiter: rate.NewLimiter(rate.Limit(callsPerSecond), burst),
	}
}

// Wait blocks until a call may proceed or the context is cancelled.
func (l *Limiter) Wait(ctx context.Context) error {
	return l.limiter.Wait(ctx)
}

// Allow reports whether a call may proceed now without waiting.
func (l *Limiter) Allow() bool {
	return l.limiter.Allow()
}

// Tokens returns the number of calls currently available without waiting.
func (l *Limiter) Tokens() float64 {
	return l.limiter.Tokens()
}

// SetRate updates the sustained call rate.
func (l *Limiter) SetRate(callsPerSecond float64) {
	l.limiter.SetLimit(rate.Limit(callsPerSecond))
}
