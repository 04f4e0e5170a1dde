// Package ratelimit enforces the politeness delay between consecutive outbound fetches.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/JakeFAU/sold-listings-crawler/internal/metrics"
)

// MinDelay is the floor for the delay between two fetches. Configuration can raise it, never lower it.
const MinDelay = 2 * time.Second

// Limiter is a single process-wide token bucket: every fetcher sharing it is
// spaced by the same interval.
type Limiter struct {
	limiter  *rate.Limiter
	interval time.Duration
}

// New creates a Limiter spacing fetches by delay, clamped to MinDelay.
func New(delay time.Duration) *Limiter {
	if delay < MinDelay {
		delay = MinDelay
	}
	return newLimiter(delay)
}

func newLimiter(interval time.Duration) *Limiter {
	return &Limiter{
		limiter:  rate.NewLimiter(rate.Every(interval), 1),
		interval: interval,
	}
}

// Interval returns the enforced spacing.
func (l *Limiter) Interval() time.Duration {
	return l.interval
}

// Wait blocks until the next fetch may start, respecting the context.
func (l *Limiter) Wait(ctx context.Context) error {
	start := time.Now()
	if err := l.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	// Only waits that actually blocked are interesting.
	if d := time.Since(start); d > time.Millisecond {
		metrics.ObserveRateLimitDelay(d)
	}
	return nil
}
