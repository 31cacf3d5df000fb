// Package resilience provides retry and circuit-breaker primitives for the
// pipeline's collaborator calls.
//
// Collaborator failures are most frequent, and most independent, at the
// per-page analysis and per-line synthesis granularity; those call sites
// wrap their requests in [Retry]. A [CircuitBreaker] additionally guards
// sustained provider outages during audio rendering, where hundreds of
// per-line calls would otherwise hammer a dead endpoint.
//
// All types are safe for concurrent use.
package resilience

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"time"
)

// RetryConfig bounds a retried operation.
type RetryConfig struct {
	// Attempts is the total number of tries, including the first.
	// Default: 3.
	Attempts int

	// BaseDelay is the wait before the first retry; each further retry
	// doubles it. Default: 500ms.
	BaseDelay time.Duration

	// MaxDelay caps the backoff. Default: 10s.
	MaxDelay time.Duration

	// Jitter adds up to this fraction of the delay as random slack, keeping
	// retried pages from re-arriving in lockstep. Default: 0.2.
	Jitter float64
}

func (c RetryConfig) withDefaults() RetryConfig {
	if c.Attempts <= 0 {
		c.Attempts = 3
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = 500 * time.Millisecond
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 10 * time.Second
	}
	if c.Jitter <= 0 {
		c.Jitter = 0.2
	}
	return c
}

// Retry runs fn up to cfg.Attempts times with exponential backoff between
// tries. It returns nil on the first success, the last error once the
// attempt budget is spent, or ctx.Err() if the context ends while waiting.
func Retry(ctx context.Context, cfg RetryConfig, op string, fn func(ctx context.Context) error) error {
	cfg = cfg.withDefaults()

	var err error
	delay := cfg.BaseDelay
	for attempt := 1; attempt <= cfg.Attempts; attempt++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if attempt == cfg.Attempts {
			break
		}

		wait := delay + time.Duration(rand.Float64()*cfg.Jitter*float64(delay))
		slog.Warn("retrying after failure",
			"op", op,
			"attempt", attempt,
			"wait", wait,
			"error", err,
		)
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}

		delay *= 2
		if delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}
	return err
}
