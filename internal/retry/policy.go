// Package retry provides one reusable retry policy for external-boundary
// calls (vector index, embedding provider). Capped exponential backoff with
// jitter and a small fixed attempt count.
package retry

import (
	"context"
	"fmt"
	"math/rand"
	"time"
)

// Default configuration values.
const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = 1 * time.Second
	DefaultMaxDelay    = 10 * time.Second
	DefaultMultiplier  = 2.0
	DefaultJitterFrac  = 0.2
)

// Policy describes retry behavior. The zero value is not usable; build one
// with DefaultPolicy and adjust fields.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Multiplier  float64
	JitterFrac  float64 // fraction of the delay randomized, in [0, 1]

	// sleep is overridable for tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// DefaultPolicy returns a Policy with default values.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: DefaultMaxAttempts,
		BaseDelay:   DefaultBaseDelay,
		MaxDelay:    DefaultMaxDelay,
		Multiplier:  DefaultMultiplier,
		JitterFrac:  DefaultJitterFrac,
	}
}

// Do runs fn until it succeeds, the attempts are exhausted, or ctx is done.
// The last error is returned wrapped with the attempt count.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	sleep := p.sleep
	if sleep == nil {
		sleep = sleepCtx
	}

	delay := p.BaseDelay
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if attempt == attempts {
			break
		}

		if err := sleep(ctx, p.jittered(delay)); err != nil {
			return err
		}
		delay = p.nextDelay(delay)
	}

	return fmt.Errorf("after %d attempts: %w", attempts, lastErr)
}

func (p Policy) nextDelay(d time.Duration) time.Duration {
	mult := p.Multiplier
	if mult < 1 {
		mult = 1
	}
	next := time.Duration(float64(d) * mult)
	if p.MaxDelay > 0 && next > p.MaxDelay {
		next = p.MaxDelay
	}
	return next
}

func (p Policy) jittered(d time.Duration) time.Duration {
	if p.JitterFrac <= 0 || d <= 0 {
		return d
	}
	frac := p.JitterFrac
	if frac > 1 {
		frac = 1
	}
	// Uniform in [d*(1-frac), d*(1+frac)].
	span := float64(d) * frac
	return time.Duration(float64(d) - span + rand.Float64()*2*span)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
