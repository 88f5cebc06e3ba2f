// Package resource throttles calls to external model backends.
//
// Embedding and image generation backends are expensive and usually
// rate-limited upstream. A Gate bounds in-flight calls with a semaphore and
// smooths the call rate with a token bucket, so bursts of audio clips queue
// here instead of failing at the provider.
package resource

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Config holds model-call limits.
type Config struct {
	// MaxInFlight is the maximum number of concurrent calls.
	// If 0, defaults to 1.
	MaxInFlight int64

	// CallsPerSec is the maximum sustained call rate.
	// If 0, unlimited.
	CallsPerSec float64

	// Burst is the token bucket burst size. If 0, defaults to
	// max(1, MaxInFlight).
	Burst int
}

// Gate limits concurrency and rate of external model calls.
// A nil *Gate is valid and imposes no limits.
type Gate struct {
	sem      *semaphore.Weighted
	limiter  *rate.Limiter // nil if unlimited
	inFlight atomic.Int64
}

// NewGate creates a new Gate from the given config.
func NewGate(cfg Config) *Gate {
	if cfg.MaxInFlight <= 0 {
		cfg.MaxInFlight = 1
	}

	g := &Gate{
		sem: semaphore.NewWeighted(cfg.MaxInFlight),
	}

	if cfg.CallsPerSec > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = int(cfg.MaxInFlight)
		}
		g.limiter = rate.NewLimiter(rate.Limit(cfg.CallsPerSec), burst)
	}

	return g
}

// Acquire reserves a call slot, blocking until both a concurrency slot and a
// rate token are available or ctx is canceled. Every successful Acquire must
// be paired with a Release.
func (g *Gate) Acquire(ctx context.Context) error {
	if g == nil {
		return nil
	}

	if err := g.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			g.sem.Release(1)
			return err
		}
	}

	g.inFlight.Add(1)
	return nil
}

// TryAcquire reserves a call slot without blocking.
// Returns false if the gate is saturated.
func (g *Gate) TryAcquire() bool {
	if g == nil {
		return true
	}

	if !g.sem.TryAcquire(1) {
		return false
	}
	if g.limiter != nil && !g.limiter.Allow() {
		g.sem.Release(1)
		return false
	}

	g.inFlight.Add(1)
	return true
}

// Release returns a call slot.
func (g *Gate) Release() {
	if g == nil {
		return
	}

	g.inFlight.Add(-1)
	g.sem.Release(1)
}

// InFlight returns the number of calls currently holding a slot.
func (g *Gate) InFlight() int64 {
	if g == nil {
		return 0
	}
	return g.inFlight.Load()
}

// Do runs fn while holding a call slot.
func (g *Gate) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := g.Acquire(ctx); err != nil {
		return err
	}
	defer g.Release()

	return fn(ctx)
}
