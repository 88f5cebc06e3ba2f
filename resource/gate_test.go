package resource

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGate(t *testing.T) {
	ctx := context.Background()

	t.Run("BoundsInFlight", func(t *testing.T) {
		g := NewGate(Config{MaxInFlight: 2})

		var current, peak atomic.Int64
		var wg sync.WaitGroup
		for range 8 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := g.Do(ctx, func(context.Context) error {
					n := current.Add(1)
					for {
						p := peak.Load()
						if n <= p || peak.CompareAndSwap(p, n) {
							break
						}
					}
					time.Sleep(5 * time.Millisecond)
					current.Add(-1)
					return nil
				})
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		assert.LessOrEqual(t, peak.Load(), int64(2))
		assert.Equal(t, int64(0), g.InFlight())
	})

	t.Run("TryAcquireSaturated", func(t *testing.T) {
		g := NewGate(Config{MaxInFlight: 1})

		require.True(t, g.TryAcquire())
		assert.False(t, g.TryAcquire())
		g.Release()
		assert.True(t, g.TryAcquire())
		g.Release()
	})

	t.Run("AcquireCanceled", func(t *testing.T) {
		g := NewGate(Config{MaxInFlight: 1})
		require.NoError(t, g.Acquire(ctx))

		canceled, cancel := context.WithCancel(ctx)
		cancel()
		err := g.Acquire(canceled)
		assert.ErrorIs(t, err, context.Canceled)

		g.Release()
	})

	t.Run("RateCanceledReleasesSlot", func(t *testing.T) {
		// Rate so low the limiter must block; cancellation must give the
		// concurrency slot back.
		g := NewGate(Config{MaxInFlight: 1, CallsPerSec: 0.001, Burst: 1})
		require.NoError(t, g.Acquire(ctx))
		g.Release()

		timeout, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
		defer cancel()
		err := g.Acquire(timeout)
		require.Error(t, err)

		assert.True(t, g.sem.TryAcquire(1), "slot must be returned on rate wait failure")
		g.sem.Release(1)
	})

	t.Run("NilGateIsUnlimited", func(t *testing.T) {
		var g *Gate
		require.NoError(t, g.Acquire(ctx))
		assert.True(t, g.TryAcquire())
		g.Release()
		g.Release()
		assert.Equal(t, int64(0), g.InFlight())
		assert.NoError(t, g.Do(ctx, func(context.Context) error { return nil }))
	})
}
