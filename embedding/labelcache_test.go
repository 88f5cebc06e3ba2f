package embedding

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubTextEmbedder struct {
	dim   int
	calls atomic.Int64
	fail  atomic.Bool
}

func (s *stubTextEmbedder) EmbedText(_ context.Context, text string) ([]float32, error) {
	s.calls.Add(1)
	if s.fail.Load() {
		return nil, errors.New("model unreachable")
	}
	v := make([]float32, s.dim)
	for i, r := range text {
		v[i%s.dim] += float32(r)
	}
	return v, nil
}

func (s *stubTextEmbedder) Dimension() int { return s.dim }

func TestLabelCache(t *testing.T) {
	ctx := context.Background()

	t.Run("PopulatesOnce", func(t *testing.T) {
		emb := &stubTextEmbedder{dim: 4}
		lc := NewLabelCache(emb, []string{"birds", "rain", "traffic"})

		first, err := lc.Get(ctx)
		require.NoError(t, err)
		require.Len(t, first, 3)
		assert.EqualValues(t, 3, emb.calls.Load())

		second, err := lc.Get(ctx)
		require.NoError(t, err)
		assert.EqualValues(t, 3, emb.calls.Load(), "second Get must hit the cache")

		for i := range first {
			assert.Equal(t, first[i], second[i])
		}
	})

	t.Run("Normalized", func(t *testing.T) {
		emb := &stubTextEmbedder{dim: 4}
		lc := NewLabelCache(emb, []string{"birds"})

		vecs, err := lc.Get(ctx)
		require.NoError(t, err)

		var norm2 float32
		for _, x := range vecs[0] {
			norm2 += x * x
		}
		assert.InDelta(t, 1.0, norm2, 1e-5)
	})

	t.Run("FailureThenRetry", func(t *testing.T) {
		emb := &stubTextEmbedder{dim: 4}
		emb.fail.Store(true)
		lc := NewLabelCache(emb, []string{"birds", "rain"})

		_, err := lc.Get(ctx)
		require.Error(t, err)
		var embErr *Error
		assert.ErrorAs(t, err, &embErr)

		// A failed population must not poison the cache.
		emb.fail.Store(false)
		vecs, err := lc.Get(ctx)
		require.NoError(t, err)
		assert.Len(t, vecs, 2)
	})

	t.Run("ConcurrentGetSharesFlight", func(t *testing.T) {
		emb := &stubTextEmbedder{dim: 4}
		labels := make([]string, 32)
		for i := range labels {
			labels[i] = string(rune('a' + i))
		}
		lc := NewLabelCache(emb, labels, func(o *LabelCacheOptions) {
			o.Concurrency = 4
		})

		var wg sync.WaitGroup
		for range 8 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				vecs, err := lc.Get(ctx)
				assert.NoError(t, err)
				assert.Len(t, vecs, 32)
			}()
		}
		wg.Wait()

		assert.EqualValues(t, 32, emb.calls.Load(), "all callers share one population run")
	})
}
