package embedding

import (
	"context"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/SalmanAh/sound2scene/distance"
)

// Label embedding is the only per-request cost that can be hoisted: the
// taxonomy is immutable, so each label's embedding is computed at most once
// per process. Population is idempotent and safe to recompute.

// DefaultEmbedConcurrency bounds parallel text-embedding calls during cache
// population.
const DefaultEmbedConcurrency = 8

// LabelCache computes and caches L2-normalized embeddings for a fixed set of
// label strings.
//
// Concurrent callers of Get share a single population run; if population
// fails, the error is returned to all waiters and a later call retries.
type LabelCache struct {
	embedder    TextEmbedder
	labels      []string
	concurrency int

	group  singleflight.Group
	cached atomic.Pointer[[][]float32]
}

// LabelCacheOptions configures a LabelCache.
type LabelCacheOptions struct {
	// Concurrency bounds parallel embedding calls during population.
	// Defaults to DefaultEmbedConcurrency.
	Concurrency int
}

// NewLabelCache creates a cache over the given labels.
// The labels slice is copied; the cache never mutates it.
func NewLabelCache(embedder TextEmbedder, labels []string, optFns ...func(o *LabelCacheOptions)) *LabelCache {
	opts := LabelCacheOptions{
		Concurrency: DefaultEmbedConcurrency,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}

	owned := make([]string, len(labels))
	copy(owned, labels)

	return &LabelCache{
		embedder:    embedder,
		labels:      owned,
		concurrency: opts.Concurrency,
	}
}

// Len returns the number of labels.
func (lc *LabelCache) Len() int {
	return len(lc.labels)
}

// Get returns the normalized embedding for every label, in label order.
//
// The returned slices are shared and must be treated as read-only.
func (lc *LabelCache) Get(ctx context.Context) ([][]float32, error) {
	if vecs := lc.cached.Load(); vecs != nil {
		return *vecs, nil
	}

	v, err, _ := lc.group.Do("populate", func() (any, error) {
		// Re-check: a previous flight may have completed between the load
		// above and entering the group.
		if vecs := lc.cached.Load(); vecs != nil {
			return *vecs, nil
		}

		vecs, err := lc.populate(ctx)
		if err != nil {
			return nil, err
		}
		lc.cached.Store(&vecs)
		return vecs, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([][]float32), nil
}

func (lc *LabelCache) populate(ctx context.Context) ([][]float32, error) {
	vecs := make([][]float32, len(lc.labels))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(lc.concurrency)

	dim := lc.embedder.Dimension()
	for i, label := range lc.labels {
		g.Go(func() error {
			v, err := lc.embedder.EmbedText(gctx, label)
			if err != nil {
				return NewError("text", fmt.Sprintf("label %d (%q)", i, label), err)
			}
			if dim > 0 && len(v) != dim {
				return NewError("text", fmt.Sprintf("label %d returned %d values, want %d", i, len(v), dim), nil)
			}
			norm, ok := distance.NormalizeL2Copy(v)
			if !ok {
				return NewError("text", fmt.Sprintf("label %d produced a zero vector", i), nil)
			}
			vecs[i] = norm
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return vecs, nil
}
