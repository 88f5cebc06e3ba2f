package index

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInsert(t *testing.T) {
	ctx := context.Background()

	t.Run("InsertionOrderIDs", func(t *testing.T) {
		f, err := New()
		require.NoError(t, err)

		id, err := f.Insert(ctx, []float32{1, 0, 0}, Metadata{SourceText: "a"})
		require.NoError(t, err)
		assert.Equal(t, uint32(0), id)

		id, err = f.Insert(ctx, []float32{0, 1, 0}, Metadata{SourceText: "b"})
		require.NoError(t, err)
		assert.Equal(t, uint32(1), id)

		assert.Equal(t, 2, f.Len())
		assert.Equal(t, 3, f.Dimension())
	})

	t.Run("DimensionMismatchLeavesIndexUnchanged", func(t *testing.T) {
		f, err := New(func(o *Options) { o.Dimension = 3 })
		require.NoError(t, err)

		_, err = f.Insert(ctx, []float32{1, 0, 0}, Metadata{})
		require.NoError(t, err)

		_, err = f.Insert(ctx, []float32{1, 0}, Metadata{})
		var dimErr *ErrDimensionMismatch
		require.ErrorAs(t, err, &dimErr)
		assert.Equal(t, 3, dimErr.Expected)
		assert.Equal(t, 2, dimErr.Actual)

		assert.Equal(t, 1, f.Len(), "failed insert must not leave a partial record")
	})

	t.Run("ZeroVector", func(t *testing.T) {
		f, err := New()
		require.NoError(t, err)

		_, err = f.Insert(ctx, []float32{0, 0, 0}, Metadata{})
		assert.ErrorIs(t, err, ErrZeroVector)
		_, err = f.Insert(ctx, nil, Metadata{})
		assert.ErrorIs(t, err, ErrZeroVector)
		assert.Equal(t, 0, f.Len())
	})

	t.Run("NegativeDimension", func(t *testing.T) {
		_, err := New(func(o *Options) { o.Dimension = -1 })
		assert.Error(t, err)
	})
}

func TestSearch(t *testing.T) {
	ctx := context.Background()

	newIndex := func(t *testing.T) *Flat {
		t.Helper()
		f, err := New()
		require.NoError(t, err)
		// Unit vectors at distinct angles.
		_, err = f.Insert(ctx, []float32{1, 0}, Metadata{SourceText: "east"})
		require.NoError(t, err)
		_, err = f.Insert(ctx, []float32{0, 1}, Metadata{SourceText: "north"})
		require.NoError(t, err)
		_, err = f.Insert(ctx, []float32{1, 1}, Metadata{SourceText: "northeast"})
		require.NoError(t, err)
		return f
	}

	t.Run("OrderedByDescendingSimilarity", func(t *testing.T) {
		f := newIndex(t)

		results, err := f.Search(ctx, []float32{2, 0}, 3)
		require.NoError(t, err)
		require.Len(t, results, 3)
		assert.Equal(t, "east", results[0].Metadata.SourceText)
		assert.Equal(t, "northeast", results[1].Metadata.SourceText)
		assert.Equal(t, "north", results[2].Metadata.SourceText)
		assert.InDelta(t, 1.0, results[0].Score, 1e-5)
		assert.Greater(t, results[0].Score, results[1].Score)
	})

	t.Run("KLargerThanCount", func(t *testing.T) {
		f, err := New()
		require.NoError(t, err)
		_, err = f.Insert(ctx, []float32{1, 0}, Metadata{SourceText: "only"})
		require.NoError(t, err)

		results, err := f.Search(ctx, []float32{1, 1}, 3)
		require.NoError(t, err)
		assert.Len(t, results, 1)
	})

	t.Run("InvalidK", func(t *testing.T) {
		f := newIndex(t)
		_, err := f.Search(ctx, []float32{1, 0}, 0)
		assert.ErrorIs(t, err, ErrInvalidK)
		_, err = f.Search(ctx, []float32{1, 0}, -2)
		assert.ErrorIs(t, err, ErrInvalidK)
	})

	t.Run("EmptyIndex", func(t *testing.T) {
		f, err := New()
		require.NoError(t, err)
		results, err := f.Search(ctx, []float32{1, 0}, 5)
		require.NoError(t, err)
		assert.Empty(t, results)
	})

	t.Run("QueryDimensionMismatch", func(t *testing.T) {
		f := newIndex(t)
		_, err := f.Search(ctx, []float32{1, 0, 0}, 1)
		var dimErr *ErrDimensionMismatch
		assert.ErrorAs(t, err, &dimErr)
	})

	t.Run("TieBreakAscendingID", func(t *testing.T) {
		f, err := New()
		require.NoError(t, err)
		// Identical vectors: identical similarity to any query.
		for range 3 {
			_, err = f.Insert(ctx, []float32{3, 4}, Metadata{})
			require.NoError(t, err)
		}

		results, err := f.Search(ctx, []float32{1, 1}, 3)
		require.NoError(t, err)
		require.Len(t, results, 3)
		assert.Equal(t, uint32(0), results[0].ID)
		assert.Equal(t, uint32(1), results[1].ID)
		assert.Equal(t, uint32(2), results[2].ID)
	})

	t.Run("Deterministic", func(t *testing.T) {
		f := newIndex(t)
		first, err := f.Search(ctx, []float32{1, 2}, 3)
		require.NoError(t, err)
		second, err := f.Search(ctx, []float32{1, 2}, 3)
		require.NoError(t, err)
		assert.Equal(t, first, second)
	})
}

func TestSearchLabel(t *testing.T) {
	ctx := context.Background()

	f, err := New()
	require.NoError(t, err)
	_, err = f.Insert(ctx, []float32{1, 0}, Metadata{Label: "rain falling", SourceText: "a"})
	require.NoError(t, err)
	_, err = f.Insert(ctx, []float32{0.9, 0.1}, Metadata{Label: "dog barking", SourceText: "b"})
	require.NoError(t, err)
	_, err = f.Insert(ctx, []float32{0.8, 0.2}, Metadata{Label: "rain falling", SourceText: "c"})
	require.NoError(t, err)

	t.Run("FiltersByLabel", func(t *testing.T) {
		results, err := f.SearchLabel(ctx, []float32{1, 0}, 10, "rain falling")
		require.NoError(t, err)
		require.Len(t, results, 2)
		assert.Equal(t, uint32(0), results[0].ID)
		assert.Equal(t, uint32(2), results[1].ID)
	})

	t.Run("UnknownLabel", func(t *testing.T) {
		results, err := f.SearchLabel(ctx, []float32{1, 0}, 10, "thunderstorm")
		require.NoError(t, err)
		assert.Empty(t, results)
	})

	t.Run("InvalidK", func(t *testing.T) {
		_, err := f.SearchLabel(ctx, []float32{1, 0}, 0, "thunderstorm")
		assert.ErrorIs(t, err, ErrInvalidK)
	})
}

func TestRestore(t *testing.T) {
	t.Run("AlignmentMismatch", func(t *testing.T) {
		_, err := Restore(2, []float32{1, 0, 0, 1}, []Metadata{{}})
		assert.ErrorContains(t, err, "does not match metadata count")
	})

	t.Run("RaggedVectorArray", func(t *testing.T) {
		_, err := Restore(2, []float32{1, 0, 0}, []Metadata{{}, {}})
		assert.ErrorContains(t, err, "not a multiple of dimension")
	})

	t.Run("RebuildsLabelFilter", func(t *testing.T) {
		f, err := Restore(2,
			[]float32{1, 0, 0, 1},
			[]Metadata{{Label: "rain falling"}, {Label: "dog barking"}},
		)
		require.NoError(t, err)

		results, err := f.SearchLabel(context.Background(), []float32{1, 1}, 10, "dog barking")
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, uint32(1), results[0].ID)
	})
}

func TestConcurrentInsertSearch(t *testing.T) {
	ctx := context.Background()
	f, err := New(func(o *Options) { o.Dimension = 4 })
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v := []float32{float32(i + 1), 1, 2, 3}
			for range 50 {
				_, err := f.Insert(ctx, v, Metadata{SourceText: "w"})
				assert.NoError(t, err)
			}
		}()
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 50 {
				results, err := f.Search(ctx, []float32{1, 1, 1, 1}, 5)
				assert.NoError(t, err)
				// Never observe a half-written record.
				for _, r := range results {
					assert.Equal(t, "w", r.Metadata.SourceText)
				}
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 8*50, f.Len())
}
