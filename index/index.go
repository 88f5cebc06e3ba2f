// Package index provides a flat, append-only vector index with exact
// nearest-neighbor search by cosine similarity.
//
// Records are never mutated or deleted after insertion; a record's ID is its
// insertion order. Vectors are L2-normalized on insert and query, so cosine
// similarity reduces to a dot product. Writes are serialized by a single
// mutation lock; reads proceed concurrently with each other but never with a
// write that resizes the underlying storage.
package index

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/SalmanAh/sound2scene/distance"
)

var (
	// ErrInvalidK is returned when k is not positive.
	ErrInvalidK = errors.New("index: k must be positive")

	// ErrZeroVector is returned for vectors with zero L2 norm, which have no
	// direction and cannot participate in cosine search.
	ErrZeroVector = errors.New("index: zero vector")
)

// ErrDimensionMismatch indicates a vector whose length does not match the
// index's fixed dimension.
type ErrDimensionMismatch struct {
	Expected int
	Actual   int
}

func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("index: dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

// Chunk is a time-aligned span of source text, carried through from
// transcription.
type Chunk struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Metadata describes the origin of a stored vector.
type Metadata struct {
	// Label is the scene label the vector was derived from, if any.
	// Filtered search matches against it.
	Label string `json:"label,omitempty"`

	// SourceText is the raw text the vector embeds (scene description or
	// transcript).
	SourceText string `json:"source_text"`

	// SourceRef points at the originating input, typically a file path or
	// artifact key.
	SourceRef string `json:"source_ref,omitempty"`

	// Chunks are optional transcript segments.
	Chunks []Chunk `json:"chunks,omitempty"`
}

// Result is one search hit.
type Result struct {
	// ID is the record's insertion-order identifier.
	ID uint32

	// Score is the cosine similarity to the query, in [-1, 1].
	Score float32

	// Metadata is the stored record metadata.
	Metadata Metadata
}

// Options contains configuration options for the flat index.
type Options struct {
	// Dimension is the fixed vector dimensionality. Zero means the dimension
	// is fixed by the first insert.
	Dimension int
}

// Flat is a flat vector index.
type Flat struct {
	mu        sync.RWMutex
	dimension int       // 0 until fixed
	data      []float32 // contiguous row-major vectors, len == count*dimension
	meta      []Metadata
	byLabel   map[string]*roaring.Bitmap
}

// New creates a new flat index.
func New(optFns ...func(o *Options)) (*Flat, error) {
	opts := Options{}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Dimension < 0 {
		return nil, fmt.Errorf("index: invalid dimension %d", opts.Dimension)
	}

	return &Flat{
		dimension: opts.Dimension,
		byLabel:   make(map[string]*roaring.Bitmap),
	}, nil
}

// Restore builds an index from a persisted vector array and its parallel
// metadata. It validates the alignment invariant: the vector array must hold
// exactly len(meta) rows of the given dimension.
//
// Restore takes ownership of both slices.
func Restore(dimension int, vectors []float32, meta []Metadata) (*Flat, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("index: invalid dimension %d", dimension)
	}
	if len(vectors)%dimension != 0 {
		return nil, fmt.Errorf("index: vector array length %d is not a multiple of dimension %d", len(vectors), dimension)
	}
	if got, want := len(vectors)/dimension, len(meta); got != want {
		return nil, fmt.Errorf("index: vector count %d does not match metadata count %d", got, want)
	}

	f := &Flat{
		dimension: dimension,
		data:      vectors,
		meta:      meta,
		byLabel:   make(map[string]*roaring.Bitmap),
	}
	for id, md := range meta {
		f.indexLabel(md.Label, uint32(id))
	}
	return f, nil
}

func (f *Flat) indexLabel(label string, id uint32) {
	if label == "" {
		return
	}
	bm, ok := f.byLabel[label]
	if !ok {
		bm = roaring.New()
		f.byLabel[label] = bm
	}
	bm.Add(id)
}

// Len returns the number of stored records.
func (f *Flat) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.meta)
}

// Dimension returns the fixed vector dimension, or 0 if no vector has been
// inserted into a dimension-unspecified index yet.
func (f *Flat) Dimension() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.dimension
}

// Insert adds a vector with its metadata and returns the new record's ID.
//
// The vector is copied and L2-normalized; the caller's slice is not retained.
// A wrong-length vector fails with *ErrDimensionMismatch and leaves the index
// unchanged.
func (f *Flat) Insert(ctx context.Context, v []float32, md Metadata) (uint32, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if len(v) == 0 {
		return 0, ErrZeroVector
	}

	norm, ok := distance.NormalizeL2Copy(v)
	if !ok {
		return 0, ErrZeroVector
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.dimension == 0 {
		f.dimension = len(v)
	} else if len(v) != f.dimension {
		return 0, &ErrDimensionMismatch{Expected: f.dimension, Actual: len(v)}
	}

	id := uint32(len(f.meta))
	f.data = append(f.data, norm...)
	f.meta = append(f.meta, md)
	f.indexLabel(md.Label, id)
	return id, nil
}

// Search returns the k records most similar to q, ordered by descending
// similarity with ties broken by ascending ID.
//
// When k exceeds the record count, the full set is returned (smaller, not an
// error). k <= 0 fails with ErrInvalidK.
func (f *Flat) Search(ctx context.Context, q []float32, k int) ([]Result, error) {
	return f.search(ctx, q, k, nil)
}

// SearchLabel is Search restricted to records whose Metadata.Label equals
// label.
func (f *Flat) SearchLabel(ctx context.Context, q []float32, k int, label string) ([]Result, error) {
	f.mu.RLock()
	bm := f.byLabel[label]
	f.mu.RUnlock()

	if bm == nil {
		if k <= 0 {
			return nil, ErrInvalidK
		}
		return nil, nil
	}
	return f.search(ctx, q, k, bm)
}

func (f *Flat) search(ctx context.Context, q []float32, k int, filter *roaring.Bitmap) ([]Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, ErrInvalidK
	}

	query, ok := distance.NormalizeL2Copy(q)
	if !ok {
		return nil, ErrZeroVector
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	count := len(f.meta)
	if count == 0 {
		return nil, nil
	}
	if len(query) != f.dimension {
		return nil, &ErrDimensionMismatch{Expected: f.dimension, Actual: len(query)}
	}

	type scored struct {
		id    uint32
		score float32
	}

	candidates := make([]scored, 0, count)
	score := func(id uint32) {
		row := f.data[int(id)*f.dimension : (int(id)+1)*f.dimension]
		candidates = append(candidates, scored{id: id, score: distance.Dot(query, row)})
	}

	if filter != nil {
		it := filter.Iterator()
		for it.HasNext() {
			id := it.Next()
			if int(id) < count {
				score(id)
			}
		}
	} else {
		for id := range count {
			score(uint32(id))
		}
	}

	// Exhaustive scan with a full sort keeps ordering fully deterministic:
	// descending score, then ascending ID on exact ties.
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].id < candidates[j].id
	})

	if k > len(candidates) {
		k = len(candidates)
	}
	results := make([]Result, k)
	for i := range results {
		c := candidates[i]
		results[i] = Result{ID: c.id, Score: c.score, Metadata: f.meta[c.id]}
	}
	return results, nil
}

// Record returns the metadata stored for a record ID.
func (f *Flat) Record(id uint32) (Metadata, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if int(id) >= len(f.meta) {
		return Metadata{}, fmt.Errorf("index: no record with id %d", id)
	}
	return f.meta[id], nil
}

// Snapshot returns a consistent copy of the index contents for persistence:
// the dimension, the contiguous vector array, and the parallel metadata.
func (f *Flat) Snapshot() (dimension int, vectors []float32, meta []Metadata) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	vectors = make([]float32, len(f.data))
	copy(vectors, f.data)
	meta = make([]Metadata, len(f.meta))
	copy(meta, f.meta)
	return f.dimension, vectors, meta
}
