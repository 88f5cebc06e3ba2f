// Package classify implements zero-shot audio scene classification.
//
// An audio embedding is scored against the catalog's label embeddings by
// cosine similarity; the arg-max label wins. Confidence is the softmax of the
// raw cosine scores, a monotonic normalization that maps scores into [0,1]
// and preserves the arg-max ordering. The raw cosine score of every label is
// reported alongside so callers can apply their own presentation.
package classify

import (
	"context"
	"math"
	"sort"

	"github.com/SalmanAh/sound2scene/distance"
	"github.com/SalmanAh/sound2scene/embedding"
	"github.com/SalmanAh/sound2scene/taxonomy"
)

// LabelScore is the raw cosine similarity between the audio and one label.
type LabelScore struct {
	SceneID int
	Label   string
	Score   float64
}

// Result is the outcome of classifying one audio signal.
type Result struct {
	// SceneID and Label identify the winning catalog entry.
	SceneID int
	Label   string

	// Confidence is the softmax probability of the winning label over all
	// catalog labels. It lies in [0,1].
	Confidence float64

	// Scores holds every label's raw cosine score, ordered by descending
	// score with ties broken by ascending scene ID.
	Scores []LabelScore
}

// Scorer classifies audio signals against a fixed catalog.
//
// Scorer is safe for concurrent use. The only shared mutable state is the
// label-embedding cache, whose population is idempotent.
type Scorer struct {
	catalog  *taxonomy.Catalog
	embedder embedding.JointEmbedder
	labels   *embedding.LabelCache
}

// Options configures a Scorer.
type Options struct {
	// EmbedConcurrency bounds parallel label-embedding calls while the label
	// cache populates. Defaults to embedding.DefaultEmbedConcurrency.
	EmbedConcurrency int
}

// NewScorer creates a Scorer over the given catalog and joint embedder.
func NewScorer(catalog *taxonomy.Catalog, embedder embedding.JointEmbedder, optFns ...func(o *Options)) *Scorer {
	opts := Options{
		EmbedConcurrency: embedding.DefaultEmbedConcurrency,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	labels := embedding.NewLabelCache(embedder, catalog.Labels(), func(o *embedding.LabelCacheOptions) {
		o.Concurrency = opts.EmbedConcurrency
	})

	return &Scorer{
		catalog:  catalog,
		embedder: embedder,
		labels:   labels,
	}
}

// Catalog returns the catalog this Scorer classifies against.
func (s *Scorer) Catalog() *taxonomy.Catalog {
	return s.catalog
}

// Classify embeds the audio signal and returns the best-matching scene.
//
// An empty signal, an embedding failure, or a malformed embedding all surface
// as *embedding.Error; classification never falls back to a default scene.
func (s *Scorer) Classify(ctx context.Context, pcm []float32) (Result, error) {
	if len(pcm) == 0 {
		return Result{}, embedding.NewError("audio", "empty signal", nil)
	}

	audioVec, err := s.embedder.EmbedAudio(ctx, pcm)
	if err != nil {
		return Result{}, embedding.NewError("audio", "capability call", err)
	}
	return s.classifyVector(ctx, audioVec)
}

// ClassifyVector scores a precomputed audio embedding against the catalog.
// The vector must come from the same model the label cache uses.
func (s *Scorer) ClassifyVector(ctx context.Context, audioVec []float32) (Result, error) {
	if len(audioVec) == 0 {
		return Result{}, embedding.NewError("audio", "empty embedding", nil)
	}
	return s.classifyVector(ctx, audioVec)
}

func (s *Scorer) classifyVector(ctx context.Context, audioVec []float32) (Result, error) {
	if dim := s.embedder.Dimension(); dim > 0 && len(audioVec) != dim {
		return Result{}, embedding.NewError("audio", "embedding has wrong dimension", nil)
	}

	q, ok := distance.NormalizeL2Copy(audioVec)
	if !ok {
		return Result{}, embedding.NewError("audio", "embedding is a zero vector", nil)
	}

	labelVecs, err := s.labels.Get(ctx)
	if err != nil {
		return Result{}, err
	}

	scores := make([]LabelScore, len(labelVecs))
	best := 0
	for id, lv := range labelVecs {
		entry, err := s.catalog.Entry(id)
		if err != nil {
			return Result{}, err
		}
		score := float64(distance.Dot(q, lv))
		scores[id] = LabelScore{SceneID: id, Label: entry.Label, Score: score}

		// Strictly-greater keeps the lowest scene ID on ties.
		if score > scores[best].Score {
			best = id
		}
	}

	confidence := softmaxAt(scores, best)

	winner := scores[best]
	sort.SliceStable(scores, func(i, j int) bool {
		if scores[i].Score != scores[j].Score {
			return scores[i].Score > scores[j].Score
		}
		return scores[i].SceneID < scores[j].SceneID
	})

	return Result{
		SceneID:    winner.SceneID,
		Label:      winner.Label,
		Confidence: confidence,
		Scores:     scores,
	}, nil
}

// softmaxAt computes softmax(scores)[i] with the max-subtraction trick for
// numerical stability.
func softmaxAt(scores []LabelScore, i int) float64 {
	maxScore := math.Inf(-1)
	for _, s := range scores {
		if s.Score > maxScore {
			maxScore = s.Score
		}
	}
	var sum float64
	for _, s := range scores {
		sum += math.Exp(s.Score - maxScore)
	}
	if sum == 0 {
		return 0
	}
	return math.Exp(scores[i].Score-maxScore) / sum
}

// TopK returns the k highest-scoring labels from r.
// If k exceeds the number of labels, all labels are returned.
func (r Result) TopK(k int) []LabelScore {
	if k < 0 {
		k = 0
	}
	if k > len(r.Scores) {
		k = len(r.Scores)
	}
	top := make([]LabelScore, k)
	copy(top, r.Scores[:k])
	return top
}
