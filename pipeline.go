package sound2scene

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/SalmanAh/sound2scene/blobstore"
	"github.com/SalmanAh/sound2scene/classify"
	"github.com/SalmanAh/sound2scene/embedding"
	"github.com/SalmanAh/sound2scene/generate"
	"github.com/SalmanAh/sound2scene/index"
	"github.com/SalmanAh/sound2scene/persistence"
	"github.com/SalmanAh/sound2scene/prompt"
	"github.com/SalmanAh/sound2scene/resource"
	"github.com/SalmanAh/sound2scene/taxonomy"
	"github.com/SalmanAh/sound2scene/transcribe"
)

// Pipeline wires the audio-to-image flow: classification against the scene
// catalog, prompt construction, image generation, and the embedded similarity
// index.
//
// A Pipeline is safe for concurrent use. The index follows a single-writer,
// multi-reader discipline internally; callers need no external locking.
type Pipeline struct {
	catalog     *taxonomy.Catalog
	scorer      *classify.Scorer
	builder     *prompt.Builder
	embedder    embedding.JointEmbedder
	generator   generate.Generator
	transcriber transcribe.Transcriber
	idx         *index.Flat
	artifacts   blobstore.Store
	gate        *resource.Gate
	logger      *Logger
	metrics     MetricsCollector
	genParams   generate.Params

	snapshotPath string
	snapshotComp persistence.Compression

	snapshotMu sync.Mutex

	// closeMu serializes Close's final snapshot against in-flight inserts:
	// an insert that was acknowledged is always in that snapshot.
	closeMu sync.RWMutex
	closed  atomic.Bool
}

// New creates a Pipeline around the given embedding and generation backends.
// generator may be nil if SceneImage is never called.
//
// With WithSnapshotPath set, an existing snapshot is loaded; a snapshot that
// fails validation aborts construction with an index-corruption error rather
// than starting on a partial index.
func New(embedder embedding.JointEmbedder, generator generate.Generator, optFns ...Option) (*Pipeline, error) {
	if embedder == nil {
		return nil, errors.New("sound2scene: embedder must not be nil")
	}

	opts := applyOptions(optFns)

	if opts.genParams.NegativePrompt == "" {
		opts.genParams.NegativePrompt = prompt.DefaultNegativePrompt
	}

	scorer := classify.NewScorer(opts.catalog, embedder, func(o *classify.Options) {
		if opts.embedConcurrency > 0 {
			o.EmbedConcurrency = opts.embedConcurrency
		}
	})

	idx, err := openIndex(opts.snapshotPath, embedder.Dimension())
	if err != nil {
		return nil, err
	}

	return &Pipeline{
		catalog:      opts.catalog,
		scorer:       scorer,
		builder:      prompt.NewBuilder(opts.promptStyle...),
		embedder:     embedder,
		generator:    generator,
		transcriber:  opts.transcriber,
		idx:          idx,
		artifacts:    opts.artifacts,
		gate:         opts.gate,
		logger:       opts.logger,
		metrics:      opts.metricsCollector,
		genParams:    opts.genParams,
		snapshotPath: opts.snapshotPath,
		snapshotComp: opts.snapshotCompression,
	}, nil
}

func openIndex(snapshotPath string, dimension int) (*index.Flat, error) {
	if snapshotPath != "" {
		idx, err := persistence.LoadFromFile(snapshotPath)
		if err == nil {
			// A snapshot written under a different embedding model must fail
			// here, not on the first insert or search.
			if dim := idx.Dimension(); dimension > 0 && dim != 0 && dim != dimension {
				return nil, &ErrDimensionMismatch{Expected: dimension, Actual: dim}
			}
			return idx, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}

	return index.New(func(o *index.Options) {
		o.Dimension = dimension
	})
}

// Analyze classifies the audio signal against the scene catalog.
func (p *Pipeline) Analyze(ctx context.Context, pcm []float32) (classify.Result, error) {
	if p.closed.Load() {
		return classify.Result{}, ErrClosed
	}

	start := time.Now()

	var result classify.Result
	err := p.gate.Do(ctx, func(ctx context.Context) error {
		var err error
		result, err = p.scorer.Classify(ctx, pcm)
		return err
	})

	p.metrics.RecordClassify(time.Since(start), err)
	p.logger.LogClassify(ctx, result.SceneID, result.Label, result.Confidence, err)

	return result, err
}

// Scene is the full outcome of turning an audio clip into an image.
type Scene struct {
	// Result is the zero-shot classification outcome.
	Result classify.Result

	// SceneID and Label identify the winning catalog entry.
	SceneID int
	Label   string

	// Prompt and NegativePrompt are what the generator was called with.
	Prompt         string
	NegativePrompt string

	// Image holds the generated image bytes.
	Image []byte

	// ArtifactName is the blob name the image was stored under, or empty if
	// no artifact store is configured.
	ArtifactName string
}

// SceneImage classifies the audio signal, builds the generation prompt for
// the winning scene, and renders it with the generation backend. When an
// artifact store is configured the image is also persisted there.
func (p *Pipeline) SceneImage(ctx context.Context, pcm []float32) (*Scene, error) {
	if p.generator == nil {
		return nil, errors.New("sound2scene: no generator configured")
	}

	result, err := p.Analyze(ctx, pcm)
	if err != nil {
		return nil, err
	}

	entry, err := p.catalog.Entry(result.SceneID)
	if err != nil {
		return nil, err
	}
	promptText, err := p.builder.Build(entry)
	if err != nil {
		return nil, err
	}

	start := time.Now()

	var image []byte
	err = p.gate.Do(ctx, func(ctx context.Context) error {
		var err error
		image, err = p.generator.Generate(ctx, promptText, p.genParams)
		if err != nil {
			var genErr *generate.Error
			if !errors.As(err, &genErr) {
				err = generate.NewError(promptText, false, err)
			}
			return err
		}
		if len(image) == 0 {
			return generate.NewError(promptText, true, errors.New("backend returned no image data"))
		}
		return nil
	})

	p.metrics.RecordGenerate(time.Since(start), err)
	p.logger.LogGenerate(ctx, promptText, len(image), err)
	if err != nil {
		return nil, err
	}

	scene := &Scene{
		Result:         result,
		SceneID:        result.SceneID,
		Label:          result.Label,
		Prompt:         promptText,
		NegativePrompt: p.genParams.NegativePrompt,
		Image:          image,
	}

	if p.artifacts != nil {
		name := fmt.Sprintf("images/scene-%03d-%s.png", result.SceneID, shortHash(image))
		if err := p.artifacts.Put(ctx, name, image); err != nil {
			return nil, fmt.Errorf("sound2scene: store image: %w", err)
		}
		scene.ArtifactName = name
	}

	return scene, nil
}

// IndexClip embeds the audio clip, classifies it, optionally transcribes its
// speech, and inserts it into the similarity index. sourceRef is an opaque
// caller reference (file path, object key) stored with the record.
func (p *Pipeline) IndexClip(ctx context.Context, pcm []float32, sourceRef string) (uint32, error) {
	if p.closed.Load() {
		return 0, ErrClosed
	}
	if len(pcm) == 0 {
		return 0, embedding.NewError("audio", "empty signal", nil)
	}

	var vec []float32
	err := p.gate.Do(ctx, func(ctx context.Context) error {
		var err error
		vec, err = p.embedder.EmbedAudio(ctx, pcm)
		if err != nil {
			return embedding.NewError("audio", "capability call", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	result, err := p.scorer.ClassifyVector(ctx, vec)
	if err != nil {
		return 0, err
	}

	md := index.Metadata{
		Label:     result.Label,
		SourceRef: sourceRef,
	}

	if p.transcriber != nil {
		var transcript transcribe.Transcript
		err := p.gate.Do(ctx, func(ctx context.Context) error {
			var err error
			transcript, err = p.transcriber.Transcribe(ctx, pcm)
			return err
		})
		if err != nil {
			return 0, fmt.Errorf("sound2scene: transcribe clip: %w", err)
		}
		md.SourceText = transcript.Text
		md.Chunks = make([]index.Chunk, len(transcript.Segments))
		for i, seg := range transcript.Segments {
			md.Chunks[i] = index.Chunk{Start: seg.Start, End: seg.End, Text: seg.Text}
		}
	}

	start := time.Now()

	p.closeMu.RLock()
	if p.closed.Load() {
		p.closeMu.RUnlock()
		return 0, ErrClosed
	}
	id, err := p.idx.Insert(ctx, vec, md)
	p.closeMu.RUnlock()
	err = translateError(err)

	p.metrics.RecordInsert(time.Since(start), err)
	p.logger.LogInsert(ctx, id, len(vec), err)

	return id, err
}

// SearchOptions configures a similarity search.
type SearchOptions struct {
	// Label restricts results to records classified under one scene label.
	// Empty means no restriction.
	Label string
}

// WithinScene restricts a search to records with the given scene label.
func WithinScene(label string) func(o *SearchOptions) {
	return func(o *SearchOptions) {
		o.Label = label
	}
}

// SearchText embeds the query text and returns the k most similar indexed
// clips.
func (p *Pipeline) SearchText(ctx context.Context, text string, k int, optFns ...func(o *SearchOptions)) ([]index.Result, error) {
	if text == "" {
		return nil, embedding.NewError("text", "empty query", nil)
	}

	var vec []float32
	err := p.gate.Do(ctx, func(ctx context.Context) error {
		var err error
		vec, err = p.embedder.EmbedText(ctx, text)
		if err != nil {
			return embedding.NewError("text", "capability call", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return p.searchVector(ctx, vec, k, optFns)
}

// SearchAudio embeds the query clip and returns the k most similar indexed
// clips.
func (p *Pipeline) SearchAudio(ctx context.Context, pcm []float32, k int, optFns ...func(o *SearchOptions)) ([]index.Result, error) {
	if len(pcm) == 0 {
		return nil, embedding.NewError("audio", "empty signal", nil)
	}

	var vec []float32
	err := p.gate.Do(ctx, func(ctx context.Context) error {
		var err error
		vec, err = p.embedder.EmbedAudio(ctx, pcm)
		if err != nil {
			return embedding.NewError("audio", "capability call", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return p.searchVector(ctx, vec, k, optFns)
}

func (p *Pipeline) searchVector(ctx context.Context, vec []float32, k int, optFns []func(o *SearchOptions)) ([]index.Result, error) {
	if p.closed.Load() {
		return nil, ErrClosed
	}

	var opts SearchOptions
	for _, fn := range optFns {
		fn(&opts)
	}

	start := time.Now()

	var results []index.Result
	var err error
	if opts.Label != "" {
		results, err = p.idx.SearchLabel(ctx, vec, k, opts.Label)
	} else {
		results, err = p.idx.Search(ctx, vec, k)
	}
	err = translateError(err)

	p.metrics.RecordSearch(k, time.Since(start), err)
	p.logger.LogSearch(ctx, k, len(results), err)

	return results, err
}

// Record returns the stored metadata for an indexed clip.
func (p *Pipeline) Record(id uint32) (index.Metadata, error) {
	return p.idx.Record(id)
}

// Len returns the number of indexed clips.
func (p *Pipeline) Len() int {
	return p.idx.Len()
}

// Snapshot persists the similarity index to the configured snapshot path.
func (p *Pipeline) Snapshot(ctx context.Context) error {
	if p.snapshotPath == "" {
		return errors.New("sound2scene: no snapshot path configured")
	}

	p.snapshotMu.Lock()
	defer p.snapshotMu.Unlock()

	start := time.Now()
	err := persistence.SaveToFile(p.snapshotPath, p.idx, func(o *persistence.Options) {
		o.Compression = p.snapshotComp
	})

	p.metrics.RecordSnapshot(time.Since(start), err)
	p.logger.LogSnapshot(ctx, p.snapshotPath, err)

	return err
}

// BackupSnapshot writes an index snapshot to the artifact store under the
// given blob name.
func (p *Pipeline) BackupSnapshot(ctx context.Context, name string) error {
	if p.artifacts == nil {
		return errors.New("sound2scene: no artifact store configured")
	}

	p.snapshotMu.Lock()
	defer p.snapshotMu.Unlock()

	var buf bytes.Buffer
	start := time.Now()
	err := persistence.Save(&buf, p.idx, func(o *persistence.Options) {
		o.Compression = p.snapshotComp
	})
	if err == nil {
		err = p.artifacts.Put(ctx, name, buf.Bytes())
	}

	p.metrics.RecordSnapshot(time.Since(start), err)
	p.logger.LogSnapshot(ctx, name, err)

	return err
}

// Close persists the index (when a snapshot path is configured) and marks the
// pipeline closed. Close is idempotent.
func (p *Pipeline) Close(ctx context.Context) error {
	p.closeMu.Lock()
	defer p.closeMu.Unlock()

	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	if p.snapshotPath == "" {
		return nil
	}

	p.snapshotMu.Lock()
	defer p.snapshotMu.Unlock()

	start := time.Now()
	err := persistence.SaveToFile(p.snapshotPath, p.idx, func(o *persistence.Options) {
		o.Compression = p.snapshotComp
	})

	p.metrics.RecordSnapshot(time.Since(start), err)
	p.logger.LogSnapshot(ctx, p.snapshotPath, err)

	return err
}

func shortHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:6])
}
