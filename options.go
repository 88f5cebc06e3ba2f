package sound2scene

import (
	"log/slog"

	"github.com/SalmanAh/sound2scene/blobstore"
	"github.com/SalmanAh/sound2scene/generate"
	"github.com/SalmanAh/sound2scene/persistence"
	"github.com/SalmanAh/sound2scene/prompt"
	"github.com/SalmanAh/sound2scene/resource"
	"github.com/SalmanAh/sound2scene/taxonomy"
	"github.com/SalmanAh/sound2scene/transcribe"
)

type options struct {
	catalog             *taxonomy.Catalog
	transcriber         transcribe.Transcriber
	artifacts           blobstore.Store
	gate                *resource.Gate
	logger              *Logger
	metricsCollector    MetricsCollector
	genParams           generate.Params
	promptStyle         []func(s *prompt.Style)
	snapshotPath        string
	snapshotCompression persistence.Compression
	embedConcurrency    int
}

// Option configures pipeline construction.
type Option func(*options)

// WithCatalog replaces the built-in scene catalog.
//
// If nil is passed, taxonomy.Default() is used.
func WithCatalog(c *taxonomy.Catalog) Option {
	return func(o *options) {
		o.catalog = c
	}
}

// WithTranscriber enables speech transcription for indexed clips. When set,
// IndexClip stores the transcript text and its timestamped segments alongside
// the clip's embedding.
func WithTranscriber(t transcribe.Transcriber) Option {
	return func(o *options) {
		o.transcriber = t
	}
}

// WithArtifactStore configures where generated scene images are written.
// Without a store, SceneImage returns image bytes without persisting them.
//
// Any blobstore.Store works: local filesystem, in-memory, MinIO, or S3.
func WithArtifactStore(s blobstore.Store) Option {
	return func(o *options) {
		o.artifacts = s
	}
}

// WithGate throttles calls to the embedding and generation backends.
// Pass nil for no throttling (the default).
func WithGate(g *resource.Gate) Option {
	return func(o *options) {
		o.gate = g
	}
}

// WithGenerationParams overrides the default image-generation parameters.
func WithGenerationParams(p generate.Params) Option {
	return func(o *options) {
		o.genParams = p
	}
}

// WithPromptStyle customizes prompt construction (modifiers, length cap).
//
// Example:
//
//	sound2scene.WithPromptStyle(func(s *prompt.Style) {
//	    s.MaxLength = 300
//	})
func WithPromptStyle(fns ...func(s *prompt.Style)) Option {
	return func(o *options) {
		o.promptStyle = append(o.promptStyle, fns...)
	}
}

// WithSnapshotPath configures the file the similarity index is persisted to.
// New loads an existing snapshot from this path, and Close (or Snapshot)
// writes one back atomically.
func WithSnapshotPath(path string) Option {
	return func(o *options) {
		o.snapshotPath = path
	}
}

// WithSnapshotCompression selects the snapshot compression mode.
func WithSnapshotCompression(c persistence.Compression) Option {
	return func(o *options) {
		o.snapshotCompression = c
	}
}

// WithEmbedConcurrency bounds parallel label-embedding calls while the label
// cache warms up.
func WithEmbedConcurrency(n int) Option {
	return func(o *options) {
		o.embedConcurrency = n
	}
}

// WithMetricsCollector configures a metrics collector for monitoring
// operations.
//
// Example with BasicMetricsCollector:
//
//	metrics := &sound2scene.BasicMetricsCollector{}
//	p, _ := sound2scene.New(embedder, generator, sound2scene.WithMetricsCollector(metrics))
//	// ... use p ...
//	stats := metrics.GetStats()
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc == nil {
			mc = NoopMetricsCollector{}
		}
		o.metricsCollector = mc
	}
}

// WithLogger configures structured logging for operations.
//
// Example with JSON logging:
//
//	logger := sound2scene.NewJSONLogger(slog.LevelInfo)
//	p, _ := sound2scene.New(embedder, generator, sound2scene.WithLogger(logger))
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		if logger == nil {
			logger = NoopLogger()
		}
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		genParams:        generate.DefaultParams(),
		metricsCollector: NoopMetricsCollector{},
		logger:           NoopLogger(),
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	if o.catalog == nil {
		o.catalog = taxonomy.Default()
	}
	return o
}
