// Package embedding defines the external embedding capabilities consumed by
// the pipeline.
//
// Implementations wrap a model server or local inference runtime. The library
// only requires a fixed output dimension and that the same model version is
// used consistently, so that vectors remain comparable.
package embedding

import (
	"context"
	"fmt"
)

// AudioEmbedder produces a fixed-length embedding for a decoded mono audio
// signal. Resampling and format conversion are the caller's responsibility.
type AudioEmbedder interface {
	// EmbedAudio embeds a mono PCM signal at the model's required sample rate.
	EmbedAudio(ctx context.Context, pcm []float32) ([]float32, error)

	// Dimension returns the fixed embedding dimension.
	Dimension() int
}

// TextEmbedder produces a fixed-length embedding for a text string.
type TextEmbedder interface {
	// EmbedText embeds a single text string.
	EmbedText(ctx context.Context, text string) ([]float32, error)

	// Dimension returns the fixed embedding dimension.
	Dimension() int
}

// JointEmbedder embeds audio and text into the same vector space, as provided
// by contrastive audio-language models. Zero-shot scoring requires a joint
// space: an audio embedding is only comparable to label embeddings from the
// same model.
type JointEmbedder interface {
	AudioEmbedder
	TextEmbedder
}

// Error indicates that an embedding capability was unreachable or returned
// malformed output. It is surfaced to the caller and never retried internally.
//
// The underlying error (if any) can be accessed via errors.Unwrap.
type Error struct {
	// Input describes what was being embedded ("audio" or "text").
	Input string

	// Detail is a short human-readable description of the failure.
	Detail string

	cause error
}

// NewError creates an embedding Error wrapping cause.
func NewError(input, detail string, cause error) *Error {
	return &Error{Input: input, Detail: detail, cause: cause}
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("embedding %s failed: %s: %v", e.Input, e.Detail, e.cause)
	}
	return fmt.Sprintf("embedding %s failed: %s", e.Input, e.Detail)
}

func (e *Error) Unwrap() error { return e.cause }
