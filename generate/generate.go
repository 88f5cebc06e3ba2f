// Package generate defines the external text-to-image capability consumed by
// the pipeline. The diffusion process itself is opaque; the library only
// supplies the configuration tuple and consumes the resulting bytes.
package generate

import (
	"context"
	"fmt"
)

// Default generation parameters, tuned for photorealistic scene output.
const (
	DefaultSteps         = 30
	DefaultGuidanceScale = 7.5
	DefaultWidth         = 1024
	DefaultHeight        = 1024
)

// Params is the configuration tuple for one generation call.
type Params struct {
	// Steps is the number of inference steps (quality vs. speed).
	Steps int

	// GuidanceScale controls prompt adherence.
	GuidanceScale float64

	// Width and Height are the output dimensions in pixels.
	Width  int
	Height int

	// Seed makes generation reproducible. Nil means the generator chooses.
	Seed *int64

	// NegativePrompt lists traits to avoid. Empty means the generator's
	// default.
	NegativePrompt string
}

// DefaultParams returns Params populated with the package defaults.
func DefaultParams() Params {
	return Params{
		Steps:         DefaultSteps,
		GuidanceScale: DefaultGuidanceScale,
		Width:         DefaultWidth,
		Height:        DefaultHeight,
	}
}

// Generator produces an image for a prompt.
//
// Generate blocks for the duration of the external call, which may take
// minutes; implementations must honor ctx cancellation.
type Generator interface {
	Generate(ctx context.Context, prompt string, params Params) ([]byte, error)
}

// Error indicates that the generation capability failed or timed out.
// It carries enough detail for the caller to decide whether to retry.
//
// The underlying error (if any) can be accessed via errors.Unwrap.
type Error struct {
	// Prompt is the prompt that was being rendered.
	Prompt string

	// Retryable reports whether the failure is likely transient.
	Retryable bool

	cause error
}

// NewError creates a generation Error wrapping cause.
func NewError(prompt string, retryable bool, cause error) *Error {
	return &Error{Prompt: prompt, Retryable: retryable, cause: cause}
}

func (e *Error) Error() string {
	return fmt.Sprintf("generation failed (retryable=%t): %v", e.Retryable, e.cause)
}

func (e *Error) Unwrap() error { return e.cause }
