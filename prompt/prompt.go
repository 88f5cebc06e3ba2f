// Package prompt builds image-generation prompts from scene entries.
//
// Building is a pure function: the same entry and style always produce the
// same prompt. Quality modifiers are appended after the scene clause; when a
// length cap applies, whole trailing modifiers are dropped first and the
// scene-defining clause is never trimmed.
package prompt

import (
	"fmt"
	"strings"

	"github.com/SalmanAh/sound2scene/taxonomy"
)

// DefaultModifiers are the quality cues appended to every scene clause.
var DefaultModifiers = []string{
	"high quality",
	"detailed",
	"photorealistic",
	"8k",
	"professional photography",
}

// DefaultNegativePrompt steers the generator away from common failure modes.
const DefaultNegativePrompt = "blurry, low quality, distorted, deformed, ugly, bad anatomy, " +
	"watermark, text, signature, cartoon, anime, illustration, " +
	"low resolution, pixelated, grainy"

// Style controls prompt construction.
type Style struct {
	// Modifiers are appended to the scene clause in order.
	// Nil means DefaultModifiers; an empty non-nil slice means none.
	Modifiers []string

	// MaxLength caps the built prompt's length in bytes. Zero means no cap.
	MaxLength int
}

// Builder constructs prompts with a fixed style.
type Builder struct {
	style Style
}

// NewBuilder creates a Builder.
func NewBuilder(optFns ...func(s *Style)) *Builder {
	style := Style{}
	for _, fn := range optFns {
		fn(&style)
	}
	if style.Modifiers == nil {
		style.Modifiers = DefaultModifiers
	}
	return &Builder{style: style}
}

// Build constructs the generation prompt for a scene entry.
func (b *Builder) Build(entry taxonomy.Entry) (string, error) {
	return Build(entry, b.style)
}

// Build constructs a generation prompt from the entry's scene clause and the
// style's modifiers.
//
// If style.MaxLength is set, trailing modifiers are dropped (whole, from the
// end) until the prompt fits. A scene clause that alone exceeds the cap is an
// error: truncating it would change which scene the image depicts.
func Build(entry taxonomy.Entry, style Style) (string, error) {
	clause := strings.TrimSpace(entry.Prompt)
	if clause == "" {
		return "", fmt.Errorf("prompt: scene %d (%q) has an empty prompt clause", entry.ID, entry.Label)
	}

	modifiers := style.Modifiers
	if modifiers == nil {
		modifiers = DefaultModifiers
	}

	if style.MaxLength > 0 && len(clause) > style.MaxLength {
		return "", fmt.Errorf("prompt: scene %d clause length %d exceeds cap %d", entry.ID, len(clause), style.MaxLength)
	}

	parts := make([]string, 0, len(modifiers)+1)
	parts = append(parts, clause)
	for _, m := range modifiers {
		m = strings.TrimSpace(m)
		if m == "" {
			continue
		}
		parts = append(parts, m)
	}

	built := strings.Join(parts, ", ")
	if style.MaxLength <= 0 {
		return built, nil
	}

	// Drop whole trailing modifiers until the prompt fits.
	for len(built) > style.MaxLength && len(parts) > 1 {
		parts = parts[:len(parts)-1]
		built = strings.Join(parts, ", ")
	}
	return built, nil
}
