// Package taxonomy provides the fixed catalog of audio scene labels and their
// image-generation prompt templates.
//
// The catalog is immutable once loaded: entries are ordered by ID and the set
// cardinality never changes during the lifetime of a process. Scene IDs are
// dense, starting at 0.
package taxonomy

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	_ "embed"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalogYAML []byte

// Entry describes a single recognizable audio scene.
type Entry struct {
	// ID is the dense scene identifier, equal to the entry's position in the
	// catalog.
	ID int `yaml:"id"`

	// Label is the short natural-language description matched against audio
	// via zero-shot contrastive scoring.
	Label string `yaml:"label"`

	// Prompt is the scene-defining clause used to build the image-generation
	// prompt.
	Prompt string `yaml:"prompt"`
}

// Catalog is an immutable, ID-ordered collection of scene entries.
type Catalog struct {
	entries []Entry
}

type catalogFile struct {
	Scenes []Entry `yaml:"scenes"`
}

// Default returns the built-in catalog shipped with the library.
// It panics if the embedded catalog is malformed, which indicates a build
// problem rather than a runtime condition.
func Default() *Catalog {
	c, err := Load(bytes.NewReader(defaultCatalogYAML))
	if err != nil {
		panic(fmt.Sprintf("taxonomy: embedded catalog invalid: %v", err))
	}
	return c
}

// Load reads a catalog from YAML and validates it.
//
// Validation rules: at least one entry, IDs dense and ascending from 0,
// no empty labels or prompts, no duplicate labels.
func Load(r io.Reader) (*Catalog, error) {
	var file catalogFile

	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("taxonomy: decode catalog: %w", err)
	}

	if len(file.Scenes) == 0 {
		return nil, fmt.Errorf("taxonomy: catalog has no scenes")
	}

	seen := make(map[string]int, len(file.Scenes))
	for i, e := range file.Scenes {
		if e.ID != i {
			return nil, fmt.Errorf("taxonomy: scene at position %d has id %d, want dense ascending ids", i, e.ID)
		}
		if strings.TrimSpace(e.Label) == "" {
			return nil, fmt.Errorf("taxonomy: scene %d has an empty label", e.ID)
		}
		if strings.TrimSpace(e.Prompt) == "" {
			return nil, fmt.Errorf("taxonomy: scene %d (%q) has an empty prompt", e.ID, e.Label)
		}
		if prev, ok := seen[e.Label]; ok {
			return nil, fmt.Errorf("taxonomy: scenes %d and %d share label %q", prev, e.ID, e.Label)
		}
		seen[e.Label] = e.ID
	}

	return &Catalog{entries: file.Scenes}, nil
}

// Len returns the number of scenes in the catalog.
func (c *Catalog) Len() int {
	return len(c.entries)
}

// Entry returns the scene with the given ID.
func (c *Catalog) Entry(id int) (Entry, error) {
	if id < 0 || id >= len(c.entries) {
		return Entry{}, fmt.Errorf("taxonomy: no scene with id %d (catalog size %d)", id, len(c.entries))
	}
	return c.entries[id], nil
}

// Labels returns the label strings in ID order.
// The returned slice is a copy and safe to retain.
func (c *Catalog) Labels() []string {
	labels := make([]string, len(c.entries))
	for i, e := range c.entries {
		labels[i] = e.Label
	}
	return labels
}

// Entries returns all scenes in ID order.
// The returned slice is a copy and safe to retain.
func (c *Catalog) Entries() []Entry {
	entries := make([]Entry, len(c.entries))
	copy(entries, c.entries)
	return entries
}
