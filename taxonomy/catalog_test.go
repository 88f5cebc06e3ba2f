package taxonomy

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	c := Default()
	require.GreaterOrEqual(t, c.Len(), 180)

	// IDs are dense and entries are self-consistent.
	for i, e := range c.Entries() {
		assert.Equal(t, i, e.ID)
		assert.NotEmpty(t, e.Label)
		assert.NotEmpty(t, e.Prompt)
	}

	labels := c.Labels()
	assert.Len(t, labels, c.Len())
	assert.Equal(t, "birds chirping in a forest", labels[0])
}

func TestLoad(t *testing.T) {
	t.Run("Valid", func(t *testing.T) {
		c, err := Load(strings.NewReader(`
scenes:
  - id: 0
    label: forest birds chirping
    prompt: a peaceful forest with birds in the trees
  - id: 1
    label: rain on pavement
    prompt: a rainy city street with wet pavement
`))
		require.NoError(t, err)
		assert.Equal(t, 2, c.Len())

		e, err := c.Entry(1)
		require.NoError(t, err)
		assert.Equal(t, "rain on pavement", e.Label)
	})

	t.Run("EntryOutOfRange", func(t *testing.T) {
		c, err := Load(strings.NewReader(`
scenes:
  - id: 0
    label: a
    prompt: b
`))
		require.NoError(t, err)

		_, err = c.Entry(-1)
		assert.Error(t, err)
		_, err = c.Entry(1)
		assert.Error(t, err)
	})

	t.Run("NonDenseIDs", func(t *testing.T) {
		_, err := Load(strings.NewReader(`
scenes:
  - id: 0
    label: a
    prompt: b
  - id: 2
    label: c
    prompt: d
`))
		assert.ErrorContains(t, err, "dense ascending")
	})

	t.Run("DuplicateLabel", func(t *testing.T) {
		_, err := Load(strings.NewReader(`
scenes:
  - id: 0
    label: same
    prompt: b
  - id: 1
    label: same
    prompt: d
`))
		assert.ErrorContains(t, err, "share label")
	})

	t.Run("EmptyLabel", func(t *testing.T) {
		_, err := Load(strings.NewReader(`
scenes:
  - id: 0
    label: "  "
    prompt: b
`))
		assert.ErrorContains(t, err, "empty label")
	})

	t.Run("Empty", func(t *testing.T) {
		_, err := Load(strings.NewReader(`scenes: []`))
		assert.ErrorContains(t, err, "no scenes")
	})
}

func TestCatalogImmutability(t *testing.T) {
	c := Default()

	labels := c.Labels()
	labels[0] = "mutated"
	assert.NotEqual(t, "mutated", c.Labels()[0])

	entries := c.Entries()
	entries[0].Label = "mutated"
	e, err := c.Entry(0)
	require.NoError(t, err)
	assert.NotEqual(t, "mutated", e.Label)
}
