package distance

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDot(t *testing.T) {
	assert.Equal(t, float32(32), Dot([]float32{1, 2, 3}, []float32{4, 5, 6}))
	assert.Equal(t, float32(0), Dot(nil, nil))
}

func TestSquaredL2(t *testing.T) {
	assert.Equal(t, float32(27), SquaredL2([]float32{1, 2, 3}, []float32{4, 5, 6}))
	assert.Equal(t, float32(0), SquaredL2([]float32{1, 2}, []float32{1, 2}))
}

func TestCosine(t *testing.T) {
	assert.InDelta(t, 1.0, Cosine([]float32{1, 0}, []float32{2, 0}), 1e-6)
	assert.InDelta(t, 0.0, Cosine([]float32{1, 0}, []float32{0, 3}), 1e-6)
	assert.InDelta(t, -1.0, Cosine([]float32{1, 0}, []float32{-5, 0}), 1e-6)

	// Zero vectors have no direction.
	assert.Equal(t, float32(0), Cosine([]float32{0, 0}, []float32{1, 2}))
}

func TestNormalizeL2(t *testing.T) {
	t.Run("InPlace", func(t *testing.T) {
		v := []float32{3, 4}
		require.True(t, NormalizeL2InPlace(v))
		assert.InDelta(t, 0.6, v[0], 1e-6)
		assert.InDelta(t, 0.8, v[1], 1e-6)

		assert.False(t, NormalizeL2InPlace([]float32{0, 0}))
		assert.False(t, NormalizeL2InPlace(nil))
	})

	t.Run("Copy", func(t *testing.T) {
		src := []float32{3, 4}
		dst, ok := NormalizeL2Copy(src)
		require.True(t, ok)
		assert.Equal(t, []float32{3, 4}, src, "source must not be mutated")
		assert.InDelta(t, 1.0, Dot(dst, dst), 1e-6)

		_, ok = NormalizeL2Copy([]float32{0, 0, 0})
		assert.False(t, ok)
	})
}
