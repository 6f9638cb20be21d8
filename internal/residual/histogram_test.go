package residual

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
)

func TestNewHistogram(t *testing.T) {
	values := []float64{0, 0.5, 1, 1.5, 2, 2.5, 3, 3.5, 4}

	h, err := NewHistogram(values, 4)
	require.NoError(t, err)
	require.Equal(t, 4, h.Bins())
	assert.Equal(t, []float64{2, 2, 2, 3}, h.Counts)
	assert.Equal(t, float64(len(values)), h.Total())
	assert.Equal(t, 0.0, h.Edges[0])
	assert.Greater(t, h.Edges[4], 4.0)
	assert.InDelta(t, 0.5, h.Center(0), 1e-12)
}

func TestNewHistogram_DoesNotReorderInput(t *testing.T) {
	values := []float64{3, 1, 2}
	_, err := NewHistogram(values, 2)
	require.NoError(t, err)
	assert.Equal(t, []float64{3, 1, 2}, values)
}

func TestNewHistogram_Constant(t *testing.T) {
	h, err := NewHistogram([]float64{0.25, 0.25, 0.25}, 60)
	require.NoError(t, err)
	assert.Equal(t, 1, h.Bins())
	assert.Equal(t, []float64{3}, h.Counts)
}

func TestNewHistogram_DefaultsAndEmpty(t *testing.T) {
	h, err := NewHistogram([]float64{-1, 1}, 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultBins, h.Bins())
	assert.Equal(t, 2.0, h.Total())

	_, err = NewHistogram(nil, 10)
	assert.True(t, errors.Is(err, ErrEmptyInput))
}

func TestNewSharedHistograms(t *testing.T) {
	raw := []float64{-2, -1, 0, 1, 2}
	corr := []float64{-0.1, 0, 0.1}

	hs, err := NewSharedHistograms(4, raw, corr)
	require.NoError(t, err)
	require.Len(t, hs, 2)

	assert.Equal(t, hs[0].Edges, hs[1].Edges)
	assert.Equal(t, -2.0, hs[0].Edges[0])
	assert.Equal(t, []float64{1, 1, 1, 2}, hs[0].Counts)
	assert.Equal(t, []float64{0, 1, 2, 0}, hs[1].Counts)

	_, err = NewSharedHistograms(4, raw, nil)
	assert.True(t, errors.Is(err, ErrEmptyInput))
	_, err = NewSharedHistograms(4)
	assert.True(t, errors.Is(err, ErrEmptyInput))
}

func TestNewHistogram_InexactEdges(t *testing.T) {
	populations := [][]float64{
		{0.1, 0.2, 0.3},
		{-0.3, -0.2, -0.1},
		{1e-9, 0.7, 0.3 - 1e-17},
		{9.81, 9.79, 9.8000000001},
	}
	for _, values := range populations {
		for bins := 1; bins <= 100; bins++ {
			var h Histogram
			require.NotPanics(t, func() {
				var err error
				h, err = NewHistogram(values, bins)
				require.NoError(t, err)
			}, "bins=%d values=%v", bins, values)
			assert.Equal(t, float64(len(values)), h.Total(), "bins=%d values=%v", bins, values)
			assert.Equal(t, floats.Min(values), h.Edges[0])
			assert.Greater(t, h.Edges[bins], h.Edges[bins-1])
		}
	}
}
