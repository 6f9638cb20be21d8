package residual

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPointResiduals(t *testing.T) {
	stored := Vec3{X: 0.5, Y: 0.5, Z: 0.5}
	rep := &Report{
		Meta: Meta{PositionCount: 3, BlockLength: 10, SteadyStartFraction: 0.1, SteadyEndFraction: 0.9},
		Points: []Point{
			{Reference: Vec3{X: 9.8}, RawMean: Vec3{X: 10.0}, CorrectedMean: Vec3{X: 9.9}},
			{Reference: Vec3{Y: 9.8}, RawMean: Vec3{Y: 9.5}, CorrectedMean: Vec3{Y: 9.8}, ResidualRaw: &stored},
			{Reference: Vec3{Z: 9.8}, RawMean: Vec3{Z: 9.0}, CorrectedMean: Vec3{Z: 9.7}},
		},
	}

	raw, corr := PointResiduals(rep, 2)
	require.Equal(t, 2, raw.Len())
	require.Equal(t, 2, corr.Len())
	assert.Equal(t, RegimeRaw, raw.Regime)
	assert.Equal(t, RegimeCorrected, corr.Regime)

	assert.InDelta(t, 0.2, raw.X[0], 1e-12)
	assert.Equal(t, 0.5, raw.Y[1])
	assert.Equal(t, 0.5, raw.X[1])
	assert.InDelta(t, 0.1, corr.X[0], 1e-12)
	assert.InDelta(t, 0.0, corr.Y[1], 1e-12)

	raw, _ = PointResiduals(rep, 0)
	assert.Equal(t, 3, raw.Len())
	assert.InDelta(t, -0.8, raw.Z[2], 1e-12)
}
