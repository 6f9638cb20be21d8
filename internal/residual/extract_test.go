package residual

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtract_ResidualsPerBlock(t *testing.T) {
	const npos, blockLen = 6, 20
	rawBias := Vec3{X: 0.3, Y: -0.2, Z: 0.1}
	corrBias := Vec3{X: 0.01, Y: -0.02, Z: 0.005}

	raw := blockSeries("raw", npos, blockLen, biased(sixFaces, rawBias))
	corr := blockSeries("corr", npos, blockLen, biased(sixFaces, corrBias))
	pair, _, _ := Reconcile(raw, corr, 0)

	meta := Meta{PositionCount: npos, BlockLength: blockLen, SteadyStartFraction: 0.5, SteadyEndFraction: 0.75}
	plan, _, err := PlanSegments(meta, pair.Len())
	require.NoError(t, err)

	ex, err := Extract(plan, pair, sixFaces)
	require.NoError(t, err)

	require.Equal(t, npos*5, ex.Raw.Len())
	require.Equal(t, ex.Raw.Len(), ex.Corrected.Len())
	require.Len(t, ex.Origin, ex.Raw.Len())
	assert.Equal(t, RegimeRaw, ex.Raw.Regime)
	assert.Equal(t, RegimeCorrected, ex.Corrected.Regime)

	for k := range ex.Origin {
		assert.InDelta(t, rawBias.X, ex.Raw.X[k], 1e-12)
		assert.InDelta(t, rawBias.Y, ex.Raw.Y[k], 1e-12)
		assert.InDelta(t, rawBias.Z, ex.Raw.Z[k], 1e-12)
		assert.InDelta(t, corrBias.X, ex.Corrected.X[k], 1e-12)
	}
}

func TestExtract_BlockOrderAndOrigin(t *testing.T) {
	const npos, blockLen = 3, 10
	// Each sample carries its global index on x so ordering is observable.
	s := &Series{Name: "idx"}
	for i := 0; i < npos*blockLen; i++ {
		s.T = append(s.T, int64(i))
		s.X = append(s.X, float64(i))
		s.Y = append(s.Y, 0)
		s.Z = append(s.Z, 0)
	}
	pair := &Pair{Raw: s, Corrected: s}
	plan := Plan{DeclaredPositions: npos, PositionCount: npos, BlockLength: blockLen, WindowStart: 6, WindowEnd: 9, Samples: npos * blockLen}

	refs := []Vec3{{X: 0}, {X: 100}, {X: 1000}}
	ex, err := Extract(plan, pair, refs)
	require.NoError(t, err)

	wantX := []float64{6, 7, 8, 16 - 100, 17 - 100, 18 - 100, 26 - 1000, 27 - 1000, 28 - 1000}
	assert.Equal(t, wantX, ex.Raw.X)
	assert.Equal(t, SampleOrigin{Block: 1, Index: 16}, ex.Origin[3])
	assert.Equal(t, SampleOrigin{Block: 2, Index: 28}, ex.Origin[8])
}

func TestExtract_UsesOnlyRetainedReferences(t *testing.T) {
	meta := Meta{PositionCount: 8, BlockLength: 10, SteadyStartFraction: 0.0, SteadyEndFraction: 1.0}
	raw := blockSeries("raw", 6, 10, biased(sixFaces, Vec3{}))
	pair, _, _ := Reconcile(raw, raw, 0)

	plan, _, err := PlanSegments(meta, pair.Len())
	require.NoError(t, err)
	require.Equal(t, 6, plan.PositionCount)

	refs := append(append([]Vec3(nil), sixFaces...), Vec3{X: 1e6}, Vec3{X: -1e6})
	ex, err := Extract(plan, pair, refs)
	require.NoError(t, err)
	assert.Equal(t, 60, ex.Raw.Len())
	for _, v := range ex.Raw.X {
		assert.InDelta(t, 0, v, 1e-12)
	}
}

func TestExtract_Insufficient(t *testing.T) {
	raw := blockSeries("raw", 2, 10, biased(sixFaces, Vec3{}))
	pair := &Pair{Raw: raw, Corrected: raw}
	plan := Plan{PositionCount: 3, BlockLength: 10, WindowStart: 0, WindowEnd: 5}

	_, err := Extract(plan, pair, sixFaces)
	assert.True(t, errors.Is(err, ErrInsufficientData))

	plan.PositionCount = 2
	_, err = Extract(plan, pair, sixFaces[:1])
	assert.True(t, errors.Is(err, ErrInsufficientData))
}
