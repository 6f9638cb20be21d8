package residual

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
)

// ResidualSet holds measured-minus-reference values for one regime, per
// channel, concatenated over every steady sample of every block in block
// order.
type ResidualSet struct {
	Regime Regime    `json:"regime"`
	X      []float64 `json:"x"`
	Y      []float64 `json:"y"`
	Z      []float64 `json:"z"`
}

// Len returns the number of residual samples per channel.
func (s ResidualSet) Len() int { return len(s.X) }

// Channel returns the residuals of one axis.
func (s ResidualSet) Channel(c Channel) []float64 {
	switch c {
	case ChannelX:
		return s.X
	case ChannelY:
		return s.Y
	default:
		return s.Z
	}
}

func newResidualSet(regime Regime, n int) ResidualSet {
	return ResidualSet{
		Regime: regime,
		X:      make([]float64, n),
		Y:      make([]float64, n),
		Z:      make([]float64, n),
	}
}

// SampleOrigin locates a residual sample in the recording.
type SampleOrigin struct {
	Block int `json:"block"`
	Index int `json:"index"`
}

// Extraction is the paired residual output. Raw, Corrected and Origin share
// positions: entry k of each refers to the same sample of the same block.
type Extraction struct {
	Raw       ResidualSet    `json:"raw"`
	Corrected ResidualSet    `json:"corrected"`
	Origin    []SampleOrigin `json:"-"`
}

// Extract slices the steady window of every planned block from both streams
// and subtracts the block's reference vector. All steady samples contribute;
// nothing is clamped, smoothed or discarded.
func Extract(plan Plan, pair *Pair, refs []Vec3) (Extraction, error) {
	if len(refs) < plan.PositionCount {
		return Extraction{}, &InsufficientDataError{
			Samples:     pair.Len(),
			BlockLength: plan.BlockLength,
			Reason:      fmt.Sprintf("%d reference vectors for %d blocks", len(refs), plan.PositionCount),
		}
	}
	if need := plan.PositionCount * plan.BlockLength; pair.Len() < need {
		return Extraction{}, &InsufficientDataError{
			Samples:     pair.Len(),
			BlockLength: plan.BlockLength,
			Reason:      fmt.Sprintf("plan needs %d samples", need),
		}
	}

	total := plan.TotalSteady()
	ex := Extraction{
		Raw:       newResidualSet(RegimeRaw, total),
		Corrected: newResidualSet(RegimeCorrected, total),
		Origin:    make([]SampleOrigin, total),
	}

	w := plan.SteadyLen()
	for i := 0; i < plan.PositionCount; i++ {
		src := plan.Steady(i)
		off := i * w
		ref := refs[i]
		for _, c := range Channels {
			subtract(ex.Raw.Channel(c)[off:off+w], pair.Raw.Channel(c)[src.Start:src.End], ref.Component(c))
			subtract(ex.Corrected.Channel(c)[off:off+w], pair.Corrected.Channel(c)[src.Start:src.End], ref.Component(c))
		}
		for k := 0; k < w; k++ {
			ex.Origin[off+k] = SampleOrigin{Block: i, Index: src.Start + k}
		}
	}
	return ex, nil
}

// subtract writes src[k]-ref into dst[k].
func subtract(dst, src []float64, ref float64) {
	copy(dst, src)
	floats.AddConst(-ref, dst)
}
