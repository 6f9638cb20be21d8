package residual

import "gonum.org/v1/gonum/stat"

// DefaultCheckBlocks is the number of leading blocks the validator compares
// against the report when no other count is requested.
const DefaultCheckBlocks = 3

// BlockCheck compares the steady-window means of one block with the
// summary values recorded in the calibration report.
type BlockCheck struct {
	Block                int     `json:"block"`
	RawMean              Vec3    `json:"raw_mean"`
	CorrectedMean        Vec3    `json:"corrected_mean"`
	RawDiscrepancy       float64 `json:"raw_discrepancy"`
	CorrectedDiscrepancy float64 `json:"corrected_discrepancy"`
}

// Discrepancy returns the larger of the two regime discrepancies.
func (c BlockCheck) Discrepancy() float64 {
	if c.CorrectedDiscrepancy > c.RawDiscrepancy {
		return c.CorrectedDiscrepancy
	}
	return c.RawDiscrepancy
}

// Validate recomputes steady-window means for the leading blocks and
// reports the largest absolute component difference from the report's
// raw_mean and corrected_mean. At least DefaultCheckBlocks blocks are
// checked when that many exist. Findings are diagnostics only, one per
// block in block order; Validate never fails the run.
func Validate(plan Plan, pair *Pair, points []Point, checkBlocks int) ([]BlockCheck, Diagnostics) {
	var diags Diagnostics

	n := checkBlocks
	if n < DefaultCheckBlocks {
		n = DefaultCheckBlocks
	}
	if n > plan.PositionCount {
		n = plan.PositionCount
	}
	if n > len(points) {
		n = len(points)
	}
	if need := n * plan.BlockLength; need > pair.Len() {
		n = pair.Len() / plan.BlockLength
	}

	checks := make([]BlockCheck, 0, n)
	for i := 0; i < n; i++ {
		r := plan.Steady(i)
		c := BlockCheck{
			Block:         i,
			RawMean:       steadyMean(pair.Raw, r),
			CorrectedMean: steadyMean(pair.Corrected, r),
		}
		c.RawDiscrepancy = c.RawMean.Sub(points[i].RawMean).MaxAbs()
		c.CorrectedDiscrepancy = c.CorrectedMean.Sub(points[i].CorrectedMean).MaxAbs()
		checks = append(checks, c)

		diags.addBlockf(DiagMeanDiscrepancy, i, c.Discrepancy(),
			"block %d: max |mean_ts - report| raw=%.6g corr=%.6g", i, c.RawDiscrepancy, c.CorrectedDiscrepancy)
	}
	return checks, diags
}

func steadyMean(s *Series, r Range) Vec3 {
	return Vec3{
		X: stat.Mean(s.X[r.Start:r.End], nil),
		Y: stat.Mean(s.Y[r.Start:r.End], nil),
		Z: stat.Mean(s.Z[r.Start:r.End], nil),
	}
}
