package residual

import (
	"fmt"
	"math"
)

// Range is a half-open interval [Start, End) of global sample indices.
type Range struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Len returns the number of indices in r.
func (r Range) Len() int { return r.End - r.Start }

// Contains reports whether i lies in r.
func (r Range) Contains(i int) bool { return i >= r.Start && i < r.End }

// Plan is the block layout of a recording: PositionCount blocks of
// BlockLength samples laid end to end from index 0, each with the same
// steady window [WindowStart, WindowEnd) relative to the block start.
type Plan struct {
	DeclaredPositions int `json:"declared_positions"`
	PositionCount     int `json:"position_count"`
	BlockLength       int `json:"block_length"`
	WindowStart       int `json:"window_start"`
	WindowEnd         int `json:"window_end"`
	Samples           int `json:"samples"`
}

// Reduced reports whether fewer blocks are analysed than were declared.
func (p Plan) Reduced() bool { return p.PositionCount < p.DeclaredPositions }

// Block returns the global sample range of block i.
func (p Plan) Block(i int) Range {
	base := i * p.BlockLength
	return Range{Start: base, End: base + p.BlockLength}
}

// Steady returns the global sample range of block i's steady window.
func (p Plan) Steady(i int) Range {
	base := i * p.BlockLength
	return Range{Start: base + p.WindowStart, End: base + p.WindowEnd}
}

// SteadyLen returns the number of steady samples per block.
func (p Plan) SteadyLen() int { return p.WindowEnd - p.WindowStart }

// TotalSteady returns the number of steady samples across all blocks.
func (p Plan) TotalSteady() int { return p.PositionCount * p.SteadyLen() }

func (p Plan) String() string {
	return fmt.Sprintf("npos=%d (declared %d), L=%d, window [%d,%d) per block, n=%d",
		p.PositionCount, p.DeclaredPositions, p.BlockLength, p.WindowStart, p.WindowEnd, p.Samples)
}

// PlanSegments derives the block layout for n usable samples. When the
// declared blocks do not fit, the position count is reduced to the number of
// whole blocks available and a diagnostic is recorded. It fails with
// InsufficientDataError when not even one block fits and with
// ConfigurationError when the steady fractions truncate to an empty window.
func PlanSegments(meta Meta, n int) (Plan, Diagnostics, error) {
	var diags Diagnostics

	p := Plan{
		DeclaredPositions: meta.Declared(),
		PositionCount:     meta.PositionCount,
		BlockLength:       meta.BlockLength,
		Samples:           n,
	}
	if meta.BlockLength <= 0 || meta.PositionCount <= 0 {
		return p, nil, &ConfigurationError{
			BlockLength:   meta.BlockLength,
			StartFraction: meta.SteadyStartFraction,
			EndFraction:   meta.SteadyEndFraction,
			Reason:        fmt.Sprintf("position_count (%d) and block_length must be positive", meta.PositionCount),
		}
	}

	if need := meta.PositionCount * meta.BlockLength; need > n {
		p.PositionCount = n / meta.BlockLength
		if p.PositionCount == 0 {
			return p, nil, &InsufficientDataError{
				Samples:     n,
				BlockLength: meta.BlockLength,
				Reason:      "not enough samples even for 1 block",
			}
		}
		diags.Addf(DiagPositionReduced, "", float64(meta.PositionCount-p.PositionCount),
			"not enough samples for npos*L (%d), have n=%d; using npos=%d of %d declared",
			need, n, p.PositionCount, p.DeclaredPositions)
	}

	p.WindowStart = int(math.Floor(float64(meta.BlockLength) * meta.SteadyStartFraction))
	p.WindowEnd = int(math.Floor(float64(meta.BlockLength) * meta.SteadyEndFraction))
	if p.WindowEnd > meta.BlockLength {
		p.WindowEnd = meta.BlockLength
	}
	if p.WindowStart < 0 || p.WindowEnd <= p.WindowStart {
		return p, nil, &ConfigurationError{
			BlockLength:   meta.BlockLength,
			StartFraction: meta.SteadyStartFraction,
			EndFraction:   meta.SteadyEndFraction,
			WindowStart:   p.WindowStart,
			WindowEnd:     p.WindowEnd,
			Reason:        "steady window is empty after integer truncation; increase block_length or change fractions",
		}
	}
	return p, diags, nil
}
