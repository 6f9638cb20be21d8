package residual

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// DefaultBins is the histogram resolution used by the report plots.
const DefaultBins = 60

// Histogram is an equal-width binning of a residual population. Bin i
// covers [Edges[i], Edges[i+1]); the last edge is nudged past the maximum
// so the largest value is counted.
type Histogram struct {
	Edges  []float64 `json:"edges"`
	Counts []float64 `json:"counts"`
}

// Bins returns the number of bins.
func (h Histogram) Bins() int { return len(h.Counts) }

// Center returns the midpoint of bin i.
func (h Histogram) Center(i int) float64 { return (h.Edges[i] + h.Edges[i+1]) / 2 }

// Total returns the number of values counted.
func (h Histogram) Total() float64 { return floats.Sum(h.Counts) }

// NewHistogram bins values into the given number of equal-width bins over
// [min, max]. A constant population produces a single bin. bins <= 0 selects
// DefaultBins.
func NewHistogram(values []float64, bins int) (Histogram, error) {
	hs, err := NewSharedHistograms(bins, values)
	if err != nil {
		return Histogram{}, err
	}
	return hs[0], nil
}

// NewSharedHistograms bins several populations over one set of edges
// spanning all of them, so raw and corrected residuals can be compared bin
// for bin.
func NewSharedHistograms(bins int, sets ...[]float64) ([]Histogram, error) {
	if bins <= 0 {
		bins = DefaultBins
	}

	sorted := make([][]float64, len(sets))
	lo, hi := math.Inf(1), math.Inf(-1)
	for i, values := range sets {
		if len(values) == 0 {
			return nil, &EmptyInputError{What: "histogram"}
		}
		s := append([]float64(nil), values...)
		sort.Float64s(s)
		lo = math.Min(lo, s[0])
		hi = math.Max(hi, s[len(s)-1])
		sorted[i] = s
	}
	if len(sets) == 0 {
		return nil, &EmptyInputError{What: "histogram"}
	}

	if lo == hi {
		bins = 1
		hi = lo + 1
	}
	// Span's last edge can fall short of hi by a few ulps; pin it just past
	// hi so the maximum is always counted.
	edges := floats.Span(make([]float64, bins+1), lo, hi)
	edges[0] = lo
	edges[bins] = math.Nextafter(hi, math.Inf(1))

	out := make([]Histogram, len(sorted))
	for i, s := range sorted {
		out[i] = Histogram{
			Edges:  edges,
			Counts: stat.Histogram(nil, edges, s, nil),
		}
	}
	return out, nil
}
