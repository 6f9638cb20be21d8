package residual

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Metrics are the five error reductions over one residual population.
// Std is the population standard deviation (divisor n).
type Metrics struct {
	SampleCount int     `json:"sample_count"`
	Mean        float64 `json:"mean"`
	MAE         float64 `json:"mae"`
	RMSE        float64 `json:"rmse"`
	MaxAbs      float64 `json:"maxabs"`
	Std         float64 `json:"std"`
}

// MetricRow is one line of the metrics table.
type MetricRow struct {
	Regime  Regime  `json:"regime"`
	Channel Channel `json:"channel"`
	Metrics
}

// ComputeMetrics reduces a residual population. Every statistic is
// independent of the order of values.
func ComputeMetrics(values []float64) (Metrics, error) {
	n := len(values)
	if n == 0 {
		return Metrics{}, &EmptyInputError{}
	}

	abs := make([]float64, n)
	for i, v := range values {
		abs[i] = math.Abs(v)
	}

	m := Metrics{
		SampleCount: n,
		MAE:         stat.Mean(abs, nil),
		RMSE:        math.Sqrt(floats.Dot(values, values) / float64(n)),
		MaxAbs:      floats.Max(abs),
	}
	if n == 1 {
		m.Mean = values[0]
	} else {
		m.Mean, m.Std = stat.PopMeanStdDev(values, nil)
	}
	return m, nil
}

// Aggregate computes metrics for every channel of both regimes. Rows are
// ordered by channel, raw before corrected.
func Aggregate(raw, corrected ResidualSet) ([]MetricRow, error) {
	rows := make([]MetricRow, 0, 2*len(Channels))
	for _, c := range Channels {
		for _, set := range [...]ResidualSet{raw, corrected} {
			m, err := ComputeMetrics(set.Channel(c))
			if err != nil {
				return nil, &EmptyInputError{What: fmt.Sprintf("%s/%s", set.Regime, c)}
			}
			rows = append(rows, MetricRow{Regime: set.Regime, Channel: c, Metrics: m})
		}
	}
	return rows, nil
}

// Find returns the row for the given regime and channel.
func Find(rows []MetricRow, regime Regime, c Channel) (MetricRow, bool) {
	for _, r := range rows {
		if r.Regime == regime && r.Channel == c {
			return r, true
		}
	}
	return MetricRow{}, false
}
