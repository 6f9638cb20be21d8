package residual

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// IntervalStats summarises the positive sample intervals of a stream.
// Std is the sample standard deviation.
type IntervalStats struct {
	Count int     `json:"count"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Mean  float64 `json:"mean"`
	Std   float64 `json:"std"`
}

// TimeAxisAnomalies counts irregular steps between consecutive timestamps.
type TimeAxisAnomalies struct {
	NonIncreasing int `json:"non_increasing"`
	Duplicates    int `json:"duplicates"`
	Gaps          int `json:"gaps"`
}

// Total returns the number of anomalous steps.
func (a TimeAxisAnomalies) Total() int { return a.NonIncreasing + a.Duplicates + a.Gaps }

// TimeAxisReport describes the sampling of one stream.
type TimeAxisReport struct {
	Source        string            `json:"source"`
	DTAvailable   bool              `json:"dt_available"`
	DTMS          IntervalStats     `json:"dt_ms"`
	SamplingHzEst float64           `json:"sampling_hz_est"`
	Anomalies     TimeAxisAnomalies `json:"anomalies"`
}

// gapFactor marks a step longer than this multiple of the mean interval as a gap.
const gapFactor = 2.0

// AnalyzeTimeAxis estimates the sampling interval from the positive steps
// of t and counts backwards steps, repeated timestamps and gaps.
func AnalyzeTimeAxis(source string, t []int64) TimeAxisReport {
	rep := TimeAxisReport{Source: source}

	dts := make([]float64, 0, len(t))
	for i := 1; i < len(t); i++ {
		if dt := t[i] - t[i-1]; dt > 0 {
			dts = append(dts, float64(dt))
		}
	}
	if len(dts) > 0 {
		rep.DTMS.Count = len(dts)
		rep.DTMS.Min = floats.Min(dts)
		rep.DTMS.Max = floats.Max(dts)
		if len(dts) > 1 {
			rep.DTMS.Mean, rep.DTMS.Std = stat.MeanStdDev(dts, nil)
		} else {
			rep.DTMS.Mean = dts[0]
		}
		rep.DTAvailable = rep.DTMS.Mean > 0
	}
	if rep.DTAvailable {
		rep.SamplingHzEst = 1000.0 / rep.DTMS.Mean
	}

	for i := 1; i < len(t); i++ {
		dt := t[i] - t[i-1]
		switch {
		case dt < 0:
			rep.Anomalies.NonIncreasing++
		case dt == 0:
			rep.Anomalies.Duplicates++
		}
		if rep.DTAvailable && dt > 0 && float64(dt) > gapFactor*rep.DTMS.Mean {
			rep.Anomalies.Gaps++
		}
	}
	return rep
}

func (rep TimeAxisReport) diagnose(diags *Diagnostics) {
	if n := rep.Anomalies.Total(); n > 0 {
		diags.Addf(DiagTimeAxisAnomalies, rep.Source, float64(n),
			"time axis anomalies: non_increasing=%d duplicates=%d gaps=%d",
			rep.Anomalies.NonIncreasing, rep.Anomalies.Duplicates, rep.Anomalies.Gaps)
	}
}
