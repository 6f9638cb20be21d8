package report

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/banshee-data/calibration.report/internal/residual"
)

// Inputs names the files a run was computed from.
type Inputs struct {
	Report    string `json:"report"`
	Raw       string `json:"raw"`
	Corrected string `json:"corr"`
}

// Summary is the machine-readable record of one analysis run.
type Summary struct {
	RunID          string                 `json:"run_id"`
	CreatedAt      time.Time              `json:"created_at"`
	Version        string                 `json:"version"`
	Inputs         Inputs                 `json:"inputs"`
	Meta           residual.Meta          `json:"meta"`
	Plan           residual.Plan          `json:"plan"`
	Alignment      residual.Alignment     `json:"alignment"`
	RawStats       residual.LoadStats     `json:"raw_stats"`
	CorrectedStats residual.LoadStats     `json:"corr_stats"`
	TimeAxis       residual.TimeAxes      `json:"time_axis"`
	Metrics        []residual.MetricRow   `json:"metrics"`
	PointMetrics   []residual.MetricRow   `json:"point_metrics"`
	Checks         []residual.BlockCheck  `json:"checks"`
	Coefficients   *residual.Coefficients `json:"coeffs,omitempty"`
	Diagnostics    residual.Diagnostics   `json:"diagnostics"`
	Improvement    map[string]Improvement `json:"improvement"`
}

// Improvement compares the corrected RMSE of one axis with its raw RMSE.
// Ratio below one means the correction reduced the error.
type Improvement struct {
	RawRMSE       float64 `json:"raw_rmse"`
	CorrectedRMSE float64 `json:"corr_rmse"`
	Ratio         float64 `json:"ratio"`
}

// NewSummary collects the run record from a pipeline result.
func NewSummary(runID string, createdAt time.Time, version string, in Inputs, res *residual.Result) *Summary {
	s := &Summary{
		RunID:          runID,
		CreatedAt:      createdAt.UTC(),
		Version:        version,
		Inputs:         in,
		Plan:           res.Plan,
		Alignment:      res.Alignment,
		RawStats:       res.RawStats,
		CorrectedStats: res.CorrectedStats,
		TimeAxis:       res.TimeAxis,
		Metrics:        res.Metrics,
		PointMetrics:   res.PointMetrics,
		Checks:         res.Checks,
		Diagnostics:    res.Diagnostics,
		Improvement:    improvements(res.Metrics),
	}
	if res.Report != nil {
		s.Meta = res.Report.Meta
		s.Coefficients = res.Report.Coefficients
	}
	if s.Diagnostics == nil {
		s.Diagnostics = residual.Diagnostics{}
	}
	return s
}

func improvements(rows []residual.MetricRow) map[string]Improvement {
	out := make(map[string]Improvement, len(residual.Channels))
	for _, c := range residual.Channels {
		raw, okRaw := residual.Find(rows, residual.RegimeRaw, c)
		corr, okCorr := residual.Find(rows, residual.RegimeCorrected, c)
		if !okRaw || !okCorr {
			continue
		}
		imp := Improvement{RawRMSE: raw.RMSE, CorrectedRMSE: corr.RMSE}
		if raw.RMSE > 0 {
			imp.Ratio = corr.RMSE / raw.RMSE
		}
		out[c.String()] = imp
	}
	return out
}

// WriteSummary encodes s as indented JSON.
func WriteSummary(w io.Writer, s *Summary) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s); err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}
	return nil
}
