package residual

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Input names the three documents of one calibration run.
type Input struct {
	Report        io.Reader
	ReportName    string
	Raw           io.Reader
	RawName       string
	Corrected     io.Reader
	CorrectedName string
}

// Options tunes a pipeline run. The zero value selects the defaults.
type Options struct {
	Header               Header
	TimestampToleranceMS int64
	CheckBlocks          int
	MaxRowWarnings       int
}

func (o Options) loadOptions() LoadOptions {
	return LoadOptions{Header: o.Header, MaxRowWarnings: o.MaxRowWarnings}
}

// TimeAxes holds the sampling report of both streams.
type TimeAxes struct {
	Raw       TimeAxisReport `json:"raw"`
	Corrected TimeAxisReport `json:"corr"`
}

// Result is everything a run computes. It is only returned when every stage
// succeeded.
type Result struct {
	Report         *Report      `json:"-"`
	Plan           Plan         `json:"plan"`
	Pair           *Pair        `json:"-"`
	Alignment      Alignment    `json:"alignment"`
	RawStats       LoadStats    `json:"raw_stats"`
	CorrectedStats LoadStats    `json:"corr_stats"`
	TimeAxis       TimeAxes     `json:"time_axis"`
	Extraction     Extraction   `json:"-"`
	Metrics        []MetricRow  `json:"metrics"`
	PointMetrics   []MetricRow  `json:"point_metrics"`
	Checks         []BlockCheck `json:"checks"`
	Diagnostics    Diagnostics  `json:"diagnostics"`
}

// Run loads the inputs, plans the blocks, extracts residuals, cross-checks
// the leading blocks and aggregates metrics. Diagnostics are collected in
// stage order. Any fatal condition aborts with no partial result.
func Run(in Input, opts Options) (*Result, error) {
	var diags Diagnostics

	rep, d, err := DecodeReport(in.Report, in.ReportName)
	if err != nil {
		return nil, err
	}
	diags = append(diags, d...)

	raw, rawStats, d, err := LoadSeries(in.Raw, in.RawName, opts.loadOptions())
	if err != nil {
		return nil, err
	}
	diags = append(diags, d...)

	corr, corrStats, d, err := LoadSeries(in.Corrected, in.CorrectedName, opts.loadOptions())
	if err != nil {
		return nil, err
	}
	diags = append(diags, d...)

	axes := TimeAxes{
		Raw:       AnalyzeTimeAxis(in.RawName, raw.T),
		Corrected: AnalyzeTimeAxis(in.CorrectedName, corr.T),
	}
	axes.Raw.diagnose(&diags)
	axes.Corrected.diagnose(&diags)

	pair, align, d := Reconcile(raw, corr, opts.TimestampToleranceMS)
	diags = append(diags, d...)

	plan, d, err := PlanSegments(rep.Meta, pair.Len())
	if err != nil {
		return nil, err
	}
	diags = append(diags, d...)

	ex, err := Extract(plan, pair, rep.References(plan.PositionCount))
	if err != nil {
		return nil, err
	}

	checks, d := Validate(plan, pair, rep.Points, opts.CheckBlocks)
	diags = append(diags, d...)

	rows, err := Aggregate(ex.Raw, ex.Corrected)
	if err != nil {
		return nil, err
	}
	pointRows, err := Aggregate(PointResiduals(rep, rep.Meta.PositionCount))
	if err != nil {
		return nil, err
	}

	return &Result{
		Report:         rep,
		Plan:           plan,
		Pair:           pair,
		Alignment:      align,
		RawStats:       rawStats,
		CorrectedStats: corrStats,
		TimeAxis:       axes,
		Extraction:     ex,
		Metrics:        rows,
		PointMetrics:   pointRows,
		Checks:         checks,
		Diagnostics:    diags,
	}, nil
}

// RunFiles runs the pipeline over files on disk.
func RunFiles(reportPath, rawPath, corrPath string, opts Options) (*Result, error) {
	files := make([]*os.File, 0, 3)
	defer func() {
		for _, f := range files {
			f.Close()
		}
	}()
	open := func(path string) (*os.File, error) {
		f, err := os.Open(filepath.Clean(path))
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", path, err)
		}
		files = append(files, f)
		return f, nil
	}

	rf, err := open(reportPath)
	if err != nil {
		return nil, err
	}
	af, err := open(rawPath)
	if err != nil {
		return nil, err
	}
	cf, err := open(corrPath)
	if err != nil {
		return nil, err
	}

	return Run(Input{
		Report:        rf,
		ReportName:    filepath.Base(reportPath),
		Raw:           af,
		RawName:       filepath.Base(rawPath),
		Corrected:     cf,
		CorrectedName: filepath.Base(corrPath),
	}, opts)
}
