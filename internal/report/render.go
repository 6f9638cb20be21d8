package report

import (
	"fmt"
	"io"

	"gonum.org/v1/plot"

	"github.com/banshee-data/calibration.report/internal/residual"
)

// Output file names.
const (
	MetricsCSVName  = "residual_metrics_timeseries.csv"
	PointsCSVName   = "residual_metrics_points.csv"
	SummaryJSONName = "summary.json"
	DashboardName   = "dashboard.html"
)

// Options controls which artifacts are rendered.
type Options struct {
	Bins     int
	Stride   int
	Plots    bool
	HTML     bool
	WidthIn  float64
	HeightIn float64
}

func (o Options) size() (float64, float64) {
	w, h := o.WidthIn, o.HeightIn
	if w <= 0 {
		w = 8
	}
	if h <= 0 {
		h = 4
	}
	return w, h
}

// StageRun renders every artifact of a full analysis run into s.
func StageRun(s *Sink, sum *Summary, res *residual.Result, o Options) error {
	if err := s.Stage(MetricsCSVName, func(w io.Writer) error { return WriteMetricsCSV(w, res.Metrics) }); err != nil {
		return err
	}
	if err := s.Stage(PointsCSVName, func(w io.Writer) error { return WriteMetricsCSV(w, res.PointMetrics) }); err != nil {
		return err
	}
	if err := s.Stage(SummaryJSONName, func(w io.Writer) error { return WriteSummary(w, sum) }); err != nil {
		return err
	}

	if o.Plots {
		if err := stageRunPlots(s, res, o); err != nil {
			return err
		}
		if err := stagePointPlots(s, res.Report, res.PointMetrics, o); err != nil {
			return err
		}
	}

	if o.HTML {
		hists, err := BuildHistograms(res.Extraction, o.Bins)
		if err != nil {
			return err
		}
		d := DashboardData{
			Title:        "Calibration residuals",
			Subtitle:     fmt.Sprintf("run %s - %s", sum.RunID, sum.Inputs.Report),
			Metrics:      res.Metrics,
			PointMetrics: res.PointMetrics,
			Histograms:   hists,
		}
		if err := s.Stage(DashboardName, func(w io.Writer) error { return RenderDashboard(w, d) }); err != nil {
			return err
		}
	}
	return nil
}

func stageRunPlots(s *Sink, res *residual.Result, o Options) error {
	width, height := o.size()
	stagePlot := func(name string, p *plot.Plot, err error) error {
		if err != nil {
			return fmt.Errorf("build %s: %w", name, err)
		}
		return s.Stage(name, func(w io.Writer) error { return encodePNG(w, p, width, height) })
	}

	for _, c := range residual.Channels {
		p, err := HistogramChart(c, res.Extraction.Raw.Channel(c), res.Extraction.Corrected.Channel(c), o.Bins)
		if err = stagePlot(fmt.Sprintf("hist_residuals_%s_raw_vs_corr.png", c), p, err); err != nil {
			return err
		}
	}
	for _, m := range []Metric{MetricRMSE, MetricMaxAbs} {
		p, err := MetricBarChart(res.Metrics, m, fmt.Sprintf("Time-series residual %s per axis", m))
		if err = stagePlot(fmt.Sprintf("bar_%s_timeseries.png", m), p, err); err != nil {
			return err
		}
	}
	for _, c := range residual.Channels {
		p, err := TimeSeriesChart(c, res.Pair, o.Stride)
		if err = stagePlot(fmt.Sprintf("time_a%s_raw_vs_corr.png", c), p, err); err != nil {
			return err
		}
	}
	return nil
}

// StagePoints renders the point-level metrics table of rep and its charts.
func StagePoints(s *Sink, rep *residual.Report, rows []residual.MetricRow, o Options) error {
	if err := s.Stage(PointsCSVName, func(w io.Writer) error { return WriteMetricsCSV(w, rows) }); err != nil {
		return err
	}
	if !o.Plots {
		return nil
	}
	return stagePointPlots(s, rep, rows, o)
}

// stagePointPlots stages the per-position bar charts, calibration curves and
// residual scatters.
func stagePointPlots(s *Sink, rep *residual.Report, rows []residual.MetricRow, o Options) error {
	width, height := o.size()
	stagePlot := func(name string, p *plot.Plot, err error) error {
		if err != nil {
			return fmt.Errorf("build %s: %w", name, err)
		}
		return s.Stage(name, func(w io.Writer) error { return encodePNG(w, p, width, height) })
	}

	for _, m := range []Metric{MetricRMSE, MetricMaxAbs} {
		p, err := MetricBarChart(rows, m, fmt.Sprintf("Per-position residual %s per axis", m))
		if err = stagePlot(fmt.Sprintf("bar_%s_points.png", m), p, err); err != nil {
			return err
		}
	}
	if rep == nil {
		return nil
	}

	count := rep.Meta.PositionCount
	points := rep.Points
	if count < len(points) {
		points = points[:count]
	}
	refs := rep.References(count)
	raw, corr := residual.PointResiduals(rep, count)
	for _, c := range residual.Channels {
		p, err := CalibrationCurveChart(c, points)
		if err = stagePlot(fmt.Sprintf("calib_curve_%s_corr.png", c), p, err); err != nil {
			return err
		}
	}
	for _, c := range residual.Channels {
		p, err := ResidualScatterChart(c, refs, raw, corr)
		if err = stagePlot(fmt.Sprintf("residuals_%s_raw_vs_corr.png", c), p, err); err != nil {
			return err
		}
	}
	return nil
}
