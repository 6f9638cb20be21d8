package report

import (
	"fmt"
	"io"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/calibration.report/internal/residual"
)

// echartsAssetsHost serves the echarts scripts referenced by the dashboard.
const echartsAssetsHost = "https://go-echarts.github.io/go-echarts-assets/assets/"

// ChannelHistograms holds raw and corrected histograms of one axis binned
// over shared edges.
type ChannelHistograms struct {
	Channel   residual.Channel
	Raw       residual.Histogram
	Corrected residual.Histogram
}

// DashboardData is what the HTML dashboard shows. Histograms may be empty
// when only stored metrics are available.
type DashboardData struct {
	Title        string
	Subtitle     string
	Metrics      []residual.MetricRow
	PointMetrics []residual.MetricRow
	Histograms   []ChannelHistograms
}

// BuildHistograms bins the extracted residuals of every axis.
func BuildHistograms(ex residual.Extraction, bins int) ([]ChannelHistograms, error) {
	out := make([]ChannelHistograms, 0, len(residual.Channels))
	for _, c := range residual.Channels {
		hs, err := residual.NewSharedHistograms(bins, ex.Raw.Channel(c), ex.Corrected.Channel(c))
		if err != nil {
			return nil, fmt.Errorf("histograms for %s: %w", c, err)
		}
		out = append(out, ChannelHistograms{Channel: c, Raw: hs[0], Corrected: hs[1]})
	}
	return out, nil
}

// RenderDashboard writes a single self-contained HTML page.
func RenderDashboard(w io.Writer, d DashboardData) error {
	page := components.NewPage()
	page.SetAssetsHost(echartsAssetsHost)
	page.PageTitle = d.Title

	for _, m := range []Metric{MetricRMSE, MetricMaxAbs, MetricMAE} {
		if len(d.Metrics) > 0 {
			page.AddCharts(metricBar(d.Metrics, m, fmt.Sprintf("%s (time series)", m), d.Subtitle))
		}
		if len(d.PointMetrics) > 0 {
			page.AddCharts(metricBar(d.PointMetrics, m, fmt.Sprintf("%s (per position)", m), d.Subtitle))
		}
	}
	for _, h := range d.Histograms {
		page.AddCharts(histogramBar(h))
	}

	if err := page.Render(w); err != nil {
		return fmt.Errorf("render dashboard: %w", err)
	}
	return nil
}

func metricBar(rows []residual.MetricRow, m Metric, title, subtitle string) *charts.Bar {
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "900px", Height: "420px", AssetsHost: echartsAssetsHost}),
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Right: "10%"}),
	)

	axes := make([]string, len(residual.Channels))
	for i, c := range residual.Channels {
		axes[i] = c.String()
	}
	bar.SetXAxis(axes)
	for _, regime := range []residual.Regime{residual.RegimeRaw, residual.RegimeCorrected} {
		data := make([]opts.BarData, 0, len(residual.Channels))
		for _, c := range residual.Channels {
			r, ok := residual.Find(rows, regime, c)
			if !ok {
				data = append(data, opts.BarData{Value: nil})
				continue
			}
			data = append(data, opts.BarData{Value: m.Value(r)})
		}
		bar.AddSeries(string(regime), data,
			charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top", Formatter: "{c}"}),
		)
	}
	return bar
}

func histogramBar(h ChannelHistograms) *charts.Bar {
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "900px", Height: "420px", AssetsHost: echartsAssetsHost}),
		charts.WithTitleOpts(opts.Title{
			Title:    fmt.Sprintf("Residual histogram - %s", h.Channel),
			Subtitle: fmt.Sprintf("bins=%d samples=%g", h.Raw.Bins(), h.Raw.Total()),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Right: "10%"}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "inside"}),
	)

	centers := make([]string, h.Raw.Bins())
	for i := range centers {
		centers[i] = strconv.FormatFloat(h.Raw.Center(i), 'g', 4, 64)
	}
	bar.SetXAxis(centers)
	for _, s := range []struct {
		regime residual.Regime
		hist   residual.Histogram
	}{{residual.RegimeRaw, h.Raw}, {residual.RegimeCorrected, h.Corrected}} {
		data := make([]opts.BarData, len(s.hist.Counts))
		for i, n := range s.hist.Counts {
			data[i] = opts.BarData{Value: n}
		}
		bar.AddSeries(string(s.regime), data)
	}
	return bar
}
