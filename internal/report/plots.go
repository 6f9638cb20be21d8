package report

import (
	"fmt"
	"image/color"
	"io"
	"math"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/calibration.report/internal/residual"
)

// Metric selects one statistic of a MetricRow for charting.
type Metric string

const (
	MetricMean   Metric = "mean"
	MetricMAE    Metric = "mae"
	MetricRMSE   Metric = "rmse"
	MetricMaxAbs Metric = "maxabs"
	MetricStd    Metric = "std"
)

// Value extracts the statistic from r.
func (m Metric) Value(r residual.MetricRow) float64 {
	switch m {
	case MetricMean:
		return r.Mean
	case MetricMAE:
		return r.MAE
	case MetricMaxAbs:
		return r.MaxAbs
	case MetricStd:
		return r.Std
	default:
		return r.RMSE
	}
}

// regimeColors gives raw and corrected series stable, distinct colours.
var regimeColors = generateColors(2)

func regimeColor(r residual.Regime, alpha uint8) color.Color {
	c := regimeColors[0].(color.RGBA)
	if r == residual.RegimeCorrected {
		c = regimeColors[1].(color.RGBA)
	}
	c.A = alpha
	return c
}

func newPlot(title, xLabel, yLabel string) *plot.Plot {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = xLabel
	p.Y.Label.Text = yLabel
	p.Add(plotter.NewGrid())
	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10
	return p
}

// HistogramChart overlays the raw and corrected residual distributions of
// one axis.
func HistogramChart(c residual.Channel, raw, corr []float64, bins int) (*plot.Plot, error) {
	if len(raw) == 0 || len(corr) == 0 {
		return nil, &residual.EmptyInputError{What: fmt.Sprintf("histogram %s", c)}
	}
	if bins <= 0 {
		bins = residual.DefaultBins
	}

	p := newPlot(
		fmt.Sprintf("Residual histogram (time series) - %s", c),
		"residual (m/s²)",
		"count",
	)
	for _, s := range []struct {
		regime residual.Regime
		values []float64
	}{{residual.RegimeRaw, raw}, {residual.RegimeCorrected, corr}} {
		h, err := plotter.NewHist(plotter.Values(s.values), bins)
		if err != nil {
			return nil, fmt.Errorf("histogram %s/%s: %w", s.regime, c, err)
		}
		h.FillColor = regimeColor(s.regime, 110)
		h.LineStyle.Width = vg.Length(0)
		p.Add(h)
		p.Legend.Add(string(s.regime), h)
	}
	return p, nil
}

// MetricBarChart draws grouped bars of one statistic per axis, raw next to
// corrected.
func MetricBarChart(rows []residual.MetricRow, m Metric, title string) (*plot.Plot, error) {
	p := newPlot(title, "axis", string(m))

	w := vg.Points(20)
	for i, regime := range []residual.Regime{residual.RegimeRaw, residual.RegimeCorrected} {
		vals := make(plotter.Values, len(residual.Channels))
		for j, c := range residual.Channels {
			r, ok := residual.Find(rows, regime, c)
			if !ok {
				return nil, fmt.Errorf("bar chart %s: no %s row for axis %s", m, regime, c)
			}
			vals[j] = m.Value(r)
		}
		bars, err := plotter.NewBarChart(vals, w)
		if err != nil {
			return nil, fmt.Errorf("bar chart %s/%s: %w", m, regime, err)
		}
		bars.Color = regimeColor(regime, 255)
		bars.LineStyle.Width = vg.Length(0)
		bars.Offset = w * vg.Length(2*i-1) / 2
		p.Add(bars)
		p.Legend.Add(string(regime), bars)
	}
	p.NominalX("x", "y", "z")
	return p, nil
}

// TimeSeriesChart plots one channel of the raw and corrected streams against
// elapsed seconds, keeping every stride-th sample.
func TimeSeriesChart(c residual.Channel, pair *residual.Pair, stride int) (*plot.Plot, error) {
	if pair == nil || pair.Len() == 0 {
		return nil, &residual.EmptyInputError{What: fmt.Sprintf("time series %s", c)}
	}
	if stride < 1 {
		stride = 1
	}

	p := newPlot(
		fmt.Sprintf("a%s raw vs corrected (stride %d)", c, stride),
		"time (s)",
		fmt.Sprintf("a%s (m/s²)", c),
	)
	for _, s := range []struct {
		regime residual.Regime
		series *residual.Series
	}{{residual.RegimeRaw, pair.Raw}, {residual.RegimeCorrected, pair.Corrected}} {
		t0 := s.series.T[0]
		ys := s.series.Channel(c)
		pts := make(plotter.XYs, 0, len(ys)/stride+1)
		for i := 0; i < len(ys); i += stride {
			pts = append(pts, plotter.XY{X: float64(s.series.T[i]-t0) / 1000, Y: ys[i]})
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return nil, fmt.Errorf("time series %s/%s: %w", s.regime, c, err)
		}
		line.Color = regimeColor(s.regime, 255)
		line.Width = vg.Points(1)
		p.Add(line)
		p.Legend.Add(string(s.regime), line)
	}
	tracef("time series %s: %d samples per stream at stride %d", c, pair.Len(), stride)
	return p, nil
}

// CalibrationCurveChart scatters the corrected per-position means of one
// axis against the reference with a y=x guide. A perfect correction puts
// every point on the line.
func CalibrationCurveChart(c residual.Channel, points []residual.Point) (*plot.Plot, error) {
	if len(points) == 0 {
		return nil, &residual.EmptyInputError{What: fmt.Sprintf("calibration curve %s", c)}
	}

	p := newPlot(
		fmt.Sprintf("Calibration curve (corrected) - %s axis", c),
		fmt.Sprintf("reference_%s", c),
		fmt.Sprintf("measured_corr_mean_%s", c),
	)
	pts := make(plotter.XYs, len(points))
	lo, hi := math.Inf(1), math.Inf(-1)
	for i, pt := range points {
		ref, meas := pt.Reference.Component(c), pt.CorrectedMean.Component(c)
		pts[i] = plotter.XY{X: ref, Y: meas}
		lo = math.Min(lo, math.Min(ref, meas))
		hi = math.Max(hi, math.Max(ref, meas))
	}

	sc, err := plotter.NewScatter(pts)
	if err != nil {
		return nil, fmt.Errorf("calibration curve %s: %w", c, err)
	}
	sc.GlyphStyle.Color = regimeColor(residual.RegimeCorrected, 255)
	sc.GlyphStyle.Radius = vg.Points(3)

	guide, err := plotter.NewLine(plotter.XYs{{X: lo, Y: lo}, {X: hi, Y: hi}})
	if err != nil {
		return nil, fmt.Errorf("calibration curve %s guide: %w", c, err)
	}
	guide.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}

	p.Add(sc, guide)
	p.Legend.Add("corr_mean", sc)
	p.Legend.Add("y=x", guide)
	return p, nil
}

// ResidualScatterChart plots the raw and corrected per-position residuals of
// one axis against the reference value, with a y=0 guide. refs, raw and corr
// are indexed by position.
func ResidualScatterChart(c residual.Channel, refs []residual.Vec3, raw, corr residual.ResidualSet) (*plot.Plot, error) {
	n := len(refs)
	if n == 0 || raw.Len() < n || corr.Len() < n {
		return nil, &residual.EmptyInputError{What: fmt.Sprintf("residual scatter %s", c)}
	}

	p := newPlot(
		fmt.Sprintf("Residuals vs reference - %s axis (raw vs corrected)", c),
		fmt.Sprintf("reference_%s", c),
		fmt.Sprintf("residual_%s (measured - reference)", c),
	)
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, s := range []residual.ResidualSet{raw, corr} {
		vals := s.Channel(c)
		pts := make(plotter.XYs, n)
		for i, ref := range refs {
			x := ref.Component(c)
			pts[i] = plotter.XY{X: x, Y: vals[i]}
			lo, hi = math.Min(lo, x), math.Max(hi, x)
		}
		sc, err := plotter.NewScatter(pts)
		if err != nil {
			return nil, fmt.Errorf("residual scatter %s/%s: %w", s.Regime, c, err)
		}
		sc.GlyphStyle.Color = regimeColor(s.Regime, 255)
		sc.GlyphStyle.Radius = vg.Points(3)
		p.Add(sc)
		p.Legend.Add(string(s.Regime)+" residual", sc)
	}

	zero, err := plotter.NewLine(plotter.XYs{{X: lo, Y: 0}, {X: hi, Y: 0}})
	if err != nil {
		return nil, fmt.Errorf("residual scatter %s guide: %w", c, err)
	}
	zero.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
	p.Add(zero)
	p.Legend.Add("y=0", zero)
	return p, nil
}

// encodePNG renders p at the given size in inches.
func encodePNG(w io.Writer, p *plot.Plot, widthIn, heightIn float64) error {
	wt, err := p.WriterTo(vg.Length(widthIn)*vg.Inch, vg.Length(heightIn)*vg.Inch, "png")
	if err != nil {
		return fmt.Errorf("png writer: %w", err)
	}
	if _, err := wt.WriteTo(w); err != nil {
		return fmt.Errorf("encode png: %w", err)
	}
	return nil
}

// generateColors creates a palette of n evenly spaced hues.
func generateColors(n int) []color.Color {
	if n <= 0 {
		return nil
	}

	colors := make([]color.Color, n)
	for i := 0; i < n; i++ {
		hue := 0.6 + float64(i)/float64(n)
		if hue >= 1 {
			hue -= 1
		}
		r, g, b := hslToRGB(hue, 0.7, 0.45)
		colors[i] = color.RGBA{R: r, G: g, B: b, A: 255}
	}
	return colors
}

// hslToRGB converts HSL to RGB (0-255 range)
func hslToRGB(h, s, l float64) (r, g, b uint8) {
	var rf, gf, bf float64

	if s == 0 {
		rf, gf, bf = l, l, l
	} else {
		var q float64
		if l < 0.5 {
			q = l * (1 + s)
		} else {
			q = l + s - l*s
		}
		p := 2*l - q
		rf = hueToRGB(p, q, h+1.0/3.0)
		gf = hueToRGB(p, q, h)
		bf = hueToRGB(p, q, h-1.0/3.0)
	}

	return uint8(rf * 255), uint8(gf * 255), uint8(bf * 255)
}

func hueToRGB(p, q, t float64) float64 {
	if t < 0 {
		t += 1
	}
	if t > 1 {
		t -= 1
	}
	if t < 1.0/6.0 {
		return p + (q-p)*6*t
	}
	if t < 1.0/2.0 {
		return q
	}
	if t < 2.0/3.0 {
		return p + (q-p)*(2.0/3.0-t)*6
	}
	return p
}
