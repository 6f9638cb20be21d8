package residual

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
)

// maxReportSize bounds the calibration report read into memory.
const maxReportSize = 16 * 1024 * 1024

// Wire shapes. Several field names are accepted for the same value because
// reports written by different versions of the fitter use short (npos, L)
// or descriptive (position_count, block_length) names.
type wireVec3 struct {
	X *float64 `json:"x"`
	Y *float64 `json:"y"`
	Z *float64 `json:"z"`
}

type wireMeta struct {
	NPos                *float64 `json:"npos"`
	PositionCount       *float64 `json:"position_count"`
	L                   *float64 `json:"L"`
	BlockLength         *float64 `json:"block_length"`
	SteadyStart         *float64 `json:"steady_start"`
	SteadyStartFraction *float64 `json:"steady_start_fraction"`
	SteadyEnd           *float64 `json:"steady_end"`
	SteadyEndFraction   *float64 `json:"steady_end_fraction"`
	Gravity             *float64 `json:"gravity"`
}

type wirePoint struct {
	Position      *int      `json:"position"`
	Ref           *wireVec3 `json:"ref"`
	Reference     *wireVec3 `json:"reference"`
	RawMean       *wireVec3 `json:"raw_mean"`
	CorrMean      *wireVec3 `json:"corr_mean"`
	CorrectedMean *wireVec3 `json:"corrected_mean"`
	ResRaw        *wireVec3 `json:"res_raw"`
	ResCorr       *wireVec3 `json:"res_corr"`
}

type wireCoeffs struct {
	M *[3][3]float64 `json:"M"`
	B *wireVec3      `json:"b"`
	C *[3][3]float64 `json:"C"`
}

type wireReport struct {
	Meta   *wireMeta   `json:"meta"`
	Points []wirePoint `json:"points"`
	Coeffs *wireCoeffs `json:"coeffs"`
}

// LoadReport reads and validates a calibration report from a JSON file.
func LoadReport(path string) (*Report, Diagnostics, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, nil, fmt.Errorf("open calibration report: %w", err)
	}
	defer f.Close()
	return DecodeReport(f, filepath.Base(path))
}

// DecodeReport reads and validates a calibration report. Validation happens
// once here so downstream stages can rely on a positive position count and
// block length, fractions with 0 <= start < end <= 1 and a reference for
// every declared position.
func DecodeReport(r io.Reader, source string) (*Report, Diagnostics, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxReportSize+1))
	if err != nil {
		return nil, nil, fmt.Errorf("read calibration report %s: %w", source, err)
	}
	if len(data) > maxReportSize {
		return nil, nil, &FormatError{Source: source, Reason: fmt.Sprintf("document larger than %d bytes", maxReportSize)}
	}

	var w wireReport
	if err := json.Unmarshal(data, &w); err != nil {
		var syn *json.SyntaxError
		if errors.As(err, &syn) {
			return nil, nil, &FormatError{Source: source, Reason: fmt.Sprintf("invalid JSON at offset %d: %v", syn.Offset, err)}
		}
		return nil, nil, &FormatError{Source: source, Reason: err.Error()}
	}
	if w.Meta == nil {
		return nil, nil, &FormatError{Source: source, Field: "meta", Reason: "missing"}
	}

	meta, err := w.Meta.decode(source)
	if err != nil {
		return nil, nil, err
	}

	if len(w.Points) == 0 {
		return nil, nil, &FormatError{Source: source, Field: "points", Reason: "missing or empty"}
	}
	points := make([]Point, len(w.Points))
	for i, wp := range w.Points {
		p, err := wp.decode(source, i)
		if err != nil {
			return nil, nil, err
		}
		points[i] = p
	}

	var diags Diagnostics
	if len(points) < meta.PositionCount {
		diags.Addf(DiagPositionReduced, source, float64(meta.PositionCount-len(points)),
			"report declares %d positions but lists %d points; using %d", meta.PositionCount, len(points), len(points))
		meta.PositionCount = len(points)
	}

	rep := &Report{Meta: meta, Points: points}
	if w.Coeffs != nil {
		c, err := w.Coeffs.decode(source)
		if err != nil {
			return nil, nil, err
		}
		rep.Coefficients = c
	}
	return rep, diags, nil
}

func (m *wireMeta) decode(source string) (Meta, error) {
	var out Meta

	npos, err := requireCount(source, "meta.npos", m.NPos, m.PositionCount)
	if err != nil {
		return out, err
	}
	blockLen, err := requireCount(source, "meta.L", m.L, m.BlockLength)
	if err != nil {
		return out, err
	}
	start := firstOf(m.SteadyStart, m.SteadyStartFraction)
	if start == nil {
		return out, &FormatError{Source: source, Field: "meta.steady_start", Reason: "missing"}
	}
	end := firstOf(m.SteadyEnd, m.SteadyEndFraction)
	if end == nil {
		return out, &FormatError{Source: source, Field: "meta.steady_end", Reason: "missing"}
	}
	if !(0 <= *start && *start < *end && *end <= 1) {
		return out, &FormatError{Source: source, Field: "meta.steady_start",
			Reason: fmt.Sprintf("bad steady range %g..%g, want 0 <= start < end <= 1", *start, *end)}
	}

	out.PositionCount = npos
	out.DeclaredPositionCount = npos
	out.BlockLength = blockLen
	out.SteadyStartFraction = *start
	out.SteadyEndFraction = *end
	if m.Gravity != nil {
		out.Gravity = *m.Gravity
	}
	return out, nil
}

func (p *wirePoint) decode(source string, i int) (Point, error) {
	var out Point
	field := func(name string) string { return fmt.Sprintf("points[%d].%s", i, name) }

	ref, err := requireVec(source, field("ref"), firstVec(p.Ref, p.Reference))
	if err != nil {
		return out, err
	}
	raw, err := requireVec(source, field("raw_mean"), p.RawMean)
	if err != nil {
		return out, err
	}
	corr, err := requireVec(source, field("corr_mean"), firstVec(p.CorrMean, p.CorrectedMean))
	if err != nil {
		return out, err
	}

	out.Position = i + 1
	if p.Position != nil {
		out.Position = *p.Position
	}
	out.Reference = ref
	out.RawMean = raw
	out.CorrectedMean = corr

	if p.ResRaw != nil {
		v, err := requireVec(source, field("res_raw"), p.ResRaw)
		if err != nil {
			return out, err
		}
		out.ResidualRaw = &v
	}
	if p.ResCorr != nil {
		v, err := requireVec(source, field("res_corr"), p.ResCorr)
		if err != nil {
			return out, err
		}
		out.ResidualCorrected = &v
	}
	return out, nil
}

func (c *wireCoeffs) decode(source string) (*Coefficients, error) {
	out := &Coefficients{}
	if c.M != nil {
		out.M = *c.M
	}
	if c.C != nil {
		out.C = *c.C
	}
	if c.B != nil {
		b, err := requireVec(source, "coeffs.b", c.B)
		if err != nil {
			return nil, err
		}
		out.B = b
	}
	return out, nil
}

func firstOf(vals ...*float64) *float64 {
	for _, v := range vals {
		if v != nil {
			return v
		}
	}
	return nil
}

func firstVec(vals ...*wireVec3) *wireVec3 {
	for _, v := range vals {
		if v != nil {
			return v
		}
	}
	return nil
}

// requireCount accepts integral JSON numbers (8 or 8.0) greater than zero.
func requireCount(source, field string, vals ...*float64) (int, error) {
	v := firstOf(vals...)
	if v == nil {
		return 0, &FormatError{Source: source, Field: field, Reason: "missing"}
	}
	if *v != math.Trunc(*v) || *v < 1 || *v > math.MaxInt32 {
		return 0, &FormatError{Source: source, Field: field, Reason: fmt.Sprintf("must be a positive integer, got %g", *v)}
	}
	return int(*v), nil
}

func requireVec(source, field string, v *wireVec3) (Vec3, error) {
	if v == nil {
		return Vec3{}, &FormatError{Source: source, Field: field, Reason: "missing"}
	}
	comps := []struct {
		name string
		val  *float64
	}{{"x", v.X}, {"y", v.Y}, {"z", v.Z}}
	for _, c := range comps {
		if c.val == nil {
			return Vec3{}, &FormatError{Source: source, Field: field + "." + c.name, Reason: "missing"}
		}
	}
	return Vec3{X: *v.X, Y: *v.Y, Z: *v.Z}, nil
}
