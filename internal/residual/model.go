package residual

import (
	"fmt"
	"math"
)

// Channel identifies one sensor axis.
type Channel int

const (
	ChannelX Channel = iota
	ChannelY
	ChannelZ
)

// Channels lists the axes in table order.
var Channels = [...]Channel{ChannelX, ChannelY, ChannelZ}

func (c Channel) String() string {
	switch c {
	case ChannelX:
		return "x"
	case ChannelY:
		return "y"
	case ChannelZ:
		return "z"
	default:
		return "unknown"
	}
}

// MarshalText renders the channel as its axis letter.
func (c Channel) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText accepts an axis letter.
func (c *Channel) UnmarshalText(b []byte) error {
	v, err := ParseChannel(string(b))
	if err != nil {
		return err
	}
	*c = v
	return nil
}

// ParseChannel maps "x", "y" or "z" to its channel.
func ParseChannel(s string) (Channel, error) {
	for _, c := range Channels {
		if c.String() == s {
			return c, nil
		}
	}
	return 0, fmt.Errorf("unknown channel %q", s)
}

// Regime says whether a value pertains to the raw or the corrected stream.
type Regime string

const (
	RegimeRaw       Regime = "raw"
	RegimeCorrected Regime = "corr"
)

// Vec3 is one three-axis value.
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Component returns the value on the given axis.
func (v Vec3) Component(c Channel) float64 {
	switch c {
	case ChannelX:
		return v.X
	case ChannelY:
		return v.Y
	default:
		return v.Z
	}
}

// Sub returns v - o.
func (v Vec3) Sub(o Vec3) Vec3 {
	return Vec3{X: v.X - o.X, Y: v.Y - o.Y, Z: v.Z - o.Z}
}

// MaxAbs returns the largest absolute component.
func (v Vec3) MaxAbs() float64 {
	return math.Max(math.Abs(v.X), math.Max(math.Abs(v.Y), math.Abs(v.Z)))
}

// Meta describes how the recording session was laid out. PositionCount is
// the number of usable positions; DeclaredPositionCount keeps the report's
// npos when fewer points were listed.
type Meta struct {
	PositionCount         int     `json:"position_count"`
	DeclaredPositionCount int     `json:"declared_position_count,omitempty"`
	BlockLength           int     `json:"block_length"`
	SteadyStartFraction   float64 `json:"steady_start_fraction"`
	SteadyEndFraction     float64 `json:"steady_end_fraction"`
	Gravity               float64 `json:"gravity,omitempty"`
}

// Declared returns the position count the report declared.
func (m Meta) Declared() int {
	if m.DeclaredPositionCount > m.PositionCount {
		return m.DeclaredPositionCount
	}
	return m.PositionCount
}

// Point is one held orientation as recorded by the calibration report.
// ResidualRaw and ResidualCorrected are the point-level residuals the
// upstream fitter stored, when present.
type Point struct {
	Position          int   `json:"position"`
	Reference         Vec3  `json:"reference"`
	RawMean           Vec3  `json:"raw_mean"`
	CorrectedMean     Vec3  `json:"corrected_mean"`
	ResidualRaw       *Vec3 `json:"res_raw,omitempty"`
	ResidualCorrected *Vec3 `json:"res_corr,omitempty"`
}

// Coefficients is the correction model recorded by the upstream fitter:
// a_meas = M*a_true + B and a_corr = C*(a_meas - B). Kept for reporting only.
type Coefficients struct {
	M [3][3]float64 `json:"M"`
	B Vec3          `json:"b"`
	C [3][3]float64 `json:"C"`
}

// Report is a validated calibration report.
type Report struct {
	Meta         Meta          `json:"meta"`
	Points       []Point       `json:"points"`
	Coefficients *Coefficients `json:"coeffs,omitempty"`
}

// References returns the reference vectors of the first n points.
func (r *Report) References(n int) []Vec3 {
	if n > len(r.Points) {
		n = len(r.Points)
	}
	refs := make([]Vec3, n)
	for i := 0; i < n; i++ {
		refs[i] = r.Points[i].Reference
	}
	return refs
}
