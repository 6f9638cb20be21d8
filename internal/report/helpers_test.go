package report

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/banshee-data/calibration.report/internal/residual"
)

// sampleResult runs the pipeline over a small synthetic six-position
// recording with a little deterministic noise on every sample.
func sampleResult(t *testing.T) *residual.Result {
	t.Helper()

	faces := []residual.Vec3{{X: 9.8}, {X: -9.8}, {Y: 9.8}, {Y: -9.8}, {Z: 9.8}, {Z: -9.8}}
	const blockLen = 40

	var raw, corr, pts strings.Builder
	raw.WriteString("t_ms,ax,ay,az\n")
	corr.WriteString("t_ms,ax,ay,az\n")
	for b, f := range faces {
		for k := 0; k < blockLen; k++ {
			i := b*blockLen + k
			n := float64(k%5-2) * 0.01
			fmt.Fprintf(&raw, "%d,%g,%g,%g\n", i*10, f.X+0.2+n, f.Y-0.1+n, f.Z+0.3+n)
			fmt.Fprintf(&corr, "%d,%g,%g,%g\n", i*10, f.X+0.01+n/2, f.Y+n/2, f.Z-0.01+n/2)
		}
		if b > 0 {
			pts.WriteString(",")
		}
		fmt.Fprintf(&pts, `{"ref":{"x":%g,"y":%g,"z":%g},"raw_mean":{"x":%g,"y":%g,"z":%g},"corr_mean":{"x":%g,"y":%g,"z":%g}}`,
			f.X, f.Y, f.Z, f.X+0.2, f.Y-0.1, f.Z+0.3, f.X+0.01, f.Y, f.Z-0.01)
	}
	doc := fmt.Sprintf(`{"meta":{"npos":6,"L":%d,"steady_start":0.5,"steady_end":1.0},"points":[%s]}`, blockLen, pts.String())

	res, err := residual.Run(residual.Input{
		Report:        strings.NewReader(doc),
		ReportName:    "calib.json",
		Raw:           strings.NewReader(raw.String()),
		RawName:       "raw.csv",
		Corrected:     strings.NewReader(corr.String()),
		CorrectedName: "corr.csv",
	}, residual.Options{})
	require.NoError(t, err)
	return res
}

func sampleSummary(res *residual.Result) *Summary {
	created := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)
	return NewSummary("run-1", created, "test", Inputs{Report: "calib.json", Raw: "raw.csv", Corrected: "corr.csv"}, res)
}
