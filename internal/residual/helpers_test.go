package residual

import (
	"fmt"
	"strings"
)

// blockSeries builds a stream of npos blocks of length blockLen where every
// sample of block i equals level(i), starting at t=0 with a 10 ms step.
func blockSeries(name string, npos, blockLen int, level func(block int) Vec3) *Series {
	n := npos * blockLen
	s := &Series{
		Name: name,
		T:    make([]int64, n),
		X:    make([]float64, n),
		Y:    make([]float64, n),
		Z:    make([]float64, n),
	}
	for i := 0; i < n; i++ {
		v := level(i / blockLen)
		s.T[i] = int64(i * 10)
		s.X[i], s.Y[i], s.Z[i] = v.X, v.Y, v.Z
	}
	return s
}

// seriesCSV renders s in the default column layout.
func seriesCSV(s *Series) string {
	var b strings.Builder
	b.WriteString("t_ms,ax,ay,az\n")
	for i := range s.T {
		fmt.Fprintf(&b, "%d,%g,%g,%g\n", s.T[i], s.X[i], s.Y[i], s.Z[i])
	}
	return b.String()
}

func vecJSON(v Vec3) string {
	return fmt.Sprintf(`{"x":%g,"y":%g,"z":%g}`, v.X, v.Y, v.Z)
}

// reportJSON renders a report in the short field naming used by the fitter.
func reportJSON(npos, blockLen int, start, end float64, refs, rawMeans, corrMeans []Vec3) string {
	var pts []string
	for i := range refs {
		pts = append(pts, fmt.Sprintf(`{"position":%d,"ref":%s,"raw_mean":%s,"corr_mean":%s}`,
			i+1, vecJSON(refs[i]), vecJSON(rawMeans[i]), vecJSON(corrMeans[i])))
	}
	return fmt.Sprintf(`{"meta":{"npos":%d,"L":%d,"steady_start":%g,"steady_end":%g,"gravity":9.80665},"points":[%s]}`,
		npos, blockLen, start, end, strings.Join(pts, ","))
}

// sixFaces are the reference vectors of a six-position tumble test.
var sixFaces = []Vec3{
	{X: 9.8}, {X: -9.8},
	{Y: 9.8}, {Y: -9.8},
	{Z: 9.8}, {Z: -9.8},
}

func biased(refs []Vec3, bias Vec3) func(int) Vec3 {
	return func(i int) Vec3 {
		r := refs[i%len(refs)]
		return Vec3{X: r.X + bias.X, Y: r.Y + bias.Y, Z: r.Z + bias.Z}
	}
}
