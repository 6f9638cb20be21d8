package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/calibration.report/internal/db"
	"github.com/banshee-data/calibration.report/internal/fsutil"
	"github.com/banshee-data/calibration.report/internal/monitoring"
	"github.com/banshee-data/calibration.report/internal/report"
	"github.com/banshee-data/calibration.report/internal/residual"
	"github.com/banshee-data/calibration.report/internal/timeutil"
)

var testTime = time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)

func testApp(t *testing.T) (*app, *fsutil.MemoryFileSystem, *bytes.Buffer) {
	t.Helper()
	monitoring.SetLogger(t.Logf)
	t.Cleanup(func() { monitoring.SetLogger(nil) })

	mem := fsutil.NewMemoryFileSystem()
	var out bytes.Buffer
	return &app{
		fs:     mem,
		clock:  timeutil.NewMockClock(testTime),
		stdout: &out,
		newID:  func() string { return "run-fixed" },
	}, mem, &out
}

// writeFixture stores a six-position tumble recording under dir: 40 samples
// per face, a constant raw bias and a small corrected bias.
func writeFixture(t *testing.T, mem *fsutil.MemoryFileSystem, dir string) {
	t.Helper()
	faces := []residual.Vec3{{X: 9.8}, {X: -9.8}, {Y: 9.8}, {Y: -9.8}, {Z: 9.8}, {Z: -9.8}}
	const blockLen = 40

	var raw, corr, pts strings.Builder
	raw.WriteString("t_ms,ax,ay,az\n")
	corr.WriteString("t_ms,ax,ay,az\n")
	for b, f := range faces {
		for k := 0; k < blockLen; k++ {
			i := b*blockLen + k
			n := float64(k%3-1) * 0.01
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

	require.NoError(t, mem.MkdirAll(dir, 0o755))
	require.NoError(t, mem.WriteFile(dir+"/calib.json", []byte(doc), 0o644))
	require.NoError(t, mem.WriteFile(dir+"/raw.csv", []byte(raw.String()), 0o644))
	require.NoError(t, mem.WriteFile(dir+"/corr.csv", []byte(corr.String()), 0o644))
}

func TestAnalyze(t *testing.T) {
	a, mem, out := testApp(t)
	writeFixture(t, mem, "/in")
	dbPath := filepath.Join(t.TempDir(), "runs.db")

	err := a.analyze([]string{
		"-report", "/in/calib.json", "-raw", "/in/raw.csv", "-corr", "/in/corr.csv",
		"-out", "/out", "-db", dbPath, "-html", "-no-plots",
	})
	require.NoError(t, err)

	var names []string
	for _, p := range mem.Files("/out") {
		names = append(names, filepath.Base(p))
	}
	assert.ElementsMatch(t, []string{
		report.MetricsCSVName, report.PointsCSVName, report.SummaryJSONName, report.DashboardName,
	}, names)

	data, err := mem.ReadFile("/out/" + report.SummaryJSONName)
	require.NoError(t, err)
	var sum map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &sum))
	assert.Equal(t, "run-fixed", sum["run_id"])
	assert.Equal(t, "2024-05-06T07:08:09Z", sum["created_at"])

	assert.Contains(t, out.String(), "time-series residuals")
	assert.Contains(t, out.String(), "rmse corrected/raw")

	database, err := db.NewDB(dbPath)
	require.NoError(t, err)
	defer database.Close()
	run, err := database.GetRun("run-fixed")
	require.NoError(t, err)
	assert.Len(t, run.Metrics, 6)
	assert.Equal(t, "/in/raw.csv", run.Inputs.Raw)
}

func TestAnalyze_WithPlots(t *testing.T) {
	a, mem, _ := testApp(t)
	writeFixture(t, mem, "/in")

	require.NoError(t, a.analyze([]string{
		"-report", "/in/calib.json", "-raw", "/in/raw.csv", "-corr", "/in/corr.csv",
		"-out", "/out", "-bins", "12", "-stride", "4",
	}))
	assert.True(t, mem.Exists("/out/hist_residuals_x_raw_vs_corr.png"))
	assert.True(t, mem.Exists("/out/time_az_raw_vs_corr.png"))
	assert.False(t, mem.Exists("/out/"+report.DashboardName))
}

func TestAnalyze_Errors(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{"missing inputs", []string{"-report", "/in/calib.json"}, "required"},
		{"missing file", []string{"-report", "/in/nope.json", "-raw", "/in/raw.csv", "-corr", "/in/corr.csv"}, "open /in/nope.json"},
		{"bad flag value", []string{"-report", "/in/calib.json", "-raw", "/in/raw.csv", "-corr", "/in/corr.csv", "-bins", "0"}, "bins"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, mem, _ := testApp(t)
			writeFixture(t, mem, "/in")
			err := a.analyze(append(tt.args, "-out", "/out"))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.Empty(t, mem.Files("/out"), "no output on failure")
		})
	}
}

func TestAnalyze_EngineErrorWritesNothing(t *testing.T) {
	a, mem, _ := testApp(t)
	writeFixture(t, mem, "/in")
	// one block short of a single position
	require.NoError(t, mem.WriteFile("/in/raw.csv", []byte("t_ms,ax,ay,az\n0,1,2,3\n10,1,2,3\n"), 0o644))

	err := a.analyze([]string{"-report", "/in/calib.json", "-raw", "/in/raw.csv", "-corr", "/in/corr.csv", "-out", "/out"})
	require.Error(t, err)
	assert.ErrorIs(t, err, residual.ErrInsufficientData)
	assert.Empty(t, mem.Files("/out"))
}

func TestAnalyze_HTMLFromConfig(t *testing.T) {
	for _, bins := range []int{1, 5, 10, 20, 35, 40, 60} {
		t.Run(fmt.Sprintf("bins=%d", bins), func(t *testing.T) {
			a, mem, _ := testApp(t)
			writeFixture(t, mem, "/in")
			cfg := fmt.Sprintf(`{"html": true, "plots": false, "bins": %d}`, bins)
			require.NoError(t, mem.WriteFile("/in/analysis.json", []byte(cfg), 0o644))

			require.NoError(t, a.analyze([]string{
				"-report", "/in/calib.json", "-raw", "/in/raw.csv", "-corr", "/in/corr.csv",
				"-out", "/out", "-config", "/in/analysis.json",
			}))
			html, err := mem.ReadFile("/out/" + report.DashboardName)
			require.NoError(t, err)
			assert.Contains(t, string(html), "Residual histogram - x")
			assert.False(t, mem.Exists("/out/hist_residuals_x_raw_vs_corr.png"))
		})
	}
}

func TestAnalyze_StoreFailureWritesNothing(t *testing.T) {
	a, mem, _ := testApp(t)
	writeFixture(t, mem, "/in")
	dbPath := filepath.Join(t.TempDir(), "missing", "runs.db")

	err := a.analyze([]string{
		"-report", "/in/calib.json", "-raw", "/in/raw.csv", "-corr", "/in/corr.csv",
		"-out", "/out", "-db", dbPath, "-no-plots",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "open run store")
	assert.Empty(t, mem.Files("/out"))
}

func TestAnalyze_WriteFailureRemovesStoredRun(t *testing.T) {
	a, mem, _ := testApp(t)
	writeFixture(t, mem, "/in")
	dbPath := filepath.Join(t.TempDir(), "runs.db")
	mem.FailWrites("/out/."+report.SummaryJSONName+".tmp", errors.New("disk full"))

	err := a.analyze([]string{
		"-report", "/in/calib.json", "-raw", "/in/raw.csv", "-corr", "/in/corr.csv",
		"-out", "/out", "-db", dbPath, "-no-plots",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")

	database, err := db.NewDB(dbPath)
	require.NoError(t, err)
	defer database.Close()
	_, err = database.GetRun("run-fixed")
	assert.ErrorIs(t, err, db.ErrRunNotFound)
}

func TestPoints(t *testing.T) {
	a, mem, out := testApp(t)
	writeFixture(t, mem, "/in")

	require.NoError(t, a.points([]string{"-report", "/in/calib.json", "-out", "/pts"}))
	assert.Equal(t, []string{
		"/pts/bar_maxabs_points.png",
		"/pts/bar_rmse_points.png",
		"/pts/calib_curve_x_corr.png",
		"/pts/calib_curve_y_corr.png",
		"/pts/calib_curve_z_corr.png",
		"/pts/" + report.PointsCSVName,
		"/pts/residuals_x_raw_vs_corr.png",
		"/pts/residuals_y_raw_vs_corr.png",
		"/pts/residuals_z_raw_vs_corr.png",
	}, mem.Files("/pts"))
	assert.Contains(t, out.String(), "point residuals")

	assert.Error(t, a.points(nil))
}

func TestLoadConfig_FlagPrecedence(t *testing.T) {
	mem := fsutil.NewMemoryFileSystem()
	cfgPath := "/cfg/analysis.json"
	require.NoError(t, mem.WriteFile(cfgPath, []byte(`{"bins": 30, "stride": 7, "html": true}`), 0o644))

	fs := flag.NewFlagSet("analyze", flag.ContinueOnError)
	var f analyzeFlags
	f.register(fs, true)
	require.NoError(t, fs.Parse([]string{"-config", cfgPath, "-bins", "90", "-no-plots"}))

	cfg, err := f.loadConfig(mem, fs)
	require.NoError(t, err)
	assert.Equal(t, 90, cfg.GetBins(), "explicit flag wins")
	assert.Equal(t, 7, cfg.GetStride(), "unset flag keeps config value")
	assert.True(t, cfg.GetHTML())
	assert.False(t, cfg.GetPlots())

	o := renderOptions(cfg)
	assert.Equal(t, 90, o.Bins)
	assert.Equal(t, 7, o.Stride)
}

func TestListRuns(t *testing.T) {
	a, mem, out := testApp(t)
	writeFixture(t, mem, "/in")
	dbPath := filepath.Join(t.TempDir(), "runs.db")

	require.NoError(t, a.listRuns([]string{"-db", dbPath}))
	assert.Contains(t, out.String(), "no runs recorded")

	require.NoError(t, a.analyze([]string{
		"-report", "/in/calib.json", "-raw", "/in/raw.csv", "-corr", "/in/corr.csv",
		"-out", "/out", "-db", dbPath, "-no-plots",
	}))
	out.Reset()
	require.NoError(t, a.listRuns([]string{"-db", dbPath, "-limit", "5"}))
	assert.Contains(t, out.String(), "run-fixed")
	assert.Contains(t, out.String(), "2024-05-06T07:08:09Z")
	assert.Contains(t, out.String(), "/in/calib.json")
}
