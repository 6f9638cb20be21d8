package db

import (
	"bytes"
	"compress/gzip"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/calibration.report/internal/report"
	"github.com/banshee-data/calibration.report/internal/residual"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func metricRows(scale float64) []residual.MetricRow {
	var rows []residual.MetricRow
	for i, c := range residual.Channels {
		for j, r := range []residual.Regime{residual.RegimeRaw, residual.RegimeCorrected} {
			v := scale * float64(1+i) / float64(1+9*j)
			rows = append(rows, residual.MetricRow{Regime: r, Channel: c, Metrics: residual.Metrics{
				SampleCount: 120, Mean: v / 2, MAE: v, RMSE: v * 1.1, MaxAbs: v * 2, Std: v * 0.9,
			}})
		}
	}
	return rows
}

func testSummary(id string, created time.Time) *report.Summary {
	block := 2
	return &report.Summary{
		RunID:     id,
		CreatedAt: created,
		Version:   "test",
		Inputs:    report.Inputs{Report: "calib.json", Raw: "raw.csv", Corrected: "corr.csv"},
		Plan: residual.Plan{
			DeclaredPositions: 6, PositionCount: 6, BlockLength: 40,
			WindowStart: 20, WindowEnd: 40, Samples: 240,
		},
		Metrics:      metricRows(0.1),
		PointMetrics: metricRows(0.05),
		Diagnostics: residual.Diagnostics{
			{Kind: residual.DiagSkippedRows, Source: "raw.csv", Value: 3, Message: "skipped 3 rows"},
			{Kind: residual.DiagMeanDiscrepancy, Block: &block, Value: 1e-9, Message: "block 2 means agree"},
		},
	}
}

func TestNewDB_MigratesToLatest(t *testing.T) {
	db := setupTestDB(t)

	version, dirty, err := db.MigrateVersion(Migrations())
	require.NoError(t, err)
	latest, err := LatestMigrationVersion(Migrations())
	require.NoError(t, err)
	assert.Equal(t, latest, version)
	assert.Equal(t, uint(2), version)
	assert.False(t, dirty)

	// a second NewDB-style migrate is a no-op
	require.NoError(t, db.MigrateUp(Migrations()))
}

func TestMigrateDownUp(t *testing.T) {
	db := setupTestDB(t)
	tableExists := func(name string) bool {
		var n int
		require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE name = ?`, name).Scan(&n))
		return n > 0
	}

	require.NoError(t, db.MigrateDown(Migrations()))
	v, _, err := db.MigrateVersion(Migrations())
	require.NoError(t, err)
	assert.Equal(t, uint(1), v)
	assert.False(t, tableExists("idx_runs_created_at"))
	assert.True(t, tableExists("runs"))

	require.NoError(t, db.MigrateDown(Migrations()))
	v, _, err = db.MigrateVersion(Migrations())
	require.NoError(t, err)
	assert.Equal(t, uint(0), v)
	assert.False(t, tableExists("runs"))

	require.NoError(t, db.MigrateUp(Migrations()))
	v, _, err = db.MigrateVersion(Migrations())
	require.NoError(t, err)
	assert.Equal(t, uint(2), v)
	assert.True(t, tableExists("run_diagnostics"))
}

func TestRecordAndGetRun(t *testing.T) {
	db := setupTestDB(t)
	created := time.Date(2024, 5, 6, 7, 8, 9, 500, time.UTC)
	want := testSummary("run-a", created)

	require.NoError(t, db.RecordRun(want))

	got, err := db.GetRun("run-a")
	require.NoError(t, err)
	assert.True(t, created.Equal(got.CreatedAt))
	assert.Equal(t, want.Inputs, got.Inputs)
	assert.Equal(t, 6, got.PositionCount)
	assert.Equal(t, 240, got.Samples)

	if diff := cmp.Diff(want.Metrics, got.Metrics); diff != "" {
		t.Errorf("metrics mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(want.PointMetrics, got.PointMetrics); diff != "" {
		t.Errorf("point metrics mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(want.Diagnostics, got.Diagnostics); diff != "" {
		t.Errorf("diagnostics mismatch (-want +got):\n%s", diff)
	}
	assert.Contains(t, string(got.Summary), `"run_id":"run-a"`)
}

func TestRecordRun_Rejects(t *testing.T) {
	db := setupTestDB(t)

	assert.Error(t, db.RecordRun(nil))
	assert.Error(t, db.RecordRun(&report.Summary{}))

	s := testSummary("dup", time.Now())
	require.NoError(t, db.RecordRun(s))
	require.Error(t, db.RecordRun(s))

	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM run_metrics WHERE run_id = 'dup'`).Scan(&n))
	assert.Equal(t, 12, n, "failed insert must roll back")
}

func TestListRuns(t *testing.T) {
	db := setupTestDB(t)

	runs, err := db.ListRuns(0)
	require.NoError(t, err)
	assert.Empty(t, runs)
	assert.NotNil(t, runs)

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"first", "second", "third"} {
		// sub-second offsets must still sort by time
		require.NoError(t, db.RecordRun(testSummary(id, base.Add(time.Duration(i)*500*time.Millisecond))))
	}

	runs, err = db.ListRuns(0)
	require.NoError(t, err)
	var ids []string
	for _, r := range runs {
		ids = append(ids, r.RunID)
	}
	assert.Equal(t, []string{"third", "second", "first"}, ids)

	runs, err = db.ListRuns(2)
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}

func TestGetRun_NotFound(t *testing.T) {
	db := setupTestDB(t)
	_, err := db.GetRun("missing")
	assert.True(t, errors.Is(err, ErrRunNotFound))
}

func TestDeleteRun(t *testing.T) {
	db := setupTestDB(t)
	require.NoError(t, db.RecordRun(testSummary("gone", time.Now())))

	require.NoError(t, db.DeleteRun("gone"))
	for _, table := range []string{"run_metrics", "run_diagnostics"} {
		var n int
		require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM `+table).Scan(&n))
		assert.Zero(t, n, table)
	}
	assert.True(t, errors.Is(db.DeleteRun("gone"), ErrRunNotFound))
}

func TestPragmasApplied(t *testing.T) {
	db, err := NewDB(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	defer db.Close()

	var journalMode string
	require.NoError(t, db.QueryRow("PRAGMA journal_mode").Scan(&journalMode))
	assert.Equal(t, "wal", journalMode)

	var busyTimeout, foreignKeys int
	require.NoError(t, db.QueryRow("PRAGMA busy_timeout").Scan(&busyTimeout))
	assert.Equal(t, 5000, busyTimeout)
	require.NoError(t, db.QueryRow("PRAGMA foreign_keys").Scan(&foreignKeys))
	assert.Equal(t, 1, foreignKeys)
}

func TestAttachAdminRoutes(t *testing.T) {
	db := setupTestDB(t)
	mux := http.NewServeMux()
	require.NoError(t, db.AttachAdminRoutes(mux))

	for _, path := range []string{"/debug/", "/debug/tailsql/", "/debug/backup"} {
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		// registered routes answer 200 or 403 depending on the debug access check
		assert.NotEqual(t, http.StatusNotFound, w.Code, path)
	}
}

func TestServeBackup(t *testing.T) {
	db := setupTestDB(t)
	require.NoError(t, db.RecordRun(testSummary("backed-up", time.Now())))

	w := httptest.NewRecorder()
	db.serveBackup(w, httptest.NewRequest(http.MethodGet, "/debug/backup", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), ".db.gz")

	gz, err := gzip.NewReader(w.Body)
	require.NoError(t, err)
	data, err := io.ReadAll(gz)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("SQLite format 3\x00")))
}
