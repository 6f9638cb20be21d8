// Package db stores the history of analysis runs in SQLite so earlier
// calibrations can be listed, compared and re-rendered.
package db

import (
	"compress/gzip"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tailscale/tailsql/server/tailsql"
	_ "modernc.org/sqlite"
	"tailscale.com/tsweb"

	"github.com/banshee-data/calibration.report/internal/httputil"
	"github.com/banshee-data/calibration.report/internal/monitoring"
	"github.com/banshee-data/calibration.report/internal/report"
	"github.com/banshee-data/calibration.report/internal/residual"
)

// Metric levels stored in run_metrics.level.
const (
	LevelTimeSeries = "timeseries"
	LevelPoints     = "points"
)

// ErrRunNotFound is returned by GetRun for an unknown run id.
var ErrRunNotFound = errors.New("run not found")

var logf = monitoring.Prefixed("db")

// timeLayout is fixed width so created_at sorts as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// pragmas are applied to every pooled connection through the DSN.
var pragmas = []string{
	"journal_mode(WAL)",
	"busy_timeout(5000)",
	"synchronous(NORMAL)",
	"temp_store(MEMORY)",
	"foreign_keys(1)",
}

type DB struct {
	*sql.DB
}

// OpenDB opens the store without touching its schema. The migrate command
// uses it so it can inspect and repair databases at any version.
func OpenDB(path string) (*DB, error) {
	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, err
	}
	if isMemory(path) {
		// every connection to :memory: is a separate database
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return &DB{db}, nil
}

// NewDB opens the store and migrates it to the latest schema.
func NewDB(path string) (*DB, error) {
	db, err := OpenDB(path)
	if err != nil {
		return nil, err
	}
	if err := db.MigrateUp(Migrations()); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func dsn(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	var b strings.Builder
	b.WriteString(path)
	for _, p := range pragmas {
		b.WriteString(sep)
		b.WriteString("_pragma=")
		b.WriteString(p)
		sep = "&"
	}
	return b.String()
}

func isMemory(path string) bool {
	return path == ":memory:" || strings.HasPrefix(path, "file::memory:")
}

// RunInfo is the listing view of a stored run.
type RunInfo struct {
	RunID             string        `json:"run_id"`
	CreatedAt         time.Time     `json:"created_at"`
	Version           string        `json:"version"`
	Inputs            report.Inputs `json:"inputs"`
	DeclaredPositions int           `json:"declared_positions"`
	PositionCount     int           `json:"position_count"`
	BlockLength       int           `json:"block_length"`
	WindowStart       int           `json:"window_start"`
	WindowEnd         int           `json:"window_end"`
	Samples           int           `json:"samples"`
}

// StoredRun is a run with its metric tables and diagnostics.
type StoredRun struct {
	RunInfo
	Metrics      []residual.MetricRow `json:"metrics"`
	PointMetrics []residual.MetricRow `json:"point_metrics"`
	Diagnostics  residual.Diagnostics `json:"diagnostics"`
	Summary      json.RawMessage      `json:"summary"`
}

// RecordRun stores a run summary with its metrics and diagnostics in one
// transaction.
func (db *DB) RecordRun(s *report.Summary) error {
	if s == nil || s.RunID == "" {
		return errors.New("record run: missing run id")
	}
	doc, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("record run %s: encode summary: %w", s.RunID, err)
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("record run %s: %w", s.RunID, err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO runs (
			run_id, created_at, version, report_path, raw_path, corr_path,
			declared_positions, position_count, block_length,
			window_start, window_end, samples, summary_json
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.RunID, s.CreatedAt.UTC().Format(timeLayout), s.Version,
		s.Inputs.Report, s.Inputs.Raw, s.Inputs.Corrected,
		s.Plan.DeclaredPositions, s.Plan.PositionCount, s.Plan.BlockLength,
		s.Plan.WindowStart, s.Plan.WindowEnd, s.Plan.Samples, string(doc),
	)
	if err != nil {
		return fmt.Errorf("record run %s: %w", s.RunID, err)
	}

	if err := insertMetrics(tx, s.RunID, LevelTimeSeries, s.Metrics); err != nil {
		return err
	}
	if err := insertMetrics(tx, s.RunID, LevelPoints, s.PointMetrics); err != nil {
		return err
	}

	for i, d := range s.Diagnostics {
		var block sql.NullInt64
		if d.Block != nil {
			block = sql.NullInt64{Int64: int64(*d.Block), Valid: true}
		}
		_, err := tx.Exec(`
			INSERT INTO run_diagnostics (run_id, seq, kind, source, block, value, message)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			s.RunID, i, string(d.Kind), d.Source, block, d.Value, d.Message,
		)
		if err != nil {
			return fmt.Errorf("record run %s: diagnostic %d: %w", s.RunID, i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("record run %s: commit: %w", s.RunID, err)
	}
	logf("recorded run %s (%d metric rows, %d diagnostics)", s.RunID, len(s.Metrics)+len(s.PointMetrics), len(s.Diagnostics))
	return nil
}

func insertMetrics(tx *sql.Tx, runID, level string, rows []residual.MetricRow) error {
	stmt, err := tx.Prepare(`
		INSERT INTO run_metrics (run_id, level, mode, axis, n_samples, mean, mae, rmse, maxabs, std)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("record run %s: %w", runID, err)
	}
	defer stmt.Close()

	for _, r := range rows {
		if _, err := stmt.Exec(runID, level, string(r.Regime), r.Channel.String(),
			r.SampleCount, r.Mean, r.MAE, r.RMSE, r.MaxAbs, r.Std); err != nil {
			return fmt.Errorf("record run %s: %s %s/%s: %w", runID, level, r.Regime, r.Channel, err)
		}
	}
	return nil
}

const runColumns = `run_id, created_at, version, report_path, raw_path, corr_path,
	declared_positions, position_count, block_length, window_start, window_end, samples`

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRunInfo(row scanner) (RunInfo, error) {
	var (
		r       RunInfo
		created string
	)
	err := row.Scan(&r.RunID, &created, &r.Version,
		&r.Inputs.Report, &r.Inputs.Raw, &r.Inputs.Corrected,
		&r.DeclaredPositions, &r.PositionCount, &r.BlockLength,
		&r.WindowStart, &r.WindowEnd, &r.Samples)
	if err != nil {
		return r, err
	}
	r.CreatedAt, err = time.Parse(timeLayout, created)
	if err != nil {
		return r, fmt.Errorf("run %s: bad created_at %q: %w", r.RunID, created, err)
	}
	return r, nil
}

// ListRuns returns the most recent runs first. limit <= 0 returns all runs.
func (db *DB) ListRuns(limit int) ([]RunInfo, error) {
	query := `SELECT ` + runColumns + ` FROM runs ORDER BY created_at DESC, run_id`
	args := []interface{}{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	out := []RunInfo{}
	for rows.Next() {
		r, err := scanRunInfo(rows)
		if err != nil {
			return nil, fmt.Errorf("list runs: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return out, nil
}

// GetRun loads one run. Unknown ids return an error wrapping ErrRunNotFound.
func (db *DB) GetRun(id string) (*StoredRun, error) {
	row := db.QueryRow(`SELECT `+runColumns+`, summary_json FROM runs WHERE run_id = ?`, id)

	var (
		run     StoredRun
		created string
		summary string
	)
	err := row.Scan(&run.RunID, &created, &run.Version,
		&run.Inputs.Report, &run.Inputs.Raw, &run.Inputs.Corrected,
		&run.DeclaredPositions, &run.PositionCount, &run.BlockLength,
		&run.WindowStart, &run.WindowEnd, &run.Samples, &summary)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", id, ErrRunNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get run %s: %w", id, err)
	}
	if run.CreatedAt, err = time.Parse(timeLayout, created); err != nil {
		return nil, fmt.Errorf("run %s: bad created_at %q: %w", id, created, err)
	}
	run.Summary = json.RawMessage(summary)

	if run.Metrics, err = db.metrics(id, LevelTimeSeries); err != nil {
		return nil, err
	}
	if run.PointMetrics, err = db.metrics(id, LevelPoints); err != nil {
		return nil, err
	}
	if run.Diagnostics, err = db.diagnostics(id); err != nil {
		return nil, err
	}
	return &run, nil
}

// metrics returns rows in table order: x raw, x corr, y raw and so on.
func (db *DB) metrics(id, level string) ([]residual.MetricRow, error) {
	rows, err := db.Query(`
		SELECT mode, axis, n_samples, mean, mae, rmse, maxabs, std
		FROM run_metrics
		WHERE run_id = ? AND level = ?
		ORDER BY axis, CASE mode WHEN 'raw' THEN 0 ELSE 1 END`, id, level)
	if err != nil {
		return nil, fmt.Errorf("run %s metrics: %w", id, err)
	}
	defer rows.Close()

	out := []residual.MetricRow{}
	for rows.Next() {
		var (
			r          residual.MetricRow
			mode, axis string
		)
		if err := rows.Scan(&mode, &axis, &r.SampleCount, &r.Mean, &r.MAE, &r.RMSE, &r.MaxAbs, &r.Std); err != nil {
			return nil, fmt.Errorf("run %s metrics: %w", id, err)
		}
		r.Regime = residual.Regime(mode)
		if r.Channel, err = residual.ParseChannel(axis); err != nil {
			return nil, fmt.Errorf("run %s metrics: %w", id, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (db *DB) diagnostics(id string) (residual.Diagnostics, error) {
	rows, err := db.Query(`
		SELECT kind, source, block, value, message
		FROM run_diagnostics
		WHERE run_id = ?
		ORDER BY seq`, id)
	if err != nil {
		return nil, fmt.Errorf("run %s diagnostics: %w", id, err)
	}
	defer rows.Close()

	out := residual.Diagnostics{}
	for rows.Next() {
		var (
			d     residual.Diagnostic
			kind  string
			block sql.NullInt64
		)
		if err := rows.Scan(&kind, &d.Source, &block, &d.Value, &d.Message); err != nil {
			return nil, fmt.Errorf("run %s diagnostics: %w", id, err)
		}
		d.Kind = residual.DiagnosticKind(kind)
		if block.Valid {
			b := int(block.Int64)
			d.Block = &b
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// DeleteRun removes a run and, through foreign keys, its metrics and diagnostics.
func (db *DB) DeleteRun(id string) error {
	res, err := db.Exec(`DELETE FROM runs WHERE run_id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete run %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run %s: %w", id, ErrRunNotFound)
	}
	logf("deleted run %s", id)
	return nil
}

// AttachAdminRoutes mounts the tsweb debug index on mux with a live SQL
// console over the run store and a backup download.
func (db *DB) AttachAdminRoutes(mux *http.ServeMux) error {
	debug := tsweb.Debugger(mux)

	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		return fmt.Errorf("create tailsql server: %w", err)
	}
	tsql.SetDB("sqlite://calibration.db", db.DB, &tailsql.DBOptions{
		Label: "Calibration runs",
	})
	debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())
	debug.Handle("backup", "Create and download a backup of the run store now", http.HandlerFunc(db.serveBackup))
	return nil
}

func (db *DB) serveBackup(w http.ResponseWriter, r *http.Request) {
	dir, err := os.MkdirTemp("", "calreport-backup-")
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to create backup: %v", err))
		return
	}
	defer os.RemoveAll(dir)

	name := fmt.Sprintf("backup-%d.db", time.Now().Unix())
	backupPath := filepath.Join(dir, name)
	if _, err := db.Exec("VACUUM INTO ?", backupPath); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to create backup: %v", err))
		return
	}

	f, err := os.Open(backupPath)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to open backup file: %v", err))
		return
	}
	defer f.Close()

	httputil.Attachment(w, "application/gzip", name+".gz")

	gz := gzip.NewWriter(w)
	defer gz.Close()
	if _, err := io.Copy(gz, f); err != nil {
		logf("backup %s: %v", name, err)
	}
}
