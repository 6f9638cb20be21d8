// Package api serves the stored calibration runs over HTTP: a JSON API,
// per-run metric tables and a rendered dashboard.
package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/calibration.report/internal/db"
	"github.com/banshee-data/calibration.report/internal/httputil"
	"github.com/banshee-data/calibration.report/internal/monitoring"
	"github.com/banshee-data/calibration.report/internal/report"
	"github.com/banshee-data/calibration.report/internal/version"
)

// ANSI escape codes for the request log
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// DefaultListLimit caps /api/runs when no limit is given.
const DefaultListLimit = 50

// shutdownTimeout bounds how long Serve waits for in-flight requests.
const shutdownTimeout = 5 * time.Second

type Server struct {
	db *db.DB
}

func NewServer(database *db.DB) *Server {
	return &Server{db: database}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		monitoring.Logf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

// ServeMux returns the API routes. Admin routes are attached separately.
func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	s.register(mux)
	return mux
}

func (s *Server) register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/runs", s.listRuns)
	mux.HandleFunc("GET /api/runs/{id}", s.getRun)
	mux.HandleFunc("DELETE /api/runs/{id}", s.deleteRun)
	mux.HandleFunc("GET /api/version", s.showVersion)
	mux.HandleFunc("GET /runs/{id}/metrics.csv", s.metricsCSV)
	mux.HandleFunc("GET /runs/{id}/dashboard", s.dashboard)
}

// Serve listens on addr until ctx is cancelled, then shuts down gracefully.
// The run store's debug routes share the listener under /debug/.
func (s *Server) Serve(ctx context.Context, addr string) error {
	mux := s.ServeMux()
	if err := s.db.AttachAdminRoutes(mux); err != nil {
		return err
	}

	server := &http.Server{
		Addr:              addr,
		Handler:           LoggingMiddleware(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()
	monitoring.Logf("serving calibration runs on %s", addr)

	select {
	case err := <-errc:
		return fmt.Errorf("listen %s: %w", addr, err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}
	monitoring.Logf("HTTP server stopped")
	return nil
}

// storeError maps a store error to a response.
func (s *Server) storeError(w http.ResponseWriter, err error) {
	if errors.Is(err, db.ErrRunNotFound) {
		httputil.NotFound(w, err.Error())
		return
	}
	monitoring.Logf("run store: %v", err)
	httputil.InternalServerError(w, "run store error")
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	limit := DefaultListLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			httputil.BadRequest(w, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	runs, err := s.db.ListRuns(limit)
	if err != nil {
		s.storeError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, runs)
}

func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.db.GetRun(r.PathValue("id"))
	if err != nil {
		s.storeError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, run)
}

func (s *Server) deleteRun(w http.ResponseWriter, r *http.Request) {
	if err := s.db.DeleteRun(r.PathValue("id")); err != nil {
		s.storeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) showVersion(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{
		"version":    version.Version,
		"git_sha":    version.GitSHA,
		"build_time": version.BuildTime,
	})
}

// metricsCSV serves the time-series table, or the point table with
// ?level=points, in the same layout as the analyze output.
func (s *Server) metricsCSV(w http.ResponseWriter, r *http.Request) {
	level := r.URL.Query().Get("level")
	if level == "" {
		level = db.LevelTimeSeries
	}
	if level != db.LevelTimeSeries && level != db.LevelPoints {
		httputil.BadRequest(w, "level must be timeseries or points")
		return
	}

	run, err := s.db.GetRun(r.PathValue("id"))
	if err != nil {
		s.storeError(w, err)
		return
	}
	rows := run.Metrics
	if level == db.LevelPoints {
		rows = run.PointMetrics
	}

	httputil.Attachment(w, "text/csv", fmt.Sprintf("%s_%s.csv", run.RunID, level))
	if err := report.WriteMetricsCSV(w, rows); err != nil {
		monitoring.Logf("write metrics csv for %s: %v", run.RunID, err)
	}
}

// dashboard renders the stored metric tables. Residual histograms need the
// sample series, which the store does not keep, so they are omitted.
func (s *Server) dashboard(w http.ResponseWriter, r *http.Request) {
	run, err := s.db.GetRun(r.PathValue("id"))
	if err != nil {
		s.storeError(w, err)
		return
	}

	var buf bytes.Buffer
	err = report.RenderDashboard(&buf, report.DashboardData{
		Title:        "Calibration residuals",
		Subtitle:     fmt.Sprintf("run %s, %s", run.RunID, run.CreatedAt.Format(time.RFC3339)),
		Metrics:      run.Metrics,
		PointMetrics: run.PointMetrics,
	})
	if err != nil {
		monitoring.Logf("render dashboard for %s: %v", run.RunID, err)
		httputil.InternalServerError(w, "failed to render dashboard")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	buf.WriteTo(w)
}
