package main

import (
	"bytes"
	"errors"
	"flag"
	"fmt"
	"io"
	"path/filepath"

	"github.com/banshee-data/calibration.report/internal/config"
	"github.com/banshee-data/calibration.report/internal/db"
	"github.com/banshee-data/calibration.report/internal/fsutil"
	"github.com/banshee-data/calibration.report/internal/monitoring"
	"github.com/banshee-data/calibration.report/internal/report"
	"github.com/banshee-data/calibration.report/internal/residual"
	"github.com/banshee-data/calibration.report/internal/version"
)

// analyzeFlags are the options shared by analyze and points.
type analyzeFlags struct {
	reportPath  string
	rawPath     string
	corrPath    string
	outDir      string
	configPath  string
	dbPath      string
	bins        int
	stride      int
	checkBlocks int
	tolerance   int64
	noPlots     bool
	html        bool
	verbose     bool
	trace       bool
}

func (f *analyzeFlags) register(fs *flag.FlagSet, full bool) {
	fs.StringVar(&f.reportPath, "report", "", "Calibration report JSON (required)")
	fs.StringVar(&f.outDir, "out", "out", "Output directory")
	fs.StringVar(&f.configPath, "config", "", "Analysis config JSON")
	fs.IntVar(&f.bins, "bins", residual.DefaultBins, "Histogram bins")
	fs.BoolVar(&f.noPlots, "no-plots", false, "Skip PNG plots")
	fs.BoolVar(&f.verbose, "v", false, "Log each artifact written")
	if !full {
		return
	}
	fs.StringVar(&f.rawPath, "raw", "", "Raw recording CSV (required)")
	fs.StringVar(&f.corrPath, "corr", "", "Corrected recording CSV (required)")
	fs.StringVar(&f.dbPath, "db", "", "Record the run in this store")
	fs.IntVar(&f.stride, "stride", config.DefaultStride, "Plot every Nth sample in time plots")
	fs.IntVar(&f.checkBlocks, "check-blocks", residual.DefaultCheckBlocks, "Blocks cross-checked against reported means")
	fs.Int64Var(&f.tolerance, "ts-tolerance", 0, "Timestamp offset (ms) tolerated between recordings")
	fs.BoolVar(&f.html, "html", false, "Write dashboard.html")
	fs.BoolVar(&f.trace, "trace", false, "Log per-chart render detail")
}

// loadConfig reads -config and applies only the flags given explicitly, so
// a config file value survives unless overridden on the command line.
func (f *analyzeFlags) loadConfig(fsys fsutil.FileSystem, fs *flag.FlagSet) (*config.AnalysisConfig, error) {
	cfg := config.EmptyAnalysisConfig()
	if f.configPath != "" {
		var err error
		if cfg, err = config.LoadAnalysisConfig(fsys, f.configPath); err != nil {
			return nil, err
		}
	}

	var o config.Overrides
	fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "bins":
			o.Bins = &f.bins
		case "stride":
			o.Stride = &f.stride
		case "check-blocks":
			o.CheckBlocks = &f.checkBlocks
		case "ts-tolerance":
			o.TimestampToleranceMS = &f.tolerance
		case "no-plots":
			plots := !f.noPlots
			o.Plots = &plots
		case "html":
			o.HTML = &f.html
		}
	})
	if err := cfg.Apply(o); err != nil {
		return nil, err
	}
	return cfg, nil
}

func renderOptions(cfg *config.AnalysisConfig) report.Options {
	w, h := cfg.GetPlotSize()
	return report.Options{
		Bins:     cfg.GetBins(),
		Stride:   cfg.GetStride(),
		Plots:    cfg.GetPlots(),
		HTML:     cfg.GetHTML(),
		WidthIn:  w,
		HeightIn: h,
	}
}

func (a *app) analyze(args []string) error {
	fs := flag.NewFlagSet("analyze", flag.ContinueOnError)
	var f analyzeFlags
	f.register(fs, true)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if f.reportPath == "" || f.rawPath == "" || f.corrPath == "" {
		fs.Usage()
		return errors.New("-report, -raw and -corr are required")
	}
	setVerbosity(f.verbose, f.trace)

	cfg, err := f.loadConfig(a.fs, fs)
	if err != nil {
		return err
	}

	in, err := a.openInputs(f)
	if err != nil {
		return err
	}
	res, err := residual.Run(in, cfg.ResidualOptions())
	if err != nil {
		return err
	}
	logDiagnostics(res.Diagnostics)

	sum := report.NewSummary(a.newID(), a.clock.Now(), version.Version,
		report.Inputs{Report: f.reportPath, Raw: f.rawPath, Corrected: f.corrPath}, res)

	sink := report.NewSink(a.fs, f.outDir)
	if err := report.StageRun(sink, sum, res, renderOptions(cfg)); err != nil {
		return err
	}

	// The run is recorded before any file is written; a failed flush
	// removes it again so neither output exists on its own.
	var database *db.DB
	if f.dbPath != "" {
		if database, err = db.NewDB(f.dbPath); err != nil {
			return fmt.Errorf("open run store: %w", err)
		}
		defer database.Close()
		if err := database.RecordRun(sum); err != nil {
			return err
		}
	}

	written, err := sink.Flush()
	if err != nil {
		if database != nil {
			if derr := database.DeleteRun(sum.RunID); derr != nil {
				monitoring.Logf("remove run %s after failed write: %v", sum.RunID, derr)
			}
		}
		return err
	}
	monitoring.Logf("run %s: wrote %d files to %s", sum.RunID, len(written), f.outDir)

	printMetrics(a.stdout, "time-series residuals", res.Metrics)
	printMetrics(a.stdout, "point residuals", res.PointMetrics)
	printImprovement(a.stdout, sum.Improvement)
	return nil
}

func (a *app) points(args []string) error {
	fs := flag.NewFlagSet("points", flag.ContinueOnError)
	var f analyzeFlags
	f.register(fs, false)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if f.reportPath == "" {
		fs.Usage()
		return errors.New("-report is required")
	}
	setVerbosity(f.verbose, false)

	cfg, err := f.loadConfig(a.fs, fs)
	if err != nil {
		return err
	}

	data, err := a.fs.ReadFile(f.reportPath)
	if err != nil {
		return fmt.Errorf("open %s: %w", f.reportPath, err)
	}
	rep, diags, err := residual.DecodeReport(bytes.NewReader(data), filepath.Base(f.reportPath))
	if err != nil {
		return err
	}
	logDiagnostics(diags)

	raw, corr := residual.PointResiduals(rep, rep.Meta.PositionCount)
	rows, err := residual.Aggregate(raw, corr)
	if err != nil {
		return err
	}

	sink := report.NewSink(a.fs, f.outDir)
	if err := report.StagePoints(sink, rep, rows, renderOptions(cfg)); err != nil {
		return err
	}
	if _, err := sink.Flush(); err != nil {
		return err
	}
	printMetrics(a.stdout, "point residuals", rows)
	return nil
}

// openInputs reads the three input files through the app filesystem.
func (a *app) openInputs(f analyzeFlags) (residual.Input, error) {
	read := func(path string) (io.Reader, error) {
		data, err := a.fs.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", path, err)
		}
		return bytes.NewReader(data), nil
	}

	var (
		in  residual.Input
		err error
	)
	if in.Report, err = read(f.reportPath); err != nil {
		return in, err
	}
	if in.Raw, err = read(f.rawPath); err != nil {
		return in, err
	}
	if in.Corrected, err = read(f.corrPath); err != nil {
		return in, err
	}
	in.ReportName = filepath.Base(f.reportPath)
	in.RawName = filepath.Base(f.rawPath)
	in.CorrectedName = filepath.Base(f.corrPath)
	return in, nil
}

func logDiagnostics(ds residual.Diagnostics) {
	for _, d := range ds {
		monitoring.Logf("warning: %s", d)
	}
}

func printMetrics(w io.Writer, title string, rows []residual.MetricRow) {
	fmt.Fprintf(w, "\n%s\n", title)
	fmt.Fprintf(w, "%-5s %-4s %9s %12s %12s %12s %12s %12s\n", "mode", "axis", "n", "mean", "mae", "rmse", "maxabs", "std")
	for _, r := range rows {
		fmt.Fprintf(w, "%-5s %-4s %9d %12.6g %12.6g %12.6g %12.6g %12.6g\n",
			r.Regime, r.Channel, r.SampleCount, r.Mean, r.MAE, r.RMSE, r.MaxAbs, r.Std)
	}
}

func printImprovement(w io.Writer, imp map[string]report.Improvement) {
	fmt.Fprintln(w, "\nrmse corrected/raw")
	for _, c := range residual.Channels {
		i, ok := imp[c.String()]
		if !ok {
			continue
		}
		fmt.Fprintf(w, "  %s: %.4f (%.6g -> %.6g)\n", c, i.Ratio, i.RawRMSE, i.CorrectedRMSE)
	}
}
