// Command calreport measures how well an accelerometer calibration removes
// error: it compares raw and corrected recordings against the reference
// orientations of a calibration report and writes metric tables, plots and a
// run summary.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"

	"github.com/banshee-data/calibration.report/internal/api"
	"github.com/banshee-data/calibration.report/internal/db"
	"github.com/banshee-data/calibration.report/internal/fsutil"
	"github.com/banshee-data/calibration.report/internal/monitoring"
	"github.com/banshee-data/calibration.report/internal/report"
	"github.com/banshee-data/calibration.report/internal/timeutil"
	"github.com/banshee-data/calibration.report/internal/version"
)

// DefaultDBPath is the run store used by migrate, runs and serve.
const DefaultDBPath = "calreport.db"

// app carries the process dependencies so commands can be exercised with an
// in-memory filesystem and a fixed clock.
type app struct {
	fs     fsutil.FileSystem
	clock  timeutil.Clock
	stdout io.Writer
	newID  func() string
}

func newApp() *app {
	return &app{
		fs:     fsutil.OSFileSystem{},
		clock:  timeutil.RealClock{},
		stdout: os.Stdout,
		newID:  uuid.NewString,
	}
}

func main() {
	flag.Usage = printUsage
	flag.Parse()

	if flag.NArg() < 1 {
		printUsage()
		os.Exit(1)
	}

	command := flag.Arg(0)
	args := flag.Args()[1:]
	a := newApp()

	var err error
	switch command {
	case "analyze":
		err = a.analyze(args)
	case "points":
		err = a.points(args)
	case "migrate":
		runMigrate(args)
	case "runs":
		err = a.listRuns(args)
	case "serve":
		err = serve(args)
	case "version":
		fmt.Println(version.String())
	case "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		log.Fatalf("%s: %v", command, err)
	}
}

func printUsage() {
	fmt.Println(`calreport - residual metrics for accelerometer calibrations

Usage: calreport <command> [options]

Commands:
  analyze    Compare raw and corrected recordings against a calibration report
  points     Point-level metrics from a calibration report alone
  migrate    Manage the run store schema (up, down, status, force)
  runs       List stored runs
  serve      Serve stored runs over HTTP
  version    Show calreport version
  help       Show this help message

Examples:
  calreport analyze -report calib.json -raw raw.csv -corr corr.csv -out out/
  calreport analyze -report calib.json -raw raw.csv -corr corr.csv -db runs.db -html
  calreport points -report calib.json -out out/
  calreport serve -db runs.db -listen :8080

Run 'calreport <command> -h' for the options of a command.`)
}

func runMigrate(args []string) {
	fs := flag.NewFlagSet("migrate", flag.ExitOnError)
	dbPath := fs.String("db", DefaultDBPath, "Run store path")
	// the action comes first: calreport migrate up -db runs.db
	if len(args) == 0 {
		db.PrintMigrateHelp(os.Stderr)
		os.Exit(1)
	}
	fs.Parse(args[1:])
	db.RunMigrateCommand(append([]string{args[0]}, fs.Args()...), *dbPath)
}

func serve(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	dbPath := fs.String("db", DefaultDBPath, "Run store path")
	listen := fs.String("listen", ":8080", "Listen address")
	fs.Parse(args)

	if *listen == "" {
		return fmt.Errorf("listen address is required")
	}

	database, err := db.NewDB(*dbPath)
	if err != nil {
		return fmt.Errorf("open run store: %w", err)
	}
	defer database.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := api.NewServer(database).Serve(ctx, *listen); err != nil {
		return err
	}
	monitoring.Logf("Graceful shutdown complete")
	return nil
}

// setVerbosity routes the report package's diagnostic streams to stderr.
func setVerbosity(verbose, trace bool) {
	var diag, tr io.Writer
	if verbose || trace {
		diag = os.Stderr
	}
	if trace {
		tr = os.Stderr
	}
	report.SetLogWriters(os.Stderr, diag, tr)
}
