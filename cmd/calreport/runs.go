package main

import (
	"flag"
	"fmt"
	"time"

	"github.com/banshee-data/calibration.report/internal/db"
)

func (a *app) listRuns(args []string) error {
	fs := flag.NewFlagSet("runs", flag.ContinueOnError)
	dbPath := fs.String("db", DefaultDBPath, "Run store path")
	limit := fs.Int("limit", 20, "Show at most this many runs (0 for all)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	database, err := db.NewDB(*dbPath)
	if err != nil {
		return fmt.Errorf("open run store: %w", err)
	}
	defer database.Close()

	runs, err := database.ListRuns(*limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(a.stdout, "no runs recorded")
		return nil
	}

	fmt.Fprintf(a.stdout, "%-36s  %-20s  %4s  %6s  %s\n", "RUN", "CREATED", "NPOS", "L", "REPORT")
	for _, r := range runs {
		fmt.Fprintf(a.stdout, "%-36s  %-20s  %4d  %6d  %s\n",
			r.RunID, r.CreatedAt.Format(time.RFC3339), r.PositionCount, r.BlockLength, r.Inputs.Report)
	}
	return nil
}
