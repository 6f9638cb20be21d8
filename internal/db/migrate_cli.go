package db

import (
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"
	"strconv"
)

// RunMigrateCommand handles the 'migrate' subcommand dispatching
func RunMigrateCommand(args []string, dbPath string) {
	if len(args) < 1 {
		PrintMigrateHelp(os.Stderr)
		os.Exit(1)
	}

	database, err := OpenDB(dbPath)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	if err := database.migrateAction(os.Stdout, Migrations(), args); err != nil {
		log.Fatalf("%v", err)
	}
}

// migrateAction runs one migrate subcommand against db and reports to out.
func (db *DB) migrateAction(out io.Writer, migrationsFS fs.FS, args []string) error {
	switch args[0] {
	case "up":
		log.Printf("Running migrations...")
		if err := db.MigrateUp(migrationsFS); err != nil {
			return err
		}
		return db.printStatus(out, migrationsFS)

	case "down":
		log.Printf("Rolling back one migration...")
		if err := db.MigrateDown(migrationsFS); err != nil {
			return err
		}
		return db.printStatus(out, migrationsFS)

	case "status":
		return db.printStatus(out, migrationsFS)

	case "force":
		if len(args) < 2 {
			return fmt.Errorf("usage: calreport migrate force <version_number>")
		}
		v, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid version number: %s", args[1])
		}
		if err := db.MigrateForce(migrationsFS, v); err != nil {
			return err
		}
		return db.printStatus(out, migrationsFS)

	case "help":
		PrintMigrateHelp(out)
		return nil

	default:
		PrintMigrateHelp(out)
		return fmt.Errorf("unknown migrate action: %s", args[0])
	}
}

func (db *DB) printStatus(out io.Writer, migrationsFS fs.FS) error {
	version, dirty, err := db.MigrateVersion(migrationsFS)
	if err != nil {
		return fmt.Errorf("failed to get migration status: %w", err)
	}
	latest, err := LatestMigrationVersion(migrationsFS)
	if err != nil {
		return err
	}

	fmt.Fprintln(out, "=== Migration Status ===")
	fmt.Fprintf(out, "Current version: %d\n", version)
	fmt.Fprintf(out, "Latest version:  %d\n", latest)
	fmt.Fprintf(out, "Dirty: %v\n", dirty)
	if dirty {
		fmt.Fprintln(out, "\nWARNING: a migration failed mid-execution.")
		fmt.Fprintln(out, "Inspect the database, then run: calreport migrate force <version>")
	} else if version < latest {
		fmt.Fprintf(out, "Outstanding migrations: %d (run: calreport migrate up)\n", latest-version)
	}
	return nil
}

// PrintMigrateHelp displays help for migrate commands
func PrintMigrateHelp(out io.Writer) {
	fmt.Fprint(out, `Usage: calreport migrate <action> [-db PATH]

Actions:
  up        Apply all pending migrations
  down      Roll back the most recent migration
  status    Show current and latest schema version
  force N   Mark the schema as version N (recovery from a dirty state)
  help      Show this message
`)
}
