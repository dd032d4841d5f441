// Command migrate creates the run-log table and lists recent runs.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"time"

	_ "github.com/lib/pq"

	"github.com/ignite/audience-hasher/internal/config"
	"github.com/ignite/audience-hasher/internal/runlog"
	"github.com/spf13/pflag"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := pflag.NewFlagSet("migrate", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "Path to YAML configuration file")
	list := fs.Int("list", 0, "List this many recent runs instead of migrating")
	if err := fs.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			return 0
		}
		return 2
	}

	cfg, err := config.LoadFromEnv(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "config: %v\n", err)
		return 1
	}
	if cfg.Database.URL == "" {
		fmt.Fprintln(stderr, "DATABASE_URL is required")
		return 2
	}

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		fmt.Fprintf(stderr, "connect: %v\n", err)
		return 1
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := migrate(ctx, db, *list, stdout); err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	return 0
}

func migrate(ctx context.Context, db *sql.DB, list int, stdout io.Writer) error {
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	fmt.Fprintln(stdout, "Connected to database")

	rec := runlog.NewPostgresRecorder(db)
	if list > 0 {
		runs, err := rec.Recent(ctx, list)
		if err != nil {
			return err
		}
		for _, r := range runs {
			fmt.Fprintf(stdout, "  %s  %-7s %-9s in=%d out=%d dup=%d  %s\n",
				r.StartedAt.Format(time.RFC3339), r.Command, r.Status,
				r.RowsIn, r.RowsOut, r.Duplicates, r.Source)
		}
		fmt.Fprintf(stdout, "Total: %d runs\n", len(runs))
		return nil
	}

	if err := rec.EnsureSchema(ctx); err != nil {
		return err
	}
	fmt.Fprintln(stdout, "audience_hash_runs is up to date")
	return nil
}
