/*
main.go - Application entry point

PURPOSE:
  Starts the rent ledger server, or runs one of its jobs once from the
  command line. Handles configuration, dependency wiring and shutdown.

COMMANDS:
  serve       HTTP API plus the rollover/reconcile scheduler (default)
  rollover    Roll every tenant into a month, then exit
  reconcile   Recompute every tenant balance, then exit

CONFIGURATION:
  Loaded by package config: .env, then CONFIG_PATH or ./config.yaml, then
  environment variables. Flags override the loaded values:
    --port     HTTP server port
    --db       Database DSN (SQLite path, ":memory:", or postgres URL)
    --driver   sqlite3 or postgres

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the scheduler (an in-flight rollover finishes its run marker)
  2. Stop accepting new connections and drain active requests
  3. Close the event publisher and the database

EXAMPLES:
  ./server serve --db=./data/rent.db
  ./server rollover --period=2024-04
  DATABASE_DRIVER=postgres DATABASE_DSN=postgres://... ./server reconcile

SEE ALSO:
  - api/server.go: Router configuration
  - api/scheduler.go: Scheduled jobs
  - config/config.go: All settings
*/
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

type flags struct {
	port   int
	dsn    string
	driver string
}

func main() {
	var f flags

	rootCmd := &cobra.Command{
		Use:           "rent-ledger",
		Short:         "Tenant balance and rent carry-forward engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().IntVar(&f.port, "port", 0, "HTTP server port (overrides config)")
	rootCmd.PersistentFlags().StringVar(&f.dsn, "db", "", "database DSN (overrides config)")
	rootCmd.PersistentFlags().StringVar(&f.driver, "driver", "", "database driver: sqlite3 or postgres (overrides config)")

	serve := serveCmd(&f)
	rootCmd.RunE = serve.RunE
	rootCmd.AddCommand(
		serve,
		rolloverCmd(&f),
		reconcileCmd(&f),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
