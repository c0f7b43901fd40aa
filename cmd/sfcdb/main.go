// Command sfcdb runs the ingest and query jobs described in a job
// document (spec.md §6.3) against a Postgres/PostGIS database.
//
// Grounded on the teacher's cmd/arx/main.go: a single Cobra root
// command with subcommands, persistent flags shared across them, and
// a SilenceUsage/SilenceErrors root so job failures print once instead
// of alongside a Cobra usage dump.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sfcdb/sfcdb/internal/jobconfig"
	"github.com/sfcdb/sfcdb/internal/logger"
	"github.com/sfcdb/sfcdb/internal/runner"
	"github.com/sfcdb/sfcdb/internal/store"
)

var (
	inputPath string
	password  string
	logLevel  string
)

var rootCmd = &cobra.Command{
	Use:           "sfcdb",
	Short:         "Load and query LiDAR point clouds stored on a space-filling curve index",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Run every ingest job in a job document",
	RunE: func(cmd *cobra.Command, args []string) error {
		jobs, s, log, err := setup(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()

		r := runner.New(s, log)
		results := r.RunIngests(cmd.Context(), jobs.Ingests)
		printResults(results)
		return exitIfFailed(results)
	},
}

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Run every query job in a job document",
	RunE: func(cmd *cobra.Command, args []string) error {
		jobs, s, log, err := setup(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()

		r := runner.New(s, log)
		results := r.RunQueries(cmd.Context(), jobs.Queries)
		printResults(results)
		return exitIfFailed(results)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&inputPath, "input", "i", "", "path to the job document (JSON or YAML)")
	rootCmd.PersistentFlags().StringVar(&password, "password", "", "database password, overrides the job document's connection.password")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	rootCmd.MarkPersistentFlagRequired("input")

	rootCmd.AddCommand(ingestCmd, queryCmd)
}

func setup(ctx context.Context) (*jobconfig.Jobs, *store.Store, *logger.Logger, error) {
	level, err := logger.ParseLevel(logLevel)
	if err != nil {
		return nil, nil, nil, err
	}
	logger.SetLevel(level)
	log := logger.New(level)

	jobs, err := jobconfig.LoadFile(inputPath)
	if err != nil {
		return nil, nil, nil, err
	}

	conn := jobs.Connection
	if password != "" {
		conn.Password = password
	}

	s, err := store.Open(ctx, store.Config{
		Host:     conn.Host,
		Port:     conn.Port,
		Database: conn.Database,
		User:     conn.User,
		Password: conn.Password,
	})
	if err != nil {
		return nil, nil, nil, err
	}

	return jobs, s, log, nil
}

func printResults(results []runner.Result) {
	for _, res := range results {
		if res.Err != nil {
			fmt.Printf("job %s (%s): failed after %s: %v\n", res.Name, res.Kind, res.Duration, res.Err)
		} else {
			fmt.Printf("job %s (%s): succeeded in %s\n", res.Name, res.Kind, res.Duration)
		}
	}
}

func exitIfFailed(results []runner.Result) error {
	if runner.ExitCode(results) != 0 {
		return fmt.Errorf("%d of %d jobs failed", countFailed(results), len(results))
	}
	return nil
}

func countFailed(results []runner.Result) int {
	n := 0
	for _, res := range results {
		if res.Err != nil {
			n++
		}
	}
	return n
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "sfcdb: %v\n", err)
		os.Exit(1)
	}
}
