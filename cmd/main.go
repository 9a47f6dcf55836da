// jobmate-ingest-service
//
// Ingests posts from job channels, extracts structured job postings,
// deduplicates and persists them, and pushes matching jobs to subscribers.
//
//	serve         HTTP + gRPC + cron scheduler
//	run           one synchronous scraping run
//	poll <id>     follow a session until it ends
//	migrate       apply the embedded schema
//	retry-failed  re-extract failed messages
//	notify        push pending jobs
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "ingest-service",
		Short:         "Job channel ingestion, extraction and notification pipeline",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		newServeCmd(),
		newRunCmd(),
		newPollCmd(),
		newMigrateCmd(),
		newRetryFailedCmd(),
		newNotifyCmd(),
	)
	return root
}

func newLogger(level string) (*zap.Logger, error) {
	if level == "debug" {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("LOG_LEVEL: %w", err)
	}
	return cfg.Build()
}
