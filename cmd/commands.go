package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"jobmate/ingest-service/internal/db"
	"jobmate/ingest-service/internal/session"
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run one scraping session and wait for it to finish",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			s, err := a.runner.Run(cmd.Context())
			if err != nil {
				return err
			}
			printSession(cmd, s)
			if s.Status == session.StatusFailed {
				return fmt.Errorf("session %s failed: %s", s.ID, s.Error)
			}
			return nil
		},
	}
}

func newPollCmd() *cobra.Command {
	var (
		attempts int
		interval = session.DefaultPollInterval
	)
	cmd := &cobra.Command{
		Use:   "poll <sessionId>",
		Short: "Follow a session until it completes or fails",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadBase()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			rdb, err := db.NewRedisClient(cmd.Context(), cfg.RedisURL)
			if err != nil {
				return fmt.Errorf("redis: %w", err)
			}
			defer rdb.Close()

			tracker := session.NewTracker(rdb, logger, cfg.SessionTTL)
			s, err := session.Poll(cmd.Context(), tracker, args[0], attempts, interval, func(s *session.Session) {
				fmt.Fprintf(cmd.OutOrStdout(), "%-9s %d/%d channels, %d jobs\n",
					s.Status, s.ProcessedChannels, s.TotalChannels, s.TotalJobsExtracted)
			})
			if errors.Is(err, session.ErrPollTimeout) {
				return fmt.Errorf("session %s did not finish in time (it keeps running)", args[0])
			}
			if err != nil {
				return err
			}
			printSession(cmd, s)
			return nil
		},
	}
	cmd.Flags().IntVar(&attempts, "attempts", session.DefaultPollAttempts, "maximum number of reads")
	cmd.Flags().DurationVar(&interval, "interval", session.DefaultPollInterval, "delay between reads")
	return cmd
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadBase()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			pool, err := db.NewPostgresPool(cmd.Context(), cfg.DatabaseURL, 2)
			if err != nil {
				return fmt.Errorf("postgres: %w", err)
			}
			defer pool.Close()

			if err := db.Migrate(cmd.Context(), pool); err != nil {
				return err
			}
			logger.Info("schema applied")
			return nil
		},
	}
}

func newRetryFailedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "retry-failed",
		Short: "Re-extract pending failed extractions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			stats, err := a.runner.RetryFailed(cmd.Context())
			if err != nil {
				return err
			}
			a.logger.Info("retry sweep done",
				zap.Int("attempted", stats.Attempted),
				zap.Int("resolved", stats.Resolved),
				zap.Int("blocked", stats.Blocked),
				zap.Int("stillPending", stats.StillPending),
				zap.Int("manualReview", stats.ManualReview))
			return nil
		},
	}
}

func newNotifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "notify",
		Short: "Push jobs that have not been notified yet",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			stats, err := a.runner.NotifyPending(cmd.Context())
			if err != nil {
				return err
			}
			a.logger.Info("notification sweep done",
				zap.Int("jobs", stats.Jobs),
				zap.Int("notified", stats.Notified),
				zap.Int("sent", stats.Sent),
				zap.Int64("tokensRemoved", stats.TokensRemoved))
			return nil
		},
	}
}

func printSession(cmd *cobra.Command, s *session.Session) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "session    %s\n", s.ID)
	fmt.Fprintf(out, "status     %s\n", s.Status)
	fmt.Fprintf(out, "channels   %d/%d\n", s.ProcessedChannels, s.TotalChannels)
	fmt.Fprintf(out, "messages   %d\n", s.TotalMessagesProcessed)
	fmt.Fprintf(out, "jobs       %d\n", s.TotalJobsExtracted)
	fmt.Fprintf(out, "errors     %d\n", len(s.Errors))
	for _, e := range s.Errors {
		fmt.Fprintf(out, "  - %s\n", e)
	}
	if s.Error != "" {
		fmt.Fprintf(out, "fatal      %s\n", s.Error)
	}
}
