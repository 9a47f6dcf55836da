package main

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"jobmate/ingest-service/internal/config"
	"jobmate/ingest-service/internal/db"
	"jobmate/ingest-service/internal/extract"
	"jobmate/ingest-service/internal/fetcher"
	"jobmate/ingest-service/internal/notify"
	"jobmate/ingest-service/internal/pipeline"
	"jobmate/ingest-service/internal/report"
	"jobmate/ingest-service/internal/retry"
	"jobmate/ingest-service/internal/session"
	"jobmate/ingest-service/internal/store"
)

// app holds the wired service; every command builds one.
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	pool    *pgxpool.Pool
	rdb     *redis.Client
	store   *store.Postgres
	tracker *session.Tracker
	runner  *pipeline.Runner
}

func loadBase() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("config: %w", err)
	}
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func newApp(ctx context.Context) (*app, error) {
	cfg, logger, err := loadBase()
	if err != nil {
		return nil, err
	}

	logger.Info("connecting to PostgreSQL")
	pool, err := db.NewPostgresPool(ctx, cfg.DatabaseURL, int32(cfg.ScrapeWorkers*2+4))
	if err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}

	logger.Info("connecting to Redis")
	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("redis: %w", err)
	}

	pg := store.New(pool, logger)
	tracker := session.NewTracker(rdb, logger, cfg.SessionTTL)
	policy := retry.Policy{MaxAttempts: cfg.RetryMaxAttempts, Delay: cfg.RetryDelay}

	var mailer report.Mailer
	if cfg.SendGridAPIKey != "" {
		mailer = report.NewSendGridMailer(cfg.SendGridAPIKey, cfg.ReportSender, cfg.ReportSenderName, logger)
	}

	runner := pipeline.New(pipeline.Deps{
		Registry:    pg,
		Fetcher:     fetcher.NewBridge(cfg.BridgeURL, cfg.BridgeAPIKey, logger),
		Extractor:   extract.NewEngine(extract.WithTopN(cfg.KeywordTopN)),
		Jobs:        pg,
		Subscribers: pg,
		Sessions:    tracker,
		Notifier: notify.NewDispatcher(notify.NewHTTPSender(cfg.PushURL, cfg.PushAPIKey), notify.Options{
			BatchSize:   cfg.PushBatchSize,
			Concurrency: cfg.PushConcurrency,
			MinScore:    cfg.NotifyMinScore,
			Retry:       policy,
		}, logger),
		Reporter: report.NewEmitter(pg, mailer, logger),
	}, pipeline.Config{
		Workers:      cfg.ScrapeWorkers,
		FetchLimit:   cfg.FetchLimit,
		RetryCap:     cfg.ExtractionRetryCap,
		BlockedTerms: cfg.BlockedTerms,
		Retry:        policy,
	}, logger)

	if cfg.PushURL == "" {
		logger.Warn("PUSH_URL not set, notification sweeps will fail until configured")
	}

	return &app{cfg: cfg, logger: logger, pool: pool, rdb: rdb, store: pg, tracker: tracker, runner: runner}, nil
}

func (a *app) Close() {
	a.runner.Wait()
	a.rdb.Close()
	a.pool.Close()
	_ = a.logger.Sync()
}
