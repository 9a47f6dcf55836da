package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"jobmate/ingest-service/internal/api"
	"jobmate/ingest-service/internal/grpcserver"
	"jobmate/ingest-service/internal/scheduler"
)

func newServeCmd() *cobra.Command {
	var runNow bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve HTTP and gRPC and run the cron scheduler",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), runNow)
		},
	}
	cmd.Flags().BoolVar(&runNow, "run-now", false, "start a scraping run immediately")
	return cmd
}

func serve(ctx context.Context, runNow bool) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	log := a.logger

	// ── HTTP server ──────────────────────────────────────────────────────────
	mux := http.NewServeMux()
	api.NewHandler(a.runner, log).RegisterRoutes(mux)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", a.cfg.Port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	go func() {
		log.Info("http listening", zap.String("port", a.cfg.Port), zap.String("version", api.Version))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server", zap.Error(err))
			cancel()
		}
	}()

	// ── gRPC server ──────────────────────────────────────────────────────────
	lis, err := net.Listen("tcp", fmt.Sprintf(":%s", a.cfg.GRPCPort))
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}
	gs := grpc.NewServer()
	grpcserver.Register(gs, grpcserver.NewServer(a.runner, a.tracker, a.store, log))
	go func() {
		log.Info("grpc listening", zap.String("port", a.cfg.GRPCPort))
		if err := gs.Serve(lis); err != nil {
			log.Error("grpc server", zap.Error(err))
			cancel()
		}
	}()

	// ── Scheduler ────────────────────────────────────────────────────────────
	sched := scheduler.New(a.runner, scheduler.Specs{Run: a.cfg.ScrapeSpec()}, log)
	if err := sched.Start(ctx, runNow); err != nil {
		return err
	}

	// ── Graceful shutdown ────────────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown", zap.Error(err))
	}
	gs.GracefulStop()
	select {
	case <-sched.Stop().Done():
	case <-shutdownCtx.Done():
		log.Warn("scheduled jobs still running at shutdown, waiting for active runs")
	}
	log.Info("stopped")
	return nil
}
