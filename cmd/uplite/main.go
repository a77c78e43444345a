package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"uplite/internal/config"
	"uplite/internal/httpapi"
	"uplite/internal/logging"
	"uplite/internal/probe"
	"uplite/internal/repo"
	"uplite/internal/repo/memory"
	"uplite/internal/repo/postgres"
	"uplite/internal/repo/sqlite"
	"uplite/internal/scheduler"
	"uplite/internal/stats"
)

func main() {
	configPath := flag.String("config", "", "optional YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal(err)
	}
	logger, err := logging.NewLogger(cfg.LogDir, cfg.Debug)
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	targets, history, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("store_open_error", zap.String("store", cfg.Store), zap.Error(err))
	}
	defer closeStore()

	checker := probe.New()
	engine := stats.NewEngine(history)

	monitor := scheduler.NewMonitor(
		logger, targets, history, checker,
		cfg.CheckInterval, cfg.CycleRetryDelay, cfg.MaxConcurrentChecks,
	)
	go monitor.Run(ctx)

	cr := cron.New()
	sweeper := scheduler.NewSweeper(logger, history, cfg.Retention)
	if err := sweeper.Schedule(cr, cfg.SweepSchedule); err != nil {
		logger.Fatal("sweep_schedule_error", zap.String("spec", cfg.SweepSchedule), zap.Error(err))
	}
	cr.Start()
	defer cr.Stop()

	api := httpapi.NewServer(logger, targets, history, engine, checker)
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("api_listen", zap.String("addr", cfg.Addr), zap.String("store", cfg.Store))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("api_serve_error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting_down")

	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutCtx); err != nil {
		logger.Warn("api_shutdown_error", zap.Error(err))
	}
}

// openStore builds the configured persistence backend. The returned
// close function is safe to call once at shutdown.
func openStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (repo.TargetStore, repo.HistoryStore, func(), error) {
	switch cfg.Store {
	case "memory":
		s := memory.New(cfg.Retention)
		return s, s, func() {}, nil
	case "sqlite":
		if dir := filepath.Dir(cfg.SQLitePath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, nil, nil, err
			}
		}
		s, err := sqlite.New(ctx, cfg.SQLitePath, cfg.Retention)
		if err != nil {
			return nil, nil, nil, err
		}
		return s, s, func() { _ = s.Close() }, nil
	case "postgres":
		s, err := postgres.New(ctx, cfg.DatabaseURL, cfg.Retention, logger)
		if err != nil {
			return nil, nil, nil, err
		}
		return s, s, func() { s.Close() }, nil
	}
	// config.Load validates the store name; this is unreachable.
	return nil, nil, nil, errors.New("unknown store " + cfg.Store)
}
