package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/llmuptime/internal/config"
	"github.com/hamed0406/llmuptime/internal/httpapi"
	apimw "github.com/hamed0406/llmuptime/internal/httpapi/middleware"
	"github.com/hamed0406/llmuptime/internal/logging"
	"github.com/hamed0406/llmuptime/internal/notify"
	"github.com/hamed0406/llmuptime/internal/probe"
	"github.com/hamed0406/llmuptime/internal/repo"
	"github.com/hamed0406/llmuptime/internal/repo/memory"
	"github.com/hamed0406/llmuptime/internal/repo/postgres"
	"github.com/hamed0406/llmuptime/internal/repo/sqlite"
	"github.com/hamed0406/llmuptime/internal/scheduler"
	"github.com/hamed0406/llmuptime/internal/status"
)

func main() {
	cfg := config.FromEnv()
	if err := cfg.Validate(); err != nil {
		log.Fatal(err)
	}
	logger, err := logging.NewLogger(cfg.LogDir, cfg.LogLevel, cfg.LogConsole)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("store_open_error", zap.Error(err))
	}
	defer func() { _ = store.Close() }()

	notifiers := notify.Multi{notify.Log{Logger: logger}}
	if slack := notify.NewSlack(cfg.SlackWebhook); slack != nil {
		notifiers = append(notifiers, slack)
	}
	alerter := scheduler.NewAlerter(store, notifiers, scheduler.AlerterConfig{
		AlertOnRecovery: cfg.AlertRecovery,
		Cooldown:        cfg.AlertCooldown,
	}, logger)

	registry := probe.Defaults(logger)
	svc := status.NewService(cfg.ProvidersPath, registry, store, alerter, logger)

	pruner := scheduler.NewPruner(logger, store, cfg.PruneSchedule, cfg.RetentionDays)
	go func() {
		if err := pruner.Run(ctx); err != nil {
			logger.Error("pruner_error", zap.Error(err))
		}
	}()

	keys := apimw.Keys{Public: cfg.PublicAPIKeys, Admin: cfg.AdminAPIKeys}
	api := httpapi.NewServer(logger, svc)
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Router(keys, cfg.AllowedOrigins, cfg.PublicRPM, cfg.PublicBurst),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("api_listen",
		zap.String("addr", cfg.Addr),
		zap.String("providers_config", cfg.ProvidersPath),
		zap.Strings("providers", registry.Keys()),
	)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("api_listen_error", zap.Error(err))
	}
	logger.Info("api_stopped")
}

// openStore picks postgres when DATABASE_URL is set, otherwise STORE.
func openStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (repo.Store, error) {
	switch {
	case cfg.DatabaseURL != "":
		return postgres.New(ctx, cfg.DatabaseURL, logger)
	case cfg.Store == "memory":
		logger.Warn("store_memory", zap.String("note", "history is lost on restart"))
		return memory.New(), nil
	default:
		path := filepath.Join(cfg.DataDir, "status_history.db")
		logger.Info("store_open", zap.String("driver", "sqlite"), zap.String("path", path))
		return sqlite.New(path)
	}
}
