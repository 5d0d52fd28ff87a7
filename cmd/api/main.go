package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/angelmondragon/fieldsync/api/controllers"
	"github.com/angelmondragon/fieldsync/api/routes"
	"github.com/angelmondragon/fieldsync/internal/backend"
	"github.com/angelmondragon/fieldsync/pkg/config"
	"github.com/angelmondragon/fieldsync/pkg/idempotency"
	"github.com/angelmondragon/fieldsync/pkg/logger"
	pkgredis "github.com/angelmondragon/fieldsync/pkg/redis"
	"github.com/joho/godotenv"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dataset, err := backend.LoadDataset(cfg.Backend.FixturePath)
	if err != nil {
		logg.Error(context.Background(), "failed to load backend dataset", err)
		os.Exit(1)
	}

	var (
		seenStore   pkgredis.IdempotencyStore = idempotency.NewMemoryStore()
		redisPinger controllers.Pinger
		counter     pkgredis.Counter
	)
	if cfg.Redis.Enabled() {
		redisClient, err := pkgredis.New(context.Background(), cfg.Redis, logg)
		if err != nil {
			logg.Error(context.Background(), "failed to bootstrap redis", err)
			os.Exit(1)
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing redis", err)
			}
		}()
		seenStore = redisClient
		redisPinger = redisClient
		counter = redisClient
	}

	manager, err := idempotency.NewManager(seenStore, cfg.Backend.IdempotencyTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create idempotency manager", err)
		os.Exit(1)
	}

	svc, err := backend.NewService(backend.ServiceParams{
		Dataset:     dataset,
		JWT:         cfg.JWT,
		Password:    cfg.Password,
		Idempotency: manager,
		Logger:      logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create backend service", err)
		os.Exit(1)
	}

	addr := ":" + cfg.Backend.Port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":            cfg.App.Env,
		"addr":           addr,
		"reps":           len(dataset.Reps),
		"clients":        len(dataset.Clients),
		"products":       len(dataset.Products),
		"payment_tables": len(dataset.PaymentTables),
		"redis":          cfg.Redis.Enabled(),
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr:              addr,
		Handler:           routes.NewRouter(cfg, logg, redisPinger, counter, svc),
		ReadHeaderTimeout: 10 * time.Second,
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-sigCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "api server shutdown failed", err)
		}
	}()

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "api server stopped")
}
