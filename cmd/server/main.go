// Package main provides the read API server for the token ledger.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/token-ledger/internal/api"
	"github.com/token-ledger/internal/config"
	"github.com/token-ledger/internal/logging"
	"github.com/token-ledger/internal/storage"
)

func main() {
	fmt.Println("Token Ledger API Server")

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logging.InitGlobalLogger(logging.ParseLogLevel(cfg.Logging.Level), logging.ParseLogFormat(cfg.Logging.Format))
	logger := logging.GetGlobalLogger()
	defer func() { _ = logger.Sync() }()

	logger.Info("Connecting to databases...")

	postgres, err := storage.NewPostgresDB(&cfg.Database.Postgres)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Postgres")
	}
	defer postgres.Close()

	deps := api.ServerDeps{
		Ledger: storage.NewQueryRepository(postgres),
		Checks: map[string]api.HealthCheck{"postgres": postgres.Ping},
		Logger: logger,
	}

	// Volume analytics need the ClickHouse mirror; Redis only memoizes them
	if cfg.Database.ClickHouse.Enabled {
		clickhouse, err := storage.NewClickHouseDB(&cfg.Database.ClickHouse)
		if err != nil {
			logger.WithError(err).Warn("ClickHouse unavailable, volume endpoint disabled")
		} else {
			defer func() { _ = clickhouse.Close() }()
			deps.Checks["clickhouse"] = clickhouse.Ping

			mirror := storage.NewTransferLogMirror(clickhouse)
			var volume api.VolumeReader = mirror
			if cfg.Database.Redis.Enabled {
				redis, err := storage.NewRedisCache(&cfg.Database.Redis)
				if err != nil {
					logger.WithError(err).Warn("Redis unavailable, volume queries will not be cached")
				} else {
					defer func() { _ = redis.Close() }()
					deps.Checks["redis"] = redis.Ping
					volume = storage.NewVolumeCache(storage.NewCacheService(redis, cfg.Cache.VolumeTTL), mirror, logger)
				}
			}
			deps.Volume = volume
		}
	}

	server := api.NewServer(&api.ServerConfig{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		ReadTimeout:     15 * time.Second,
		WriteTimeout:    15 * time.Second,
		IdleTimeout:     60 * time.Second,
		ShutdownTimeout: 30 * time.Second,
		RateLimitRPS:    cfg.API.RateLimitRPS,
		RateLimitBurst:  cfg.API.RateLimitBurst,
	}, deps)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- server.Start()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("Server error")
		}
	case sig := <-shutdown:
		logger.WithField("signal", sig.String()).Info("Shutdown signal received")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			logger.WithError(err).Error("Graceful shutdown failed")
		}
	}

	logger.Info("Server stopped")
}
