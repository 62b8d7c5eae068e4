// Package main provides the API server entry point for the fraud feature store.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fraud-feature-store/internal/api"
	"github.com/fraud-feature-store/internal/config"
	"github.com/fraud-feature-store/internal/feature"
	"github.com/fraud-feature-store/internal/logging"
	"github.com/fraud-feature-store/internal/service"
	"github.com/fraud-feature-store/internal/storage"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize structured logging
	logLevel := logging.ParseLogLevel(cfg.Logging.Level)
	logFormat := logging.ParseLogFormat(cfg.Logging.Format)
	logging.InitGlobalLogger(logLevel, logFormat)

	logger := logging.GetGlobalLogger()
	logger.WithFields(map[string]interface{}{
		"level":  cfg.Logging.Level,
		"format": cfg.Logging.Format,
	}).Info("Structured logging initialized")

	logger.Info("Connecting to databases...")

	postgres, err := storage.NewPostgresDB(&cfg.Database.Postgres)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Postgres")
	}
	defer postgres.Close()

	clickhouse, err := storage.NewClickHouseDB(&cfg.Database.ClickHouse)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to ClickHouse")
	}
	defer clickhouse.Close()

	redis, err := storage.NewRedisCache(&cfg.Database.Redis)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Redis")
	}
	defer redis.Close()

	logger.Info("Database connections established")

	// Initialize repositories
	txnRepo := storage.NewTransactionRepository(clickhouse)
	snapshotRepo := storage.NewSnapshotRepository(postgres.Pool())
	featureCache := storage.NewFeatureCache(redis, cfg.Cache.TTL)

	// Initialize services
	pipeline := feature.NewPipeline(&feature.PipelineConfig{
		LifetimeWindowMode: cfg.Engine.LifetimeWindowMode,
		Logger:             logger,
	})

	featureService := service.NewFeatureService(&service.FeatureServiceConfig{
		Pipeline:     pipeline,
		TxnRepo:      txnRepo,
		SnapshotRepo: snapshotRepo,
		Cache:        featureCache,
		Logger:       logger,
	})
	decisionService := service.NewDecisionService(cfg.Decision)

	// Rebuild the in-memory stores from the durable transaction log so
	// feature windows survive restarts.
	logger.Info("Replaying transaction log...")
	replayCtx, replayCancel := context.WithTimeout(context.Background(), 10*time.Minute)
	count, err := featureService.RebuildFromLog(replayCtx)
	replayCancel()
	if err != nil {
		logger.WithError(err).Fatal("Failed to replay transaction log")
	}
	logger.WithField("transactions", count).Info("Transaction log replayed")

	serverConfig := &api.ServerConfig{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		ReadTimeout:     15 * time.Second,
		WriteTimeout:    15 * time.Second,
		IdleTimeout:     60 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		RateLimitRPS:    cfg.RateLimit.RequestsPerSecond,
		RateLimitBurst:  cfg.RateLimit.Burst,
	}

	server := api.NewServer(serverConfig, featureService, decisionService)

	go func() {
		if err := server.Start(); err != nil {
			logger.WithError(err).Fatal("Server failed to start")
		}
	}()

	logger.WithFields(map[string]interface{}{
		"host": cfg.Server.Host,
		"port": cfg.Server.Port,
	}).Info("Server started successfully")

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), serverConfig.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.WithError(err).Fatal("Server forced to shutdown")
	}

	logger.Info("Server exited")
}
