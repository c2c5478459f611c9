package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/shubhsaxena/catalog-search/internal/api"
	"github.com/shubhsaxena/catalog-search/internal/cache"
	"github.com/shubhsaxena/catalog-search/internal/clickhouse"
	"github.com/shubhsaxena/catalog-search/internal/config"
	"github.com/shubhsaxena/catalog-search/internal/distributor"
	"github.com/shubhsaxena/catalog-search/internal/indexing"
	"github.com/shubhsaxena/catalog-search/internal/kafka"
	"github.com/shubhsaxena/catalog-search/internal/observability"
	"github.com/shubhsaxena/catalog-search/internal/orchestrator"
	"github.com/shubhsaxena/catalog-search/internal/store"
	"github.com/shubhsaxena/catalog-search/internal/tracking"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	envPath := flag.String("env", ".env", "Optional dotenv file loaded before the config")
	flag.Parse()

	if err := run(*configPath, *envPath); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, envPath string) error {
	if err := config.LoadEnv(envPath); err != nil {
		return fmt.Errorf("loading env file: %w", err)
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger, err := observability.NewLogger(cfg.Observability.LogLevel)
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}
	defer logger.Sync()

	logger.Info("starting catalog search service",
		zap.String("service", cfg.Observability.ServiceName),
		zap.String("mirror_driver", cfg.Database.Driver),
		zap.String("cache_backend", cfg.Cache.Backend),
	)

	tracerShutdown, err := observability.InitTracer(cfg.Observability.ServiceName, cfg.Observability.TracingSampleRate)
	if err != nil {
		logger.Warn("tracing initialization failed, continuing without tracing", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	healthHandler := api.NewHealthHandler(logger)

	// Local mirror
	db, err := store.Open(cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("opening product mirror: %w", err)
	}
	defer db.Close()
	if err := db.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("preparing product mirror: %w", err)
	}
	healthHandler.Register("mirror", db)
	logger.Info("product mirror ready")

	// Distributor catalog
	dist := distributor.NewClient(cfg.Distributor, logger)
	healthHandler.RegisterOptional("distributor", dist)

	// Result cache and query tracking
	var (
		resultCache cache.Store
		tracker     tracking.Tracker
	)
	switch cfg.Cache.Backend {
	case "redis":
		var client redis.UniversalClient
		client, err = cache.NewRedisClient(cfg.Redis)
		if err != nil {
			return fmt.Errorf("initializing redis: %w", err)
		}
		redisCache := cache.NewRedisCache(client, cfg.Redis.KeyPrefix, cfg.Cache.TTL, logger)
		resultCache = redisCache
		tracker = tracking.NewRedisTracker(client, cfg.Redis.KeyPrefix, cfg.Search.HistorySize)
		healthHandler.RegisterOptional("redis", redisCache)
		logger.Info("redis cache initialized", zap.Strings("addresses", cfg.Redis.Addresses))
	default:
		resultCache = cache.NewMemoryCache(cfg.Cache.TTL)
		tracker = tracking.NewMemoryTracker(cfg.Search.HistorySize)
		logger.Info("in-memory cache initialized", zap.Duration("ttl", cfg.Cache.TTL))
	}
	defer resultCache.Close()

	// Analytics
	var (
		analytics  orchestrator.AnalyticsWriter
		slowWriter observability.AnalyticsWriter
		topQueries api.TopQueries
		changeLog  indexing.ChangeLog
	)
	if cfg.ClickHouse.Enabled {
		chClient, err := clickhouse.NewClient(cfg.ClickHouse, logger)
		if err != nil {
			logger.Warn("clickhouse initialization failed, analytics will be unavailable", zap.Error(err))
		} else {
			defer chClient.Close()
			if err := chClient.EnsureTables(ctx); err != nil {
				logger.Warn("clickhouse table creation failed", zap.Error(err))
			}
			analytics = chClient
			slowWriter = chClient
			topQueries = chClient
			changeLog = chClient
			healthHandler.RegisterOptional("clickhouse", chClient)
		}
	}

	slowQueryDetector := observability.NewSlowQueryDetector(
		cfg.Search.SlowQuery.WarningThreshold,
		cfg.Search.SlowQuery.CriticalThreshold,
		logger,
		slowWriter,
	)

	orch := orchestrator.New(
		db, dist, resultCache, tracker, analytics,
		slowQueryDetector, cfg.Search, logger,
	)

	// Mirror pipeline
	if cfg.Kafka.Enabled {
		processor := indexing.NewMirrorProcessor(db, resultCache, changeLog, cfg.Mirror, logger)
		defer processor.Stop()

		consumer := kafka.NewConsumer(cfg.Kafka, processor.HandleEvent, processor, logger)
		if err := consumer.Start(ctx); err != nil {
			logger.Warn("kafka consumer start failed, mirror pipeline will be unavailable", zap.Error(err))
		} else {
			defer consumer.Stop()
			healthHandler.RegisterOptional("kafka", consumer)
		}
	}

	handler := api.NewHandler(orch, tracker, topQueries, cfg.Search, logger)
	router := api.NewRouter(handler, healthHandler, cfg.Server.MaxConcurrent, logger)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server starting", zap.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutdown signal received", zap.String("signal", sig.String()))
	case err := <-errCh:
		return err
	}

	logger.Info("starting graceful shutdown", zap.Duration("timeout", cfg.Server.ShutdownTimeout))

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", zap.Error(err))
	}

	cancel()

	if tracerShutdown != nil {
		if err := tracerShutdown(shutdownCtx); err != nil {
			logger.Error("tracer shutdown error", zap.Error(err))
		}
	}

	logger.Info("shutdown complete")
	return nil
}
