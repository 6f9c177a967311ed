package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/reeldle/internal/config"
	"github.com/reeldle/internal/handler"
	"github.com/reeldle/internal/kafka"
	"github.com/reeldle/internal/postgres"
	"github.com/reeldle/internal/redis"
	"github.com/reeldle/internal/service"
	"github.com/reeldle/internal/tmdb"
	"github.com/reeldle/internal/websocket"
	"github.com/reeldle/internal/worker"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	flag.Parse()

	// Setup structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Warn("failed to load config file, using defaults", "error", err)
		cfg = config.DefaultConfig()
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize Redis
	logger.Info("connecting to Redis", "addr", cfg.Redis.Addr)
	cache, err := redis.NewCache(&cfg.Redis, logger)
	if err != nil {
		logger.Error("failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	defer cache.Close()
	logger.Info("connected to Redis")

	// Initialize PostgreSQL
	logger.Info("connecting to PostgreSQL", "host", cfg.Postgres.Host, "database", cfg.Postgres.Database)
	repo, err := postgres.NewRepository(&cfg.Postgres, logger)
	if err != nil {
		logger.Error("failed to connect to PostgreSQL", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	logger.Info("connected to PostgreSQL")

	// Run database migrations
	if err := repo.RunMigrations(ctx); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	// Initialize the movie catalog
	tmdbClient := tmdb.NewClient(&cfg.TMDB, logger)
	catalog := tmdb.NewCachedCatalog(tmdbClient, cache, cfg.TMDB.CacheTTL, logger)

	// Initialize WebSocket hub
	wsHub := websocket.NewHub(logger)
	go wsHub.Run()
	logger.Info("WebSocket hub initialized")

	// Initialize the game engine
	gameService := service.NewGameService(repo, catalog, &cfg.Game, logger)
	gameService.SetPulse(cache, wsHub)

	// Initialize Kafka producer for game event publishing
	var producer *kafka.Producer
	if cfg.Kafka.Enabled {
		logger.Info("initializing Kafka producer",
			"brokers", cfg.Kafka.Brokers,
			"topic", cfg.Kafka.Topic,
		)
		producer, err = kafka.NewProducer(&cfg.Kafka, logger)
		if err != nil {
			logger.Warn("failed to create Kafka producer, continuing without Kafka", "error", err)
		} else {
			gameService.SetEventPublisher(producer)
			logger.Info("Kafka producer started successfully")
		}
	}

	// Initialize catalog refresh worker
	refreshWorker := worker.NewRefreshWorker(catalog, repo, &cfg.Refresh, logger)
	if cfg.Refresh.Enabled {
		// Warm the cache on startup so the first request of the day does
		// not pay the full TMDB fetch.
		go refreshWorker.RunOnce(ctx)
		if err := refreshWorker.Start(ctx); err != nil {
			logger.Error("failed to start refresh worker", "error", err)
			os.Exit(1)
		}
	}

	// Initialize HTTP handler with WebSocket hub
	httpHandler := handler.NewHandler(gameService, wsHub, logger)

	// Create HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      httpHandler.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in goroutine
	go func() {
		logger.Info("starting HTTP server", "port", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	// Create shutdown context with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Stop WebSocket hub
	wsHub.Stop()

	// Stop Kafka producer
	if producer != nil {
		if err := producer.Close(); err != nil {
			logger.Error("failed to stop Kafka producer", "error", err)
		}
	}

	// Stop refresh worker
	if cfg.Refresh.Enabled {
		if err := refreshWorker.Stop(); err != nil {
			logger.Error("failed to stop refresh worker", "error", err)
		}
	}

	// Shutdown HTTP server
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown server", "error", err)
	}

	logger.Info("server stopped")
}
