package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/reeldle/internal/config"
	"github.com/reeldle/internal/postgres"
	"github.com/reeldle/internal/redis"
	"github.com/reeldle/internal/tmdb"
)

// catalog-seed fetches the curated movie lists from TMDB, upserts every
// eligible movie into PostgreSQL and warms the Redis catalog cache. Run it
// once before the first server start, or any time the curated lists change.
func main() {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	skipCache := flag.Bool("skip-cache", false, "Skip warming the Redis catalog cache")
	timeout := flag.Duration("timeout", 5*time.Minute, "Overall seeding timeout")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Warn("failed to load config file, using defaults", "error", err)
		cfg = config.DefaultConfig()
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	repo, err := postgres.NewRepository(&cfg.Postgres, logger)
	if err != nil {
		logger.Error("failed to connect to PostgreSQL", "error", err)
		os.Exit(1)
	}
	defer repo.Close()

	if err := repo.RunMigrations(ctx); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	client := tmdb.NewClient(&cfg.TMDB, logger)

	logger.Info("fetching curated movie lists", "lists", cfg.TMDB.ListIDs)
	movies, err := client.FetchCuratedMovies(ctx)
	if err != nil {
		logger.Error("failed to fetch curated movies", "error", err)
		os.Exit(1)
	}
	logger.Info("fetched curated catalog", "movies", len(movies))

	stored := 0
	for _, movie := range movies {
		if _, err := repo.UpsertMovie(ctx, movie); err != nil {
			logger.Warn("failed to store movie, skipping",
				"tmdb_id", movie.TmdbID,
				"title", movie.Title,
				"error", err,
			)
			continue
		}
		stored++
	}

	if !*skipCache {
		cache, err := redis.NewCache(&cfg.Redis, logger)
		if err != nil {
			logger.Warn("failed to connect to Redis, cache not warmed", "error", err)
		} else {
			defer cache.Close()
			if err := cache.SetCatalog(ctx, movies, cfg.TMDB.CacheTTL); err != nil {
				logger.Warn("failed to warm catalog cache", "error", err)
			} else {
				logger.Info("catalog cache warmed", "ttl", cfg.TMDB.CacheTTL)
			}
		}
	}

	total, err := repo.CountMovies(ctx)
	if err != nil {
		total = int64(stored)
	}

	fmt.Printf("Seeding complete: %d fetched, %d stored, %d total in catalog\n",
		len(movies), stored, total)
}
