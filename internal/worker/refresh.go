package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/reeldle/internal/config"
	"github.com/reeldle/internal/domain"
	"github.com/reeldle/internal/postgres"
	"github.com/reeldle/internal/tmdb"
)

// RefreshWorker periodically refetches the curated catalog, repopulating
// the Redis cache and keeping the stored movie metadata fresh. Daily-game
// creation stays fast because it never has to wait on TMDB when the cache
// is warm.
type RefreshWorker struct {
	catalog  *tmdb.CachedCatalog
	postgres *postgres.Repository
	config   *config.RefreshConfig
	logger   *slog.Logger
	stopCh   chan struct{}
	doneCh   chan struct{}
	mu       sync.Mutex
	running  bool
}

// NewRefreshWorker creates a new catalog refresh worker
func NewRefreshWorker(
	catalog *tmdb.CachedCatalog,
	postgres *postgres.Repository,
	cfg *config.RefreshConfig,
	logger *slog.Logger,
) *RefreshWorker {
	return &RefreshWorker{
		catalog:  catalog,
		postgres: postgres,
		config:   cfg,
		logger:   logger,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start begins the background refresh process
func (w *RefreshWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	w.logger.Info("catalog refresh worker started", "interval", w.config.Interval)

	go w.run(ctx)
	return nil
}

// Stop stops the background refresh process
func (w *RefreshWorker) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh
	w.logger.Info("catalog refresh worker stopped")
	return nil
}

func (w *RefreshWorker) run(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

// RunOnce runs a single refresh cycle (useful for manual triggers and
// startup warm-up)
func (w *RefreshWorker) RunOnce(ctx context.Context) {
	start := time.Now()

	movies, err := w.catalog.Refresh(ctx)
	if err != nil {
		w.logger.Error("catalog refresh failed", "error", err)
		return
	}

	stored := w.storeMovies(ctx, movies)

	w.logger.Info("catalog refreshed",
		"pool_size", len(movies),
		"stored", stored,
		"duration", time.Since(start),
	)
}

// storeMovies upserts the fetched pool so clue metadata survives cache
// loss and catalog outages. Individual failures are logged and skipped.
func (w *RefreshWorker) storeMovies(ctx context.Context, movies []domain.Movie) int {
	stored := 0
	for _, movie := range movies {
		if _, err := w.postgres.UpsertMovie(ctx, movie); err != nil {
			w.logger.Warn("failed to store movie", "tmdb_id", movie.TmdbID, "error", err)
			continue
		}
		stored++
	}
	return stored
}

// IsRunning returns whether the worker is currently running
func (w *RefreshWorker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}
