package tmdb

import (
	"context"
	"log/slog"
	"time"

	"github.com/reeldle/internal/domain"
	"github.com/reeldle/internal/redis"
)

// CachedCatalog layers the Redis catalog cache over the TMDB client.
// Reads are cache-aside; the refresh worker and the seeder call Refresh to
// repopulate eagerly.
type CachedCatalog struct {
	client *Client
	cache  *redis.Cache
	ttl    time.Duration
	logger *slog.Logger
}

// NewCachedCatalog creates a cached view of the curated movie pool
func NewCachedCatalog(client *Client, cache *redis.Cache, ttl time.Duration, logger *slog.Logger) *CachedCatalog {
	return &CachedCatalog{
		client: client,
		cache:  cache,
		ttl:    ttl,
		logger: logger,
	}
}

// Movies returns the curated pool, serving from cache when possible.
func (c *CachedCatalog) Movies(ctx context.Context) ([]domain.Movie, error) {
	cached, err := c.cache.GetCatalog(ctx)
	if err != nil {
		// A cache outage should not take the game down; fall through to
		// the source.
		c.logger.Warn("catalog cache read failed", "error", err)
	}
	if len(cached) > 0 {
		return cached, nil
	}
	return c.Refresh(ctx)
}

// Refresh fetches the pool from TMDB and repopulates the cache.
func (c *CachedCatalog) Refresh(ctx context.Context) ([]domain.Movie, error) {
	movies, err := c.client.FetchCuratedMovies(ctx)
	if err != nil {
		return nil, err
	}
	if err := c.cache.SetCatalog(ctx, movies, c.ttl); err != nil {
		c.logger.Warn("failed to cache catalog", "error", err)
	}
	return movies, nil
}

// Search proxies title autocomplete to TMDB.
func (c *CachedCatalog) Search(ctx context.Context, q string) ([]SearchResult, error) {
	return c.client.Search(ctx, q)
}
