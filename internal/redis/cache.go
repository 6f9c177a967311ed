package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/reeldle/internal/config"
	"github.com/reeldle/internal/domain"
)

// Cache provides Redis-backed caching for the movie catalog and the
// per-day completion counters.
type Cache struct {
	client *redis.Client
	logger *slog.Logger
}

// NewCache creates a new Redis cache
func NewCache(cfg *config.RedisConfig, logger *slog.Logger) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	// Test connection
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	return &Cache{
		client: client,
		logger: logger,
	}, nil
}

// Close closes the Redis connection
func (c *Cache) Close() error {
	return c.client.Close()
}

// Client returns the underlying Redis client
func (c *Cache) Client() *redis.Client {
	return c.client
}

// catalogKey is the key under which the curated movie pool is cached.
const catalogKey = "catalog:movies"

// pulseKey returns the Redis key for a day's completion counters
func (c *Cache) pulseKey(dateKey string) string {
	return fmt.Sprintf("game:%s:pulse", dateKey)
}

// SetCatalog caches the curated movie pool with a TTL.
func (c *Cache) SetCatalog(ctx context.Context, movies []domain.Movie, ttl time.Duration) error {
	data, err := json.Marshal(movies)
	if err != nil {
		return fmt.Errorf("marshaling catalog: %w", err)
	}
	if err := c.client.Set(ctx, catalogKey, data, ttl).Err(); err != nil {
		return fmt.Errorf("caching catalog: %w", err)
	}
	return nil
}

// GetCatalog returns the cached movie pool, or (nil, nil) on a cache miss.
func (c *Cache) GetCatalog(ctx context.Context) ([]domain.Movie, error) {
	data, err := c.client.Get(ctx, catalogKey).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading cached catalog: %w", err)
	}

	var movies []domain.Movie
	if err := json.Unmarshal(data, &movies); err != nil {
		// A corrupt cache entry is treated as a miss so the catalog is
		// refetched rather than the request failing.
		c.logger.Warn("discarding corrupt catalog cache entry", "error", err)
		return nil, nil
	}
	return movies, nil
}

// InvalidateCatalog drops the cached pool.
func (c *Cache) InvalidateCatalog(ctx context.Context) error {
	if err := c.client.Del(ctx, catalogKey).Err(); err != nil {
		return fmt.Errorf("invalidating catalog: %w", err)
	}
	return nil
}

// DailyPulse holds the community completion counters for one date.
type DailyPulse struct {
	Date            string `json:"date"`
	PlayersFinished int64  `json:"players_finished"`
	GamesWon        int64  `json:"games_won"`
}

// RecordCompletion increments the day's completion counters and returns
// the updated pulse.
func (c *Cache) RecordCompletion(ctx context.Context, dateKey string, won bool) (*DailyPulse, error) {
	key := c.pulseKey(dateKey)

	pipe := c.client.Pipeline()
	finishedCmd := pipe.HIncrBy(ctx, key, "players_finished", 1)
	var wonCmd *redis.IntCmd
	if won {
		wonCmd = pipe.HIncrBy(ctx, key, "games_won", 1)
	} else {
		wonCmd = pipe.HIncrBy(ctx, key, "games_won", 0)
	}
	// Counters only matter for the day itself; expire them after two days.
	pipe.Expire(ctx, key, 48*time.Hour)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("recording completion: %w", err)
	}

	return &DailyPulse{
		Date:            dateKey,
		PlayersFinished: finishedCmd.Val(),
		GamesWon:        wonCmd.Val(),
	}, nil
}

// GetPulse returns the day's completion counters.
func (c *Cache) GetPulse(ctx context.Context, dateKey string) (*DailyPulse, error) {
	result, err := c.client.HGetAll(ctx, c.pulseKey(dateKey)).Result()
	if err != nil {
		return nil, fmt.Errorf("getting pulse: %w", err)
	}

	finished, _ := strconv.ParseInt(result["players_finished"], 10, 64)
	won, _ := strconv.ParseInt(result["games_won"], 10, 64)
	return &DailyPulse{
		Date:            dateKey,
		PlayersFinished: finished,
		GamesWon:        won,
	}, nil
}
