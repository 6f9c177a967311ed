package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/reeldle/internal/config"
	"github.com/reeldle/internal/domain"
)

// Repository provides PostgreSQL-based data access
type Repository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewRepository creates a new PostgreSQL repository
func NewRepository(cfg *config.PostgresConfig, logger *slog.Logger) (*Repository, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConnections)
	poolConfig.MinConns = int32(cfg.MinConnections)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	// Test connection
	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	return &Repository{
		pool:   pool,
		logger: logger,
	}, nil
}

// Close closes the database connection pool
func (r *Repository) Close() {
	r.pool.Close()
}

// Pool returns the underlying connection pool
func (r *Repository) Pool() *pgxpool.Pool {
	return r.pool
}

// RunMigrations executes database migrations
func (r *Repository) RunMigrations(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS movies (
			id BIGSERIAL PRIMARY KEY,
			tmdb_id BIGINT NOT NULL UNIQUE,
			title VARCHAR(255) NOT NULL,
			image_url TEXT NOT NULL DEFAULT '',
			genres TEXT NOT NULL DEFAULT '[]',
			release_year INT NOT NULL DEFAULT 0,
			director VARCHAR(255) NOT NULL DEFAULT '',
			runtime_minutes INT NOT NULL DEFAULT 0,
			tagline TEXT NOT NULL DEFAULT '',
			overview TEXT NOT NULL DEFAULT '',
			rating DOUBLE PRECISION NOT NULL DEFAULT 0,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS daily_games (
			id BIGSERIAL PRIMARY KEY,
			game_date DATE NOT NULL UNIQUE,
			movie_id BIGINT NOT NULL REFERENCES movies(id),
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS players (
			id BIGSERIAL PRIMARY KEY,
			session_token VARCHAR(128) NOT NULL UNIQUE,
			stats JSONB NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS player_sessions (
			id BIGSERIAL PRIMARY KEY,
			player_id BIGINT NOT NULL REFERENCES players(id) ON DELETE CASCADE,
			game_id BIGINT NOT NULL REFERENCES daily_games(id) ON DELETE CASCADE,
			attempts INT NOT NULL DEFAULT 0,
			is_complete BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(player_id, game_id)
		)`,
		`CREATE TABLE IF NOT EXISTS session_guesses (
			id BIGSERIAL PRIMARY KEY,
			session_id BIGINT NOT NULL REFERENCES player_sessions(id) ON DELETE CASCADE,
			guess TEXT NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS session_clues (
			id BIGSERIAL PRIMARY KEY,
			session_id BIGINT NOT NULL REFERENCES player_sessions(id) ON DELETE CASCADE,
			content TEXT NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS game_events (
			id BIGSERIAL PRIMARY KEY,
			game_date DATE NOT NULL,
			player_id BIGINT NOT NULL,
			event_type VARCHAR(32) NOT NULL,
			attempts INT NOT NULL DEFAULT 0,
			won BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_session_guesses_session ON session_guesses(session_id, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_session_clues_session ON session_clues(session_id, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_daily_games_date ON daily_games(game_date DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_game_events_player ON game_events(player_id, created_at DESC)`,
	}

	for _, migration := range migrations {
		_, err := r.pool.Exec(ctx, migration)
		if err != nil {
			return fmt.Errorf("executing migration: %w", err)
		}
	}

	r.logger.Info("database migrations completed")
	return nil
}

const movieColumns = `id, tmdb_id, title, image_url, genres, release_year, director, runtime_minutes, tagline, overview, rating, created_at`

func scanMovie(row pgx.Row) (*domain.Movie, error) {
	var m domain.Movie
	var genres string
	err := row.Scan(
		&m.ID,
		&m.TmdbID,
		&m.Title,
		&m.ImageURL,
		&genres,
		&m.ReleaseYear,
		&m.Director,
		&m.RuntimeMinutes,
		&m.Tagline,
		&m.Overview,
		&m.Rating,
		&m.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	m.Genres = domain.ParseGenres(genres)
	return &m, nil
}

// UpsertMovie inserts a movie or refreshes its metadata, keyed on tmdb id
func (r *Repository) UpsertMovie(ctx context.Context, movie domain.Movie) (*domain.Movie, error) {
	query := `
		INSERT INTO movies (tmdb_id, title, image_url, genres, release_year, director, runtime_minutes, tagline, overview, rating)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (tmdb_id)
		DO UPDATE SET
			title = $2,
			image_url = $3,
			genres = $4,
			release_year = $5,
			director = $6,
			runtime_minutes = $7,
			tagline = $8,
			overview = $9,
			rating = $10
		RETURNING ` + movieColumns
	row := r.pool.QueryRow(ctx, query,
		movie.TmdbID,
		movie.Title,
		movie.ImageURL,
		domain.EncodeGenres(movie.Genres),
		movie.ReleaseYear,
		movie.Director,
		movie.RuntimeMinutes,
		movie.Tagline,
		movie.Overview,
		movie.Rating,
	)
	stored, err := scanMovie(row)
	if err != nil {
		return nil, fmt.Errorf("upserting movie: %w", err)
	}
	return stored, nil
}

// GetMovieByTmdbID retrieves a movie by its external catalog id
func (r *Repository) GetMovieByTmdbID(ctx context.Context, tmdbID int64) (*domain.Movie, error) {
	query := `SELECT ` + movieColumns + ` FROM movies WHERE tmdb_id = $1`
	movie, err := scanMovie(r.pool.QueryRow(ctx, query, tmdbID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrMovieNotFound
		}
		return nil, fmt.Errorf("getting movie: %w", err)
	}
	return movie, nil
}

// GetDailyGame retrieves the game for a calendar date
func (r *Repository) GetDailyGame(ctx context.Context, dateKey string) (*domain.DailyGame, error) {
	query := `
		SELECT g.id, g.game_date, g.created_at, ` + prefixedMovieColumns("m") + `
		FROM daily_games g
		JOIN movies m ON m.id = g.movie_id
		WHERE g.game_date = $1
	`
	game, err := r.scanDailyGame(r.pool.QueryRow(ctx, query, dateKey))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrGameNotFound
		}
		return nil, fmt.Errorf("getting daily game: %w", err)
	}
	return game, nil
}

func prefixedMovieColumns(alias string) string {
	return alias + `.id, ` + alias + `.tmdb_id, ` + alias + `.title, ` + alias + `.image_url, ` +
		alias + `.genres, ` + alias + `.release_year, ` + alias + `.director, ` + alias + `.runtime_minutes, ` +
		alias + `.tagline, ` + alias + `.overview, ` + alias + `.rating, ` + alias + `.created_at`
}

func (r *Repository) scanDailyGame(row pgx.Row) (*domain.DailyGame, error) {
	var g domain.DailyGame
	var genres string
	err := row.Scan(
		&g.ID,
		&g.Date,
		&g.CreatedAt,
		&g.Movie.ID,
		&g.Movie.TmdbID,
		&g.Movie.Title,
		&g.Movie.ImageURL,
		&genres,
		&g.Movie.ReleaseYear,
		&g.Movie.Director,
		&g.Movie.RuntimeMinutes,
		&g.Movie.Tagline,
		&g.Movie.Overview,
		&g.Movie.Rating,
		&g.Movie.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	g.Movie.Genres = domain.ParseGenres(genres)
	return &g, nil
}

// CreateDailyGame creates the game for a date, storing the movie first.
// Creation is an upsert keyed on the date: under a concurrent first-request
// race exactly one insert wins and every caller observes the winner.
func (r *Repository) CreateDailyGame(ctx context.Context, dateKey string, movie domain.Movie) (*domain.DailyGame, error) {
	stored, err := r.UpsertMovie(ctx, movie)
	if err != nil {
		return nil, err
	}

	query := `
		INSERT INTO daily_games (game_date, movie_id)
		VALUES ($1, $2)
		ON CONFLICT (game_date) DO NOTHING
	`
	if _, err := r.pool.Exec(ctx, query, dateKey, stored.ID); err != nil {
		return nil, fmt.Errorf("creating daily game: %w", err)
	}

	// Re-select regardless of which caller won the insert.
	return r.GetDailyGame(ctx, dateKey)
}

// RecentMovieTmdbIDs returns the tmdb ids of the movies used by the most
// recent daily games, newest first, up to limit.
func (r *Repository) RecentMovieTmdbIDs(ctx context.Context, limit int) (map[int64]struct{}, error) {
	query := `
		SELECT m.tmdb_id
		FROM daily_games g
		JOIN movies m ON m.id = g.movie_id
		ORDER BY g.game_date DESC
		LIMIT $1
	`
	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("getting recent movies: %w", err)
	}
	defer rows.Close()

	recent := make(map[int64]struct{})
	for rows.Next() {
		var tmdbID int64
		if err := rows.Scan(&tmdbID); err != nil {
			return nil, fmt.Errorf("scanning recent movie: %w", err)
		}
		recent[tmdbID] = struct{}{}
	}
	return recent, rows.Err()
}

// GetOrCreatePlayer resolves a player by session token, creating the row
// with default stats on first sight of the token.
func (r *Repository) GetOrCreatePlayer(ctx context.Context, sessionToken string) (*domain.Player, error) {
	statsJSON, err := json.Marshal(domain.DefaultStats())
	if err != nil {
		return nil, fmt.Errorf("marshaling default stats: %w", err)
	}

	insert := `
		INSERT INTO players (session_token, stats)
		VALUES ($1, $2)
		ON CONFLICT (session_token) DO NOTHING
	`
	if _, err := r.pool.Exec(ctx, insert, sessionToken, statsJSON); err != nil {
		return nil, fmt.Errorf("creating player: %w", err)
	}

	query := `SELECT id, session_token, stats, created_at FROM players WHERE session_token = $1`
	var p domain.Player
	var rawStats []byte
	err = r.pool.QueryRow(ctx, query, sessionToken).Scan(&p.ID, &p.SessionToken, &rawStats, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrPlayerNotFound
		}
		return nil, fmt.Errorf("getting player: %w", err)
	}
	p.Stats = decodeStats(rawStats, r.logger)
	return &p, nil
}

// decodeStats parses stored stats JSON, degrading to defaults on malformed
// data rather than failing the request.
func decodeStats(raw []byte, logger *slog.Logger) domain.PlayerStats {
	var stats domain.PlayerStats
	if err := json.Unmarshal(raw, &stats); err != nil {
		logger.Warn("malformed stored player stats, using defaults", "error", err)
		return domain.DefaultStats()
	}
	if stats.GuessDistribution == nil {
		stats.GuessDistribution = domain.DefaultStats().GuessDistribution
	}
	return stats
}

// GetOrCreateSession resolves the session for a (player, game) pair,
// creating it with attempts=0 when absent. Idempotent.
func (r *Repository) GetOrCreateSession(ctx context.Context, playerID, gameID int64) (*domain.PlayerSession, error) {
	insert := `
		INSERT INTO player_sessions (player_id, game_id, attempts, is_complete)
		VALUES ($1, $2, 0, FALSE)
		ON CONFLICT (player_id, game_id) DO NOTHING
	`
	if _, err := r.pool.Exec(ctx, insert, playerID, gameID); err != nil {
		return nil, fmt.Errorf("creating session: %w", err)
	}
	return r.getSession(ctx, r.pool, playerID, gameID, false)
}

// querier abstracts pool and transaction for shared read paths
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (r *Repository) getSession(ctx context.Context, q querier, playerID, gameID int64, forUpdate bool) (*domain.PlayerSession, error) {
	query := `
		SELECT id, player_id, game_id, attempts, is_complete, created_at, updated_at
		FROM player_sessions
		WHERE player_id = $1 AND game_id = $2
	`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	var s domain.PlayerSession
	err := q.QueryRow(ctx, query, playerID, gameID).Scan(
		&s.ID,
		&s.PlayerID,
		&s.GameID,
		&s.Attempts,
		&s.IsComplete,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, fmt.Errorf("getting session: %w", err)
	}

	if err := r.loadSessionLogs(ctx, q, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *Repository) loadSessionLogs(ctx context.Context, q querier, s *domain.PlayerSession) error {
	guessRows, err := q.Query(ctx,
		`SELECT guess, created_at FROM session_guesses WHERE session_id = $1 ORDER BY created_at, id`, s.ID)
	if err != nil {
		return fmt.Errorf("loading guesses: %w", err)
	}
	defer guessRows.Close()
	s.Guesses = nil
	for guessRows.Next() {
		var g domain.Guess
		if err := guessRows.Scan(&g.Text, &g.CreatedAt); err != nil {
			return fmt.Errorf("scanning guess: %w", err)
		}
		s.Guesses = append(s.Guesses, g)
	}
	if err := guessRows.Err(); err != nil {
		return fmt.Errorf("loading guesses: %w", err)
	}

	clueRows, err := q.Query(ctx,
		`SELECT content, created_at FROM session_clues WHERE session_id = $1 ORDER BY created_at, id`, s.ID)
	if err != nil {
		return fmt.Errorf("loading clues: %w", err)
	}
	defer clueRows.Close()
	s.Clues = nil
	for clueRows.Next() {
		var c domain.Clue
		if err := clueRows.Scan(&c.Content, &c.CreatedAt); err != nil {
			return fmt.Errorf("scanning clue: %w", err)
		}
		s.Clues = append(s.Clues, c)
	}
	return clueRows.Err()
}

// ApplyGuess evaluates one guess under the session row lock. The decide
// callback sees the locked, fully loaded session plus the player's current
// stats (also read under lock, so terminal transitions racing across day
// boundaries cannot clobber each other) and returns what to append and
// whether the game ends; guess, clue, session progress and (on a terminal
// transition) player stats are then written in one transaction. Two
// concurrent submissions for the same session serialize on the row lock,
// and the second sees the first's writes.
func (r *Repository) ApplyGuess(
	ctx context.Context,
	playerID, gameID int64,
	decide func(*domain.PlayerSession, domain.PlayerStats) (domain.GuessDecision, error),
) (*domain.PlayerSession, domain.PlayerStats, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, domain.PlayerStats{}, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	session, err := r.getSessionForUpdate(ctx, tx, playerID, gameID)
	if err != nil {
		return nil, domain.PlayerStats{}, err
	}

	var rawStats []byte
	err = tx.QueryRow(ctx, `SELECT stats FROM players WHERE id = $1 FOR UPDATE`, playerID).Scan(&rawStats)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.PlayerStats{}, domain.ErrPlayerNotFound
		}
		return nil, domain.PlayerStats{}, fmt.Errorf("locking player stats: %w", err)
	}
	stats := decodeStats(rawStats, r.logger)

	decision, err := decide(session, stats)
	if err != nil {
		return nil, domain.PlayerStats{}, err
	}

	now := time.Now()
	if _, err := tx.Exec(ctx,
		`INSERT INTO session_guesses (session_id, guess, created_at) VALUES ($1, $2, $3)`,
		session.ID, decision.GuessText, now,
	); err != nil {
		return nil, domain.PlayerStats{}, fmt.Errorf("saving guess: %w", err)
	}
	session.Guesses = append(session.Guesses, domain.Guess{Text: decision.GuessText, CreatedAt: now})

	if decision.ClueContent != "" {
		if _, err := tx.Exec(ctx,
			`INSERT INTO session_clues (session_id, content, created_at) VALUES ($1, $2, $3)`,
			session.ID, decision.ClueContent, now,
		); err != nil {
			return nil, domain.PlayerStats{}, fmt.Errorf("saving clue: %w", err)
		}
		session.Clues = append(session.Clues, domain.Clue{Content: decision.ClueContent, CreatedAt: now})
	}

	if _, err := tx.Exec(ctx,
		`UPDATE player_sessions SET attempts = $1, is_complete = $2, updated_at = $3 WHERE id = $4`,
		decision.NewAttempts, decision.IsComplete, now, session.ID,
	); err != nil {
		return nil, domain.PlayerStats{}, fmt.Errorf("updating session: %w", err)
	}
	session.Attempts = decision.NewAttempts
	session.IsComplete = decision.IsComplete
	session.UpdatedAt = now

	if decision.Terminal && decision.NewStats != nil {
		statsJSON, err := json.Marshal(decision.NewStats)
		if err != nil {
			return nil, domain.PlayerStats{}, fmt.Errorf("marshaling stats: %w", err)
		}
		if _, err := tx.Exec(ctx,
			`UPDATE players SET stats = $1 WHERE id = $2`,
			statsJSON, playerID,
		); err != nil {
			return nil, domain.PlayerStats{}, fmt.Errorf("updating player stats: %w", err)
		}
		stats = *decision.NewStats
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, domain.PlayerStats{}, fmt.Errorf("committing guess: %w", err)
	}
	return session, stats, nil
}

func (r *Repository) getSessionForUpdate(ctx context.Context, tx pgx.Tx, playerID, gameID int64) (*domain.PlayerSession, error) {
	return r.getSession(ctx, tx, playerID, gameID, true)
}

// RecordEvent records a game event for auditing
func (r *Repository) RecordEvent(ctx context.Context, event domain.GameEvent) error {
	query := `
		INSERT INTO game_events (game_date, player_id, event_type, attempts, won, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.pool.Exec(ctx, query,
		event.GameDate,
		event.PlayerID,
		event.EventType,
		event.Attempts,
		event.Won,
		event.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("recording event: %w", err)
	}
	return nil
}

// CountMovies returns the number of cached catalog entries
func (r *Repository) CountMovies(ctx context.Context) (int64, error) {
	var count int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM movies`).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting movies: %w", err)
	}
	return count, nil
}
