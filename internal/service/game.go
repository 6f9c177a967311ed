package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/reeldle/internal/clue"
	"github.com/reeldle/internal/config"
	"github.com/reeldle/internal/daily"
	"github.com/reeldle/internal/domain"
	"github.com/reeldle/internal/redis"
	"github.com/reeldle/internal/tmdb"
)

// Store is the persistence handle the engine is constructed with. All four
// per-guess writes compose into one atomic unit inside ApplyGuess.
type Store interface {
	GetDailyGame(ctx context.Context, dateKey string) (*domain.DailyGame, error)
	CreateDailyGame(ctx context.Context, dateKey string, movie domain.Movie) (*domain.DailyGame, error)
	RecentMovieTmdbIDs(ctx context.Context, limit int) (map[int64]struct{}, error)
	GetOrCreatePlayer(ctx context.Context, sessionToken string) (*domain.Player, error)
	GetOrCreateSession(ctx context.Context, playerID, gameID int64) (*domain.PlayerSession, error)
	ApplyGuess(ctx context.Context, playerID, gameID int64, decide func(*domain.PlayerSession, domain.PlayerStats) (domain.GuessDecision, error)) (*domain.PlayerSession, domain.PlayerStats, error)
	RecordEvent(ctx context.Context, event domain.GameEvent) error
}

// Catalog supplies the eligible movie pool and title search.
type Catalog interface {
	Movies(ctx context.Context) ([]domain.Movie, error)
	Search(ctx context.Context, q string) ([]tmdb.SearchResult, error)
}

// EventPublisher receives game events for downstream consumers. Optional.
type EventPublisher interface {
	Publish(event domain.GameEvent)
}

// PulseRecorder tracks per-day completion counters. Optional.
type PulseRecorder interface {
	RecordCompletion(ctx context.Context, dateKey string, won bool) (*redis.DailyPulse, error)
}

// PulseBroadcaster pushes completion counters to live subscribers. Optional.
type PulseBroadcaster interface {
	BroadcastPulse(date string, playersFinished, gamesWon int64)
}

// GameService is the daily-game session engine. It resolves the movie of
// the day, manages per-player sessions and enforces the guess state
// machine.
type GameService struct {
	store     Store
	catalog   Catalog
	events    EventPublisher
	pulse     PulseRecorder
	broadcast PulseBroadcaster
	config    *config.GameConfig
	logger    *slog.Logger
	now       func() time.Time
}

// NewGameService creates a new game service. events, pulse and broadcast
// may be nil; they are best-effort side channels, not collaborators the
// game depends on.
func NewGameService(
	store Store,
	catalog Catalog,
	cfg *config.GameConfig,
	logger *slog.Logger,
) *GameService {
	return &GameService{
		store:   store,
		catalog: catalog,
		config:  cfg,
		logger:  logger,
		now:     time.Now,
	}
}

// SetEventPublisher attaches a game-event sink
func (s *GameService) SetEventPublisher(events EventPublisher) {
	s.events = events
}

// SetPulse attaches the completion counter and its live broadcaster
func (s *GameService) SetPulse(pulse PulseRecorder, broadcast PulseBroadcaster) {
	s.pulse = pulse
	s.broadcast = broadcast
}

// GameState returns the player's state for today's game, lazily creating
// today's daily game and the player's session as needed.
func (s *GameService) GameState(ctx context.Context, sessionToken string) (*domain.GameState, error) {
	if sessionToken == "" {
		return nil, domain.ErrMissingToken
	}

	player, err := s.store.GetOrCreatePlayer(ctx, sessionToken)
	if err != nil {
		return nil, fmt.Errorf("resolving player: %w", err)
	}

	game, err := s.todayGame(ctx)
	if err != nil {
		return nil, err
	}

	session, err := s.store.GetOrCreateSession(ctx, player.ID, game.ID)
	if err != nil {
		return nil, fmt.Errorf("resolving session: %w", err)
	}

	return materialize(game, session, player.Stats), nil
}

// SubmitGuess applies one guess to the player's session for today's game.
// The guess, the unlocked clue, the session progress and (on a terminal
// transition) the stats update are persisted atomically; concurrent
// submissions for the same session serialize on the session lock.
func (s *GameService) SubmitGuess(ctx context.Context, sessionToken, guessText string) (*domain.GameState, error) {
	if sessionToken == "" {
		return nil, domain.ErrMissingToken
	}
	trimmed := strings.TrimSpace(guessText)
	if trimmed == "" {
		return nil, domain.ErrInvalidGuess
	}

	player, err := s.store.GetOrCreatePlayer(ctx, sessionToken)
	if err != nil {
		return nil, fmt.Errorf("resolving player: %w", err)
	}

	game, err := s.store.GetDailyGame(ctx, domain.DateKey(s.now()))
	if err != nil {
		return nil, err
	}

	var won bool
	session, stats, err := s.store.ApplyGuess(ctx, player.ID, game.ID, func(sess *domain.PlayerSession, current domain.PlayerStats) (domain.GuessDecision, error) {
		// Re-check under the lock: a racing duplicate submission may have
		// completed the session after our initial reads.
		if !sess.Active() {
			return domain.GuessDecision{}, domain.ErrGameNotActive
		}

		isCorrect := domain.NormalizeGuess(trimmed) == domain.NormalizeGuess(game.Movie.Title)
		newAttempts := sess.Attempts + 1
		terminal := isCorrect || newAttempts >= domain.MaxAttempts
		won = isCorrect

		decision := domain.GuessDecision{
			GuessText:   trimmed,
			NewAttempts: newAttempts,
			IsComplete:  terminal,
			Terminal:    terminal,
			Won:         isCorrect,
		}
		if !isCorrect {
			decision.ClueContent = clue.ForAttempt(game.Movie, newAttempts)
		}
		if terminal {
			// Compute the outcome from the stats the store read under its
			// lock, not the snapshot fetched before it.
			next := current.ApplyOutcome(isCorrect, newAttempts)
			decision.NewStats = &next
		}
		return decision, nil
	})
	if err != nil {
		return nil, err
	}

	s.afterGuess(ctx, game, player.ID, session, won)

	return materialize(game, session, stats), nil
}

// afterGuess emits the best-effort side effects of a committed guess:
// audit row, kafka event, daily pulse. None of them can fail the request.
func (s *GameService) afterGuess(ctx context.Context, game *domain.DailyGame, playerID int64, session *domain.PlayerSession, won bool) {
	dateKey := domain.DateKey(game.Date)
	terminal := session.IsComplete

	event := domain.GameEvent{
		GameDate:  dateKey,
		PlayerID:  playerID,
		EventType: domain.EventGuessSubmitted,
		Attempts:  session.Attempts,
		Won:       won,
		Timestamp: s.now(),
	}
	if terminal {
		event.EventType = domain.EventGameCompleted
	}

	if err := s.store.RecordEvent(ctx, event); err != nil {
		s.logger.Warn("failed to record game event", "error", err)
	}
	if s.events != nil {
		s.events.Publish(event)
	}

	if terminal && s.pulse != nil {
		pulse, err := s.pulse.RecordCompletion(ctx, dateKey, won)
		if err != nil {
			s.logger.Warn("failed to record completion pulse", "error", err)
			return
		}
		if s.broadcast != nil {
			s.broadcast.BroadcastPulse(dateKey, pulse.PlayersFinished, pulse.GamesWon)
		}
	}
}

// PlayerStats returns the cumulative statistics for a session token.
func (s *GameService) PlayerStats(ctx context.Context, sessionToken string) (domain.PlayerStats, error) {
	if sessionToken == "" {
		return domain.PlayerStats{}, domain.ErrMissingToken
	}
	player, err := s.store.GetOrCreatePlayer(ctx, sessionToken)
	if err != nil {
		return domain.PlayerStats{}, fmt.Errorf("resolving player: %w", err)
	}
	return player.Stats, nil
}

// SearchMovies proxies title autocomplete to the catalog.
func (s *GameService) SearchMovies(ctx context.Context, q string) ([]tmdb.SearchResult, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return []tmdb.SearchResult{}, nil
	}
	return s.catalog.Search(ctx, q)
}

// todayGame returns today's daily game, creating it on first access. The
// selector is deterministic for a date, so concurrent creators pick the
// same movie and the date's unique constraint lets exactly one insert win.
func (s *GameService) todayGame(ctx context.Context) (*domain.DailyGame, error) {
	dateKey := domain.DateKey(s.now())

	game, err := s.store.GetDailyGame(ctx, dateKey)
	if err == nil {
		return game, nil
	}
	if !errors.Is(err, domain.ErrGameNotFound) {
		return nil, err
	}

	pool, err := s.catalog.Movies(ctx)
	if err != nil {
		// Catalog failure is fatal only here: an already-created day keeps
		// serving guesses from stored movie metadata.
		return nil, fmt.Errorf("%w: %v", domain.ErrCatalogUnavailable, err)
	}

	recent, err := s.store.RecentMovieTmdbIDs(ctx, s.config.RecentWindow)
	if err != nil {
		return nil, fmt.Errorf("loading recent selections: %w", err)
	}

	movie, err := daily.Select(s.now(), pool, recent)
	if err != nil {
		return nil, err
	}

	game, err = s.store.CreateDailyGame(ctx, dateKey, movie)
	if err != nil {
		return nil, fmt.Errorf("creating daily game: %w", err)
	}
	s.logger.Info("created daily game", "date", dateKey, "tmdb_id", movie.TmdbID)
	return game, nil
}

// materialize builds the wire view of a session: raw guesses in order,
// clues split into history plus the latest, and the player's stats.
func materialize(game *domain.DailyGame, session *domain.PlayerSession, stats domain.PlayerStats) *domain.GameState {
	guesses := make([]string, 0, len(session.Guesses))
	for _, g := range session.Guesses {
		guesses = append(guesses, g.Text)
	}

	clues := make([]string, 0, len(session.Clues))
	for _, c := range session.Clues {
		clues = append(clues, c.Content)
	}
	currentClue := ""
	previousClues := []string{}
	if len(clues) > 0 {
		currentClue = clues[len(clues)-1]
		previousClues = clues[:len(clues)-1]
	}

	if stats.GuessDistribution == nil {
		stats = domain.DefaultStats()
	}

	return &domain.GameState{
		ID:            game.ID,
		Date:          domain.DateKey(game.Date),
		Movie:         game.Movie.Summary(),
		Guesses:       guesses,
		Attempts:      session.Attempts,
		IsComplete:    session.IsComplete,
		CurrentClue:   currentClue,
		PreviousClues: previousClues,
		Stats:         stats,
	}
}
