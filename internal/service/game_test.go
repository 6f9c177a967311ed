package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/reeldle/internal/config"
	"github.com/reeldle/internal/domain"
	"github.com/reeldle/internal/redis"
	"github.com/reeldle/internal/tmdb"
)

// fakeStore is an in-memory Store with the same locking contract as the
// database-backed repository: ApplyGuess runs its decide callback and the
// resulting writes under one lock.
type fakeStore struct {
	mu          sync.Mutex
	games       map[string]*domain.DailyGame
	players     map[string]*domain.Player
	playersByID map[int64]*domain.Player
	sessions    map[string]*domain.PlayerSession
	events      []domain.GameEvent
	nextID      int64
	creates     int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		games:       make(map[string]*domain.DailyGame),
		players:     make(map[string]*domain.Player),
		playersByID: make(map[int64]*domain.Player),
		sessions:    make(map[string]*domain.PlayerSession),
	}
}

func sessionKey(playerID, gameID int64) string {
	return fmt.Sprintf("%d:%d", playerID, gameID)
}

func (f *fakeStore) GetDailyGame(ctx context.Context, dateKey string) (*domain.DailyGame, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	game, ok := f.games[dateKey]
	if !ok {
		return nil, domain.ErrGameNotFound
	}
	copied := *game
	return &copied, nil
}

func (f *fakeStore) CreateDailyGame(ctx context.Context, dateKey string, movie domain.Movie) (*domain.DailyGame, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if existing, ok := f.games[dateKey]; ok {
		copied := *existing
		return &copied, nil
	}
	f.nextID++
	f.creates++
	date, _ := time.Parse("2006-01-02", dateKey)
	game := &domain.DailyGame{ID: f.nextID, Date: date, Movie: movie}
	f.games[dateKey] = game
	copied := *game
	return &copied, nil
}

func (f *fakeStore) RecentMovieTmdbIDs(ctx context.Context, limit int) (map[int64]struct{}, error) {
	return map[int64]struct{}{}, nil
}

func (f *fakeStore) GetOrCreatePlayer(ctx context.Context, sessionToken string) (*domain.Player, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.players[sessionToken]; ok {
		copied := *p
		return &copied, nil
	}
	f.nextID++
	p := &domain.Player{ID: f.nextID, SessionToken: sessionToken, Stats: domain.DefaultStats()}
	f.players[sessionToken] = p
	f.playersByID[p.ID] = p
	copied := *p
	return &copied, nil
}

func (f *fakeStore) GetOrCreateSession(ctx context.Context, playerID, gameID int64) (*domain.PlayerSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := sessionKey(playerID, gameID)
	if s, ok := f.sessions[key]; ok {
		copied := *s
		return &copied, nil
	}
	f.nextID++
	s := &domain.PlayerSession{ID: f.nextID, PlayerID: playerID, GameID: gameID}
	f.sessions[key] = s
	copied := *s
	return &copied, nil
}

func (f *fakeStore) ApplyGuess(ctx context.Context, playerID, gameID int64, decide func(*domain.PlayerSession, domain.PlayerStats) (domain.GuessDecision, error)) (*domain.PlayerSession, domain.PlayerStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	session, ok := f.sessions[sessionKey(playerID, gameID)]
	if !ok {
		return nil, domain.PlayerStats{}, domain.ErrSessionNotFound
	}

	current := *session
	decision, err := decide(&current, f.playersByID[playerID].Stats)
	if err != nil {
		return nil, domain.PlayerStats{}, err
	}

	session.Guesses = append(session.Guesses, domain.Guess{Text: decision.GuessText})
	if decision.ClueContent != "" {
		session.Clues = append(session.Clues, domain.Clue{Content: decision.ClueContent})
	}
	session.Attempts = decision.NewAttempts
	session.IsComplete = decision.IsComplete

	player := f.playersByID[playerID]
	if decision.Terminal && decision.NewStats != nil {
		player.Stats = *decision.NewStats
	}

	copied := *session
	return &copied, player.Stats, nil
}

func (f *fakeStore) RecordEvent(ctx context.Context, event domain.GameEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return nil
}

type fakeCatalog struct {
	movies []domain.Movie
	err    error
}

func (f *fakeCatalog) Movies(ctx context.Context) ([]domain.Movie, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.movies, nil
}

func (f *fakeCatalog) Search(ctx context.Context, q string) ([]tmdb.SearchResult, error) {
	return []tmdb.SearchResult{}, nil
}

type fakePulse struct {
	mu      sync.Mutex
	records int
	won     int
}

func (f *fakePulse) RecordCompletion(ctx context.Context, dateKey string, won bool) (*redis.DailyPulse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records++
	if won {
		f.won++
	}
	return &redis.DailyPulse{Date: dateKey, PlayersFinished: int64(f.records), GamesWon: int64(f.won)}, nil
}

type fakeBroadcaster struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeBroadcaster) BroadcastPulse(date string, playersFinished, gamesWon int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
}

func testMovie() domain.Movie {
	return domain.Movie{
		TmdbID:         27205,
		Title:          "Inception",
		ImageURL:       "/inception.jpg",
		Genres:         []string{"Science Fiction"},
		ReleaseYear:    2010,
		Director:       "Christopher Nolan",
		RuntimeMinutes: 148,
		Rating:         8.4,
	}
}

func newTestService(t *testing.T, movies ...domain.Movie) (*GameService, *fakeStore) {
	t.Helper()
	if len(movies) == 0 {
		movies = []domain.Movie{testMovie()}
	}
	store := newFakeStore()
	catalog := &fakeCatalog{movies: movies}
	cfg := &config.GameConfig{RecentWindow: 100}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	svc := NewGameService(store, catalog, cfg, logger)
	svc.now = func() time.Time {
		return time.Date(2026, time.March, 14, 12, 0, 0, 0, time.UTC)
	}
	return svc, store
}

func TestGameStateCreatesDailyGame(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	state, err := svc.GameState(ctx, "token-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if state.Date != "2026-03-14" {
		t.Errorf("expected date 2026-03-14, got %s", state.Date)
	}
	if state.Attempts != 0 || state.IsComplete {
		t.Errorf("expected fresh session, got attempts=%d complete=%v", state.Attempts, state.IsComplete)
	}
	if state.CurrentClue != "" || len(state.PreviousClues) != 0 {
		t.Errorf("expected no clues before first guess, got %q / %v", state.CurrentClue, state.PreviousClues)
	}
	if state.Stats.TotalGames != 0 {
		t.Errorf("expected zero stats, got %+v", state.Stats)
	}
	if store.creates != 1 {
		t.Errorf("expected exactly one daily game created, got %d", store.creates)
	}
}

func TestSubmitGuessCorrectNormalized(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.GameState(ctx, "token-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	state, err := svc.SubmitGuess(ctx, "token-1", "  INCEPTION  ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !state.IsComplete {
		t.Error("expected winning guess to complete the session")
	}
	if state.Attempts != 1 {
		t.Errorf("expected 1 attempt, got %d", state.Attempts)
	}
	if state.CurrentClue != "" {
		t.Errorf("winning guess must not unlock a clue, got %q", state.CurrentClue)
	}
	if state.Stats.TotalGames != 1 || state.Stats.GamesWon != 1 {
		t.Errorf("expected stats 1/1, got %+v", state.Stats)
	}
	if state.Stats.CurrentStreak != 1 || state.Stats.MaxStreak != 1 {
		t.Errorf("expected streak 1/1, got %+v", state.Stats)
	}
	if state.Stats.GuessDistribution[1] != 1 {
		t.Errorf("expected distribution bucket 1 = 1, got %+v", state.Stats.GuessDistribution)
	}
}

func TestSubmitGuessWrongUnlocksClues(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.GameState(ctx, "token-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	state, err := svc.SubmitGuess(ctx, "token-1", "The Matrix")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state.Attempts != 1 || state.IsComplete {
		t.Errorf("expected attempts=1 incomplete, got attempts=%d complete=%v", state.Attempts, state.IsComplete)
	}
	if state.CurrentClue == "" {
		t.Error("expected a clue after a wrong guess")
	}
	if len(state.PreviousClues) != 0 {
		t.Errorf("expected no previous clues yet, got %v", state.PreviousClues)
	}
	firstClue := state.CurrentClue

	state, err = svc.SubmitGuess(ctx, "token-1", "Interstellar")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state.Attempts != 2 {
		t.Errorf("expected attempts=2, got %d", state.Attempts)
	}
	if state.CurrentClue == firstClue {
		t.Error("expected a new clue on the second wrong guess")
	}
	if len(state.PreviousClues) != 1 || state.PreviousClues[0] != firstClue {
		t.Errorf("expected first clue in history, got %v", state.PreviousClues)
	}
	if len(state.Guesses) != 2 {
		t.Errorf("expected 2 guesses in order, got %v", state.Guesses)
	}
	if state.Stats.TotalGames != 0 {
		t.Errorf("stats must not change mid-game, got %+v", state.Stats)
	}
}

func TestSixWrongGuessesEndsGame(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.GameState(ctx, "token-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var state *domain.GameState
	var err error
	for i := 0; i < domain.MaxAttempts; i++ {
		state, err = svc.SubmitGuess(ctx, "token-1", fmt.Sprintf("wrong guess %d", i))
		if err != nil {
			t.Fatalf("guess %d: unexpected error: %v", i+1, err)
		}
	}

	if state.Attempts != domain.MaxAttempts {
		t.Errorf("expected %d attempts, got %d", domain.MaxAttempts, state.Attempts)
	}
	if !state.IsComplete {
		t.Error("exhausting every attempt must complete the session")
	}
	if state.Stats.TotalGames != 1 || state.Stats.GamesWon != 0 {
		t.Errorf("expected stats 1 played / 0 won, got %+v", state.Stats)
	}
	if state.Stats.CurrentStreak != 0 {
		t.Errorf("expected streak reset on loss, got %d", state.Stats.CurrentStreak)
	}
	for i := 1; i <= domain.MaxAttempts; i++ {
		if state.Stats.GuessDistribution[i] != 0 {
			t.Errorf("losses must not count in the distribution, bucket %d = %d", i, state.Stats.GuessDistribution[i])
		}
	}

	_, err = svc.SubmitGuess(ctx, "token-1", "one more")
	if !errors.Is(err, domain.ErrGameNotActive) {
		t.Errorf("expected ErrGameNotActive after exhausted attempts, got %v", err)
	}
}

func TestSubmitGuessAfterWinRejected(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.GameState(ctx, "token-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := svc.SubmitGuess(ctx, "token-1", "Inception"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err := svc.SubmitGuess(ctx, "token-1", "Inception")
	if !errors.Is(err, domain.ErrGameNotActive) {
		t.Errorf("expected ErrGameNotActive, got %v", err)
	}

	state, err := svc.GameState(ctx, "token-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state.Attempts != 1 {
		t.Errorf("rejected guess must not change attempts, got %d", state.Attempts)
	}
	if state.Stats.TotalGames != 1 {
		t.Errorf("rejected guess must not change stats, got %+v", state.Stats)
	}
}

func TestValidationErrors(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.GameState(ctx, ""); !errors.Is(err, domain.ErrMissingToken) {
		t.Errorf("GameState without token: expected ErrMissingToken, got %v", err)
	}
	if _, err := svc.SubmitGuess(ctx, "", "Inception"); !errors.Is(err, domain.ErrMissingToken) {
		t.Errorf("SubmitGuess without token: expected ErrMissingToken, got %v", err)
	}
	if _, err := svc.SubmitGuess(ctx, "token-1", "   "); !errors.Is(err, domain.ErrInvalidGuess) {
		t.Errorf("blank guess: expected ErrInvalidGuess, got %v", err)
	}
	if _, err := svc.PlayerStats(ctx, ""); !errors.Is(err, domain.ErrMissingToken) {
		t.Errorf("PlayerStats without token: expected ErrMissingToken, got %v", err)
	}
}

func TestCatalogUnavailable(t *testing.T) {
	store := newFakeStore()
	catalog := &fakeCatalog{err: errors.New("tmdb timeout")}
	cfg := &config.GameConfig{RecentWindow: 100}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := NewGameService(store, catalog, cfg, logger)

	_, err := svc.GameState(context.Background(), "token-1")
	if !errors.Is(err, domain.ErrCatalogUnavailable) {
		t.Errorf("expected ErrCatalogUnavailable, got %v", err)
	}
}

func TestConcurrentFirstRequestsCreateOneGame(t *testing.T) {
	movies := make([]domain.Movie, 0, 10)
	for i := int64(1); i <= 10; i++ {
		movies = append(movies, domain.Movie{
			TmdbID:   i,
			Title:    fmt.Sprintf("Movie %d", i),
			ImageURL: "/img.jpg",
			Genres:   []string{"Drama"},
		})
	}
	svc, store := newTestService(t, movies...)
	ctx := context.Background()

	const n = 16
	ids := make([]int64, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			state, err := svc.GameState(ctx, fmt.Sprintf("token-%d", i))
			if err != nil {
				t.Errorf("goroutine %d: %v", i, err)
				return
			}
			ids[i] = state.ID
		}(i)
	}
	wg.Wait()

	if store.creates != 1 {
		t.Errorf("expected exactly one daily game, got %d", store.creates)
	}
	for i := 1; i < n; i++ {
		if ids[i] != ids[0] {
			t.Errorf("players saw different games: %d vs %d", ids[0], ids[i])
		}
	}
}

func TestStatsCountedOncePerGame(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.GameState(ctx, "token-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := svc.SubmitGuess(ctx, "token-1", "Inception"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for i := 0; i < 3; i++ {
		state, err := svc.GameState(ctx, "token-1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if state.Stats.TotalGames != 1 || state.Stats.GamesWon != 1 {
			t.Errorf("re-reading state changed stats: %+v", state.Stats)
		}
	}

	stats, err := svc.PlayerStats(ctx, "token-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.TotalGames != 1 {
		t.Errorf("expected 1 total game, got %d", stats.TotalGames)
	}
}

func TestConcurrentCompletionsAcrossDaysChainStats(t *testing.T) {
	store := newFakeStore()
	catalog := &fakeCatalog{movies: []domain.Movie{testMovie()}}
	cfg := &config.GameConfig{RecentWindow: 100}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	dayOne := NewGameService(store, catalog, cfg, logger)
	dayOne.now = func() time.Time {
		return time.Date(2026, time.March, 14, 12, 0, 0, 0, time.UTC)
	}
	dayTwo := NewGameService(store, catalog, cfg, logger)
	dayTwo.now = func() time.Time {
		return time.Date(2026, time.March, 15, 12, 0, 0, 0, time.UTC)
	}

	ctx := context.Background()
	for _, svc := range []*GameService{dayOne, dayTwo} {
		if _, err := svc.GameState(ctx, "token-1"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	var wg sync.WaitGroup
	for _, svc := range []*GameService{dayOne, dayTwo} {
		wg.Add(1)
		go func(svc *GameService) {
			defer wg.Done()
			if _, err := svc.SubmitGuess(ctx, "token-1", "Inception"); err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		}(svc)
	}
	wg.Wait()

	stats, err := dayOne.PlayerStats(ctx, "token-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.TotalGames != 2 || stats.GamesWon != 2 {
		t.Errorf("a win must never overwrite another day's win, got %+v", stats)
	}
	if stats.CurrentStreak != 2 || stats.MaxStreak != 2 {
		t.Errorf("expected both wins to chain the streak, got %+v", stats)
	}
	if stats.GuessDistribution[1] != 2 {
		t.Errorf("expected distribution bucket 1 = 2, got %+v", stats.GuessDistribution)
	}
}

func TestTerminalGuessEmitsPulseAndEvents(t *testing.T) {
	svc, store := newTestService(t)
	pulse := &fakePulse{}
	broadcast := &fakeBroadcaster{}
	svc.SetPulse(pulse, broadcast)
	ctx := context.Background()

	if _, err := svc.GameState(ctx, "token-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := svc.SubmitGuess(ctx, "token-1", "wrong"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pulse.records != 0 {
		t.Errorf("non-terminal guess must not record a completion, got %d", pulse.records)
	}

	if _, err := svc.SubmitGuess(ctx, "token-1", "Inception"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pulse.records != 1 || pulse.won != 1 {
		t.Errorf("expected one winning completion, got records=%d won=%d", pulse.records, pulse.won)
	}
	if broadcast.calls != 1 {
		t.Errorf("expected one pulse broadcast, got %d", broadcast.calls)
	}

	if len(store.events) != 2 {
		t.Fatalf("expected 2 recorded events, got %d", len(store.events))
	}
	if store.events[0].EventType != domain.EventGuessSubmitted {
		t.Errorf("expected first event %s, got %s", domain.EventGuessSubmitted, store.events[0].EventType)
	}
	if store.events[1].EventType != domain.EventGameCompleted || !store.events[1].Won {
		t.Errorf("expected winning completion event, got %+v", store.events[1])
	}
}
