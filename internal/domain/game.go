package domain

import (
	"strings"
	"time"
)

// MaxAttempts is the number of guesses a player gets per daily game.
const MaxAttempts = 6

// DailyGame is the single movie selected for a calendar date, shared by
// every player that day. Created lazily on first access, never mutated.
type DailyGame struct {
	ID        int64     `json:"id"`
	Date      time.Time `json:"date"`
	Movie     Movie     `json:"movie"`
	CreatedAt time.Time `json:"-"`
}

// Guess is one entry in a session's append-only guess log.
type Guess struct {
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// Clue is one entry in a session's append-only clue log.
type Clue struct {
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// PlayerSession is one player's attempt at one daily game. At most one
// exists per (player, game) pair.
type PlayerSession struct {
	ID         int64     `json:"id"`
	PlayerID   int64     `json:"player_id"`
	GameID     int64     `json:"game_id"`
	Attempts   int       `json:"attempts"`
	IsComplete bool      `json:"is_complete"`
	Guesses    []Guess   `json:"guesses"`
	Clues      []Clue    `json:"clues"`
	CreatedAt  time.Time `json:"-"`
	UpdatedAt  time.Time `json:"-"`
}

// Active reports whether the session can still accept guesses.
func (s *PlayerSession) Active() bool {
	return !s.IsComplete && s.Attempts < MaxAttempts
}

// GuessDecision is the outcome of evaluating one guess against a session,
// computed under the session lock and applied atomically by the store.
type GuessDecision struct {
	GuessText   string
	ClueContent string
	NewAttempts int
	IsComplete  bool
	Terminal    bool
	Won         bool
	NewStats    *PlayerStats
}

// NormalizeGuess prepares guess text for comparison: surrounding
// whitespace is dropped and case is folded.
func NormalizeGuess(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}

// GameState is the materialized view returned to the presentation layer.
// The title is included here; hiding it until completion is a presentation
// concern, not enforced by the engine.
type GameState struct {
	ID            int64        `json:"id"`
	Date          string       `json:"date"`
	Movie         MovieSummary `json:"movie"`
	Guesses       []string     `json:"guesses"`
	Attempts      int          `json:"attempts"`
	IsComplete    bool         `json:"is_complete"`
	CurrentClue   string       `json:"current_clue"`
	PreviousClues []string     `json:"previous_clues"`
	Stats         PlayerStats  `json:"stats"`
}

// GameEvent is an audit record emitted on guess submissions and game
// completions. Recording is best effort and never fails a request.
type GameEvent struct {
	GameDate  string    `json:"game_date"`
	PlayerID  int64     `json:"player_id"`
	EventType string    `json:"event_type"`
	Attempts  int       `json:"attempts"`
	Won       bool      `json:"won"`
	Timestamp time.Time `json:"timestamp"`
}

// Game event types.
const (
	EventGuessSubmitted = "guess_submitted"
	EventGameCompleted  = "game_completed"
)

// DateKey formats a time as the calendar-date natural key for daily games.
func DateKey(t time.Time) string {
	return t.Format("2006-01-02")
}
