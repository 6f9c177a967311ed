package domain

import "time"

// Player is identified by an opaque per-device session token. There are no
// credentials.
type Player struct {
	ID           int64       `json:"id"`
	SessionToken string      `json:"-"`
	Stats        PlayerStats `json:"stats"`
	CreatedAt    time.Time   `json:"-"`
}

// PlayerStats holds a player's cumulative game statistics. It is updated
// exactly once per session's transition into a terminal state.
type PlayerStats struct {
	TotalGames        int         `json:"total_games"`
	GamesWon          int         `json:"games_won"`
	CurrentStreak     int         `json:"current_streak"`
	MaxStreak         int         `json:"max_streak"`
	GuessDistribution map[int]int `json:"guess_distribution"`
}

// DefaultStats returns a zeroed stats snapshot with every distribution
// bucket present.
func DefaultStats() PlayerStats {
	dist := make(map[int]int, MaxAttempts)
	for i := 1; i <= MaxAttempts; i++ {
		dist[i] = 0
	}
	return PlayerStats{GuessDistribution: dist}
}

// ApplyOutcome computes the stats snapshot after a game reaches a terminal
// state. The distribution counts winning completions only; losses reset
// the current streak and leave the distribution untouched.
func (s PlayerStats) ApplyOutcome(won bool, attempts int) PlayerStats {
	next := PlayerStats{
		TotalGames:        s.TotalGames + 1,
		GamesWon:          s.GamesWon,
		CurrentStreak:     0,
		MaxStreak:         s.MaxStreak,
		GuessDistribution: make(map[int]int, MaxAttempts),
	}
	for i := 1; i <= MaxAttempts; i++ {
		next.GuessDistribution[i] = s.GuessDistribution[i]
	}
	if won {
		next.GamesWon++
		next.CurrentStreak = s.CurrentStreak + 1
		if next.CurrentStreak > next.MaxStreak {
			next.MaxStreak = next.CurrentStreak
		}
		if attempts >= 1 && attempts <= MaxAttempts {
			next.GuessDistribution[attempts]++
		}
	}
	return next
}
