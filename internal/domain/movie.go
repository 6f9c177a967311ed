package domain

import (
	"encoding/json"
	"time"
)

// Movie represents a catalog entry eligible for a daily game. The clue
// fields beyond title/image/genres are optional; the clue generator falls
// back tier by tier when they are absent.
type Movie struct {
	ID             int64     `json:"-"`
	TmdbID         int64     `json:"id"`
	Title          string    `json:"title"`
	ImageURL       string    `json:"image_url"`
	Genres         []string  `json:"genres"`
	ReleaseYear    int       `json:"release_year,omitempty"`
	Director       string    `json:"director,omitempty"`
	RuntimeMinutes int       `json:"runtime_minutes,omitempty"`
	Tagline        string    `json:"tagline,omitempty"`
	Overview       string    `json:"overview,omitempty"`
	Rating         float64   `json:"rating,omitempty"`
	CreatedAt      time.Time `json:"-"`
}

// Eligible reports whether a catalog entry can be used for a daily game.
func (m *Movie) Eligible() bool {
	return m.Title != "" && m.ImageURL != "" && len(m.Genres) > 0
}

// MovieSummary is the subset of movie fields exposed in the game state view.
type MovieSummary struct {
	TmdbID   int64    `json:"id"`
	Title    string   `json:"title"`
	ImageURL string   `json:"image_url"`
	Genres   []string `json:"genres"`
}

// Summary returns the wire representation of the movie.
func (m *Movie) Summary() MovieSummary {
	genres := m.Genres
	if genres == nil {
		genres = []string{}
	}
	return MovieSummary{
		TmdbID:   m.TmdbID,
		Title:    m.Title,
		ImageURL: m.ImageURL,
		Genres:   genres,
	}
}

// ParseGenres decodes a stored JSON genre list. Malformed data degrades to
// an empty list instead of failing the request; a cosmetic field must not
// block gameplay.
func ParseGenres(raw string) []string {
	if raw == "" {
		return []string{}
	}
	var genres []string
	if err := json.Unmarshal([]byte(raw), &genres); err != nil {
		return []string{}
	}
	return genres
}

// EncodeGenres encodes a genre list for storage.
func EncodeGenres(genres []string) string {
	if genres == nil {
		genres = []string{}
	}
	data, err := json.Marshal(genres)
	if err != nil {
		return "[]"
	}
	return string(data)
}
