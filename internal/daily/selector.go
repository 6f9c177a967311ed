// Package daily maps a calendar date to one catalog entry. Selection is
// deterministic for a given date and catalog snapshot: concurrent
// first-requests of a new day must all converge on the same movie before
// the database unique constraint picks a single creator.
package daily

import (
	"time"

	"github.com/reeldle/internal/domain"
)

// Seed returns the deterministic integer seed for a date.
func Seed(date time.Time) int {
	return date.Year()*10000 + int(date.Month())*100 + date.Day()
}

// Select picks the movie of the day. Movies whose tmdb id appears in
// recent are excluded; if that leaves nothing, the full catalog is used so
// selection never fails from exhaustion alone.
func Select(date time.Time, catalog []domain.Movie, recent map[int64]struct{}) (domain.Movie, error) {
	if len(catalog) == 0 {
		return domain.Movie{}, domain.ErrEmptyCatalog
	}

	pool := make([]domain.Movie, 0, len(catalog))
	for _, m := range catalog {
		if _, used := recent[m.TmdbID]; used {
			continue
		}
		pool = append(pool, m)
	}
	if len(pool) == 0 {
		pool = catalog
	}

	return pool[Seed(date)%len(pool)], nil
}
