// Package clue builds the six-tier disclosure ladder for a daily movie.
// Tiers move from coarse (release year) to specific (plot and rating), one
// unlocked per incorrect guess. Every tier degrades gracefully when the
// richer metadata is missing, and no tier ever contains the title.
package clue

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/reeldle/internal/domain"
)

// ForAttempt returns the clue for a 1-based attempt number. Attempts are
// clamped to [1, domain.MaxAttempts]; asking past the last tier repeats the
// final clue rather than failing.
func ForAttempt(m domain.Movie, attempt int) string {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > domain.MaxAttempts {
		attempt = domain.MaxAttempts
	}

	var text string
	switch attempt {
	case 1:
		text = releaseYearClue(m)
	case 2:
		text = directorClue(m)
	case 3:
		text = runtimeClue(m)
	case 4:
		text = taglineClue(m)
	case 5:
		text = synopsisClue(m)
	default:
		text = finalClue(m)
	}
	return redactTitle(text, m.Title)
}

func releaseYearClue(m domain.Movie) string {
	if m.ReleaseYear == 0 {
		return "A film whose release year is lost to us"
	}
	return fmt.Sprintf("Released in %d", m.ReleaseYear)
}

func directorClue(m domain.Movie) string {
	if m.Director != "" {
		return fmt.Sprintf("Directed by %s", m.Director)
	}
	if m.ReleaseYear != 0 {
		return fmt.Sprintf("A film from %d", m.ReleaseYear)
	}
	return "Made by a director we cannot name"
}

func runtimeClue(m domain.Movie) string {
	if m.RuntimeMinutes > 0 {
		return fmt.Sprintf("Runtime: %d minutes", m.RuntimeMinutes)
	}
	if len(m.Genres) > 0 {
		return fmt.Sprintf("Features %s", strings.Join(m.Genres, ", "))
	}
	return "Runtime unknown"
}

func taglineClue(m domain.Movie) string {
	if m.Tagline != "" {
		return fmt.Sprintf("Tagline: %q", m.Tagline)
	}
	if first := firstSentences(m.Overview, 1); first != "" {
		return fmt.Sprintf("Plot hint: %q", first)
	}
	return fmt.Sprintf("Stars rate it %.1f/10", m.Rating)
}

func synopsisClue(m domain.Movie) string {
	if preview := firstSentences(m.Overview, 2); preview != "" {
		return fmt.Sprintf("Synopsis preview: %q", preview)
	}
	if len(m.Genres) > 0 {
		return fmt.Sprintf("Popular in %s", m.Genres[0])
	}
	return "A film with a story best left undescribed"
}

func finalClue(m domain.Movie) string {
	genre := "mystery"
	if len(m.Genres) > 0 {
		genre = strings.ToLower(m.Genres[0])
	}
	return fmt.Sprintf("Final hint: This %s film has a %.1f/10 rating", genre, m.Rating)
}

// firstSentences returns up to n leading sentences of text, re-terminated
// with a period. Empty text yields "".
func firstSentences(text string, n int) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}
	parts := strings.Split(text, ".")
	kept := make([]string, 0, n)
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		kept = append(kept, p)
		if len(kept) == n {
			break
		}
	}
	if len(kept) == 0 {
		return ""
	}
	return strings.Join(kept, ". ") + "."
}

// redactTitle masks any occurrence of the movie title inside clue text.
// Metadata sometimes quotes the title back (taglines and overviews do this
// regularly), and a clue must never give the answer away. Matching is
// rune-by-rune: byte offsets into a lowercased copy are unsafe, since
// lowering can change a rune's encoded length.
func redactTitle(text, title string) string {
	title = strings.TrimSpace(title)
	if title == "" || text == "" {
		return text
	}
	src := []rune(text)
	want := []rune(title)
	var b strings.Builder
	for i := 0; i < len(src); {
		if foldMatch(src[i:], want) {
			b.WriteString("[this film]")
			i += len(want)
			continue
		}
		b.WriteRune(src[i])
		i++
	}
	return b.String()
}

func foldMatch(src, want []rune) bool {
	if len(src) < len(want) {
		return false
	}
	for i, r := range want {
		if unicode.ToLower(src[i]) != unicode.ToLower(r) {
			return false
		}
	}
	return true
}
