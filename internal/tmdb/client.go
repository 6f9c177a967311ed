// Package tmdb fetches the curated movie pool from The Movie Database.
// The pool is built from a fixed set of curated lists, enriched with
// per-movie details (director, runtime, tagline, overview) and filtered
// down to entries usable as daily games.
package tmdb

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/reeldle/internal/config"
	"github.com/reeldle/internal/domain"
)

// Client is a read-only client for the TMDB API.
type Client struct {
	cfg    *config.TMDBConfig
	http   *http.Client
	logger *slog.Logger
}

// NewClient creates a new TMDB client
func NewClient(cfg *config.TMDBConfig, logger *slog.Logger) *Client {
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

// listResponse is the shape of /list/{id}
type listResponse struct {
	Items []listItem `json:"items"`
}

type listItem struct {
	ID           int64   `json:"id"`
	Title        string  `json:"title"`
	BackdropPath string  `json:"backdrop_path"`
	PosterPath   string  `json:"poster_path"`
	VoteAverage  float64 `json:"vote_average"`
	ReleaseDate  string  `json:"release_date"`
}

// detailResponse is the shape of /movie/{id}?append_to_response=credits
type detailResponse struct {
	Genres  []struct {
		Name string `json:"name"`
	} `json:"genres"`
	Tagline  string `json:"tagline"`
	Overview string `json:"overview"`
	Runtime  int    `json:"runtime"`
	Credits  struct {
		Crew []struct {
			Job  string `json:"job"`
			Name string `json:"name"`
		} `json:"crew"`
	} `json:"credits"`
}

// searchResponse is the shape of /search/movie
type searchResponse struct {
	Results []listItem `json:"results"`
}

// SearchResult is a lightweight hit for the title autocomplete endpoint.
type SearchResult struct {
	TmdbID      int64  `json:"id"`
	Title       string `json:"title"`
	ReleaseYear int    `json:"release_year,omitempty"`
}

func (c *Client) get(ctx context.Context, path string, params url.Values, out interface{}) error {
	params.Set("api_key", c.cfg.APIKey)
	params.Set("language", "en-US")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("calling tmdb: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("tmdb returned status %d for %s", resp.StatusCode, path)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding tmdb response: %w", err)
	}
	return nil
}

// FetchCuratedMovies returns the deduplicated, eligibility-filtered pool
// of movies from the configured curated lists. A list that fails to load
// is skipped; the fetch only fails when nothing could be loaded at all.
func (c *Client) FetchCuratedMovies(ctx context.Context) ([]domain.Movie, error) {
	seen := make(map[int64]struct{})
	var movies []domain.Movie
	var failures int

	for _, listID := range c.cfg.ListIDs {
		items, err := c.fetchList(ctx, listID)
		if err != nil {
			c.logger.Warn("failed to fetch curated list", "list_id", listID, "error", err)
			failures++
			continue
		}
		for _, item := range items {
			if _, dup := seen[item.TmdbID]; dup {
				continue
			}
			seen[item.TmdbID] = struct{}{}
			if item.Eligible() {
				movies = append(movies, item)
			}
		}
	}

	if len(movies) == 0 {
		if failures > 0 {
			return nil, fmt.Errorf("%w: all curated lists failed", domain.ErrCatalogUnavailable)
		}
		return nil, fmt.Errorf("%w: curated lists were empty", domain.ErrCatalogUnavailable)
	}
	return movies, nil
}

func (c *Client) fetchList(ctx context.Context, listID string) ([]domain.Movie, error) {
	var list listResponse
	if err := c.get(ctx, "/list/"+listID, url.Values{}, &list); err != nil {
		return nil, err
	}

	movies := make([]domain.Movie, 0, len(list.Items))
	for _, item := range list.Items {
		movie := domain.Movie{
			TmdbID:      item.ID,
			Title:       item.Title,
			ImageURL:    c.ImageURL(firstNonEmpty(item.BackdropPath, item.PosterPath)),
			Rating:      item.VoteAverage,
			ReleaseYear: parseYear(item.ReleaseDate),
		}

		detail, err := c.fetchDetail(ctx, item.ID)
		if err != nil {
			// Keep the list-level fields; the clue generator tolerates
			// missing detail metadata.
			c.logger.Warn("failed to fetch movie detail", "tmdb_id", item.ID, "error", err)
		} else {
			movie.Genres = detail.genreNames()
			movie.Tagline = detail.Tagline
			movie.Overview = detail.Overview
			movie.RuntimeMinutes = detail.Runtime
			movie.Director = detail.director()
		}

		movies = append(movies, movie)
	}
	return movies, nil
}

func (c *Client) fetchDetail(ctx context.Context, tmdbID int64) (*detailResponse, error) {
	params := url.Values{}
	params.Set("append_to_response", "credits")
	var detail detailResponse
	if err := c.get(ctx, "/movie/"+strconv.FormatInt(tmdbID, 10), params, &detail); err != nil {
		return nil, err
	}
	return &detail, nil
}

// Search queries TMDB for titles matching q.
func (c *Client) Search(ctx context.Context, q string) ([]SearchResult, error) {
	params := url.Values{}
	params.Set("query", q)
	var resp searchResponse
	if err := c.get(ctx, "/search/movie", params, &resp); err != nil {
		return nil, fmt.Errorf("searching movies: %w", err)
	}

	results := make([]SearchResult, 0, len(resp.Results))
	for _, item := range resp.Results {
		results = append(results, SearchResult{
			TmdbID:      item.ID,
			Title:       item.Title,
			ReleaseYear: parseYear(item.ReleaseDate),
		})
	}
	return results, nil
}

// ImageURL builds a full image URL for a TMDB image path.
func (c *Client) ImageURL(path string) string {
	if path == "" {
		return "/placeholder.png"
	}
	return c.cfg.ImageBaseURL + "/w500" + path
}

func (d *detailResponse) genreNames() []string {
	names := make([]string, 0, len(d.Genres))
	for _, g := range d.Genres {
		if g.Name != "" {
			names = append(names, g.Name)
		}
	}
	return names
}

func (d *detailResponse) director() string {
	for _, member := range d.Credits.Crew {
		if member.Job == "Director" {
			return member.Name
		}
	}
	return ""
}

func parseYear(releaseDate string) int {
	if len(releaseDate) < 4 {
		return 0
	}
	year, err := strconv.Atoi(strings.SplitN(releaseDate, "-", 2)[0])
	if err != nil {
		return 0
	}
	return year
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
