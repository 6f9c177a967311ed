package tmdb

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/reeldle/internal/config"
)

func testServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()

	mux.HandleFunc("/list/1", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("api_key") != "test-key" {
			http.Error(w, "missing api key", http.StatusUnauthorized)
			return
		}
		fmt.Fprint(w, `{"items":[
			{"id":27205,"title":"Inception","backdrop_path":"/inc.jpg","vote_average":8.4,"release_date":"2010-07-16"},
			{"id":550,"title":"Fight Club","poster_path":"/fc.jpg","vote_average":8.4,"release_date":"1999-10-15"}
		]}`)
	})
	mux.HandleFunc("/list/2", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"items":[
			{"id":27205,"title":"Inception","backdrop_path":"/inc.jpg","vote_average":8.4,"release_date":"2010-07-16"}
		]}`)
	})
	mux.HandleFunc("/movie/27205", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{
			"genres":[{"name":"Science Fiction"},{"name":"Action"}],
			"tagline":"Your mind is the scene of the crime.",
			"overview":"A thief steals secrets through dreams.",
			"runtime":148,
			"credits":{"crew":[{"job":"Producer","name":"Emma Thomas"},{"job":"Director","name":"Christopher Nolan"}]}
		}`)
	})
	mux.HandleFunc("/movie/550", func(w http.ResponseWriter, r *http.Request) {
		// No genres: the entry must be filtered out of the pool.
		fmt.Fprint(w, `{"genres":[],"runtime":139,"credits":{"crew":[]}}`)
	})
	mux.HandleFunc("/search/movie", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("query") != "incep" {
			fmt.Fprint(w, `{"results":[]}`)
			return
		}
		fmt.Fprint(w, `{"results":[{"id":27205,"title":"Inception","release_date":"2010-07-16"}]}`)
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func testClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	cfg := &config.TMDBConfig{
		APIKey:       "test-key",
		BaseURL:      baseURL,
		ImageBaseURL: "https://img.example",
		ListIDs:      []string{"1", "2"},
		Timeout:      5 * time.Second,
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewClient(cfg, logger)
}

func TestFetchCuratedMovies(t *testing.T) {
	server := testServer(t)
	client := testClient(t, server.URL)

	movies, err := client.FetchCuratedMovies(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(movies) != 1 {
		t.Fatalf("expected 1 eligible movie after dedup and filtering, got %d", len(movies))
	}

	m := movies[0]
	if m.TmdbID != 27205 || m.Title != "Inception" {
		t.Errorf("unexpected movie: %+v", m)
	}
	if m.Director != "Christopher Nolan" {
		t.Errorf("expected director from credits crew, got %q", m.Director)
	}
	if m.RuntimeMinutes != 148 {
		t.Errorf("expected runtime 148, got %d", m.RuntimeMinutes)
	}
	if m.ReleaseYear != 2010 {
		t.Errorf("expected release year 2010, got %d", m.ReleaseYear)
	}
	if m.ImageURL != "https://img.example/w500/inc.jpg" {
		t.Errorf("unexpected image url %q", m.ImageURL)
	}
	if len(m.Genres) != 2 || m.Genres[0] != "Science Fiction" {
		t.Errorf("unexpected genres %v", m.Genres)
	}
}

func TestFetchCuratedMoviesAllListsFail(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer server.Close()

	client := testClient(t, server.URL)
	if _, err := client.FetchCuratedMovies(context.Background()); err == nil {
		t.Error("expected an error when every curated list fails")
	}
}

func TestSearch(t *testing.T) {
	server := testServer(t)
	client := testClient(t, server.URL)

	results, err := client.Search(context.Background(), "incep")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].TmdbID != 27205 || results[0].Title != "Inception" || results[0].ReleaseYear != 2010 {
		t.Errorf("unexpected result: %+v", results[0])
	}
}

func TestImageURL(t *testing.T) {
	client := testClient(t, "http://unused")

	if got := client.ImageURL("/poster.jpg"); got != "https://img.example/w500/poster.jpg" {
		t.Errorf("unexpected image url %q", got)
	}
	if got := client.ImageURL(""); got != "/placeholder.png" {
		t.Errorf("expected placeholder for empty path, got %q", got)
	}
}

func TestParseYear(t *testing.T) {
	tests := []struct {
		input string
		want  int
	}{
		{"2010-07-16", 2010},
		{"1999", 1999},
		{"", 0},
		{"bad", 0},
	}
	for _, tt := range tests {
		if got := parseYear(tt.input); got != tt.want {
			t.Errorf("parseYear(%q) = %d, want %d", tt.input, got, tt.want)
		}
	}
}
