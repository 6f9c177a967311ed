package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, "server:\n  port: 9090\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("expected port 9090, got %d", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 5*time.Second {
		t.Errorf("expected default read timeout, got %v", cfg.Server.ReadTimeout)
	}
	if cfg.Redis.Addr != "localhost:6379" {
		t.Errorf("expected default redis addr, got %s", cfg.Redis.Addr)
	}
	if cfg.Postgres.Host != "localhost" || cfg.Postgres.Port != 5432 {
		t.Errorf("expected default postgres host, got %s:%d", cfg.Postgres.Host, cfg.Postgres.Port)
	}
	if cfg.TMDB.BaseURL != "https://api.themoviedb.org/3" {
		t.Errorf("expected default TMDB base url, got %s", cfg.TMDB.BaseURL)
	}
	if len(cfg.TMDB.ListIDs) != 5 {
		t.Errorf("expected 5 default curated lists, got %v", cfg.TMDB.ListIDs)
	}
	if cfg.TMDB.CacheTTL != 24*time.Hour {
		t.Errorf("expected 24h catalog cache TTL, got %v", cfg.TMDB.CacheTTL)
	}
	if cfg.Kafka.Topic != "game-events" {
		t.Errorf("expected default kafka topic, got %s", cfg.Kafka.Topic)
	}
	if cfg.Refresh.Interval != 6*time.Hour {
		t.Errorf("expected 6h refresh interval, got %v", cfg.Refresh.Interval)
	}
	if cfg.Game.RecentWindow != 100 {
		t.Errorf("expected recent window 100, got %d", cfg.Game.RecentWindow)
	}
}

func TestLoadExpandsEnvironment(t *testing.T) {
	t.Setenv("TMDB_API_KEY", "secret-key")
	t.Setenv("DB_PASSWORD", "hunter2")

	path := writeConfig(t, `
tmdb:
  api_key: ${TMDB_API_KEY}
postgres:
  user: app
  password: ${DB_PASSWORD}
  database: reeldle
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.TMDB.APIKey != "secret-key" {
		t.Errorf("expected expanded api key, got %q", cfg.TMDB.APIKey)
	}
	if cfg.Postgres.Password != "hunter2" {
		t.Errorf("expected expanded password, got %q", cfg.Postgres.Password)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("expected an error for a missing config file")
	}
}

func TestConnectionString(t *testing.T) {
	cfg := PostgresConfig{
		Host:     "db.internal",
		Port:     5433,
		User:     "app",
		Password: "pw",
		Database: "reeldle",
	}

	want := "postgres://app:pw@db.internal:5433/reeldle?sslmode=disable"
	if got := cfg.ConnectionString(); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestDefaultConfigEnablesRefresh(t *testing.T) {
	cfg := DefaultConfig()
	if !cfg.Refresh.Enabled {
		t.Error("expected refresh worker enabled by default")
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("expected default port 8080, got %d", cfg.Server.Port)
	}
}
