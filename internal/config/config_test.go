package config

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestParse_Defaults(t *testing.T) {
	t.Setenv("TMDB_API_KEY", "")

	cfg, err := Parse([]byte("tmdb:\n  api_key: abc123\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if cfg.TMDB.Language != "en-US" {
		t.Errorf("language = %q", cfg.TMDB.Language)
	}
	if cfg.Search.DebounceDelay() != 500*time.Millisecond {
		t.Errorf("debounce = %v", cfg.Search.DebounceDelay())
	}
	if cfg.Trending.Backend != BackendSQLite || cfg.Trending.Limit != 5 {
		t.Errorf("trending = %+v", cfg.Trending)
	}
	if cfg.Trending.RefreshInterval() != time.Minute || cfg.Trending.RecordTimeout() != 5*time.Second {
		t.Errorf("trending durations = %v, %v", cfg.Trending.RefreshInterval(), cfg.Trending.RecordTimeout())
	}
	if cfg.Server.Addr != ":8080" || cfg.Server.PreviewSize != 6 {
		t.Errorf("server = %+v", cfg.Server)
	}
	if cfg.TMDB.Timeout() != 10*time.Second {
		t.Errorf("timeout = %v", cfg.TMDB.Timeout())
	}
	if cfg.TMDB.MaxAttempts != 1 {
		t.Errorf("max_attempts = %d, want 1", cfg.TMDB.MaxAttempts)
	}
}

func TestParse_ExpandsEnvAndFallsBackToEnvKey(t *testing.T) {
	t.Setenv("MF_PG", "postgres://u:p@db/moviefinder")
	t.Setenv("TMDB_API_KEY", "from-env")

	cfg, err := Parse([]byte(`
trending:
  backend: Postgres
  postgres_dsn: ${MF_PG}
`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.TMDB.APIKey != "from-env" {
		t.Errorf("api key = %q, want env fallback", cfg.TMDB.APIKey)
	}
	if cfg.Trending.Backend != BackendPostgres || cfg.Trending.PostgresDSN != "postgres://u:p@db/moviefinder" {
		t.Errorf("trending = %+v", cfg.Trending)
	}
}

func TestParse_Errors(t *testing.T) {
	t.Setenv("TMDB_API_KEY", "")

	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"missing key", "log:\n  level: info\n", "API key is required"},
		{"placeholder key", "tmdb:\n  api_key: your_api_key_here\n", "API key is required"},
		{"unknown backend", "tmdb:\n  api_key: k\ntrending:\n  backend: cassandra\n", "unknown trending backend"},
		{"mongo without uri", "tmdb:\n  api_key: k\ntrending:\n  backend: mongo\n", "mongo_uri"},
		{"redis without url", "tmdb:\n  api_key: k\ntrending:\n  backend: redis\n", "redis_url"},
		{"bad level", "tmdb:\n  api_key: k\nlog:\n  level: loud\n", "invalid log level"},
		{"bad format", "tmdb:\n  api_key: k\nlog:\n  format: xml\n", "unknown log format"},
		{"bad yaml", "tmdb: [", "failed to parse"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Parse() error = %v, want it to contain %q", err, tt.want)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestParseLevel(t *testing.T) {
	level, err := ParseLevel("DEBUG")
	if err != nil || level != slog.LevelDebug {
		t.Errorf("ParseLevel(DEBUG) = %v, %v", level, err)
	}
}

func TestWatcher_ReloadsOnChange(t *testing.T) {
	t.Setenv("TMDB_API_KEY", "")
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("tmdb:\n  api_key: first\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	var mu sync.Mutex
	var keys []string
	w, err := NewWatcher(path, 50*time.Millisecond, func(cfg *Config) {
		mu.Lock()
		keys = append(keys, cfg.TMDB.APIKey)
		mu.Unlock()
	}, nil)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	// a broken write is ignored, the final good write is applied once
	if err := os.WriteFile(path, []byte("tmdb: ["), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("tmdb:\n  api_key: second\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := len(keys)
		mu.Unlock()
		if n > 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(keys) == 0 || keys[len(keys)-1] != "second" {
		t.Errorf("reloaded keys = %v, want last to be second", keys)
	}
}
