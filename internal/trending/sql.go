package trending

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Dialect selects the SQL flavour spoken by SQLStore.
type Dialect int

const (
	SQLite Dialect = iota
	Postgres
)

func (d Dialect) String() string {
	if d == Postgres {
		return "postgres"
	}
	return "sqlite"
}

var schemas = map[Dialect][]string{
	SQLite: {
		`CREATE TABLE IF NOT EXISTS search_counters (
			search_term TEXT PRIMARY KEY,
			count INTEGER NOT NULL DEFAULT 0,
			movie_id INTEGER NOT NULL,
			title TEXT NOT NULL,
			poster_url TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_search_counters_count ON search_counters(count DESC, updated_at DESC)`,
	},
	Postgres: {
		`CREATE TABLE IF NOT EXISTS search_counters (
			search_term TEXT PRIMARY KEY,
			count BIGINT NOT NULL DEFAULT 0,
			movie_id INTEGER NOT NULL,
			title TEXT NOT NULL,
			poster_url TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_search_counters_count ON search_counters(count DESC, updated_at DESC)`,
	},
}

const (
	// The representative movie is written on insert only; repeats bump the count.
	upsertCounterSQL = `
		INSERT INTO search_counters (search_term, count, movie_id, title, poster_url, created_at, updated_at)
		VALUES (?, 1, ?, ?, ?, ?, ?)
		ON CONFLICT (search_term) DO UPDATE SET
			count = search_counters.count + 1,
			updated_at = excluded.updated_at`

	topCountersSQL = `
		SELECT search_term, count, movie_id, title, poster_url, created_at, updated_at
		FROM search_counters
		ORDER BY count DESC, updated_at DESC, search_term ASC
		LIMIT ?`
)

// SQLStore implements Store on SQLite or PostgreSQL.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
	now     func() time.Time
}

// OpenSQLite opens (creating if needed) a SQLite database file.
func OpenSQLite(dbPath string) (*SQLStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create trending directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open trending database: %w", err)
	}
	// SQLite allows one writer; a single connection avoids SQLITE_BUSY on upserts.
	db.SetMaxOpenConns(1)

	store, err := NewSQLStore(context.Background(), db, SQLite)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// OpenPostgres connects to PostgreSQL with a lib/pq DSN.
func OpenPostgres(ctx context.Context, dsn string) (*SQLStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to reach postgres: %w", err)
	}

	store, err := NewSQLStore(ctx, db, Postgres)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// NewSQLStore wraps an open database and creates the counter table if needed.
func NewSQLStore(ctx context.Context, db *sql.DB, dialect Dialect) (*SQLStore, error) {
	for _, stmt := range schemas[dialect] {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("failed to create %s counter table: %w", dialect, err)
		}
	}
	return &SQLStore{db: db, dialect: dialect, now: time.Now}, nil
}

// Increment upserts the counter for term.
func (s *SQLStore) Increment(ctx context.Context, term string, movie Representative) error {
	key, err := normalizeTerm(term)
	if err != nil {
		return err
	}

	now := s.now().UTC()
	_, err = s.db.ExecContext(ctx, s.rebind(upsertCounterSQL),
		key, movie.MovieID, movie.Title, movie.PosterURL, now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to increment counter %q: %w", key, err)
	}
	return nil
}

// Top returns the highest counters.
func (s *SQLStore) Top(ctx context.Context, limit int) ([]Counter, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(topCountersSQL), normalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to query top counters: %w", err)
	}
	defer rows.Close()

	counters := []Counter{}
	for rows.Next() {
		var c Counter
		if err := rows.Scan(&c.SearchTerm, &c.Count, &c.MovieID, &c.Title, &c.PosterURL, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan counter: %w", err)
		}
		counters = append(counters, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read counters: %w", err)
	}
	return counters, nil
}

// Close closes the database connection.
func (s *SQLStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// rebind rewrites ? placeholders as $1..$n for PostgreSQL.
func (s *SQLStore) rebind(query string) string {
	if s.dialect != Postgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
