// Package trending persists per-query search counters and reads the most
// searched queries back for the trending shelf.
package trending

import (
	"context"
	"errors"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

// DefaultLimit is the size of the trending shelf.
const DefaultLimit = 5

// ErrEmptyTerm is returned when a search term is blank after normalization.
var ErrEmptyTerm = errors.New("search term is empty")

// Counter is the persisted record for one normalized search term.
type Counter struct {
	SearchTerm string    `json:"searchTerm" bson:"search_term"`
	Count      int64     `json:"count" bson:"count"`
	MovieID    int       `json:"movieId" bson:"movie_id"`
	Title      string    `json:"title" bson:"title"`
	PosterURL  string    `json:"posterUrl" bson:"poster_url"`
	CreatedAt  time.Time `json:"createdAt" bson:"created_at"`
	UpdatedAt  time.Time `json:"updatedAt" bson:"updated_at"`
}

// Representative is the movie a counter points at, taken from the top
// search result the first time a term is recorded.
type Representative struct {
	MovieID   int
	Title     string
	PosterURL string
}

// Store upserts counters and lists the highest counts.
type Store interface {
	// Increment adds one to the counter for term, creating it with movie
	// as its representative on first use.
	Increment(ctx context.Context, term string, movie Representative) error

	// Top returns at most limit counters ordered by count, highest first.
	Top(ctx context.Context, limit int) ([]Counter, error)

	// Close releases the underlying connection.
	Close() error
}

// Normalize returns the counter key for a raw search term: surrounding
// whitespace trimmed and Unicode NFC applied. Case is preserved.
func Normalize(term string) string {
	return norm.NFC.String(strings.TrimSpace(term))
}

func normalizeTerm(term string) (string, error) {
	key := Normalize(term)
	if key == "" {
		return "", ErrEmptyTerm
	}
	return key, nil
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	return limit
}
