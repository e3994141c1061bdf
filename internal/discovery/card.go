package discovery

import (
	"fmt"
	"strings"

	"github.com/marco/movieFinder/internal/genre"
	"github.com/marco/movieFinder/internal/metadata"
)

const notAvailable = "N/A"

// Card is the rendered form of a movie in a result list.
type Card struct {
	ID        int      `json:"id"`
	Title     string   `json:"title"`
	PosterURL string   `json:"posterUrl"`
	Rating    string   `json:"rating"`
	Language  string   `json:"language"`
	Year      string   `json:"year"`
	Genres    []string `json:"genres"`
	Overview  string   `json:"overview,omitempty"`
}

// NewCard renders a TMDB movie. Missing ratings and dates show as N/A and an
// empty PosterURL means the client shows its placeholder.
func NewCard(m metadata.Movie) Card {
	rating := notAvailable
	if m.VoteAverage != 0 {
		rating = fmt.Sprintf("%.1f", m.VoteAverage)
	}
	year := notAvailable
	if m.ReleaseDate != "" {
		year, _, _ = strings.Cut(m.ReleaseDate, "-")
	}
	return Card{
		ID:        m.ID,
		Title:     m.Title,
		PosterURL: metadata.PosterURL(m.PosterPath),
		Rating:    rating,
		Language:  m.OriginalLanguage,
		Year:      year,
		Genres:    genre.Names(m.GenreIDs),
		Overview:  m.Overview,
	}
}

// NewCards renders a result list; the result is never nil.
func NewCards(movies []metadata.Movie) []Card {
	cards := make([]Card, 0, len(movies))
	for _, m := range movies {
		cards = append(cards, NewCard(m))
	}
	return cards
}
