package metadata

import "fmt"

// ListResponse represents a page of movies from the TMDB search or discover API.
// Response and Error are set instead of Results when the API reports a failure.
type ListResponse struct {
	Page         int     `json:"page"`
	Results      []Movie `json:"results"`
	TotalPages   int     `json:"total_pages"`
	TotalResults int     `json:"total_results"`
	Response     string  `json:"Response,omitempty"`
	Error        string  `json:"Error,omitempty"`
}

// Failed reports whether the payload is an API-reported failure.
func (r *ListResponse) Failed() bool {
	return r.Response == "False"
}

// Movie represents a movie from TMDB list endpoints
type Movie struct {
	ID               int     `json:"id"`
	Title            string  `json:"title"`
	Overview         string  `json:"overview"`
	PosterPath       string  `json:"poster_path"`
	ReleaseDate      string  `json:"release_date"`
	VoteAverage      float64 `json:"vote_average"`
	VoteCount        int     `json:"vote_count"`
	Popularity       float64 `json:"popularity"`
	GenreIDs         []int   `json:"genre_ids"`
	OriginalLanguage string  `json:"original_language"`
}

// StatusError is returned when TMDB answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("TMDB API error (status %d): %s", e.StatusCode, e.Body)
}

// HTTPStatus exposes the status code to retry classification.
func (e *StatusError) HTTPStatus() int {
	return e.StatusCode
}

// APIError is returned when TMDB answers 2xx with Response "False".
type APIError struct {
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return "TMDB reported a failure"
	}
	return "TMDB reported a failure: " + e.Message
}
