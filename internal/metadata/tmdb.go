package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/marco/movieFinder/internal/retry"
)

const (
	tmdbAPIBaseURL   = "https://api.themoviedb.org/3"
	tmdbImageBaseURL = "https://image.tmdb.org/t/p"
	posterSize       = "w500"

	// EndpointSearch and EndpointDiscover name the two list endpoints.
	EndpointSearch   = "search"
	EndpointDiscover = "discover"
)

// RetryLogFunc is a callback for logging retry attempts
type RetryLogFunc func(attempt int, maxAttempts int, backoff time.Duration, err error)

// Client represents a TMDB API client
type Client struct {
	mu     sync.RWMutex
	apiKey string

	baseURL        string
	language       string
	httpClient     *http.Client
	limiter        *rate.Limiter
	maxAttempts    int
	initialBackoff time.Duration
	retryLogFunc   RetryLogFunc
}

// ClientConfig holds configuration for the TMDB client
type ClientConfig struct {
	APIKey            string
	BaseURL           string
	Language          string
	Timeout           time.Duration
	RequestsPerSecond float64
	MaxAttempts       int
	InitialBackoffMs  int
	RetryLogFunc      RetryLogFunc
	Transport         http.RoundTripper
}

// NewClientWithConfig creates a new TMDB API client with full configuration.
// MaxAttempts counts the first try; unset means a single attempt.
func NewClientWithConfig(cfg ClientConfig) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = tmdbAPIBaseURL
	}
	if cfg.Language == "" {
		cfg.Language = "en-US"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.InitialBackoffMs <= 0 {
		cfg.InitialBackoffMs = 500
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	burst := int(cfg.RequestsPerSecond)
	if burst < 1 {
		burst = 1
	}

	return &Client{
		apiKey:         cfg.APIKey,
		baseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		language:       cfg.Language,
		httpClient:     &http.Client{Timeout: cfg.Timeout, Transport: cfg.Transport},
		limiter:        rate.NewLimiter(limit, burst),
		maxAttempts:    cfg.MaxAttempts,
		initialBackoff: time.Duration(cfg.InitialBackoffMs) * time.Millisecond,
		retryLogFunc:   cfg.RetryLogFunc,
	}
}

// SetAPIKey swaps the bearer token used for subsequent requests
func (c *Client) SetAPIKey(apiKey string) {
	c.mu.Lock()
	c.apiKey = apiKey
	c.mu.Unlock()
}

func (c *Client) token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.apiKey
}

// Endpoint returns which list endpoint serves the given query.
// A non-blank query always searches; otherwise the discover list is used.
func Endpoint(query string) string {
	if strings.TrimSpace(query) != "" {
		return EndpointSearch
	}
	return EndpointDiscover
}

// Movies fetches the first page for a keyword query, or the popular list
// (optionally filtered by genre) when the query is blank.
func (c *Client) Movies(ctx context.Context, query string, genreID int) (*ListResponse, error) {
	return c.MoviesPage(ctx, query, genreID, 1)
}

// MoviesPage is Movies for an arbitrary result page.
func (c *Client) MoviesPage(ctx context.Context, query string, genreID int, page int) (*ListResponse, error) {
	if Endpoint(query) == EndpointSearch {
		return c.SearchMovies(ctx, query, page)
	}
	return c.DiscoverMovies(ctx, genreID, page)
}

// SearchMovies searches movies by title
func (c *Client) SearchMovies(ctx context.Context, query string, page int) (*ListResponse, error) {
	params := url.Values{}
	params.Set("query", query)
	params.Set("include_adult", "false")
	params.Set("language", c.language)
	params.Set("page", strconv.Itoa(normalizePage(page)))

	resp, err := c.getList(ctx, "/search/movie", params)
	if err != nil {
		return nil, fmt.Errorf("failed to search movies: %w", err)
	}
	return resp, nil
}

// DiscoverMovies lists movies by popularity, filtered by genre when genreID > 0
func (c *Client) DiscoverMovies(ctx context.Context, genreID int, page int) (*ListResponse, error) {
	params := url.Values{}
	params.Set("sort_by", "popularity.desc")
	params.Set("include_adult", "false")
	params.Set("language", c.language)
	params.Set("page", strconv.Itoa(normalizePage(page)))
	if genreID > 0 {
		params.Set("with_genres", strconv.Itoa(genreID))
	}

	resp, err := c.getList(ctx, "/discover/movie", params)
	if err != nil {
		return nil, fmt.Errorf("failed to discover movies: %w", err)
	}
	return resp, nil
}

func (c *Client) getList(ctx context.Context, path string, params url.Values) (*ListResponse, error) {
	requestURL := fmt.Sprintf("%s%s?%s", c.baseURL, path, params.Encode())

	resp, err := c.doRequestWithRetry(ctx, requestURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var list ListResponse
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, fmt.Errorf("failed to decode list response: %w", err)
	}

	if list.Failed() {
		return nil, &APIError{Message: list.Error}
	}
	if list.Results == nil {
		list.Results = []Movie{}
	}
	return &list, nil
}

// doRequestWithRetry executes an authorized GET request with retry logic.
// The returned response always has a 2xx status.
func (c *Client) doRequestWithRetry(ctx context.Context, requestURL string) (*http.Response, error) {
	var resp *http.Response
	attempt := 0

	err := retry.Retry(ctx, func() error {
		attempt++
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
		if err != nil {
			return err
		}
		req.Header.Set("accept", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.token())

		r, err := c.httpClient.Do(req)
		if err != nil {
			c.logRetry(attempt, err)
			return err
		}

		if r.StatusCode < 200 || r.StatusCode >= 300 {
			body, _ := io.ReadAll(io.LimitReader(r.Body, 4096))
			r.Body.Close()
			statusErr := &StatusError{StatusCode: r.StatusCode, Body: strings.TrimSpace(string(body))}
			c.logRetry(attempt, statusErr)
			return statusErr
		}

		resp = r
		return nil
	}, c.maxAttempts, c.initialBackoff)

	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) logRetry(attempt int, err error) {
	if c.retryLogFunc == nil || attempt >= c.maxAttempts {
		return
	}
	if !retry.IsRetryable(err) && !retry.IsRateLimited(err) {
		return
	}
	c.retryLogFunc(attempt, c.maxAttempts, retry.Backoff(attempt, c.initialBackoff, err), err)
}

// PosterURL builds the w500 image URL for a poster path, or "" if there is none
func PosterURL(posterPath string) string {
	if posterPath == "" {
		return ""
	}
	return fmt.Sprintf("%s/%s/%s", tmdbImageBaseURL, posterSize, strings.TrimLeft(posterPath, "/"))
}

func normalizePage(page int) int {
	if page < 1 {
		return 1
	}
	return page
}
