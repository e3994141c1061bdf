// Package server exposes movie discovery over HTTP and live WebSocket
// sessions.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/marco/movieFinder/internal/debounce"
	"github.com/marco/movieFinder/internal/discovery"
	"github.com/marco/movieFinder/internal/genre"
	"github.com/marco/movieFinder/internal/logx"
	"github.com/marco/movieFinder/internal/metadata"
	"github.com/marco/movieFinder/internal/trending"
)

const maxTrendingLimit = 50

// CounterStore records searches and reads the trending shelf.
type CounterStore interface {
	discovery.CounterRecorder
	discovery.TrendingReader
}

// PagedSource is a MovieSource that can fetch pages past the first.
type PagedSource interface {
	MoviesPage(ctx context.Context, query string, genreID int, page int) (*metadata.ListResponse, error)
}

type Config struct {
	RateLimitRPS   float64
	RateLimitBurst int
	TrendingLimit  int
	RecordTimeout  time.Duration
	DebounceDelay  time.Duration
	PreviewWorkers int
	PreviewSize    int
	// Gatherer backs /metrics; nil uses the default registry.
	Gatherer prometheus.Gatherer
}

type Server struct {
	movies   discovery.MovieSource
	counters CounterStore
	hub      *Hub
	logger   *slog.Logger
	cfg      Config
	handler  http.Handler

	// background counter increments started by handlers
	inflight sync.WaitGroup
}

// New wires the routes and middleware. counters may be nil, which disables
// counting and leaves the trending shelf empty.
func New(movies discovery.MovieSource, counters CounterStore, cfg Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.TrendingLimit <= 0 {
		cfg.TrendingLimit = trending.DefaultLimit
	}
	if cfg.DebounceDelay <= 0 {
		cfg.DebounceDelay = debounce.DefaultDelay
	}
	if cfg.PreviewWorkers <= 0 {
		cfg.PreviewWorkers = 4
	}
	if cfg.PreviewSize <= 0 {
		cfg.PreviewSize = 6
	}
	if cfg.Gatherer == nil {
		cfg.Gatherer = prometheus.DefaultGatherer
	}

	s := &Server{
		movies:   movies,
		counters: counters,
		hub:      NewHub(logger),
		logger:   logger,
		cfg:      cfg,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("GET /api/movies", s.handleMovies)
	mux.HandleFunc("GET /api/trending", s.handleTrending)
	mux.HandleFunc("GET /api/genres", s.handleGenres)
	mux.HandleFunc("GET /api/genres/previews", s.handleGenrePreviews)
	mux.HandleFunc("GET /ws", s.handleWS)

	var h http.Handler = mux
	h = rateLimitMiddleware(cfg.RateLimitRPS, cfg.RateLimitBurst, h)
	h = metricsMiddleware(h)
	h = loggingMiddleware(h)
	h = recoveryMiddleware(h)
	h = requestIDMiddleware(logger, h)
	s.handler = h
	return s
}

func (s *Server) Handler() http.Handler { return s.handler }

// Hub returns the registry of live sessions.
func (s *Server) Hub() *Hub { return s.hub }

// Wait blocks until counter increments started by handlers finish.
func (s *Server) Wait() { s.inflight.Wait() }

func (s *Server) recorder() discovery.CounterRecorder {
	if s.counters == nil {
		return nil
	}
	return s.counters
}

func (s *Server) reader() discovery.TrendingReader {
	if s.counters == nil {
		return nil
	}
	return s.counters
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleMovies runs one fetch. The body is the resulting state; an error
// state is served with 502 so the message still reaches the client.
func (s *Server) handleMovies(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := discovery.Request{Query: q.Get("query")}

	if raw := strings.TrimSpace(q.Get("genre")); raw != "" {
		id, err := strconv.Atoi(raw)
		if err != nil || id < 0 {
			respondWithError(w, http.StatusBadRequest, "Query parameter genre must be a non-negative integer")
			return
		}
		if id != 0 && !genre.IsKnown(id) {
			respondWithError(w, http.StatusBadRequest, "Query parameter genre is not a known genre id")
			return
		}
		req.GenreID = id
	}

	source := s.movies
	if raw := strings.TrimSpace(q.Get("page")); raw != "" {
		page, err := strconv.Atoi(raw)
		if err != nil || page < 1 {
			respondWithError(w, http.StatusBadRequest, "Query parameter page must be a positive integer")
			return
		}
		if page > 1 {
			paged, ok := s.movies.(PagedSource)
			if !ok {
				respondWithError(w, http.StatusBadRequest, "Query parameter page is not supported")
				return
			}
			source = pageSource{src: paged, page: page}
		}
	}

	flow := discovery.NewFlow(source, s.recorder(),
		discovery.WithLogger(logx.FromContext(r.Context())),
		discovery.WithRecordTimeout(s.cfg.RecordTimeout),
	)
	state, _ := flow.Fetch(r.Context(), req)

	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		flow.Wait()
	}()

	code := http.StatusOK
	if state.Status == discovery.StatusError {
		code = http.StatusBadGateway
	}
	respondWithJSON(w, code, state)
}

func (s *Server) handleTrending(w http.ResponseWriter, r *http.Request) {
	limit := s.cfg.TrendingLimit
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			respondWithError(w, http.StatusBadRequest, "Query parameter limit must be a positive integer")
			return
		}
		limit = min(n, maxTrendingLimit)
	}

	counters := discovery.LoadTrending(r.Context(), s.reader(), limit, logx.FromContext(r.Context()))
	respondWithJSON(w, http.StatusOK, counters)
}

type genresResponse struct {
	Genres       []genre.Genre       `json:"genres"`
	QuickFilters []genre.QuickFilter `json:"quickFilters"`
}

func (s *Server) handleGenres(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, genresResponse{
		Genres:       genre.All(),
		QuickFilters: genre.QuickFilters(),
	})
}

func (s *Server) handleGenrePreviews(w http.ResponseWriter, r *http.Request) {
	previews := discovery.LoadGenrePreviews(r.Context(), s.movies, genre.QuickFilters(),
		s.cfg.PreviewWorkers, s.cfg.PreviewSize, logx.FromContext(r.Context()))
	respondWithJSON(w, http.StatusOK, previews)
}

type pageSource struct {
	src  PagedSource
	page int
}

func (p pageSource) Movies(ctx context.Context, query string, genreID int) (*metadata.ListResponse, error) {
	return p.src.MoviesPage(ctx, query, genreID, p.page)
}
