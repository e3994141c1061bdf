// Package discovery turns search input into movie result states and records
// which searches produced results.
package discovery

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/marco/movieFinder/internal/metadata"
	"github.com/marco/movieFinder/internal/metrics"
	"github.com/marco/movieFinder/internal/trending"
)

const (
	// MsgFetchFailed is shown when the request could not be completed.
	MsgFetchFailed = "Error Fetching Movies. Please try again later."
	// MsgAPIFailure is shown when TMDB reports a failure without a message.
	MsgAPIFailure = "Failed to fetch movies"

	defaultRecordTimeout = 5 * time.Second
)

type Status string

const (
	StatusIdle    Status = "idle"
	StatusLoading Status = "loading"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Request is one fetch trigger. A non-blank Query searches by title; otherwise
// movies are discovered by popularity, filtered by GenreID when it is set.
type Request struct {
	Query   string `json:"query"`
	GenreID int    `json:"genreId,omitempty"`
}

// State is what the result area shows.
type State struct {
	Seq          uint64  `json:"seq"`
	Status       Status  `json:"status"`
	Request      Request `json:"request"`
	Movies       []Card  `json:"movies"`
	ErrorMessage string  `json:"errorMessage,omitempty"`
}

// NoResults reports a successful fetch that matched nothing.
func (s State) NoResults() bool {
	return s.Status == StatusSuccess && len(s.Movies) == 0
}

// MovieSource fetches a list of movies.
type MovieSource interface {
	Movies(ctx context.Context, query string, genreID int) (*metadata.ListResponse, error)
}

// CounterRecorder persists a search counter increment.
type CounterRecorder interface {
	Increment(ctx context.Context, term string, movie trending.Representative) error
}

type Option func(*Flow)

func WithLogger(logger *slog.Logger) Option {
	return func(f *Flow) { f.logger = logger }
}

// WithObserver registers fn to receive every state transition. fn runs with
// the flow locked and must not call back into the flow.
func WithObserver(fn func(State)) Option {
	return func(f *Flow) { f.observer = fn }
}

// WithRecordTimeout bounds each background counter increment.
func WithRecordTimeout(d time.Duration) Option {
	return func(f *Flow) {
		if d > 0 {
			f.recordTimeout = d
		}
	}
}

// Flow is the fetch state machine for one result area. Each fetch supersedes
// the previous one: its context is cancelled and any result it still
// produces is discarded.
type Flow struct {
	source        MovieSource
	recorder      CounterRecorder
	logger        *slog.Logger
	observer      func(State)
	recordTimeout time.Duration

	mu     sync.Mutex
	seq    uint64
	cancel context.CancelFunc
	state  State

	wg sync.WaitGroup
}

// NewFlow returns an idle flow. recorder may be nil to skip counting.
func NewFlow(source MovieSource, recorder CounterRecorder, opts ...Option) *Flow {
	f := &Flow{
		source:        source,
		recorder:      recorder,
		logger:        slog.Default(),
		recordTimeout: defaultRecordTimeout,
		state:         State{Status: StatusIdle, Movies: []Card{}},
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// State returns the current state.
func (f *Flow) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Start runs Fetch in the background.
func (f *Flow) Start(ctx context.Context, req Request) {
	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		f.Fetch(ctx, req)
	}()
}

// Wait blocks until background fetches and counter increments finish.
func (f *Flow) Wait() {
	f.wg.Wait()
}

// Close cancels the in-flight fetch, if any.
func (f *Flow) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cancel != nil {
		f.cancel()
		f.cancel = nil
	}
}

// Fetch moves the flow to loading, fetches req and applies the outcome. The
// returned state is the outcome of this fetch; applied is false when a newer
// fetch superseded it, in which case the flow's state was left untouched.
func (f *Flow) Fetch(ctx context.Context, req Request) (result State, applied bool) {
	fetchCtx, seq := f.begin(ctx, req)
	endpoint := metadata.Endpoint(req.Query)

	start := time.Now()
	resp, err := f.source.Movies(fetchCtx, req.Query, req.GenreID)
	metrics.MovieFetchDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())

	next, outcome := outcomeState(seq, req, resp, err)
	if !f.apply(next) {
		metrics.StaleResponsesTotal.Inc()
		metrics.MovieFetchesTotal.WithLabelValues(endpoint, "stale").Inc()
		f.logger.Debug("discarded superseded fetch", "seq", seq, "query", req.Query)
		return next, false
	}
	metrics.MovieFetchesTotal.WithLabelValues(endpoint, outcome).Inc()

	if err != nil {
		f.logger.Warn("movie fetch failed",
			"endpoint", endpoint,
			"query", req.Query,
			"genre_id", req.GenreID,
			"error", err,
		)
		return next, true
	}

	if strings.TrimSpace(req.Query) != "" && len(resp.Results) > 0 {
		f.record(ctx, req.Query, resp.Results[0])
	}
	return next, true
}

func outcomeState(seq uint64, req Request, resp *metadata.ListResponse, err error) (State, string) {
	next := State{Seq: seq, Request: req, Movies: []Card{}}

	var apiErr *metadata.APIError
	switch {
	case err == nil:
		next.Status = StatusSuccess
		next.Movies = NewCards(resp.Results)
		if len(next.Movies) == 0 {
			return next, "empty"
		}
		return next, "success"
	case errors.As(err, &apiErr):
		next.Status = StatusError
		next.ErrorMessage = apiErr.Message
		if next.ErrorMessage == "" {
			next.ErrorMessage = MsgAPIFailure
		}
		return next, "api_error"
	default:
		next.Status = StatusError
		next.ErrorMessage = MsgFetchFailed
		return next, "error"
	}
}

func (f *Flow) begin(ctx context.Context, req Request) (context.Context, uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.cancel != nil {
		f.cancel()
	}
	fetchCtx, cancel := context.WithCancel(ctx)
	f.cancel = cancel
	f.seq++

	f.state = State{
		Seq:     f.seq,
		Status:  StatusLoading,
		Request: req,
		Movies:  f.state.Movies,
	}
	f.emit()
	return fetchCtx, f.seq
}

func (f *Flow) apply(next State) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if next.Seq != f.seq {
		return false
	}
	if f.cancel != nil {
		f.cancel()
		f.cancel = nil
	}
	f.state = next
	f.emit()
	return true
}

func (f *Flow) emit() {
	if f.observer != nil {
		f.observer(f.state)
	}
}

// record increments the counter for query in the background. The increment
// outlives the fetch context so a superseding keystroke does not drop it.
func (f *Flow) record(ctx context.Context, query string, top metadata.Movie) {
	if f.recorder == nil {
		return
	}
	movie := trending.Representative{
		MovieID:   top.ID,
		Title:     top.Title,
		PosterURL: metadata.PosterURL(top.PosterPath),
	}

	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), f.recordTimeout)
		defer cancel()

		if err := f.recorder.Increment(rctx, query, movie); err != nil {
			metrics.CounterIncrementsTotal.WithLabelValues("error").Inc()
			f.logger.Error("failed to update search count", "query", query, "error", err)
			return
		}
		metrics.CounterIncrementsTotal.WithLabelValues("ok").Inc()
		f.logger.Debug("search count updated", "query", query, "movie_id", movie.MovieID)
	}()
}
