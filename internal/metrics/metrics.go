package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "moviefinder",
		Name:      "http_requests_total",
		Help:      "Total HTTP requests by method, route and status code.",
	}, []string{"method", "route", "status"})

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "moviefinder",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.3, 0.5, 1, 2, 5},
	}, []string{"method", "route"})

	MovieFetchesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "moviefinder",
		Name:      "movie_fetches_total",
		Help:      "Movie list fetches by endpoint and outcome.",
	}, []string{"endpoint", "outcome"})

	MovieFetchDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "moviefinder",
		Name:      "movie_fetch_duration_seconds",
		Help:      "Duration of TMDB list fetches in seconds.",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"endpoint"})

	StaleResponsesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "moviefinder",
		Name:      "stale_responses_total",
		Help:      "Fetch results discarded because a newer request was issued.",
	})

	CounterIncrementsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "moviefinder",
		Name:      "search_counter_increments_total",
		Help:      "Search counter increments by outcome.",
	}, []string{"outcome"})

	TrendingReadsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "moviefinder",
		Name:      "trending_reads_total",
		Help:      "Trending shelf reads by outcome.",
	}, []string{"outcome"})

	ActiveSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "moviefinder",
		Name:      "active_sessions",
		Help:      "Number of connected live search sessions.",
	})
)

// Register adds every collector to reg.
func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		MovieFetchesTotal,
		MovieFetchDuration,
		StaleResponsesTotal,
		CounterIncrementsTotal,
		TrendingReadsTotal,
		ActiveSessions,
	)
}
