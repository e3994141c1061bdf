package discovery

import (
	"context"
	"log/slog"

	"github.com/marco/movieFinder/internal/metrics"
	"github.com/marco/movieFinder/internal/trending"
)

// TrendingReader lists the most searched queries.
type TrendingReader interface {
	Top(ctx context.Context, limit int) ([]trending.Counter, error)
}

// LoadTrending reads the trending shelf. Failures are logged and yield an
// empty shelf so the page still renders.
func LoadTrending(ctx context.Context, reader TrendingReader, limit int, logger *slog.Logger) []trending.Counter {
	if reader == nil {
		return []trending.Counter{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	counters, err := reader.Top(ctx, limit)
	if err != nil {
		metrics.TrendingReadsTotal.WithLabelValues("error").Inc()
		logger.Error("error fetching trending movies", "error", err)
		return []trending.Counter{}
	}
	metrics.TrendingReadsTotal.WithLabelValues("ok").Inc()
	if counters == nil {
		counters = []trending.Counter{}
	}
	return counters
}
