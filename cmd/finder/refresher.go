package main

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/marco/movieFinder/internal/discovery"
	"github.com/marco/movieFinder/internal/server"
)

type broadcaster interface {
	Broadcast(msgType string, data any)
	Count() int
}

// trendingRefresher periodically reloads the trending shelf and pushes it to
// live sessions.
type trendingRefresher struct {
	reader     discovery.TrendingReader
	hub        broadcaster
	limit      int
	logger     *slog.Logger
	inProgress atomic.Bool
}

func newTrendingRefresher(reader discovery.TrendingReader, hub broadcaster, limit int, logger *slog.Logger) *trendingRefresher {
	return &trendingRefresher{reader: reader, hub: hub, limit: limit, logger: logger}
}

// Run refreshes on every tick until ctx is done.
func (r *trendingRefresher) Run(ctx context.Context, interval time.Duration) {
	r.logger.Info("trending refresh started", "interval", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			go r.refresh(ctx)
		case <-ctx.Done():
			r.logger.Info("trending refresh stopped")
			return
		}
	}
}

// refresh performs one cycle; it reports false when skipped because the
// previous cycle is still running.
func (r *trendingRefresher) refresh(ctx context.Context) bool {
	if !r.inProgress.CompareAndSwap(false, true) {
		r.logger.Warn("trending refresh skipped: previous refresh still running")
		return false
	}
	defer r.inProgress.Store(false)

	if r.hub.Count() == 0 {
		r.logger.Debug("trending refresh: no live sessions")
		return true
	}

	start := time.Now()
	counters := discovery.LoadTrending(ctx, r.reader, r.limit, r.logger)
	r.hub.Broadcast(server.MsgTrending, counters)
	r.logger.Debug("trending refreshed",
		"entries", len(counters),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return true
}
