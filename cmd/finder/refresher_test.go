package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/marco/movieFinder/internal/trending"
)

type fakeHub struct {
	mu       sync.Mutex
	sessions int
	sent     []any
}

func (h *fakeHub) Broadcast(msgType string, data any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sent = append(h.sent, data)
}

func (h *fakeHub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sessions
}

type blockingReader struct {
	release  chan struct{}
	counters []trending.Counter
	err      error
}

func (r *blockingReader) Top(ctx context.Context, limit int) ([]trending.Counter, error) {
	if r.release != nil {
		<-r.release
	}
	return r.counters, r.err
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRefresh_BroadcastsShelf(t *testing.T) {
	hub := &fakeHub{sessions: 2}
	reader := &blockingReader{counters: []trending.Counter{{SearchTerm: "batman", Count: 4}}}
	r := newTrendingRefresher(reader, hub, 5, quietLogger())

	if !r.refresh(context.Background()) {
		t.Fatal("expected refresh to run")
	}
	if len(hub.sent) != 1 {
		t.Fatalf("expected 1 broadcast, got %d", len(hub.sent))
	}
	shelf := hub.sent[0].([]trending.Counter)
	if len(shelf) != 1 || shelf[0].SearchTerm != "batman" {
		t.Errorf("unexpected shelf: %+v", shelf)
	}
}

func TestRefresh_ReadFailureBroadcastsEmptyShelf(t *testing.T) {
	hub := &fakeHub{sessions: 1}
	r := newTrendingRefresher(&blockingReader{err: errors.New("db down")}, hub, 5, quietLogger())

	r.refresh(context.Background())
	if len(hub.sent) != 1 || len(hub.sent[0].([]trending.Counter)) != 0 {
		t.Errorf("expected one empty shelf, got %+v", hub.sent)
	}
}

func TestRefresh_SkipsWithoutSessions(t *testing.T) {
	hub := &fakeHub{}
	r := newTrendingRefresher(&blockingReader{}, hub, 5, quietLogger())

	r.refresh(context.Background())
	if len(hub.sent) != 0 {
		t.Errorf("expected no broadcast without sessions, got %d", len(hub.sent))
	}
}

func TestRefresh_OverlapIsSkipped(t *testing.T) {
	hub := &fakeHub{sessions: 1}
	reader := &blockingReader{release: make(chan struct{})}
	r := newTrendingRefresher(reader, hub, 5, quietLogger())

	done := make(chan bool)
	go func() { done <- r.refresh(context.Background()) }()

	deadline := time.Now().Add(2 * time.Second)
	for !r.inProgress.Load() && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	if r.refresh(context.Background()) {
		t.Error("second refresh should be skipped while the first is running")
	}
	close(reader.release)
	if !<-done {
		t.Error("first refresh should have run")
	}
	if !r.refresh(context.Background()) {
		t.Error("refresh should run again once the previous one finished")
	}
}
