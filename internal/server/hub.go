package server

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"
)

// Server message types.
const (
	MsgState    = "state"
	MsgTrending = "trending"
	MsgError    = "error"
)

type wsMessage struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Hub tracks connected sessions and fans messages out to them.
type Hub struct {
	mu       sync.RWMutex
	sessions map[*Session]struct{}
	closed   bool
	logger   *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		sessions: make(map[*Session]struct{}),
		logger:   logger,
	}
}

// add registers s; it reports false once the hub is closed.
func (h *Hub) add(s *Session) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.sessions[s] = struct{}{}
	h.logger.Debug("ws session connected", slog.Int("total", len(h.sessions)))
	return true
}

func (h *Hub) remove(s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.sessions[s]; ok {
		delete(h.sessions, s)
		h.logger.Debug("ws session disconnected", slog.Int("total", len(h.sessions)))
	}
}

// Count returns the number of connected sessions.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// Broadcast sends a typed JSON message to every session. Sessions whose send
// buffer is full miss the message.
func (h *Hub) Broadcast(msgType string, data any) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if len(h.sessions) == 0 {
		return
	}
	payload, err := json.Marshal(wsMessage{Type: msgType, Data: data})
	if err != nil {
		h.logger.Error("ws marshal failed", slog.String("error", err.Error()))
		return
	}
	for s := range h.sessions {
		s.enqueue(payload)
	}
}

// Close disconnects every session with a going-away close frame and refuses
// new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	sessions := make([]*Session, 0, len(h.sessions))
	for s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.mu.Unlock()

	for _, s := range sessions {
		s.disconnect(websocket.CloseGoingAway, "server shutting down")
	}
	h.logger.Debug("ws hub stopped", slog.Int("disconnected", len(sessions)))
}
