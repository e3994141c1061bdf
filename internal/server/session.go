package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/marco/movieFinder/internal/debounce"
	"github.com/marco/movieFinder/internal/discovery"
	"github.com/marco/movieFinder/internal/genre"
	"github.com/marco/movieFinder/internal/logx"
	"github.com/marco/movieFinder/internal/metrics"
)

const (
	sendBuffer   = 64
	readLimit    = 4096
	pongWait     = 60 * time.Second
	pingInterval = 30 * time.Second
	writeWait    = 10 * time.Second
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type clientMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
	ID   int    `json:"id"`
}

// Session is one live search connection. Typed input is debounced before it
// reaches the flow; genre picks go through immediately.
type Session struct {
	conn   *websocket.Conn
	send   chan []byte
	done   chan struct{}
	once   sync.Once
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	flow   *discovery.Flow
	input  *debounce.Debouncer[string]

	// guards the fields below; fetches start while it is held so close
	// never misses one
	mu      sync.Mutex
	genreID int
	closed  bool

	// last settled query; settled is false until one is known
	lastQuery string
	settled   bool
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	logger := logx.FromContext(r.Context())
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("ws upgrade failed", "error", err)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	sess := &Session{
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		done:   make(chan struct{}),
		logger: logger,
		ctx:    ctx,
		cancel: cancel,

		// the initial load below is the empty settled query
		settled: true,
	}
	sess.flow = discovery.NewFlow(s.movies, s.recorder(),
		discovery.WithLogger(logger),
		discovery.WithRecordTimeout(s.cfg.RecordTimeout),
		discovery.WithObserver(sess.pushState),
	)
	sess.input = debounce.New(s.cfg.DebounceDelay, sess.search)

	if !s.hub.add(sess) {
		sess.disconnect(websocket.CloseGoingAway, "server shutting down")
		sess.close()
		return
	}
	metrics.ActiveSessions.Inc()
	defer func() {
		s.hub.remove(sess)
		metrics.ActiveSessions.Dec()
		sess.close()
	}()

	go sess.writePump()

	sess.pushTrending(discovery.LoadTrending(ctx, s.reader(), s.cfg.TrendingLimit, logger))
	sess.mu.Lock()
	sess.startLocked(discovery.Request{})
	sess.mu.Unlock()

	sess.readPump()
}

// search runs once typing has settled. Text equal to the last settled query
// is ignored. A blank query falls back to the active genre's popular list.
func (sess *Session) search(text string) {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.settled && text == sess.lastQuery {
		return
	}
	sess.lastQuery = text
	sess.settled = true
	sess.startLocked(discovery.Request{Query: text, GenreID: sess.genreID})
}

func (sess *Session) selectGenre(id int) {
	sess.input.Stop()
	if name, ok := genre.Name(id); ok {
		sess.logger.Debug("genre selected", "genre", name)
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.genreID = id
	sess.settled = false
	sess.startLocked(discovery.Request{GenreID: id})
}

// startLocked begins a fetch unless the session is closing. sess.mu must be
// held.
func (sess *Session) startLocked(req discovery.Request) {
	if sess.closed {
		return
	}
	sess.flow.Start(sess.ctx, req)
}

func (sess *Session) handleMessage(raw []byte) {
	var msg clientMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		sess.pushError("invalid message")
		return
	}
	switch strings.ToLower(msg.Type) {
	case "input":
		sess.input.Push(msg.Text)
	case "submit":
		// Enter skips the rest of the quiescence window
		sess.input.Push(msg.Text)
		sess.input.Flush()
	case "genre":
		if msg.ID != 0 && !genre.IsKnown(msg.ID) {
			sess.pushError("invalid genre id")
			return
		}
		sess.selectGenre(msg.ID)
	default:
		sess.pushError("unknown message type")
	}
}

// pushState runs under the flow lock, so it only enqueues.
func (sess *Session) pushState(state discovery.State) {
	sess.push(MsgState, state)
}

func (sess *Session) pushTrending(data any) {
	sess.push(MsgTrending, data)
}

func (sess *Session) pushError(msg string) {
	sess.push(MsgError, msg)
}

func (sess *Session) push(msgType string, data any) {
	payload, err := json.Marshal(wsMessage{Type: msgType, Data: data})
	if err != nil {
		sess.logger.Error("ws marshal failed", "type", msgType, "error", err)
		return
	}
	sess.enqueue(payload)
}

func (sess *Session) enqueue(payload []byte) bool {
	select {
	case <-sess.done:
		return false
	default:
	}
	select {
	case sess.send <- payload:
		return true
	default:
		sess.logger.Warn("ws send buffer full, dropping message")
		return false
	}
}

func (sess *Session) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		sess.conn.Close()
	}()
	for {
		select {
		case <-sess.done:
			return
		case msg := <-sess.send:
			_ = sess.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := sess.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = sess.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := sess.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (sess *Session) readPump() {
	sess.conn.SetReadLimit(readLimit)
	_ = sess.conn.SetReadDeadline(time.Now().Add(pongWait))
	sess.conn.SetPongHandler(func(string) error {
		return sess.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, raw, err := sess.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				sess.logger.Debug("ws read failed", "error", err)
			}
			return
		}
		sess.handleMessage(raw)
	}
}

// disconnect sends a close frame and closes the connection, which ends
// readPump.
func (sess *Session) disconnect(code int, reason string) {
	_ = sess.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason),
		time.Now().Add(2*time.Second))
	sess.conn.Close()
}

// close stops pending input, cancels the in-flight fetch and waits for
// outstanding counter increments.
func (sess *Session) close() {
	sess.once.Do(func() {
		sess.input.Stop()
		sess.mu.Lock()
		sess.closed = true
		sess.mu.Unlock()
		sess.cancel()
		sess.flow.Wait()
		close(sess.done)
		sess.conn.Close()
	})
}
