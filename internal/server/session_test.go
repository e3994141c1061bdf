package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/marco/movieFinder/internal/debounce"
	"github.com/marco/movieFinder/internal/discovery"
	"github.com/marco/movieFinder/internal/metadata"
	"github.com/marco/movieFinder/internal/trending"
)

type rawMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func startWSServer(t *testing.T, src *mockSource, counters *mockCounters, delay time.Duration) (*Server, *httptest.Server) {
	t.Helper()
	var store CounterStore
	if counters != nil {
		store = counters
	}
	s := New(src, store, Config{
		Gatherer:      prometheus.NewRegistry(),
		DebounceDelay: delay,
	}, quietLogger())
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		s.Hub().Close()
		ts.Close()
	})
	return s, ts
}

func dialWS(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	resp.Body.Close()
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) rawMessage {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var msg rawMessage
	require.NoError(t, json.Unmarshal(data, &msg), "raw: %s", data)
	return msg
}

// readState skips messages until a state with the wanted status arrives.
func readState(t *testing.T, conn *websocket.Conn, want discovery.Status) discovery.State {
	t.Helper()
	for i := 0; i < 10; i++ {
		msg := readMessage(t, conn)
		if msg.Type != MsgState {
			continue
		}
		var state discovery.State
		require.NoError(t, json.Unmarshal(msg.Data, &state))
		if state.Status == want {
			return state
		}
	}
	t.Fatalf("no %s state received", want)
	return discovery.State{}
}

func TestSession_InitialLoad(t *testing.T) {
	src := &mockSource{}
	src.On("Movies", mock.Anything, "", 0).Return(threeBatmen, nil)
	counters := &mockCounters{}
	counters.On("Top", mock.Anything, trending.DefaultLimit).Return([]trending.Counter{{SearchTerm: "batman", Count: 3}}, nil)

	_, ts := startWSServer(t, src, counters, 30*time.Millisecond)
	conn := dialWS(t, ts)

	first := readMessage(t, conn)
	require.Equal(t, MsgTrending, first.Type)
	var shelf []trending.Counter
	require.NoError(t, json.Unmarshal(first.Data, &shelf))
	require.Len(t, shelf, 1)
	assert.Equal(t, "batman", shelf[0].SearchTerm)

	loading := readState(t, conn, discovery.StatusLoading)
	assert.Equal(t, "", loading.Request.Query)

	state := readState(t, conn, discovery.StatusSuccess)
	assert.Len(t, state.Movies, 3)
}

func TestSession_DebouncedInput(t *testing.T) {
	src := &mockSource{}
	src.On("Movies", mock.Anything, "", 0).Return(&metadata.ListResponse{Results: []metadata.Movie{}}, nil)
	src.On("Movies", mock.Anything, "batman", 0).Return(threeBatmen, nil).Once()
	counters := &mockCounters{}
	counters.On("Top", mock.Anything, mock.Anything).Return([]trending.Counter{}, nil)
	recorded := make(chan struct{}, 1)
	counters.On("Increment", mock.Anything, "batman", mock.Anything).Return(nil).Once().
		Run(func(mock.Arguments) { recorded <- struct{}{} })

	_, ts := startWSServer(t, src, counters, 150*time.Millisecond)
	conn := dialWS(t, ts)
	readState(t, conn, discovery.StatusSuccess)

	for _, text := range []string{"b", "ba", "bat", "batm", "batma", "batman"} {
		require.NoError(t, conn.WriteJSON(map[string]any{"type": "input", "text": text}))
	}

	state := readState(t, conn, discovery.StatusSuccess)
	assert.Equal(t, "batman", state.Request.Query)
	assert.Len(t, state.Movies, 3)

	for _, partial := range []string{"b", "ba", "bat", "batm", "batma"} {
		src.AssertNotCalled(t, "Movies", mock.Anything, partial, 0)
	}
	select {
	case <-recorded:
	case <-time.After(2 * time.Second):
		t.Fatal("search count was not recorded")
	}
}

func TestSession_GenreCancelsPendingInput(t *testing.T) {
	src := &mockSource{}
	src.On("Movies", mock.Anything, "", 0).Return(threeBatmen, nil)
	src.On("Movies", mock.Anything, "", 35).Return(threeBatmen, nil).Once()
	counters := &mockCounters{}
	counters.On("Top", mock.Anything, mock.Anything).Return([]trending.Counter{}, nil)

	_, ts := startWSServer(t, src, counters, time.Second)
	conn := dialWS(t, ts)
	readState(t, conn, discovery.StatusSuccess)

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "input", "text": "comedy"}))
	require.NoError(t, conn.WriteJSON(map[string]any{"type": "genre", "id": 35}))

	state := readState(t, conn, discovery.StatusSuccess)
	assert.Equal(t, 35, state.Request.GenreID)

	time.Sleep(1200 * time.Millisecond)
	src.AssertNotCalled(t, "Movies", mock.Anything, "comedy", mock.Anything)
}

func TestSession_InvalidMessage(t *testing.T) {
	src := &mockSource{}
	src.On("Movies", mock.Anything, "", 0).Return(threeBatmen, nil)

	_, ts := startWSServer(t, src, nil, 30*time.Millisecond)
	conn := dialWS(t, ts)
	readState(t, conn, discovery.StatusSuccess)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	msg := readMessage(t, conn)
	assert.Equal(t, MsgError, msg.Type)
}

func TestHub_BroadcastAndClose(t *testing.T) {
	src := &mockSource{}
	src.On("Movies", mock.Anything, "", 0).Return(threeBatmen, nil)

	s, ts := startWSServer(t, src, nil, 30*time.Millisecond)
	conn := dialWS(t, ts)
	readState(t, conn, discovery.StatusSuccess)

	require.Eventually(t, func() bool { return s.Hub().Count() == 1 }, time.Second, 10*time.Millisecond)

	s.Hub().Broadcast(MsgTrending, []trending.Counter{{SearchTerm: "dune", Count: 7}})
	msg := readMessage(t, conn)
	require.Equal(t, MsgTrending, msg.Type)
	assert.Contains(t, string(msg.Data), "dune")

	s.Hub().Close()
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)
	require.Eventually(t, func() bool { return s.Hub().Count() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestSession_UnchangedSettledQueryIsNotRefetched(t *testing.T) {
	src := &mockSource{}
	src.On("Movies", mock.Anything, "", 0).Return(threeBatmen, nil)
	src.On("Movies", mock.Anything, "batman", 0).Return(threeBatmen, nil)
	src.On("Movies", mock.Anything, "", 28).Return(threeBatmen, nil)
	src.On("Movies", mock.Anything, "batman", 28).Return(threeBatmen, nil)
	counters := &mockCounters{}
	counters.On("Top", mock.Anything, mock.Anything).Return([]trending.Counter{}, nil)
	recorded := make(chan struct{}, 4)
	counters.On("Increment", mock.Anything, "batman", mock.Anything).Return(nil).
		Run(func(mock.Arguments) { recorded <- struct{}{} })

	_, ts := startWSServer(t, src, counters, 50*time.Millisecond)
	conn := dialWS(t, ts)
	readState(t, conn, discovery.StatusSuccess)

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "input", "text": "batman"}))
	state := readState(t, conn, discovery.StatusSuccess)
	require.Equal(t, "batman", state.Request.Query)
	select {
	case <-recorded:
	case <-time.After(2 * time.Second):
		t.Fatal("search count was not recorded")
	}

	// a typo fixed inside the window settles on the same text
	require.NoError(t, conn.WriteJSON(map[string]any{"type": "input", "text": "batmanx"}))
	require.NoError(t, conn.WriteJSON(map[string]any{"type": "input", "text": "batman"}))
	time.Sleep(300 * time.Millisecond)

	src.AssertNumberOfCalls(t, "Movies", 2)
	counters.AssertNumberOfCalls(t, "Increment", 1)

	// a genre pick forgets the settled query
	require.NoError(t, conn.WriteJSON(map[string]any{"type": "genre", "id": 28}))
	readState(t, conn, discovery.StatusSuccess)
	require.NoError(t, conn.WriteJSON(map[string]any{"type": "input", "text": "batman"}))
	state = readState(t, conn, discovery.StatusSuccess)
	assert.Equal(t, "batman", state.Request.Query)
	assert.Equal(t, 28, state.Request.GenreID)

	select {
	case <-recorded:
	case <-time.After(2 * time.Second):
		t.Fatal("search count was not recorded after genre pick")
	}
}

func TestSession_SubmitSkipsDebounce(t *testing.T) {
	src := &mockSource{}
	src.On("Movies", mock.Anything, "", 0).Return(threeBatmen, nil)
	src.On("Movies", mock.Anything, "alien", 0).Return(&metadata.ListResponse{Results: []metadata.Movie{}}, nil).Once()

	_, ts := startWSServer(t, src, nil, 5*time.Second)
	conn := dialWS(t, ts)
	readState(t, conn, discovery.StatusSuccess)

	start := time.Now()
	require.NoError(t, conn.WriteJSON(map[string]any{"type": "submit", "text": "alien"}))
	state := readState(t, conn, discovery.StatusSuccess)

	assert.Equal(t, "alien", state.Request.Query)
	assert.True(t, state.NoResults())
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestSession_UnknownGenreRejected(t *testing.T) {
	src := &mockSource{}
	src.On("Movies", mock.Anything, "", 0).Return(threeBatmen, nil)

	_, ts := startWSServer(t, src, nil, 30*time.Millisecond)
	conn := dialWS(t, ts)
	readState(t, conn, discovery.StatusSuccess)

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "genre", "id": 12345}))
	msg := readMessage(t, conn)
	assert.Equal(t, MsgError, msg.Type)
	src.AssertNotCalled(t, "Movies", mock.Anything, "", 12345)
}

// serverConn returns the server side of a fresh WebSocket connection.
func serverConn(t *testing.T) *websocket.Conn {
	t.Helper()
	conns := make(chan *websocket.Conn, 1)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := wsUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conns <- conn
	}))
	t.Cleanup(ts.Close)
	dialWS(t, ts)
	select {
	case conn := <-conns:
		return conn
	case <-time.After(3 * time.Second):
		t.Fatal("no server connection")
		return nil
	}
}

func TestSession_ClosedSessionStartsNoFetch(t *testing.T) {
	src := &mockSource{}
	ctx, cancel := context.WithCancel(context.Background())
	sess := &Session{
		conn:   serverConn(t),
		send:   make(chan []byte, sendBuffer),
		done:   make(chan struct{}),
		logger: quietLogger(),
		ctx:    ctx,
		cancel: cancel,
	}
	sess.flow = discovery.NewFlow(src, nil, discovery.WithObserver(sess.pushState))
	sess.input = debounce.New(time.Millisecond, sess.search)

	sess.close()
	sess.search("batman")
	sess.selectGenre(28)
	sess.flow.Wait()

	src.AssertNotCalled(t, "Movies", mock.Anything, mock.Anything, mock.Anything)
	assert.Empty(t, sess.send)
}
