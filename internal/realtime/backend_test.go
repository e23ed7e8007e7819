package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"voxcanvas/internal/capture"
	"voxcanvas/internal/session"
	"voxcanvas/internal/settings"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// fakeBackend is a websocket endpoint plus the session-store HTTP API.
type fakeBackend struct {
	t   *testing.T
	srv *httptest.Server

	received chan map[string]any
	conns    chan *websocket.Conn
	clientID chan string

	mu       sync.Mutex
	sessions map[string][]session.HistoryEntry
}

func newFakeBackend(t *testing.T) *fakeBackend {
	t.Helper()
	b := &fakeBackend{
		t:        t,
		received: make(chan map[string]any, 1024),
		conns:    make(chan *websocket.Conn, 4),
		clientID: make(chan string, 4),
		sessions: map[string][]session.HistoryEntry{},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", b.handleWebSocket)
	mux.HandleFunc("GET /api/sessions", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		defer b.mu.Unlock()
		out := []SessionInfo{}
		for name := range b.sessions {
			out = append(out, SessionInfo{Name: name, Modified: "2026-10-15T10:00:00"})
		}
		json.NewEncoder(w).Encode(out)
	})
	mux.HandleFunc("GET /api/session/{name}", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		entries, ok := b.sessions[r.PathValue("name")]
		b.mu.Unlock()
		if !ok {
			http.Error(w, `{"error":"session not found"}`, http.StatusNotFound)
			return
		}
		json.NewEncoder(w).Encode(entries)
	})
	mux.HandleFunc("GET /api/export", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/zip")
		w.Header().Set("Content-Disposition", `attachment; filename="Session_1.zip"`)
		w.Write([]byte("PK\x03\x04fake"))
	})

	b.srv = httptest.NewServer(mux)
	t.Cleanup(b.srv.Close)
	return b
}

func (b *fakeBackend) wsURL() string {
	return "ws" + strings.TrimPrefix(b.srv.URL, "http") + "/ws"
}

func (b *fakeBackend) addSession(name string, entries []session.HistoryEntry) {
	b.mu.Lock()
	b.sessions[name] = entries
	b.mu.Unlock()
}

func (b *fakeBackend) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	b.clientID <- r.Header.Get("X-Client-Id")
	b.conns <- conn

	go func() {
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var msg map[string]any
			if err := json.Unmarshal(data, &msg); err != nil {
				continue
			}
			b.received <- msg
		}
	}()
}

// conn waits for the client connection.
func (b *fakeBackend) conn() *websocket.Conn {
	b.t.Helper()
	select {
	case c := <-b.conns:
		b.conns <- c // keep it available for later calls
		return c
	case <-time.After(2 * time.Second):
		b.t.Fatal("timed out waiting for client connection")
		return nil
	}
}

func (b *fakeBackend) push(raw string) {
	b.t.Helper()
	if err := b.conn().WriteMessage(websocket.TextMessage, []byte(raw)); err != nil {
		b.t.Fatalf("push: %v", err)
	}
}

// next returns the next received message of the given type, skipping
// others.
func (b *fakeBackend) next(msgType string) map[string]any {
	b.t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case msg := <-b.received:
			if msg["type"] == msgType {
				return msg
			}
		case <-deadline:
			b.t.Fatalf("timed out waiting for %q message", msgType)
			return nil
		}
	}
}

// none asserts no message of msgType arrives within d.
func (b *fakeBackend) none(msgType string, d time.Duration) {
	b.t.Helper()
	deadline := time.After(d)
	for {
		select {
		case msg := <-b.received:
			if msg["type"] == msgType {
				b.t.Fatalf("unexpected %q message", msgType)
			}
		case <-deadline:
			return
		}
	}
}

// fakeMic hands its callback to the test so buffers can be delivered by
// hand.
type fakeMic struct {
	mu  sync.Mutex
	cb  func([]float32)
	err error
}

func (m *fakeMic) Open(_, _ int, cb func([]float32)) (capture.Stream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	m.cb = cb
	return nopStream{}, nil
}

func (m *fakeMic) callback() func([]float32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cb
}

type nopStream struct{}

func (nopStream) Start() error { return nil }
func (nopStream) Stop() error  { return nil }
func (nopStream) Close() error { return nil }

type testController struct {
	*Controller
	mic   *fakeMic
	store *settings.MemoryStore
}

func startController(t *testing.T, b *fakeBackend, opts ...TransportOption) *testController {
	t.Helper()
	return startControllerURL(t, b.wsURL(), b.srv.URL, opts...)
}

func startControllerURL(t *testing.T, wsURL, httpURL string, opts ...TransportOption) *testController {
	t.Helper()
	mic := &fakeMic{}
	store := settings.NewMemoryStore()
	c := NewController(ControllerConfig{
		URL:              wsURL,
		Device:           mic,
		Settings:         settings.NewSynchronizer(settings.Default(), store),
		Sessions:         NewSessionsClient(httpURL, nil),
		TransportOptions: opts,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return &testController{Controller: c, mic: mic, store: store}
}

// waitFor polls the controller until cond holds.
func (c *testController) waitFor(t *testing.T, what string, cond func(session.Snapshot) bool) session.Snapshot {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	var last session.Snapshot
	for time.Now().Before(deadline) {
		snap, err := c.Snapshot(context.Background())
		if err != nil {
			t.Fatalf("Snapshot: %v", err)
		}
		if cond(snap) {
			return snap
		}
		last = snap
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s; last snapshot: %+v", what, last)
	return last
}

func isOpen(s session.Snapshot) bool { return s.Connection == session.StateOpen }
