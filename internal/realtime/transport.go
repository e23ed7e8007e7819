package realtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"voxcanvas/internal/protocol"
	"voxcanvas/internal/session"
)

const (
	pingInterval    = 30 * time.Second
	readDeadline    = 60 * time.Second
	writeDeadline   = 10 * time.Second
	metricsInterval = 5 * time.Second
	sendBuffer      = 256
	eventBuffer     = 256
)

var (
	// ErrAlreadyConnected is returned by Connect after the first attempt.
	// A Transport makes exactly one connection attempt in its lifetime.
	ErrAlreadyConnected = errors.New("realtime: transport already connected")
	// ErrNotOpen is returned by Send before the handshake or after close.
	ErrNotOpen = errors.New("realtime: transport not open")
	// ErrSendBufferFull is returned when the outbound queue is saturated.
	ErrSendBufferFull = errors.New("realtime: send buffer full")
)

// Phase names where a transport failure happened.
type Phase string

const (
	PhaseHandshake Phase = "handshake"
	PhaseRead      Phase = "read"
	PhaseWrite     Phase = "write"
)

// TransportError describes why a connection closed.
type TransportError struct {
	Phase Phase
	Err   error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("realtime: %s: %v", e.Phase, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Event is something the transport reports to its owner: either a state
// change or one inbound text frame.
type Event struct {
	// State is set on a connection state change.
	State session.ConnectionState
	// Err is the cause of a transition to Closed, nil for a local close.
	Err error
	// Data is a raw inbound message when State is empty.
	Data []byte
}

// Transport is a websocket client to the backend. Send and SendAudio are
// safe for concurrent use; events are delivered on Events in order.
type Transport struct {
	url       string
	handshake func() ([]byte, error)
	dialer    *websocket.Dialer

	pingEvery    time.Duration
	metricsEvery time.Duration

	id     string
	send   chan []byte
	events chan Event

	dialed atomic.Bool
	open   atomic.Bool

	mu   sync.Mutex
	conn *websocket.Conn

	ctx       context.Context
	done      chan struct{}
	closeOnce sync.Once
}

// TransportOption configures a Transport.
type TransportOption func(*Transport)

// WithMetricsInterval overrides the 5s metrics poll period.
func WithMetricsInterval(d time.Duration) TransportOption {
	return func(t *Transport) { t.metricsEvery = d }
}

// WithPingInterval overrides the 30s keepalive ping period.
func WithPingInterval(d time.Duration) TransportOption {
	return func(t *Transport) { t.pingEvery = d }
}

// WithDialer overrides the websocket dialer.
func WithDialer(d *websocket.Dialer) TransportOption {
	return func(t *Transport) { t.dialer = d }
}

// NewTransport creates a transport for url. handshake is called once the
// socket is up and its result is the first frame written.
func NewTransport(url string, handshake func() ([]byte, error), opts ...TransportOption) *Transport {
	t := &Transport{
		url:          url,
		handshake:    handshake,
		dialer:       websocket.DefaultDialer,
		pingEvery:    pingInterval,
		metricsEvery: metricsInterval,
		id:           uuid.NewString(),
		send:         make(chan []byte, sendBuffer),
		events:       make(chan Event, eventBuffer),
		ctx:          context.Background(),
		done:         make(chan struct{}),
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

// ID identifies this connection in logs and to the backend.
func (t *Transport) ID() string { return t.id }

// Events returns the transport's event stream. It is never closed; a
// Closed state event is the last one delivered.
func (t *Transport) Events() <-chan Event { return t.events }

// Done is closed once the transport has shut down.
func (t *Transport) Done() <-chan struct{} { return t.done }

// IsOpen reports whether the handshake completed and the socket is live.
func (t *Transport) IsOpen() bool { return t.open.Load() }

// Connect dials the backend, writes the handshake and starts the pumps.
// It blocks only for the dial. Failures are reported both as the returned
// error and as a Closed event.
func (t *Transport) Connect(ctx context.Context) error {
	if !t.dialed.CompareAndSwap(false, true) {
		return ErrAlreadyConnected
	}
	select {
	case <-t.done:
		return ErrNotOpen
	default:
	}
	t.mu.Lock()
	t.ctx = ctx
	t.mu.Unlock()
	t.emit(Event{State: session.StateConnecting})

	header := http.Header{}
	header.Set("X-Client-Id", t.id)
	conn, _, err := t.dialer.DialContext(ctx, t.url, header)
	if err != nil {
		terr := &TransportError{Phase: PhaseHandshake, Err: err}
		t.fail(terr)
		return terr
	}

	t.mu.Lock()
	select {
	case <-t.done:
		// Closed while dialing.
		t.mu.Unlock()
		conn.Close()
		return ErrNotOpen
	default:
	}
	t.conn = conn
	t.mu.Unlock()

	hello, err := t.handshake()
	if err == nil {
		conn.SetWriteDeadline(time.Now().Add(writeDeadline))
		err = conn.WriteMessage(websocket.TextMessage, hello)
	}
	if err != nil {
		terr := &TransportError{Phase: PhaseHandshake, Err: err}
		t.fail(terr)
		return terr
	}

	t.open.Store(true)
	slog.Info("backend connected", "conn_id", t.id, "url", t.url)
	t.emit(Event{State: session.StateOpen})

	go t.writePump(conn)
	go t.readPump(conn)

	go func() {
		select {
		case <-ctx.Done():
			t.Close()
		case <-t.done:
		}
	}()
	return nil
}

// Send queues a message. It never blocks; a full queue drops the message.
func (t *Transport) Send(data []byte) error {
	if !t.open.Load() {
		return ErrNotOpen
	}
	select {
	case <-t.done:
		return ErrNotOpen
	default:
	}
	select {
	case t.send <- data:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// SendAudio encodes one frame of samples and queues it. Frames offered
// before the handshake are dropped.
func (t *Transport) SendAudio(samples []float32) error {
	if !t.open.Load() {
		return ErrNotOpen
	}
	data, err := protocol.NewAudioMessage(samples)
	if err != nil {
		return err
	}
	return t.Send(data)
}

// Close shuts the connection down. It is idempotent.
func (t *Transport) Close() {
	t.fail(nil)
}

func (t *Transport) fail(err error) {
	t.closeOnce.Do(func() {
		t.open.Store(false)
		close(t.done)

		t.mu.Lock()
		conn := t.conn
		t.mu.Unlock()
		if conn != nil {
			if err == nil {
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					time.Now().Add(writeDeadline))
			}
			conn.Close()
		}

		if err != nil {
			slog.Warn("backend connection closed", "conn_id", t.id, "err", err)
		} else {
			slog.Info("backend connection closed", "conn_id", t.id)
		}
		t.emit(Event{State: session.StateClosed, Err: err})
	})
}

// emit delivers an event unless the owner has gone away.
func (t *Transport) emit(ev Event) {
	t.mu.Lock()
	ctx := t.ctx
	t.mu.Unlock()
	select {
	case t.events <- ev:
	case <-ctx.Done():
	}
}

// readPump reads messages from the websocket connection.
func (t *Transport) readPump(conn *websocket.Conn) {
	conn.SetReadDeadline(time.Now().Add(readDeadline))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(readDeadline))
		return nil
	})

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-t.done:
				return // Closed locally.
			default:
			}
			t.fail(&TransportError{Phase: PhaseRead, Err: err})
			return
		}

		select {
		case <-t.done:
			return
		default:
		}
		select {
		case t.events <- Event{Data: message}:
		case <-t.done:
			return
		}
	}
}

// writePump writes queued messages, keepalive pings and the metrics poll.
func (t *Transport) writePump(conn *websocket.Conn) {
	ping := time.NewTicker(t.pingEvery)
	poll := time.NewTicker(t.metricsEvery)
	defer func() {
		ping.Stop()
		poll.Stop()
	}()

	write := func(msgType int, data []byte) bool {
		conn.SetWriteDeadline(time.Now().Add(writeDeadline))
		if err := conn.WriteMessage(msgType, data); err != nil {
			t.fail(&TransportError{Phase: PhaseWrite, Err: err})
			return false
		}
		return true
	}

	for {
		select {
		case <-t.done:
			return

		case message := <-t.send:
			if !write(websocket.TextMessage, message) {
				return
			}

		case <-poll.C:
			if !write(websocket.TextMessage, protocol.NewGetMetricsMessage()) {
				return
			}

		case <-ping.C:
			if !write(websocket.PingMessage, nil) {
				return
			}
		}
	}
}
