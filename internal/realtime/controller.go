package realtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"voxcanvas/internal/capture"
	"voxcanvas/internal/observe"
	"voxcanvas/internal/protocol"
	"voxcanvas/internal/session"
	"voxcanvas/internal/settings"
)

const inboxSize = 64

// ErrStopped is returned by controller calls made after Run has returned.
var ErrStopped = errors.New("realtime: controller stopped")

// ControllerConfig wires a Controller to its collaborators.
type ControllerConfig struct {
	// URL is the backend websocket endpoint.
	URL string
	// Device is the microphone the controller captures from.
	Device capture.Device
	// Settings holds the session config; its handshake opens every
	// connection.
	Settings *settings.Synchronizer
	// Sessions is optional; without it LoadSession reports an error.
	Sessions *SessionsClient
	// Metrics defaults to observe.Discard().
	Metrics *observe.Metrics
	// Render is called on the controller goroutine after every change.
	Render func(session.Snapshot)

	TransportOptions []TransportOption
}

// Controller owns the session state, the capture pipeline and the
// transport. Every mutation runs on the goroutine executing Run, one at a
// time, whether it came from the backend, the operator or a finished
// background request.
type Controller struct {
	state     *session.State
	transport *Transport
	capture   *capture.Pipeline
	settings  *settings.Synchronizer
	sessions  *SessionsClient
	metrics   *observe.Metrics
	render    func(session.Snapshot)

	inbox   chan func(context.Context)
	stopped chan struct{}
}

// NewController builds a controller. Nothing connects until Run.
func NewController(cfg ControllerConfig) *Controller {
	c := &Controller{
		state:    session.NewState(),
		settings: cfg.Settings,
		sessions: cfg.Sessions,
		metrics:  cfg.Metrics,
		render:   cfg.Render,
		inbox:    make(chan func(context.Context), inboxSize),
		stopped:  make(chan struct{}),
	}
	if c.metrics == nil {
		c.metrics = observe.Discard()
	}
	c.transport = NewTransport(cfg.URL, c.settings.Handshake, cfg.TransportOptions...)
	c.capture = capture.New(cfg.Device, c.sendFrame,
		capture.WithDiscardHook(func() {
			c.metrics.FramesDiscarded.Add(context.Background(), 1)
		}),
	)
	return c
}

// ConnectionID identifies the controller's transport.
func (c *Controller) ConnectionID() string { return c.transport.ID() }

// Sessions returns the session store client, which may be nil.
func (c *Controller) Sessions() *SessionsClient { return c.sessions }

// Run connects to the backend and processes events until ctx is done.
// It releases the microphone and the connection before returning.
func (c *Controller) Run(ctx context.Context) error {
	defer close(c.stopped)

	go func() {
		if err := c.transport.Connect(ctx); err != nil {
			slog.Debug("connect returned", "conn_id", c.transport.ID(), "err", err)
		}
	}()

	c.publish()
	for {
		select {
		case <-ctx.Done():
			c.capture.Stop()
			c.transport.Close()
			return nil

		case ev := <-c.transport.Events():
			c.handleTransport(ctx, ev)

		case fn := <-c.inbox:
			fn(ctx)
		}
		c.publish()
	}
}

// Previous moves the cursor one entry back in history.
func (c *Controller) Previous() { c.post(func(context.Context) { c.state.Previous() }) }

// Next moves the cursor one entry forward, returning to live past the end.
func (c *Controller) Next() { c.post(func(context.Context) { c.state.Next() }) }

// GoLive returns the cursor to the live artifact.
func (c *Controller) GoLive() { c.post(func(context.Context) { c.state.GoLive() }) }

// ToggleMic starts capture when it is off and stops it when it is on.
func (c *Controller) ToggleMic() {
	c.post(func(context.Context) { c.toggleMic() })
}

// ApplySettings merges p and pushes the result to storage and backend.
func (c *Controller) ApplySettings(p settings.Partial) {
	c.post(func(ctx context.Context) {
		c.settings.Update(p)
		if err := c.settings.Apply(ctx, c.transport); err != nil {
			slog.Warn("settings rejected", "err", err)
			c.state.SetStatus(fmt.Sprintf("Settings not saved: %v", err))
			return
		}
		c.metrics.ConfigApplies.Add(ctx, 1)
	})
}

// LoadSession fetches a persisted session in the background and replaces
// the history with it once it arrives.
func (c *Controller) LoadSession(ctx context.Context, name string) {
	if c.sessions == nil {
		c.post(func(context.Context) { c.state.SetStatus("Session store unavailable") })
		return
	}
	go func() {
		entries, err := c.sessions.FetchSession(ctx, name)
		c.post(func(context.Context) {
			if err != nil {
				slog.Warn("session load failed", "session", name, "err", err)
				c.state.SetStatus(fmt.Sprintf("Failed to load session %s", name))
				return
			}
			c.state.ReplaceHistory(entries)
			c.state.SetStatus(fmt.Sprintf("Loaded session %s (%d items)", name, len(entries)))
			slog.Info("session loaded", "session", name, "items", len(entries))
		})
	}()
}

// Snapshot returns a copy of the current state, taken on the controller
// goroutine.
func (c *Controller) Snapshot(ctx context.Context) (session.Snapshot, error) {
	res := make(chan session.Snapshot, 1)
	if !c.post(func(context.Context) { res <- c.state.Snapshot() }) {
		return session.Snapshot{}, ErrStopped
	}
	select {
	case snap := <-res:
		return snap, nil
	case <-c.stopped:
		return session.Snapshot{}, ErrStopped
	case <-ctx.Done():
		return session.Snapshot{}, ctx.Err()
	}
}

// post queues fn for the controller goroutine.
func (c *Controller) post(fn func(context.Context)) bool {
	select {
	case c.inbox <- fn:
		return true
	case <-c.stopped:
		return false
	}
}

func (c *Controller) publish() {
	if c.render != nil {
		c.render(c.state.Snapshot())
	}
}

func (c *Controller) handleTransport(ctx context.Context, ev Event) {
	if ev.State != "" {
		if !c.state.SetConnection(ev.State) {
			return
		}
		c.metrics.RecordConnectionState(ctx, string(ev.State))
		if ev.State == session.StateClosed {
			if c.capture.Active() {
				c.capture.Stop()
				c.state.SetMicActive(false)
			}
			c.state.SetStatus("Disconnected from backend")
		}
		return
	}

	if c.state.Connection() == session.StateClosed {
		return
	}

	msg, err := protocol.Decode(ev.Data)
	if err != nil {
		kind := "UNKNOWN"
		var perr *protocol.Error
		if errors.As(err, &perr) {
			kind = string(perr.Kind)
		}
		slog.Warn("dropping inbound message", "conn_id", c.transport.ID(), "err", err)
		c.metrics.RecordProtocolError(ctx, kind)
		c.state.ReportProtocolError(err)
		return
	}
	if msg == nil {
		slog.Debug("ignoring unknown message type", "conn_id", c.transport.ID())
		return
	}

	slog.Debug("inbound message", "type", msg.Type())
	c.metrics.RecordInbound(ctx, msg.Type())
	if m, ok := msg.(protocol.MetricsSnapshot); ok {
		c.metrics.RecordBackend(ctx, m.Latency, m.Cost.Total)
	}
	c.state.Apply(msg)
}

func (c *Controller) toggleMic() {
	if c.capture.Active() {
		c.capture.Stop()
		c.state.SetMicActive(false)
		return
	}
	if c.state.Connection() == session.StateClosed {
		c.state.SetStatus("Not connected")
		return
	}
	if err := c.capture.Start(); err != nil {
		slog.Warn("microphone start failed", "err", err)
		c.state.SetMicActive(false)
		c.state.SetStatus(micFailureStatus(err))
		return
	}
	c.state.SetMicActive(true)
}

// sendFrame runs on the audio device goroutine.
func (c *Controller) sendFrame(f capture.Frame) {
	if err := c.transport.SendAudio(f.Samples); err != nil {
		slog.Debug("audio frame not sent", "seq", f.Seq, "err", err)
		return
	}
	c.metrics.FramesSent.Add(context.Background(), 1)
}

func micFailureStatus(err error) string {
	if errors.Is(err, capture.ErrPermissionDenied) {
		return "Microphone permission denied"
	}
	return "Microphone unavailable"
}
