package session

import (
	"maps"
	"slices"
	"strings"
	"time"

	"voxcanvas/internal/protocol"
)

// State is the authoritative in-memory model of the session. It is owned by
// a single goroutine (the controller loop) and is not safe for concurrent
// use.
type State struct {
	live       LiveArtifact
	history    []HistoryEntry
	cursor     Cursor
	status     string
	debug      *RingBuffer[string]
	metrics    protocol.MetricsSnapshot
	hasMetrics bool
	questions  []string

	conn       ConnectionState
	micActive  bool
	generating bool

	protocolErrors int
	lastProtoErr   error

	now func() time.Time
}

var _ protocol.Handler = (*State)(nil)

// NewState creates an empty session in the Connecting state.
func NewState() *State {
	return &State{
		cursor: Live(),
		debug:  NewRingBuffer[string](DebugCapacity),
		conn:   StateConnecting,
		now:    time.Now,
	}
}

// Apply dispatches a decoded inbound event onto the state.
func (s *State) Apply(ev protocol.Event) {
	ev.Dispatch(s)
}

func (s *State) HandleArtifact(a protocol.Artifact) {
	ts := a.Timestamp
	if ts == "" {
		ts = s.now().UTC().Format(time.RFC3339)
	}
	s.live = LiveArtifact{URL: a.URL, Caption: a.Prompt, Timestamp: ts}
	s.generating = false
}

// HandleHistoryUpdate appends one entry. A cursor parked on a history index
// stays where it is.
func (s *State) HandleHistoryUpdate(h protocol.HistoryUpdate) {
	s.history = append(s.history, HistoryEntry{
		Question:    h.Question,
		ArtifactRef: h.URL,
		Timestamp:   h.Timestamp,
	})
}

func (s *State) HandleStatus(n protocol.StatusNotice) {
	s.status = n.Message
	switch {
	case strings.HasPrefix(n.Message, generatingPrefix):
		s.generating = true
	case strings.HasPrefix(n.Message, failedPrefix):
		s.generating = false
	}
}

func (s *State) HandleDebug(d protocol.DebugNotice) {
	s.debug.Write(d.Text)
}

// HandleMetrics replaces the snapshot wholesale; no key survives from the
// previous one.
func (s *State) HandleMetrics(m protocol.MetricsSnapshot) {
	s.metrics = protocol.MetricsSnapshot{
		Latency: maps.Clone(m.Latency),
		Cost: protocol.Cost{
			Total:     m.Cost.Total,
			Breakdown: maps.Clone(m.Cost.Breakdown),
		},
	}
	s.hasMetrics = true
}

func (s *State) HandleQuestions(q protocol.QuestionsList) {
	if len(q.Questions) > len(s.questions) {
		s.generating = true
	}
	s.questions = slices.Clone(q.Questions)
}

// ReplaceHistory swaps in a persisted session's entries and resets the
// cursor to live.
func (s *State) ReplaceHistory(entries []HistoryEntry) {
	s.history = slices.Clone(entries)
	s.cursor = Live()
}

// SetConnection records a transport state change. Transitions only move
// forward: Connecting → Open → Closed.
func (s *State) SetConnection(c ConnectionState) bool {
	if c.rank() <= s.conn.rank() {
		return false
	}
	s.conn = c
	return true
}

// SetMicActive records whether audio capture is running.
func (s *State) SetMicActive(active bool) { s.micActive = active }

// SetStatus replaces the status line from a local source (capture or
// transport failures).
func (s *State) SetStatus(msg string) { s.status = msg }

// ReportProtocolError records a dropped inbound message.
func (s *State) ReportProtocolError(err error) {
	s.protocolErrors++
	s.lastProtoErr = err
}

// Previous moves the cursor back. It is a no-op on an empty history.
func (s *State) Previous() {
	if len(s.history) == 0 {
		return
	}
	s.cursor = Previous(s.cursor, len(s.history))
}

// Next moves the cursor forward. It is a no-op on an empty history.
func (s *State) Next() {
	if len(s.history) == 0 {
		return
	}
	s.cursor = Next(s.cursor, len(s.history))
}

// GoLive jumps straight back to the live artifact.
func (s *State) GoLive() { s.cursor = Live() }

// View resolves what should currently be shown.
func (s *State) View() Display {
	return Resolve(s.cursor, s.history, s.live)
}

func (s *State) Cursor() Cursor              { return s.cursor.Normalize(len(s.history)) }
func (s *State) Artifact() LiveArtifact      { return s.live }
func (s *State) History() []HistoryEntry     { return slices.Clone(s.history) }
func (s *State) HistoryLen() int             { return len(s.history) }
func (s *State) Status() string              { return s.status }
func (s *State) Debug() []string             { return s.debug.ReadAll() }
func (s *State) Questions() []string         { return slices.Clone(s.questions) }
func (s *State) Connection() ConnectionState { return s.conn }
func (s *State) MicActive() bool             { return s.micActive }
func (s *State) Generating() bool            { return s.generating }
func (s *State) ProtocolErrors() int         { return s.protocolErrors }
func (s *State) LastProtocolError() error    { return s.lastProtoErr }

// Metrics returns the last snapshot and whether one has arrived.
func (s *State) Metrics() (protocol.MetricsSnapshot, bool) {
	return s.metrics, s.hasMetrics
}

// Snapshot is a read-only copy of everything a render target needs. It
// shares no memory with the State it was taken from.
type Snapshot struct {
	Display    Display
	Status     string
	Connection ConnectionState
	MicActive  bool
	Generating bool
	HistoryLen int
	Debug      []string
	Questions  []string
	Metrics    *protocol.MetricsSnapshot

	ProtocolErrors int
}

// Snapshot copies the current state.
func (s *State) Snapshot() Snapshot {
	snap := Snapshot{
		Display:    s.View(),
		Status:     s.status,
		Connection: s.conn,
		MicActive:  s.micActive,
		Generating: s.generating,
		HistoryLen: len(s.history),
		Debug:      s.debug.ReadAll(),
		Questions:  slices.Clone(s.questions),

		ProtocolErrors: s.protocolErrors,
	}
	if s.hasMetrics {
		m := protocol.MetricsSnapshot{
			Latency: maps.Clone(s.metrics.Latency),
			Cost: protocol.Cost{
				Total:     s.metrics.Cost.Total,
				Breakdown: maps.Clone(s.metrics.Cost.Breakdown),
			},
		}
		snap.Metrics = &m
	}
	return snap
}
