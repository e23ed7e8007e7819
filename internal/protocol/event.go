package protocol

// Event is a decoded inbound message. The set of implementations is closed:
// each one dispatches to exactly one Handler method, so adding a kind means
// adding a method every Handler must implement.
type Event interface {
	Dispatch(h Handler)
	Type() string
}

// Handler receives decoded events.
type Handler interface {
	HandleArtifact(Artifact)
	HandleHistoryUpdate(HistoryUpdate)
	HandleStatus(StatusNotice)
	HandleDebug(DebugNotice)
	HandleMetrics(MetricsSnapshot)
	HandleQuestions(QuestionsList)
}

// Artifact is a generated image with its originating question.
type Artifact struct {
	URL       string
	Prompt    string
	Timestamp string
}

// HistoryUpdate commits one entry to history.
type HistoryUpdate struct {
	Question  string
	URL       string
	Timestamp string
}

// StatusNotice replaces the human-readable status line.
type StatusNotice struct {
	Message string
}

// DebugNotice is a raw transcript fragment.
type DebugNotice struct {
	Text string
}

// Cost is the backend's running cost total and per-phase breakdown.
type Cost struct {
	Total     float64
	Breakdown map[string]float64
}

// MetricsSnapshot holds per-phase average latencies and the cost snapshot.
type MetricsSnapshot struct {
	Latency map[string]float64
	Cost    Cost
}

// QuestionsList is every question extracted so far in the session.
type QuestionsList struct {
	Questions []string
}

func (e Artifact) Dispatch(h Handler)        { h.HandleArtifact(e) }
func (e HistoryUpdate) Dispatch(h Handler)   { h.HandleHistoryUpdate(e) }
func (e StatusNotice) Dispatch(h Handler)    { h.HandleStatus(e) }
func (e DebugNotice) Dispatch(h Handler)     { h.HandleDebug(e) }
func (e MetricsSnapshot) Dispatch(h Handler) { h.HandleMetrics(e) }
func (e QuestionsList) Dispatch(h Handler)   { h.HandleQuestions(e) }

func (Artifact) Type() string        { return TypeImage }
func (HistoryUpdate) Type() string   { return TypeHistoryUpdate }
func (StatusNotice) Type() string    { return TypeStatus }
func (DebugNotice) Type() string     { return TypeDebugText }
func (MetricsSnapshot) Type() string { return TypeMetrics }
func (QuestionsList) Type() string   { return TypeQuestionsList }
