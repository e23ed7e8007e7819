package session

// ConnectionState is the transport's lifecycle as seen by the session.
type ConnectionState string

const (
	StateConnecting ConnectionState = "connecting"
	StateOpen       ConnectionState = "open"
	StateClosed     ConnectionState = "closed"
)

// rank orders states so transitions can only move forward.
func (s ConnectionState) rank() int {
	switch s {
	case StateConnecting:
		return 0
	case StateOpen:
		return 1
	default:
		return 2
	}
}

// HistoryEntry is a committed past artifact. Entries are never mutated once
// appended.
type HistoryEntry struct {
	Question    string `json:"question"`
	ArtifactRef string `json:"url"`
	Timestamp   string `json:"timestamp"`
}

// LiveArtifact is the most recent image not yet committed to history.
type LiveArtifact struct {
	URL       string
	Caption   string
	Timestamp string
}

// DebugCapacity is the number of transcript fragments retained.
const DebugCapacity = 10

// Generation status prefixes emitted by the backend's image worker.
const (
	generatingPrefix = "Dreaming about:"
	failedPrefix     = "Failed to generate"
)
