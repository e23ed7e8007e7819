package protocol

import (
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
)

// Envelope is the common head of every wire message. Fields other than the
// discriminator sit flat next to it.
type Envelope struct {
	Type string `json:"type"`
}

// Server → Client message types.
const (
	TypeImage         = "image"
	TypeHistoryUpdate = "history_update"
	TypeStatus        = "status"
	TypeDebugText     = "debug_text"
	TypeMetrics       = "metrics"
	TypeQuestionsList = "questions_list"
)

// Client → Server message types.
const (
	TypeConfig     = "config"
	TypeAudio      = "audio"
	TypeGetMetrics = "get_metrics"
)

// Server → Client payloads.

type ImagePayload struct {
	URL       *string `json:"url"`
	Prompt    *string `json:"prompt"`
	Timestamp string  `json:"timestamp,omitempty"`
}

type HistoryItem struct {
	Question  *string `json:"question"`
	URL       *string `json:"url"`
	Timestamp *string `json:"timestamp"`
}

type HistoryUpdatePayload struct {
	Item *HistoryItem `json:"item"`
}

type StatusPayload struct {
	Message *string `json:"message"`
}

type DebugTextPayload struct {
	Text *string `json:"text"`
}

type CostPayload struct {
	Total     *float64           `json:"total"`
	Breakdown map[string]float64 `json:"breakdown"`
}

type MetricsData struct {
	Latency map[string]float64 `json:"latency"`
	Cost    *CostPayload       `json:"cost"`
}

type MetricsPayload struct {
	Data *MetricsData `json:"data"`
}

type QuestionsListPayload struct {
	Questions []string `json:"questions"`
}

// Client → Server payloads.

// ConfigMessage carries the full session configuration. The backend keeps no
// authoritative copy, so every field is always sent.
type ConfigMessage struct {
	Type             string `json:"type"`
	GeminiAPIKey     string `json:"geminiApiKey"`
	OpenRouterAPIKey string `json:"openRouterApiKey"`
	OpenAIAPIKey     string `json:"openaiApiKey"`
	AudioModel       string `json:"audioModel"`
	QuestionModel    string `json:"questionModel"`
	ImageModel       string `json:"imageModel"`
	MinDisplayTime   int    `json:"minDisplayTime"`
	SessionName      string `json:"sessionName,omitempty"`
	Debug            bool   `json:"debug"`
}

type AudioMessage struct {
	Type string `json:"type"`
	Data string `json:"data"`
}

// NewConfigMessage marshals a config message. Type is forced to "config".
func NewConfigMessage(m ConfigMessage) ([]byte, error) {
	m.Type = TypeConfig
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}

// NewAudioMessage encodes samples as base64 little-endian float32 PCM.
func NewAudioMessage(samples []float32) ([]byte, error) {
	data, err := json.Marshal(AudioMessage{
		Type: TypeAudio,
		Data: EncodePCM(samples),
	})
	if err != nil {
		return nil, fmt.Errorf("marshal audio: %w", err)
	}
	return data, nil
}

// NewGetMetricsMessage returns the metrics poll request.
func NewGetMetricsMessage() []byte {
	return []byte(`{"type":"get_metrics"}`)
}

// EncodePCM returns base64 of the raw little-endian float32 samples.
func EncodePCM(samples []float32) string {
	buf := make([]byte, len(samples)*4)
	for i, s := range samples {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(s))
	}
	return base64.StdEncoding.EncodeToString(buf)
}

// DecodePCM is the inverse of EncodePCM.
func DecodePCM(s string) ([]float32, error) {
	buf, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decode base64: %w", err)
	}
	if len(buf)%4 != 0 {
		return nil, fmt.Errorf("pcm payload length %d is not a multiple of 4", len(buf))
	}
	out := make([]float32, len(buf)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return out, nil
}
