package protocol

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
)

// ErrorKind classifies inbound decode failures.
type ErrorKind string

const (
	ErrMalformedJSON ErrorKind = "MALFORMED_JSON"
	ErrMissingType   ErrorKind = "MISSING_TYPE"
	ErrMissingField  ErrorKind = "MISSING_FIELD"
)

// Error reports an inbound message that could not be decoded. It never
// affects the connection; the message is dropped.
type Error struct {
	Kind  ErrorKind
	Type  string
	Field string
	Err   error
}

func (e *Error) Error() string {
	switch e.Kind {
	case ErrMalformedJSON:
		if e.Type != "" {
			return fmt.Sprintf("protocol: invalid payload for %s: %v", e.Type, e.Err)
		}
		return fmt.Sprintf("protocol: invalid JSON: %v", e.Err)
	case ErrMissingType:
		return "protocol: missing 'type' field"
	default:
		return fmt.Sprintf("protocol: missing required field '%s' in %s message", e.Field, e.Type)
	}
}

func (e *Error) Unwrap() error { return e.Err }

func missing(msgType, field string) error {
	return &Error{Kind: ErrMissingField, Type: msgType, Field: field}
}

// Decode parses one inbound message. It returns (nil, nil) for a well-formed
// message whose type this client does not know.
//
// A required field is present when its key carries a non-null value of the
// expected JSON type. Empty strings and empty collections count as present.
func Decode(raw []byte) (Event, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, &Error{Kind: ErrMalformedJSON, Err: err}
	}
	if env.Type == "" {
		return nil, &Error{Kind: ErrMissingType}
	}

	switch env.Type {
	case TypeImage:
		var p ImagePayload
		if err := unmarshalPayload(raw, env.Type, &p); err != nil {
			return nil, err
		}
		if p.URL == nil {
			return nil, missing(env.Type, "url")
		}
		if p.Prompt == nil {
			return nil, missing(env.Type, "prompt")
		}
		return Artifact{URL: *p.URL, Prompt: *p.Prompt, Timestamp: p.Timestamp}, nil

	case TypeHistoryUpdate:
		var p HistoryUpdatePayload
		if err := unmarshalPayload(raw, env.Type, &p); err != nil {
			return nil, err
		}
		switch {
		case p.Item == nil:
			return nil, missing(env.Type, "item")
		case p.Item.Question == nil:
			return nil, missing(env.Type, "item.question")
		case p.Item.URL == nil:
			return nil, missing(env.Type, "item.url")
		case p.Item.Timestamp == nil:
			return nil, missing(env.Type, "item.timestamp")
		}
		it := p.Item
		return HistoryUpdate{Question: *it.Question, URL: *it.URL, Timestamp: *it.Timestamp}, nil

	case TypeStatus:
		var p StatusPayload
		if err := unmarshalPayload(raw, env.Type, &p); err != nil {
			return nil, err
		}
		if p.Message == nil {
			return nil, missing(env.Type, "message")
		}
		return StatusNotice{Message: *p.Message}, nil

	case TypeDebugText:
		var p DebugTextPayload
		if err := unmarshalPayload(raw, env.Type, &p); err != nil {
			return nil, err
		}
		if p.Text == nil {
			return nil, missing(env.Type, "text")
		}
		return DebugNotice{Text: *p.Text}, nil

	case TypeMetrics:
		var p MetricsPayload
		if err := unmarshalPayload(raw, env.Type, &p); err != nil {
			return nil, err
		}
		switch {
		case p.Data == nil:
			return nil, missing(env.Type, "data")
		case p.Data.Latency == nil:
			return nil, missing(env.Type, "data.latency")
		case p.Data.Cost == nil:
			return nil, missing(env.Type, "data.cost")
		case p.Data.Cost.Total == nil:
			return nil, missing(env.Type, "data.cost.total")
		}
		breakdown := p.Data.Cost.Breakdown
		if breakdown == nil {
			breakdown = map[string]float64{}
		}
		return MetricsSnapshot{
			Latency: maps.Clone(p.Data.Latency),
			Cost:    Cost{Total: *p.Data.Cost.Total, Breakdown: maps.Clone(breakdown)},
		}, nil

	case TypeQuestionsList:
		var p QuestionsListPayload
		if err := unmarshalPayload(raw, env.Type, &p); err != nil {
			return nil, err
		}
		if p.Questions == nil {
			return nil, missing(env.Type, "questions")
		}
		return QuestionsList{Questions: slices.Clone(p.Questions)}, nil
	}

	return nil, nil
}

func unmarshalPayload(raw []byte, msgType string, v any) error {
	if err := json.Unmarshal(raw, v); err != nil {
		return &Error{Kind: ErrMalformedJSON, Type: msgType, Err: err}
	}
	return nil
}
