package tcp

import "math"

// Status marks a response as successful or failed. Requests leave it empty.
type Status string

const (
	StatusSuccess Status = "SUCCESS"
	StatusError   Status = "ERROR"
)

// reserved message types
const (
	TypeError   = "ERROR"   // reply to payloads that are not messages at all
	TypeWelcome = "WELCOME" // first message written on every accepted connection
)

// Message is the unit exchanged over the wire in both directions.
//
// Payload numbers are normalised on decode: integral values come back as int64,
// anything else as float64. A whole float64 such as 5.0 is written as 5 and so
// reads back as int64(5); use Float64 to read a number of either kind. A nil
// Payload is left off the wire, an empty one is written as {} and decodes empty.
type Message struct {
	Type    string         `json:"type"`              // routing key for the handler registry
	Status  Status         `json:"status,omitempty"`  // set on responses only
	Content string         `json:"content,omitempty"` // human readable text
	Payload map[string]any `json:"payload,omitzero"`  // flexible data payload
}

func NewMessage(msgType string) *Message {
	return &Message{Type: msgType}
}

func NewSuccessMessage(msgType, content string) *Message {
	return &Message{Type: msgType, Status: StatusSuccess, Content: content}
}

func NewErrorMessage(msgType, content string) *Message {
	return &Message{Type: msgType, Status: StatusError, Content: content}
}

// With stores value under key and returns the message for chaining.
func (m *Message) With(key string, value any) *Message {
	if m.Payload == nil {
		m.Payload = make(map[string]any)
	}
	m.Payload[key] = value
	return m
}

func (m *Message) IsError() bool {
	return m.Status == StatusError
}

func (m *Message) Get(key string) (any, bool) {
	if m.Payload == nil {
		return nil, false
	}
	v, ok := m.Payload[key]
	return v, ok
}

func (m *Message) String(key string) (string, bool) {
	v, ok := m.Get(key)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Int64 accepts any numeric payload value as long as it holds a whole number.
func (m *Message) Int64(key string) (int64, bool) {
	v, ok := m.Get(key)
	if !ok {
		return 0, false
	}
	return toInt64(v)
}

func (m *Message) Float64(key string) (float64, bool) {
	v, ok := m.Get(key)
	if !ok {
		return 0, false
	}
	return toFloat64(v)
}

func (m *Message) Map(key string) (map[string]any, bool) {
	v, ok := m.Get(key)
	if !ok {
		return nil, false
	}
	mv, ok := v.(map[string]any)
	return mv, ok
}

func (m *Message) Slice(key string) ([]any, bool) {
	v, ok := m.Get(key)
	if !ok {
		return nil, false
	}
	sv, ok := v.([]any)
	return sv, ok
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint32:
		return int64(n), true
	case float64:
		if n != math.Trunc(n) || math.IsInf(n, 0) {
			return 0, false
		}
		return int64(n), true
	case float32:
		return toInt64(float64(n))
	}
	return 0, false
}

// ToFloat64 is exported for handlers that read numbers out of nested payload maps.
func ToFloat64(v any) (float64, bool) {
	return toFloat64(v)
}

// ToInt64 is the nested-map counterpart of Message.Int64.
func ToInt64(v any) (int64, bool) {
	return toInt64(v)
}

func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
