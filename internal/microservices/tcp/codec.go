package tcp

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// messages are newline-delimited JSON objects, one per line
// the size limit protects the per-connection read buffer

const MaxMessageSize = 1024 * 1024 // 1MB max message size

// ProtocolError reports a line that was read in full but is not a valid Message.
// The stream is still aligned on a message boundary, so the session may continue.
type ProtocolError struct {
	Reason string
	Err    error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid message: %s: %v", e.Reason, e.Err)
	}
	return "invalid message: " + e.Reason
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// Encoder writes framed messages to an underlying writer.
type Encoder struct {
	w *bufio.Writer
}

func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: bufio.NewWriter(w)}
}

// Encode writes msg followed by the frame delimiter and flushes.
func (e *Encoder) Encode(msg *Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	//=> data + "\n" then flush to the io.Writer buffer
	if _, err := e.w.Write(data); err != nil {
		return fmt.Errorf("failed to write data: %w", err)
	}
	if err := e.w.WriteByte('\n'); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}
	if err := e.w.Flush(); err != nil {
		return fmt.Errorf("failed to flush writer: %w", err)
	}
	return nil
}

// Flush pushes any buffered bytes; used on teardown.
func (e *Encoder) Flush() error {
	return e.w.Flush()
}

// Decoder reads framed messages from an underlying reader.
type Decoder struct {
	scanner *bufio.Scanner
	maxSize int
}

// NewDecoder returns a decoder that rejects frames larger than maxSize bytes.
// A maxSize <= 0 selects MaxMessageSize.
func NewDecoder(r io.Reader, maxSize int) *Decoder {
	if maxSize <= 0 {
		maxSize = MaxMessageSize
	}
	scanner := bufio.NewScanner(r)
	initial := 4096
	if initial > maxSize {
		initial = maxSize
	}
	// +1 leaves room for the delimiter
	scanner.Buffer(make([]byte, 0, initial), maxSize+1)
	return &Decoder{scanner: scanner, maxSize: maxSize}
}

// Decode returns the next message.
// It returns io.EOF when the peer closed the stream, ErrFrameTooLarge when a frame
// exceeds the size limit and *ProtocolError for a complete but invalid frame.
// Any other error comes from the underlying reader.
func (d *Decoder) Decode() (*Message, error) {
	for d.scanner.Scan() {
		line := bytes.TrimSpace(d.scanner.Bytes())
		if len(line) == 0 {
			continue // blank keep-alive lines carry nothing
		}
		return ParseMessage(line)
	}
	err := d.scanner.Err()
	if err == nil {
		return nil, io.EOF
	}
	if errors.Is(err, bufio.ErrTooLong) {
		return nil, ErrFrameTooLarge
	}
	return nil, err
}

// ParseMessage decodes one frame without its delimiter.
func ParseMessage(data []byte) (*Message, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, &ProtocolError{Reason: "malformed json", Err: err}
	}
	if dec.More() {
		return nil, &ProtocolError{Reason: "trailing data after message"}
	}
	fields, ok := raw.(map[string]any)
	if !ok {
		return nil, &ProtocolError{Reason: fmt.Sprintf("expected object, got %s", jsonKind(raw))}
	}

	msg := &Message{}
	msgType, ok := fields["type"].(string)
	if !ok || msgType == "" {
		return nil, &ProtocolError{Reason: "missing message type"}
	}
	msg.Type = msgType

	if v, present := fields["status"]; present && v != nil {
		status, ok := v.(string)
		if !ok {
			return nil, &ProtocolError{Reason: "status must be a string"}
		}
		switch Status(status) {
		case StatusSuccess, StatusError, "":
			msg.Status = Status(status)
		default:
			return nil, &ProtocolError{Reason: fmt.Sprintf("unknown status %q", status)}
		}
	}

	if v, present := fields["content"]; present && v != nil {
		content, ok := v.(string)
		if !ok {
			return nil, &ProtocolError{Reason: "content must be a string"}
		}
		msg.Content = content
	}

	if v, present := fields["payload"]; present && v != nil {
		payload, ok := v.(map[string]any)
		if !ok {
			return nil, &ProtocolError{Reason: "payload must be an object"}
		}
		msg.Payload = normalizeMap(payload)
	}

	return msg, nil
}

// normalizeValue turns json.Number into int64 for whole numbers and float64 otherwise.
func normalizeValue(v any) any {
	switch val := v.(type) {
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i
		}
		f, err := val.Float64()
		if err != nil {
			return val.String()
		}
		return f
	case map[string]any:
		return normalizeMap(val)
	case []any:
		for i := range val {
			val[i] = normalizeValue(val[i])
		}
		return val
	default:
		return v
	}
}

func normalizeMap(m map[string]any) map[string]any {
	for k, v := range m {
		m[k] = normalizeValue(v)
	}
	return m
}

func jsonKind(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case []any:
		return "array"
	case string:
		return "string"
	case bool:
		return "boolean"
	case json.Number:
		return "number"
	default:
		return fmt.Sprintf("%T", v)
	}
}
