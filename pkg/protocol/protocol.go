// Package protocol defines the event envelope exchanged over WebSocket.
//
// Every frame is a JSON text message:
//
//	{"event": "register", "data": {"userId": "off1", "userType": "officer"}}
//	{"event": "message",  "data": {"type": "VICTIM_MESSAGE", "payload": {...}}}
//	{"event": "userStatus", "data": {"userId": "off1", "status": "online", ...}}
//
// Disconnect has no frame; it is the close of the underlying connection.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Event names.
const (
	EventRegister   = "register"   // client -> server
	EventMessage    = "message"    // both directions
	EventUserStatus = "userStatus" // server -> client presence
)

// MaxFrameSize is the maximum encoded envelope size (64KB).
const MaxFrameSize = 65536

var (
	ErrFrameTooLarge = errors.New("protocol: frame too large")
	ErrMissingEvent  = errors.New("protocol: event name is required")
)

// Envelope wraps one event and its JSON data.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Encode marshals data under event into a single frame.
func Encode(event string, data any) ([]byte, error) {
	if event == "" {
		return nil, ErrMissingEvent
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("protocol: marshal %s: %w", event, err)
	}
	frame, err := json.Marshal(Envelope{Event: event, Data: raw})
	if err != nil {
		return nil, fmt.Errorf("protocol: marshal envelope: %w", err)
	}
	if len(frame) > MaxFrameSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(frame))
	}
	return frame, nil
}

// Decode parses one frame of at most MaxFrameSize bytes.
func Decode(frame []byte) (*Envelope, error) {
	return DecodeLimit(frame, MaxFrameSize)
}

// DecodeLimit parses one frame of at most limit bytes.
func DecodeLimit(frame []byte, limit int) (*Envelope, error) {
	if len(frame) > limit {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(frame))
	}
	env := &Envelope{}
	if err := json.Unmarshal(frame, env); err != nil {
		return nil, fmt.Errorf("protocol: unmarshal: %w", err)
	}
	if env.Event == "" {
		return nil, ErrMissingEvent
	}
	return env, nil
}

// Bind unmarshals the envelope data into v.
func (e *Envelope) Bind(v any) error {
	if len(e.Data) == 0 {
		return fmt.Errorf("protocol: %s: missing data", e.Event)
	}
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("protocol: %s: %w", e.Event, err)
	}
	return nil
}
