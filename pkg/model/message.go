package model

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Message types with dedicated routing. Any other type is broadcast to every
// live session except the sender.
const (
	TypeAdminMessage   = "ADMIN_MESSAGE"            // admin -> named officer
	TypeOfficerMessage = "OFFICER_MESSAGE"          // officer -> all admins
	TypePoliceToVictim = "POLICE_TO_VICTIM_MESSAGE" // officer/admin -> named victim, queued when offline
	TypeVictimMessage  = "VICTIM_MESSAGE"           // victim -> all officers and admins
	TypeMessageRead    = "MESSAGE_READ"             // read receipt, optionally directed
	TypeNewCaseAdded   = "NEW_CASE_ADDED"           // admin -> victim by name, plus all admins
)

var ErrMissingType = errors.New("message type is required")
var ErrMissingField = errors.New("required payload field missing")

// Message is a routed record. Only Type is interpreted by the router; the
// payload and any unknown top-level fields pass through unchanged.
// SenderID and Timestamp are always stamped by the server.
type Message struct {
	Type      string
	Payload   json.RawMessage
	SenderID  string
	Timestamp string
	Extra     map[string]json.RawMessage
}

// DirectedPayload carries the recipient of a directed message type.
type DirectedPayload struct {
	RecipientID string `json:"recipientId"`
}

// ReadReceiptPayload is the payload of MESSAGE_READ.
type ReadReceiptPayload struct {
	MessageIDs  []json.RawMessage `json:"messageIds"`
	RecipientID string            `json:"recipientId,omitempty"`
}

// NewCasePayload is the payload of NEW_CASE_ADDED.
type NewCasePayload struct {
	VictimName string `json:"victimName"`
}

// UnmarshalJSON decodes a message, keeping unrecognised fields in Extra.
func (m *Message) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return fmt.Errorf("model: decode message: %w", err)
	}
	raw, ok := fields["type"]
	if !ok {
		return ErrMissingType
	}
	var typ string
	if err := json.Unmarshal(raw, &typ); err != nil || typ == "" {
		return ErrMissingType
	}

	*m = Message{Type: typ, Payload: fields["payload"]}
	if raw, ok := fields["senderId"]; ok {
		_ = json.Unmarshal(raw, &m.SenderID) // overwritten before delivery
	}
	if raw, ok := fields["timestamp"]; ok {
		_ = json.Unmarshal(raw, &m.Timestamp)
	}
	for _, k := range []string{"type", "payload", "senderId", "timestamp"} {
		delete(fields, k)
	}
	if len(fields) > 0 {
		m.Extra = fields
	}
	return nil
}

// MarshalJSON encodes the message with its pass-through fields.
func (m Message) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(m.Extra)+4)
	for k, v := range m.Extra {
		out[k] = v
	}
	out["type"] = m.Type
	if len(m.Payload) > 0 {
		out["payload"] = m.Payload
	}
	if m.SenderID != "" {
		out["senderId"] = m.SenderID
	}
	if m.Timestamp != "" {
		out["timestamp"] = m.Timestamp
	}
	return json.Marshal(out)
}

// DecodePayload unmarshals the payload into v.
func (m *Message) DecodePayload(v any) error {
	if len(m.Payload) == 0 || string(m.Payload) == "null" {
		return fmt.Errorf("%w: payload", ErrMissingField)
	}
	if err := json.Unmarshal(m.Payload, v); err != nil {
		return fmt.Errorf("model: decode %s payload: %w", m.Type, err)
	}
	return nil
}

// Recipient returns payload.recipientId, failing when it is absent.
func (m *Message) Recipient() (string, error) {
	var p DirectedPayload
	if err := m.DecodePayload(&p); err != nil {
		return "", err
	}
	if p.RecipientID == "" {
		return "", fmt.Errorf("%w: recipientId", ErrMissingField)
	}
	return p.RecipientID, nil
}

// ReadReceipt returns the MESSAGE_READ payload, failing when messageIds is absent.
func (m *Message) ReadReceipt() (ReadReceiptPayload, error) {
	var p ReadReceiptPayload
	if err := m.DecodePayload(&p); err != nil {
		return p, err
	}
	if p.MessageIDs == nil {
		return p, fmt.Errorf("%w: messageIds", ErrMissingField)
	}
	return p, nil
}

// VictimName returns payload.victimName, failing when it is absent.
func (m *Message) VictimName() (string, error) {
	var p NewCasePayload
	if err := m.DecodePayload(&p); err != nil {
		return "", err
	}
	if p.VictimName == "" {
		return "", fmt.Errorf("%w: victimName", ErrMissingField)
	}
	return p.VictimName, nil
}
