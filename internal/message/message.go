// Package message defines the clipcue surface protocol.
//
// Every message is one line of JSON on the IPC socket, or one text frame on
// the WebSocket endpoint. A connection's first message decides what it is:
// ATTACH turns it into a long-lived surface; TRIGGER and STATUS are one-shot
// requests answered with a single reply.
package message

import (
	"encoding/json"
	"fmt"
	"time"
)

// Type identifies the kind of message.
type Type string

const (
	TypeAttach         Type = "ATTACH"
	TypeAttached       Type = "ATTACHED"
	TypeEvent          Type = "EVENT"
	TypeFocus          Type = "FOCUS"
	TypeTrigger        Type = "TRIGGER"
	TypeStatus         Type = "STATUS"
	TypeStatusResponse Type = "STATUS_RESPONSE"
	TypePing           Type = "PING"
	TypePong           Type = "PONG"
	TypeOK             Type = "OK"
	TypeError          Type = "ERROR"
)

// EventClipboardCaptured is the event carrying captured clipboard text.
const EventClipboardCaptured = "clipboard-text-captured"

// DefaultLabel is the surface label captures are delivered to.
const DefaultLabel = "main"

// ErrAuthFailed is the Error value sent when an ATTACH token is wrong.
const ErrAuthFailed = "auth_failed"

// SurfaceInfo describes one attached surface, used in STATUS responses.
type SurfaceInfo struct {
	ID          string    `json:"id"`
	Label       string    `json:"label"`
	Transport   string    `json:"transport"`
	Addr        string    `json:"addr"`
	Active      bool      `json:"active"`
	ConnectedAt time.Time `json:"connected_at"`
	LastSeen    time.Time `json:"last_seen"`
	Delivered   int64     `json:"delivered"`
}

// Message is the top-level wire envelope.
type Message struct {
	// Always present
	Type Type `json:"type"`

	// ATTACH, ATTACHED
	Label string `json:"label,omitempty"`
	Token string `json:"token,omitempty"`

	// EVENT
	Event   string `json:"event,omitempty"`
	Payload string `json:"payload,omitempty"`

	// STATUS_RESPONSE
	Shortcut string        `json:"shortcut,omitempty"`
	Backend  string        `json:"backend,omitempty"`
	Surfaces []SurfaceInfo `json:"surfaces,omitempty"`

	// ERROR
	Error string `json:"error,omitempty"`
}

// NewEvent returns an EVENT message.
func NewEvent(event, payload string) *Message {
	return &Message{Type: TypeEvent, Event: event, Payload: payload}
}

// Encode serialises the message to JSON without a trailing newline.
func (m *Message) Encode() ([]byte, error) {
	return json.Marshal(m)
}

// Decode deserialises a message from raw JSON bytes.
func Decode(b []byte) (*Message, error) {
	var m Message
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("message decode: %w", err)
	}
	if m.Type == "" {
		return nil, fmt.Errorf("message decode: missing type")
	}
	return &m, nil
}

// LabelOf returns the effective surface label, defaulting to DefaultLabel.
func (m *Message) LabelOf() string {
	if m.Label == "" {
		return DefaultLabel
	}
	return m.Label
}
