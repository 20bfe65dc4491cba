package chat

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Inbound event names.
const (
	EventLogin   = "login"
	EventMessage = "message"
	EventTyping  = "typing"
)

// Outbound event names. EventMessage is used in both directions.
const (
	EventUsersUpdate    = "users_update"
	EventMessageHistory = "message_history"
	EventUserTyping     = "user_typing"
	EventError          = "error"
)

// Client-facing error texts carried by EventError.
const (
	errTextLogin          = "Failed to login. Please try again."
	errTextMessage        = "Failed to send message. Please try again."
	errTextAlreadyLogged  = "Already logged in."
	errTextTyping         = "Invalid typing indicator."
	errTextUnknownEvent   = "Unknown event."
	errTextInvalidMessage = "Invalid message format."
)

// Envelope is the JSON frame exchanged with clients in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Event is an outbound event before encoding.
type Event struct {
	Name string
	Data any
}

// Encode renders the event as an Envelope frame.
func (e Event) Encode() ([]byte, error) {
	data, err := json.Marshal(e.Data)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", e.Name, err)
	}
	return json.Marshal(Envelope{Event: e.Name, Data: data})
}

// ErrorEvent builds the error event sent back to an offending connection.
func ErrorEvent(text string) Event {
	return Event{Name: EventError, Data: text}
}

// DecodeEnvelope parses a raw client frame. Frames that are not JSON objects or
// carry no event name fail with ErrValidation.
func DecodeEnvelope(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if env.Event == "" {
		return Envelope{}, fmt.Errorf("%w: missing event name", ErrValidation)
	}
	return env, nil
}

func isNull(data json.RawMessage) bool {
	trimmed := bytes.TrimSpace(data)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// decodeString requires the payload to be a JSON string.
func decodeString(data json.RawMessage) (string, error) {
	if isNull(data) {
		return "", fmt.Errorf("%w: payload must be a string", ErrValidation)
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return "", fmt.Errorf("%w: payload must be a string", ErrValidation)
	}
	return s, nil
}

// decodeBool requires the payload to be a JSON boolean.
func decodeBool(data json.RawMessage) (bool, error) {
	if isNull(data) {
		return false, fmt.Errorf("%w: payload must be a boolean", ErrValidation)
	}
	var b bool
	if err := json.Unmarshal(data, &b); err != nil {
		return false, fmt.Errorf("%w: payload must be a boolean", ErrValidation)
	}
	return b, nil
}
