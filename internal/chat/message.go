// Package chat implements the live support-chat session: one WebSocket
// connection per open chat, translating inbound events into message-list
// mutations and exposing an outbound send operation.
package chat

import (
	"encoding/json"
	"fmt"
)

// EventType identifies the kind of event exchanged over the chat socket.
// Each type has a specific payload structure defined below.
type EventType string

const (
	// EventTypeHistory delivers the one-time message snapshot on connect.
	// Inbound only. Fields: Messages, User.
	EventTypeHistory EventType = "chat_history"

	// EventTypeMessage carries a single chat message.
	// Inbound: Message holds a Message object broadcast to the chat.
	// Outbound: Message holds the raw text being sent.
	EventTypeMessage EventType = "chat_message"

	// EventTypeError reports a server-side rejection, e.g. sending to an
	// inactive chat or exceeding the message rate limit.
	// Inbound only. Fields: Message holds a plain string.
	EventTypeError EventType = "error"
)

// Message is one chat message as delivered by the server. Immutable once
// received; the client only ever appends messages, never edits them.
type Message struct {
	// ID is unique per chat and monotonically assigned by the server.
	ID int64 `json:"id"`

	// Content is the raw message text. Image URLs are embedded inline and
	// extracted by the content package at render time.
	Content string `json:"content"`

	// CreatedAt is the server-side creation timestamp, as formatted by the
	// server. Opaque to the client.
	CreatedAt string `json:"created_at"`

	Username string `json:"username"`
	UserID   int64  `json:"user_id"`
	IsStaff  bool   `json:"is_staff"`
	IsSystem bool   `json:"is_system"`
}

// SessionUser identifies the connected user, supplied once by the server in
// the history snapshot. Messages with a matching UserID render as "own".
type SessionUser struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	IsStaff  bool   `json:"is_staff"`
	UserID   int64  `json:"user_id"`
}

// Event is the wire envelope for the chat socket. The meaning of the
// message field depends on Type, so it stays raw until the type is known.
type Event struct {
	// Type identifies what kind of event this is.
	Type EventType `json:"type"`

	// Messages is the history snapshot. Only set for EventTypeHistory.
	Messages []Message `json:"messages,omitempty"`

	// User is the connected user's identity. Only set for EventTypeHistory.
	User *SessionUser `json:"user,omitempty"`

	// Message is the type-dependent payload: a Message object for inbound
	// EventTypeMessage, a string for outbound EventTypeMessage and for
	// EventTypeError.
	Message json.RawMessage `json:"message,omitempty"`
}

// DecodeEvent parses one inbound frame into an Event envelope.
func DecodeEvent(data []byte) (*Event, error) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}
	if ev.Type == "" {
		return nil, fmt.Errorf("decode event: missing type")
	}
	return &ev, nil
}

// ChatMessage extracts the Message object from an EventTypeMessage event.
func (e *Event) ChatMessage() (*Message, error) {
	if e.Type != EventTypeMessage {
		return nil, fmt.Errorf("event type %q has no chat message", e.Type)
	}
	var msg Message
	if err := json.Unmarshal(e.Message, &msg); err != nil {
		return nil, fmt.Errorf("decode chat message: %w", err)
	}
	return &msg, nil
}

// ErrorText extracts the error string from an EventTypeError event.
func (e *Event) ErrorText() (string, error) {
	if e.Type != EventTypeError {
		return "", fmt.Errorf("event type %q has no error text", e.Type)
	}
	var text string
	if err := json.Unmarshal(e.Message, &text); err != nil {
		return "", fmt.Errorf("decode error text: %w", err)
	}
	return text, nil
}

// NewSendEvent creates the outbound frame for sending message text.
func NewSendEvent(text string) ([]byte, error) {
	frame := struct {
		Type    EventType `json:"type"`
		Message string    `json:"message"`
	}{
		Type:    EventTypeMessage,
		Message: text,
	}
	return json.Marshal(frame)
}
