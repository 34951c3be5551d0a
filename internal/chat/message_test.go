package chat

import (
	"encoding/json"
	"testing"
)

func TestDecodeEventHistory(t *testing.T) {
	data := []byte(`{
		"type": "chat_history",
		"messages": [
			{"id": 1, "content": "hello", "created_at": "2026-08-29T10:00:00Z", "username": "agent", "user_id": 3, "is_staff": true, "is_system": false}
		],
		"user": {"id": 7, "username": "shopper", "is_staff": false, "user_id": 7}
	}`)

	ev, err := DecodeEvent(data)
	if err != nil {
		t.Fatalf("DecodeEvent failed: %v", err)
	}
	if ev.Type != EventTypeHistory {
		t.Errorf("Type = %q, want %q", ev.Type, EventTypeHistory)
	}
	if len(ev.Messages) != 1 || ev.Messages[0].Username != "agent" || !ev.Messages[0].IsStaff {
		t.Errorf("Messages = %+v", ev.Messages)
	}
	if ev.User == nil || ev.User.UserID != 7 {
		t.Errorf("User = %+v, want UserID 7", ev.User)
	}
}

// The message field is polymorphic: an object on inbound chat_message, a
// string on error events and outbound sends.
func TestEventMessageFieldPolymorphism(t *testing.T) {
	ev, err := DecodeEvent([]byte(`{"type": "chat_message", "message": {"id": 4, "content": "hi", "user_id": 7}}`))
	if err != nil {
		t.Fatalf("DecodeEvent failed: %v", err)
	}
	msg, err := ev.ChatMessage()
	if err != nil {
		t.Fatalf("ChatMessage failed: %v", err)
	}
	if msg.ID != 4 || msg.Content != "hi" || msg.UserID != 7 {
		t.Errorf("message = %+v", msg)
	}
	if _, err := ev.ErrorText(); err == nil {
		t.Error("ErrorText on chat_message event succeeded, want error")
	}

	ev, err = DecodeEvent([]byte(`{"type": "error", "message": "Too many messages"}`))
	if err != nil {
		t.Fatalf("DecodeEvent failed: %v", err)
	}
	text, err := ev.ErrorText()
	if err != nil {
		t.Fatalf("ErrorText failed: %v", err)
	}
	if text != "Too many messages" {
		t.Errorf("text = %q, want %q", text, "Too many messages")
	}
	if _, err := ev.ChatMessage(); err == nil {
		t.Error("ChatMessage on error event succeeded, want error")
	}
}

func TestDecodeEventRejectsGarbage(t *testing.T) {
	if _, err := DecodeEvent([]byte("{")); err == nil {
		t.Error("DecodeEvent on truncated JSON succeeded, want error")
	}
	if _, err := DecodeEvent([]byte(`{"message": "no type"}`)); err == nil {
		t.Error("DecodeEvent without type succeeded, want error")
	}
}

func TestNewSendEvent(t *testing.T) {
	frame, err := NewSendEvent("hello world")
	if err != nil {
		t.Fatalf("NewSendEvent failed: %v", err)
	}

	var decoded struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(frame, &decoded); err != nil {
		t.Fatalf("unmarshal frame: %v", err)
	}
	if decoded.Type != "chat_message" || decoded.Message != "hello world" {
		t.Errorf("frame = %+v", decoded)
	}
}
