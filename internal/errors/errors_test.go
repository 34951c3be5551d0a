package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestCodedError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *CodedError
		expected string
	}{
		{
			name:     "error without cause",
			err:      New(CodeChatNotLive, "no live connection"),
			expected: "chat.not_live: no live connection",
		},
		{
			name:     "error with cause",
			err:      Wrap(CodeChatDialFailed, "dial failed", errors.New("connection refused")),
			expected: "chat.dial_failed: dial failed (connection refused)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("Error() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestCodedError_Unwrap(t *testing.T) {
	cause := errors.New("original error")
	err := Wrap(CodeInternal, "wrapped", cause)

	if err.Unwrap() != cause {
		t.Error("Unwrap() should return the original cause")
	}
	if !errors.Is(err, cause) {
		t.Error("errors.Is should find the cause through Unwrap")
	}
}

func TestGetCode(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{
			name:     "nil error",
			err:      nil,
			expected: "",
		},
		{
			name:     "coded error",
			err:      New(CodeDraftSaveFailed, "save failed"),
			expected: CodeDraftSaveFailed,
		},
		{
			name:     "wrapped coded error",
			err:      fmt.Errorf("outer: %w", New(CodeChatEmptyMessage, "empty")),
			expected: CodeChatEmptyMessage,
		},
		{
			name:     "plain error",
			err:      errors.New("something broke"),
			expected: CodeUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetCode(tt.err); got != tt.expected {
				t.Errorf("GetCode() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestToCodeAndMessage(t *testing.T) {
	code, msg := ToCodeAndMessage(New(CodeChatServerError, "too many messages"))
	if code != CodeChatServerError {
		t.Errorf("code = %q, want %q", code, CodeChatServerError)
	}
	if msg != "too many messages" {
		t.Errorf("message = %q, want %q", msg, "too many messages")
	}

	code, msg = ToCodeAndMessage(errors.New("bare"))
	if code != CodeUnknown {
		t.Errorf("code = %q, want %q", code, CodeUnknown)
	}
	if msg != "bare" {
		t.Errorf("message = %q, want %q", msg, "bare")
	}

	code, msg = ToCodeAndMessage(nil)
	if code != "" || msg != "" {
		t.Errorf("nil error should yield empty code and message, got %q / %q", code, msg)
	}
}

func TestIsCode(t *testing.T) {
	err := EmptyMessage()
	if !IsCode(err, CodeChatEmptyMessage) {
		t.Error("IsCode should match the constructor's code")
	}
	if IsCode(err, CodeChatNotLive) {
		t.Error("IsCode should not match a different code")
	}
}

func TestConstructors(t *testing.T) {
	tests := []struct {
		name string
		err  *CodedError
		code string
	}{
		{"EmptyChatID", EmptyChatID(), CodeChatEmptyID},
		{"NotLive", NotLive(), CodeChatNotLive},
		{"EmptyMessage", EmptyMessage(), CodeChatEmptyMessage},
		{"DialFailed", DialFailed("42", errors.New("refused")), CodeChatDialFailed},
		{"ConnectionLost", ConnectionLost("42", errors.New("eof")), CodeChatLost},
		{"BadEvent", BadEvent("unknown type"), CodeChatBadEvent},
		{"ServerError", ServerError("chat inactive"), CodeChatServerError},
		{"SendFailed", SendFailed(errors.New("broken pipe")), CodeChatSendFailed},
		{"ListRequestFailed", ListRequestFailed(errors.New("refused")), CodeListRequestFailed},
		{"BadEnvelope", BadEnvelope(errors.New("unexpected EOF")), CodeListBadEnvelope},
		{"DraftOpenFailed", DraftOpenFailed("/tmp/drafts.db", errors.New("locked")), CodeDraftOpenFailed},
		{"DraftSaveFailed", DraftSaveFailed("42", errors.New("disk full")), CodeDraftSaveFailed},
		{"InactiveChat", InactiveChat("7"), CodeServerInactiveChat},
		{"RateLimited", RateLimited(), CodeServerRateLimited},
		{"ChatNotFound", ChatNotFound("9"), CodeServerChatNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Code != tt.code {
				t.Errorf("Code = %q, want %q", tt.err.Code, tt.code)
			}
			if tt.err.Message == "" {
				t.Error("constructor should set a message")
			}
		})
	}
}

func TestBadStatus(t *testing.T) {
	err := BadStatus(403, "CSRF verification failed")
	if err.Message != "unexpected status 403: CSRF verification failed" {
		t.Errorf("Message = %q", err.Message)
	}

	err = BadStatus(500, "")
	if err.Message != "unexpected status 500" {
		t.Errorf("Message = %q", err.Message)
	}
}
