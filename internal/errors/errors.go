// Package errors provides standardized error codes for the support-chat client.
//
// Error codes follow the format {domain}.{error} where:
//   - domain: The subsystem that generated the error (chat, draft, prefetch, list, config, server)
//   - error: The specific error type within that domain
//
// These codes are stable and can be used by embedding applications for
// programmatic error handling. Human-readable messages are provided alongside codes.
package errors

import (
	"errors"
	"fmt"
)

// Error codes by domain.
// These are stable identifiers that callers can rely on for error handling.
const (
	// Chat domain - session and transport errors
	CodeChatEmptyID       = "chat.empty_id"        // Open called with an empty chat id
	CodeChatDialFailed    = "chat.dial_failed"     // WebSocket dial failed
	CodeChatNotLive       = "chat.not_live"        // Send attempted without a live connection
	CodeChatEmptyMessage  = "chat.empty_message"   // Send rejected: empty or whitespace-only text
	CodeChatSendFailed    = "chat.send_failed"     // Writing the outbound event failed
	CodeChatLost          = "chat.connection_lost" // Connection dropped unexpectedly
	CodeChatBadEvent      = "chat.bad_event"       // Malformed or unknown inbound event
	CodeChatServerError   = "chat.server_error"    // Server-side error event (inactive chat, rate limit)
	CodeChatHistoryRepeat = "chat.history_repeat"  // Protocol violation: second history snapshot

	// Draft domain - persistence errors
	CodeDraftOpenFailed  = "draft.open_failed"  // Draft database open failed
	CodeDraftSaveFailed  = "draft.save_failed"  // Failed to persist a draft
	CodeDraftQueryFailed = "draft.query_failed" // Draft lookup failed

	// Prefetch domain - image loading errors
	CodePrefetchFailed = "prefetch.failed" // Image load attempt failed (still settles)

	// List domain - chat list REST collaborator errors
	CodeListRequestFailed = "list.request_failed" // HTTP request could not be made
	CodeListBadStatus     = "list.bad_status"     // Non-2xx response from the API
	CodeListBadEnvelope   = "list.bad_envelope"   // Response body did not decode

	// Config domain - configuration file errors
	CodeConfigNotFound    = "config.not_found"    // Explicit config path does not exist
	CodeConfigParseFailed = "config.parse_failed" // TOML parse error

	// Server domain - development server errors
	CodeServerInactiveChat = "server.inactive_chat"  // Message sent to an inactive chat
	CodeServerRateLimited  = "server.rate_limited"   // Too many messages in the rolling window
	CodeServerChatNotFound = "server.chat_not_found" // Chat id does not exist

	// General domain - catch-all errors
	CodeUnknown  = "error.unknown"  // Unknown error
	CodeInternal = "error.internal" // Internal error
)

// CodedError wraps an error with a stable error code.
// This allows errors to carry both a code for programmatic handling
// and a message for human consumption.
type CodedError struct {
	Code    string // Stable error code (e.g., "chat.not_live")
	Message string // Human-readable error message
	Cause   error  // Underlying error (may be nil)
}

// Error implements the error interface.
func (e *CodedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *CodedError) Unwrap() error {
	return e.Cause
}

// New creates a new CodedError with the given code and message.
func New(code, message string) *CodedError {
	return &CodedError{
		Code:    code,
		Message: message,
	}
}

// Wrap creates a new CodedError wrapping an existing error.
func Wrap(code, message string, cause error) *CodedError {
	return &CodedError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// GetCode extracts the error code from an error.
// If the error is a CodedError, returns its code.
// Falls back to CodeUnknown for unrecognized errors.
func GetCode(err error) string {
	if err == nil {
		return ""
	}

	var coded *CodedError
	if errors.As(err, &coded) {
		return coded.Code
	}

	return CodeUnknown
}

// GetMessage extracts a human-readable message from an error.
// If the error is a CodedError, returns its message.
// Otherwise, returns the error's Error() string.
func GetMessage(err error) string {
	if err == nil {
		return ""
	}

	var coded *CodedError
	if errors.As(err, &coded) {
		return coded.Message
	}

	return err.Error()
}

// ToCodeAndMessage extracts both code and message from an error.
// This is the primary function for converting errors to user-facing notices.
func ToCodeAndMessage(err error) (code, message string) {
	if err == nil {
		return "", ""
	}

	var coded *CodedError
	if errors.As(err, &coded) {
		return coded.Code, coded.Message
	}

	return CodeUnknown, err.Error()
}

// IsCode checks if an error has a specific error code.
func IsCode(err error, code string) bool {
	return GetCode(err) == code
}

// Common error constructors for frequently used error types.

// EmptyChatID creates a "chat.empty_id" error.
func EmptyChatID() *CodedError {
	return New(CodeChatEmptyID, "chat id must not be empty")
}

// DialFailed creates a "chat.dial_failed" error.
func DialFailed(chatID string, cause error) *CodedError {
	return Wrap(CodeChatDialFailed, fmt.Sprintf("failed to connect to chat %s", chatID), cause)
}

// NotLive creates a "chat.not_live" error.
func NotLive() *CodedError {
	return New(CodeChatNotLive, "no live connection")
}

// EmptyMessage creates a "chat.empty_message" error.
func EmptyMessage() *CodedError {
	return New(CodeChatEmptyMessage, "message text is empty")
}

// SendFailed creates a "chat.send_failed" error.
func SendFailed(cause error) *CodedError {
	return Wrap(CodeChatSendFailed, "failed to send message", cause)
}

// ConnectionLost creates a "chat.connection_lost" error.
func ConnectionLost(chatID string, cause error) *CodedError {
	return Wrap(CodeChatLost, fmt.Sprintf("connection to chat %s lost", chatID), cause)
}

// BadEvent creates a "chat.bad_event" error.
func BadEvent(reason string) *CodedError {
	return New(CodeChatBadEvent, reason)
}

// ServerError creates a "chat.server_error" error from a server error event.
// The message is whatever the server sent (e.g., inactive chat, rate limit).
func ServerError(message string) *CodedError {
	return New(CodeChatServerError, message)
}

// ListRequestFailed creates a "list.request_failed" error.
func ListRequestFailed(cause error) *CodedError {
	return Wrap(CodeListRequestFailed, "chat list request failed", cause)
}

// BadStatus creates a "list.bad_status" error. serverMessage is the
// envelope message if the body carried one.
func BadStatus(status int, serverMessage string) *CodedError {
	if serverMessage != "" {
		return New(CodeListBadStatus, fmt.Sprintf("unexpected status %d: %s", status, serverMessage))
	}
	return New(CodeListBadStatus, fmt.Sprintf("unexpected status %d", status))
}

// BadEnvelope creates a "list.bad_envelope" error.
func BadEnvelope(cause error) *CodedError {
	return Wrap(CodeListBadEnvelope, "response envelope did not decode", cause)
}

// DraftOpenFailed creates a "draft.open_failed" error.
func DraftOpenFailed(path string, cause error) *CodedError {
	return Wrap(CodeDraftOpenFailed, fmt.Sprintf("failed to open draft database at %s", path), cause)
}

// DraftSaveFailed creates a "draft.save_failed" error.
func DraftSaveFailed(chatID string, cause error) *CodedError {
	return Wrap(CodeDraftSaveFailed, fmt.Sprintf("failed to persist draft for chat %s", chatID), cause)
}

// InactiveChat creates a "server.inactive_chat" error.
func InactiveChat(chatID string) *CodedError {
	return New(CodeServerInactiveChat, fmt.Sprintf("chat %s is not active", chatID))
}

// RateLimited creates a "server.rate_limited" error.
func RateLimited() *CodedError {
	return New(CodeServerRateLimited, "too many messages, slow down")
}

// ChatNotFound creates a "server.chat_not_found" error.
func ChatNotFound(chatID string) *CodedError {
	return New(CodeServerChatNotFound, fmt.Sprintf("chat %s not found", chatID))
}

// Internal creates an "error.internal" error.
func Internal(message string, cause error) *CodedError {
	return Wrap(CodeInternal, message, cause)
}
