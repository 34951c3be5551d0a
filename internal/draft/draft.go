// Package draft persists unsent message input per chat so switching chats
// or restarting the client never loses what the user was typing.
//
// Reads are deliberately forgiving: a missing or unreadable draft degrades
// to an empty string, because a stale draft must never block composing a
// new message.
package draft

import "sync"

// Store persists one draft per chat.
type Store interface {
	// Get returns the stored draft for the chat, or "" if none exists or
	// the stored value cannot be read.
	Get(chatID string) string

	// Set stores the draft for the chat, replacing any previous value.
	// Setting an empty string is equivalent to Clear.
	Set(chatID, text string) error

	// Clear removes the draft for the chat. Clearing a chat with no draft
	// is a no-op.
	Clear(chatID string) error

	// Close releases any resources held by the store.
	Close() error
}

// MemoryStore keeps drafts in memory. Used by tests and as a fallback when
// no database path is configured; drafts do not survive a restart.
type MemoryStore struct {
	mu     sync.RWMutex
	drafts map[string]string
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{drafts: make(map[string]string)}
}

// Get returns the stored draft, or "" if none exists.
func (m *MemoryStore) Get(chatID string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.drafts[chatID]
}

// Set stores the draft. An empty text removes the entry.
func (m *MemoryStore) Set(chatID, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if text == "" {
		delete(m.drafts, chatID)
		return nil
	}
	m.drafts[chatID] = text
	return nil
}

// Clear removes the draft for the chat.
func (m *MemoryStore) Clear(chatID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.drafts, chatID)
	return nil
}

// Close is a no-op for the in-memory store.
func (m *MemoryStore) Close() error { return nil }
