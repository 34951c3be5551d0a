package devserver

import (
	"strconv"
	"sync"
	"time"

	"github.com/glowshop/supportchat/internal/chat"
	"github.com/glowshop/supportchat/internal/chatlist"
	"github.com/glowshop/supportchat/internal/errors"
)

// historyLimit is how many of the most recent messages are replayed to a
// newly connected client, oldest first.
const historyLimit = 50

// Store holds all chats and messages in memory. The development server has
// no persistence; state lives for the process lifetime.
type Store struct {
	mu         sync.Mutex
	chats      map[int64]*chatRecord
	nextChatID int64
	nextMsgID  int64
}

type chatRecord struct {
	meta chatlist.Chat
	msgs []chat.Message
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		chats:      make(map[int64]*chatRecord),
		nextChatID: 1,
		nextMsgID:  1,
	}
}

// CreateChat registers a new active chat and returns it.
func (s *Store) CreateChat(topic string) chatlist.Chat {
	s.mu.Lock()
	defer s.mu.Unlock()

	meta := chatlist.Chat{
		ID:        s.nextChatID,
		Topic:     topic,
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
		IsActive:  true,
	}
	s.nextChatID++
	s.chats[meta.ID] = &chatRecord{meta: meta}
	return meta
}

// ListChats returns all chats in creation order.
func (s *Store) ListChats() []chatlist.Chat {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]chatlist.Chat, 0, len(s.chats))
	for id := int64(1); id < s.nextChatID; id++ {
		if rec, ok := s.chats[id]; ok {
			out = append(out, rec.meta)
		}
	}
	return out
}

// Chat returns the chat metadata for id.
func (s *Store) Chat(id int64) (chatlist.Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.chats[id]
	if !ok {
		return chatlist.Chat{}, errors.ChatNotFound(formatID(id))
	}
	return rec.meta, nil
}

// SetActive flips a chat's active flag. Sends to an inactive chat are
// rejected with an error event.
func (s *Store) SetActive(id int64, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.chats[id]
	if !ok {
		return errors.ChatNotFound(formatID(id))
	}
	rec.meta.IsActive = active
	return nil
}

// AppendMessage stores a new message for the chat and returns it with its
// assigned id and timestamp.
func (s *Store) AppendMessage(chatID int64, user chat.SessionUser, content string) (chat.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.chats[chatID]
	if !ok {
		return chat.Message{}, errors.ChatNotFound(formatID(chatID))
	}
	if !rec.meta.IsActive {
		return chat.Message{}, errors.InactiveChat(formatID(chatID))
	}

	msg := chat.Message{
		ID:        s.nextMsgID,
		Content:   content,
		CreatedAt: time.Now().UTC().Format(time.RFC3339Nano),
		Username:  user.Username,
		UserID:    user.UserID,
		IsStaff:   user.IsStaff,
	}
	s.nextMsgID++
	rec.msgs = append(rec.msgs, msg)
	return msg, nil
}

// History returns up to historyLimit of the chat's most recent messages,
// oldest first.
func (s *Store) History(chatID int64) ([]chat.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.chats[chatID]
	if !ok {
		return nil, errors.ChatNotFound(formatID(chatID))
	}

	msgs := rec.msgs
	if len(msgs) > historyLimit {
		msgs = msgs[len(msgs)-historyLimit:]
	}
	return append([]chat.Message(nil), msgs...), nil
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}
