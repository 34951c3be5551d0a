package devserver

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/glowshop/supportchat/internal/chat"
)

// sendBufferSize is the per-member outbound buffer. A member whose buffer
// fills up (a stalled reader) is disconnected rather than blocking the
// broadcast.
const sendBufferSize = 64

// textMessage is the WebSocket text frame opcode.
const textMessage = 1

// memberConn is the write side of one connected socket.
type memberConn interface {
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// member is one connected client within a hub.
type member struct {
	id   string
	user chat.SessionUser
	conn memberConn

	// mu guards send against the close in closeSend: a direct send racing
	// the broadcast path dropping this member must not hit a closed
	// channel.
	mu     sync.Mutex
	closed bool
	send   chan []byte
}

// enqueue queues a frame unless the member is closed or its buffer is full.
func (m *member) enqueue(data []byte) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false
	}
	select {
	case m.send <- data:
		return true
	default:
		return false
	}
}

// closeSend closes the member's send channel once.
func (m *member) closeSend() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	close(m.send)
}

// hub fans broadcast frames out to every member of one chat. The sender
// receives its own messages through the same path; the client relies on
// that echo instead of appending optimistically.
type hub struct {
	chatID int64

	mu      sync.Mutex
	members map[string]*member
}

func newHub(chatID int64) *hub {
	return &hub{
		chatID:  chatID,
		members: make(map[string]*member),
	}
}

// add registers a connection and starts its write pump. Returns the member
// handle used for removal.
func (h *hub) add(conn memberConn, user chat.SessionUser) *member {
	m := &member{
		id:   uuid.NewString(),
		user: user,
		send: make(chan []byte, sendBufferSize),
		conn: conn,
	}

	h.mu.Lock()
	h.members[m.id] = m
	h.mu.Unlock()

	go m.writePump()
	log.Printf("devserver: chat %d: member %s connected (user %d)", h.chatID, m.id, user.UserID)
	return m
}

// remove unregisters a member and stops its write pump.
func (h *hub) remove(m *member) {
	h.mu.Lock()
	_, present := h.members[m.id]
	delete(h.members, m.id)
	h.mu.Unlock()

	if present {
		m.closeSend()
		log.Printf("devserver: chat %d: member %s disconnected", h.chatID, m.id)
	}
}

// broadcast queues a frame for every member. Members that cannot keep up
// are dropped.
func (h *hub) broadcast(v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Printf("devserver: chat %d: marshal broadcast: %v", h.chatID, err)
		return
	}

	h.mu.Lock()
	var stalled []*member
	for _, m := range h.members {
		if !m.enqueue(data) {
			stalled = append(stalled, m)
		}
	}
	for _, m := range stalled {
		delete(h.members, m.id)
		m.closeSend()
	}
	h.mu.Unlock()

	for _, m := range stalled {
		log.Printf("devserver: chat %d: dropping stalled member %s", h.chatID, m.id)
		m.conn.Close()
	}
}

// sendTo queues a frame for a single member, bypassing the hub. Used for
// per-connection traffic like the history snapshot and error events.
func (m *member) sendTo(v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Printf("devserver: marshal direct frame: %v", err)
		return
	}
	if !m.enqueue(data) {
		log.Printf("devserver: dropping direct frame to member %s", m.id)
	}
}

func (m *member) writePump() {
	for data := range m.send {
		if err := m.conn.WriteMessage(textMessage, data); err != nil {
			return
		}
	}
}

// limiterPool holds one rate limiter per user id, enforcing the message
// send limit of 10 messages per rolling 10 seconds.
type limiterPool struct {
	mu       sync.Mutex
	limiters map[int64]*rate.Limiter
}

func newLimiterPool() *limiterPool {
	return &limiterPool{limiters: make(map[int64]*rate.Limiter)}
}

// allow reports whether the user may send another message now.
func (p *limiterPool) allow(userID int64) bool {
	p.mu.Lock()
	lim, ok := p.limiters[userID]
	if !ok {
		// One token per second with a burst of 10 approximates the
		// 10-messages-per-10-seconds rule without a message log.
		lim = rate.NewLimiter(rate.Every(time.Second), 10)
		p.limiters[userID] = lim
	}
	p.mu.Unlock()
	return lim.Allow()
}
