// Package devserver is an in-memory protocol peer for the support-chat
// client: the same socket events, REST envelope, and CSRF exchange as the
// production backend, with none of its persistence. It exists so the client
// and its tests can run against a real server locally.
package devserver

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"log"
	"strconv"
	"sync"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"

	"github.com/glowshop/supportchat/internal/chat"
	"github.com/glowshop/supportchat/internal/errors"
)

// envelope mirrors the backend's uniform REST response wrapper.
type envelope struct {
	Data    interface{} `json:"data"`
	Message string      `json:"message"`
}

// Server is the development chat server.
type Server struct {
	store    *Store
	limiters *limiterPool

	mu   sync.Mutex
	hubs map[int64]*hub

	app *fiber.App
}

// New creates a server with an empty store.
func New() *Server {
	s := &Server{
		store:    NewStore(),
		limiters: newLimiterPool(),
		hubs:     make(map[int64]*hub),
	}

	app := fiber.New(fiber.Config{DisableStartupMessage: true})

	app.Get("/api/support/chats/", s.handleListChats)
	app.Post("/api/support/chats/", s.handleCreateChat)
	app.Use("/ws/support/chat/:id/", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			// Identity headers are only readable before the upgrade;
			// stash them for the socket handler.
			c.Locals("user_id", c.Get("X-User-Id"))
			c.Locals("username", c.Get("X-Username"))
			c.Locals("is_staff", c.Get("X-Is-Staff"))
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/support/chat/:id/", websocket.New(s.handleChatSocket))

	s.app = app
	return s
}

// Store exposes the backing store so tests and the command can seed chats.
func (s *Server) Store() *Store {
	return s.store
}

// Listen blocks serving on addr, e.g. "127.0.0.1:8990".
func (s *Server) Listen(addr string) error {
	log.Printf("devserver: listening on %s", addr)
	return s.app.Listen(addr)
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

// App returns the underlying fiber app, used by tests to issue requests
// without a listener.
func (s *Server) App() *fiber.App {
	return s.app
}

func (s *Server) handleListChats(c *fiber.Ctx) error {
	// Seed the CSRF cookie the way the production backend does, so the
	// client's jar has a token to echo on mutations.
	if c.Cookies("csrftoken") == "" {
		c.Cookie(&fiber.Cookie{Name: "csrftoken", Value: newCSRFToken()})
	}

	return c.JSON(envelope{Data: s.store.ListChats(), Message: "chats"})
}

func (s *Server) handleCreateChat(c *fiber.Ctx) error {
	cookie := c.Cookies("csrftoken")
	header := c.Get("X-CSRFToken")
	if cookie == "" || header != cookie {
		return c.Status(fiber.StatusForbidden).JSON(envelope{
			Data:    fiber.Map{},
			Message: "CSRF token missing or incorrect",
		})
	}

	var body struct {
		Topic string `json:"topic"`
	}
	if err := c.BodyParser(&body); err != nil || body.Topic == "" {
		return c.Status(fiber.StatusBadRequest).JSON(envelope{
			Data:    fiber.Map{},
			Message: "validation error",
		})
	}

	created := s.store.CreateChat(body.Topic)
	return c.JSON(envelope{Data: fiber.Map{"id": created.ID}, Message: "chat created"})
}

// hubFor returns the hub for a chat, creating it on first use.
func (s *Server) hubFor(chatID int64) *hub {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.hubs[chatID]
	if !ok {
		h = newHub(chatID)
		s.hubs[chatID] = h
	}
	return h
}

// connUser builds the connection's identity from the X-User-Id, X-Username,
// and X-Is-Staff headers captured at upgrade time, falling back to query
// parameters. The development server has no auth; callers say who they are.
func connUser(c *websocket.Conn) chat.SessionUser {
	local := func(key string) string {
		if v, ok := c.Locals(key).(string); ok {
			return v
		}
		return ""
	}

	rawID := local("user_id")
	if rawID == "" {
		rawID = c.Query("user_id", "1")
	}
	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil || id <= 0 {
		id = 1
	}

	username := local("username")
	if username == "" {
		username = c.Query("username", "shopper")
	}
	staff := local("is_staff")
	if staff == "" {
		staff = c.Query("is_staff")
	}

	return chat.SessionUser{
		ID:       id,
		UserID:   id,
		Username: username,
		IsStaff:  staff == "true",
	}
}

func (s *Server) handleChatSocket(c *websocket.Conn) {
	chatID, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil {
		c.Close()
		return
	}
	if _, err := s.store.Chat(chatID); err != nil {
		// Unknown chat: close like the backend does on a failed lookup.
		c.Close()
		return
	}

	user := connUser(c)
	h := s.hubFor(chatID)
	m := h.add(c, user)
	defer func() {
		h.remove(m)
		c.Close()
	}()

	s.sendHistory(m, chatID, user)

	for {
		_, data, err := c.ReadMessage()
		if err != nil {
			return
		}
		s.handleInbound(h, m, chatID, user, data)
	}
}

// sendHistory delivers the one-time snapshot to a newly connected member.
func (s *Server) sendHistory(m *member, chatID int64, user chat.SessionUser) {
	history, err := s.store.History(chatID)
	if err != nil {
		m.sendTo(fiber.Map{"type": chat.EventTypeError, "message": errors.GetMessage(err)})
		return
	}
	if history == nil {
		history = []chat.Message{}
	}

	m.sendTo(fiber.Map{
		"type":     chat.EventTypeHistory,
		"messages": history,
		"user":     user,
	})
}

// handleInbound processes one frame from a member.
func (s *Server) handleInbound(h *hub, m *member, chatID int64, user chat.SessionUser, data []byte) {
	ev, err := chat.DecodeEvent(data)
	if err != nil {
		log.Printf("devserver: chat %d: ignoring malformed frame: %v", chatID, err)
		return
	}
	if ev.Type != chat.EventTypeMessage {
		log.Printf("devserver: chat %d: ignoring frame type %q", chatID, ev.Type)
		return
	}

	var text string
	if err := json.Unmarshal(ev.Message, &text); err != nil {
		log.Printf("devserver: chat %d: ignoring send with non-string message", chatID)
		return
	}

	if !s.limiters.allow(user.UserID) {
		m.sendTo(fiber.Map{"type": chat.EventTypeError, "message": "Too many messages"})
		return
	}

	msg, err := s.store.AppendMessage(chatID, user, text)
	if err != nil {
		if errors.IsCode(err, errors.CodeServerInactiveChat) {
			m.sendTo(fiber.Map{"type": chat.EventTypeError, "message": "This chat is not active"})
			return
		}
		m.sendTo(fiber.Map{"type": chat.EventTypeError, "message": errors.GetMessage(err)})
		return
	}

	h.broadcast(fiber.Map{"type": chat.EventTypeMessage, "message": msg})
}

// newCSRFToken generates a random token for the csrftoken cookie.
func newCSRFToken() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "devtoken"
	}
	return hex.EncodeToString(buf)
}
