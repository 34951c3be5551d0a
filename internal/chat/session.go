package chat

import (
	"context"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/glowshop/supportchat/internal/content"
	"github.com/glowshop/supportchat/internal/draft"
	"github.com/glowshop/supportchat/internal/errors"
	"github.com/glowshop/supportchat/internal/prefetch"
)

// State is the lifecycle state of a chat session.
type State string

const (
	// StateIdle is the state before the first Open.
	StateIdle State = "idle"

	// StateConnecting means the transport dial is in progress.
	StateConnecting State = "connecting"

	// StateHistoryPending means the transport is up and the session is
	// waiting for the one-time history snapshot.
	StateHistoryPending State = "history_pending"

	// StateLive means history has been applied and incremental messages
	// are being appended.
	StateLive State = "live"

	// StateClosed is terminal for the current connection. A new Open
	// starts a fresh generation.
	StateClosed State = "closed"
)

// Conn is the subset of a WebSocket connection the session uses.
// Satisfied by *websocket.Conn.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Dialer establishes chat connections. The production implementation wraps
// gorilla/websocket; tests inject fakes.
type Dialer interface {
	Dial(ctx context.Context, url string, header http.Header) (Conn, error)
}

// WebsocketDialer dials over gorilla/websocket.
type WebsocketDialer struct {
	// Dialer is the underlying dialer. If nil, websocket.DefaultDialer
	// is used.
	Dialer *websocket.Dialer
}

// Dial connects to the chat endpoint.
func (d *WebsocketDialer) Dial(ctx context.Context, url string, header http.Header) (Conn, error) {
	wd := d.Dialer
	if wd == nil {
		wd = websocket.DefaultDialer
	}
	conn, _, err := wd.DialContext(ctx, url, header)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// Handlers receives session notifications. All fields are optional.
// Handlers are invoked from the session's internal goroutines without the
// session lock held; implementations that touch shared UI state must do
// their own synchronization (or, as with Bubble Tea, forward into a program
// queue).
type Handlers struct {
	// OnStateChange fires on every state transition.
	OnStateChange func(state State)

	// OnHistory fires once per session when the history snapshot is
	// applied, with the full message list and the session user.
	OnHistory func(messages []Message, user SessionUser)

	// OnMessage fires for every incremental message appended while Live.
	OnMessage func(msg Message)

	// OnOwnMessage fires after OnMessage when the appended message belongs
	// to the session user. Used to schedule a scroll-to-bottom; it is
	// called on its own goroutine and must not block session processing.
	OnOwnMessage func(msg Message)

	// OnError fires for transport failures and server-side rejections.
	// These are transient notifications; the message list is left as-is.
	OnError func(err error)

	// OnLoadingChange fires when the loading overlay visibility changes.
	OnLoadingChange func(visible bool)
}

// Options configures a Session.
type Options struct {
	// BaseURL is the server origin with a ws or wss scheme,
	// e.g. "wss://shop.example.com".
	BaseURL string

	// CSRFToken, when non-empty, is sent as the X-CSRFToken header on
	// dial, matching the cookie the REST client holds.
	CSRFToken string

	// Header carries extra headers for the dial, e.g. session cookies.
	Header http.Header

	// Dialer establishes connections. If nil, a WebsocketDialer is used.
	Dialer Dialer

	// Drafts, when non-nil, is cleared for the chat id after every
	// successful send.
	Drafts draft.Store

	// Fetcher performs image prefetches. If nil, an HTTPFetcher is used.
	Fetcher prefetch.Fetcher

	// HideDelay overrides the loading overlay hide delay. Zero means
	// the default.
	HideDelay time.Duration

	Handlers Handlers
}

// Session maintains at most one live connection to one chat at a time.
//
// Every async effect (read-loop delivery, image settlement, loading
// transitions) is tagged with the generation it belongs to; the tag is
// checked under the session lock before any mutation is applied, so a late
// callback from an abandoned connection can never touch the state of a
// newer one.
type Session struct {
	opts Options

	mu      sync.Mutex
	gen     uint64
	state   State
	chatID  string
	conn    Conn
	msgs    []Message
	user    SessionUser
	hasUser bool
	history bool

	coord *prefetch.Coordinator
	agg   *prefetch.Aggregator
}

// NewSession creates an idle session.
func NewSession(opts Options) *Session {
	if opts.Dialer == nil {
		opts.Dialer = &WebsocketDialer{}
	}
	if opts.Fetcher == nil {
		opts.Fetcher = &prefetch.HTTPFetcher{}
	}
	return &Session{opts: opts, state: StateIdle}
}

// endpointURL builds the socket URL for a chat id.
func endpointURL(baseURL, chatID string) string {
	return strings.TrimRight(baseURL, "/") + "/ws/support/chat/" + chatID + "/"
}

// Open connects the session to the given chat. Any previous connection is
// closed first; its in-flight effects are discarded. Open resets the
// message list, the image sets, and the session user, and marks history as
// loading until the snapshot arrives.
func (s *Session) Open(ctx context.Context, chatID string) error {
	if chatID == "" {
		return errors.EmptyChatID()
	}

	s.mu.Lock()
	s.closeLocked()

	s.gen++
	gen := s.gen
	s.chatID = chatID
	s.msgs = nil
	s.user = SessionUser{}
	s.hasUser = false
	s.history = false
	s.coord = prefetch.NewCoordinator(s.opts.Fetcher, func(settled bool) {
		s.applyImagesSettled(gen, settled)
	})
	s.agg = prefetch.NewAggregator(s.opts.HideDelay, func(visible bool) {
		s.notifyLoading(gen, visible)
	})
	agg := s.agg
	s.setStateLocked(StateConnecting)
	s.mu.Unlock()

	agg.SetHistoryLoading(true)

	header := http.Header{}
	for k, vals := range s.opts.Header {
		for _, v := range vals {
			header.Add(k, v)
		}
	}
	if s.opts.CSRFToken != "" {
		header.Set("X-CSRFToken", s.opts.CSRFToken)
	}

	conn, err := s.opts.Dialer.Dial(ctx, endpointURL(s.opts.BaseURL, chatID), header)

	s.mu.Lock()
	if s.gen != gen {
		// A newer Open or Close superseded this dial.
		s.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		return nil
	}
	if err != nil {
		s.closeLocked()
		s.mu.Unlock()
		return errors.DialFailed(chatID, err)
	}
	s.conn = conn
	s.setStateLocked(StateHistoryPending)
	s.mu.Unlock()

	go s.readLoop(gen, conn)
	return nil
}

// Send transmits message text over the live connection. Whitespace-only
// text is rejected locally; the literal text is sent otherwise. The message
// is not appended locally: the server's broadcast echoes it back through
// the incremental path. On success the stored draft for the chat is
// cleared.
func (s *Session) Send(text string) error {
	if strings.TrimSpace(text) == "" {
		return errors.EmptyMessage()
	}

	frame, err := NewSendEvent(text)
	if err != nil {
		return errors.SendFailed(err)
	}

	s.mu.Lock()
	if s.state != StateLive && s.state != StateHistoryPending {
		s.mu.Unlock()
		return errors.NotLive()
	}
	conn := s.conn
	chatID := s.chatID

	// The write happens under the lock: gorilla connections do not allow
	// concurrent writers, and the session has no other write path.
	err = conn.WriteMessage(websocket.TextMessage, frame)
	s.mu.Unlock()

	if err != nil {
		return errors.SendFailed(err)
	}

	if s.opts.Drafts != nil {
		if err := s.opts.Drafts.Clear(chatID); err != nil {
			log.Printf("chat: clearing draft for chat %s failed: %v", chatID, err)
		}
	}
	return nil
}

// Close terminates the current connection. Idempotent. The message list
// stays readable (stale but consistent) until the next Open.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeLocked()
}

// closeLocked tears down the current connection and invalidates the
// generation so any late callback from it is discarded.
func (s *Session) closeLocked() {
	if s.state == StateIdle || s.state == StateClosed {
		return
	}
	s.gen++
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	if s.coord != nil {
		s.coord.Close()
	}
	if s.agg != nil {
		s.agg.Stop()
	}
	s.setStateLocked(StateClosed)
}

// State returns the current session state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ChatID returns the id of the chat this session is (or was last) open for.
func (s *Session) ChatID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chatID
}

// Messages returns a snapshot of the message list.
func (s *Session) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Message(nil), s.msgs...)
}

// User returns the session user and whether the history snapshot has
// delivered one yet.
func (s *Session) User() (SessionUser, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user, s.hasUser
}

// Loading reports whether the loading overlay should be visible.
func (s *Session) Loading() bool {
	s.mu.Lock()
	agg := s.agg
	s.mu.Unlock()
	if agg == nil {
		return false
	}
	return agg.Visible()
}

// readLoop pumps inbound frames for one connection generation.
func (s *Session) readLoop(gen uint64, conn Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			s.handleDisconnect(gen, err)
			return
		}

		ev, err := DecodeEvent(data)
		if err != nil {
			log.Printf("chat: ignoring malformed event: %v", err)
			continue
		}

		switch ev.Type {
		case EventTypeHistory:
			s.applyHistory(gen, ev)
		case EventTypeMessage:
			s.applyMessage(gen, ev)
		case EventTypeError:
			s.applyServerError(gen, ev)
		default:
			log.Printf("chat: ignoring event with unknown type %q", ev.Type)
		}
	}
}

// applyHistory installs the one-time message snapshot. A repeat snapshot in
// the same generation is a protocol violation: logged and ignored, state
// untouched.
func (s *Session) applyHistory(gen uint64, ev *Event) {
	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return
	}
	if s.history {
		s.mu.Unlock()
		log.Printf("chat: duplicate history snapshot for chat %s ignored", s.chatID)
		return
	}

	s.history = true
	s.msgs = append([]Message(nil), ev.Messages...)
	if ev.User != nil {
		s.user = *ev.User
		s.hasUser = true
	}
	s.setStateLocked(StateLive)

	var images []string
	for _, m := range s.msgs {
		images = append(images, content.Parse(m.Content).Images...)
	}
	msgs := append([]Message(nil), s.msgs...)
	user := s.user
	coord := s.coord
	agg := s.agg
	s.mu.Unlock()

	coord.Observe(images)
	agg.SetHistoryLoading(false)

	if s.opts.Handlers.OnHistory != nil {
		s.opts.Handlers.OnHistory(msgs, user)
	}
}

// applyMessage appends one incremental message. Incremental events are only
// valid while Live; anything earlier is a protocol violation and is
// dropped.
func (s *Session) applyMessage(gen uint64, ev *Event) {
	msg, err := ev.ChatMessage()
	if err != nil {
		log.Printf("chat: ignoring malformed chat message: %v", err)
		return
	}

	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return
	}
	if s.state != StateLive {
		s.mu.Unlock()
		log.Printf("chat: dropping message received in state %s", s.state)
		return
	}

	s.msgs = append(s.msgs, *msg)
	own := s.hasUser && msg.UserID == s.user.UserID
	coord := s.coord
	s.mu.Unlock()

	coord.Observe(content.Parse(msg.Content).Images)

	if s.opts.Handlers.OnMessage != nil {
		s.opts.Handlers.OnMessage(*msg)
	}
	if own && s.opts.Handlers.OnOwnMessage != nil {
		// Scroll scheduling must not block the read loop.
		go s.opts.Handlers.OnOwnMessage(*msg)
	}
}

// applyServerError surfaces a server-side rejection (inactive chat, rate
// limit) as a transient notification.
func (s *Session) applyServerError(gen uint64, ev *Event) {
	text, err := ev.ErrorText()
	if err != nil {
		log.Printf("chat: ignoring malformed error event: %v", err)
		return
	}

	s.mu.Lock()
	stale := s.gen != gen
	s.mu.Unlock()
	if stale {
		return
	}

	log.Printf("chat: server error: %s", text)
	if s.opts.Handlers.OnError != nil {
		s.opts.Handlers.OnError(errors.ServerError(text))
	}
}

// handleDisconnect reacts to a read failure on the connection for gen.
// Expected when Close tore the connection down; a genuine transport loss
// surfaces through OnError.
func (s *Session) handleDisconnect(gen uint64, cause error) {
	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return
	}
	chatID := s.chatID
	s.closeLocked()
	s.mu.Unlock()

	log.Printf("chat: connection to chat %s lost: %v", chatID, cause)
	if s.opts.Handlers.OnError != nil {
		s.opts.Handlers.OnError(errors.ConnectionLost(chatID, cause))
	}
}

// applyImagesSettled forwards coordinator settlement into the aggregator,
// discarding reports from stale generations.
func (s *Session) applyImagesSettled(gen uint64, settled bool) {
	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return
	}
	agg := s.agg
	s.mu.Unlock()

	agg.SetImagesSettled(settled)
}

// notifyLoading forwards overlay visibility changes, discarding reports
// from stale generations.
func (s *Session) notifyLoading(gen uint64, visible bool) {
	s.mu.Lock()
	stale := s.gen != gen
	s.mu.Unlock()
	if stale {
		return
	}

	if s.opts.Handlers.OnLoadingChange != nil {
		s.opts.Handlers.OnLoadingChange(visible)
	}
}

// setStateLocked transitions the state and schedules the notification.
// Callers hold s.mu; the handler runs on its own goroutine so it can call
// back into the session.
func (s *Session) setStateLocked(next State) {
	if s.state == next {
		return
	}
	s.state = next
	if s.opts.Handlers.OnStateChange != nil {
		go s.opts.Handlers.OnStateChange(next)
	}
}
