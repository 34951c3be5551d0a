// This file implements the interactive chat view: a chat picker, the live
// message viewport, and the draft-backed input.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/glowshop/supportchat/internal/chat"
	"github.com/glowshop/supportchat/internal/chatlist"
	"github.com/glowshop/supportchat/internal/config"
	"github.com/glowshop/supportchat/internal/content"
	"github.com/glowshop/supportchat/internal/draft"
	"github.com/glowshop/supportchat/internal/errors"
)

// maxInputHeight caps how far the input grows with a long draft.
const maxInputHeight = 5

// runChat handles "supportchat chat [chat-id]".
func runChat(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("chat", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var flags commonFlags
	registerCommonFlags(fs, &flags)
	if err := fs.Parse(args); err != nil {
		return 1
	}

	chatID := ""
	if fs.NArg() > 0 {
		chatID = fs.Arg(0)
	}

	cfg, err := loadConfig(flags)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	// The TUI owns the terminal, so logs cannot go to stderr. Debug level
	// keeps them in a file; anything else drops them for the TUI's
	// lifetime.
	if cfg.LogLevel == "debug" {
		if f, err := tea.LogToFile("supportchat-debug.log", "debug"); err == nil {
			defer f.Close()
		}
	} else {
		log.SetOutput(io.Discard)
		defer log.SetOutput(os.Stderr)
	}

	drafts := openDraftStore(cfg)
	defer drafts.Close()

	listClient, err := chatlist.NewClient(cfg.APIBase(), nil)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	// The session's handlers forward into the program's message queue; the
	// program variable is assigned before Init runs the first command.
	var p *tea.Program
	session := chat.NewSession(chat.Options{
		BaseURL:   cfg.ServerURL,
		CSRFToken: listClient.CSRFToken(),
		Drafts:    drafts,
		HideDelay: cfg.HideDelay(),
		Handlers: chat.Handlers{
			OnHistory: func(msgs []chat.Message, user chat.SessionUser) {
				p.Send(historyMsg{messages: msgs, user: user})
			},
			OnMessage: func(msg chat.Message) {
				p.Send(inboundMsg{message: msg})
			},
			OnOwnMessage: func(msg chat.Message) {
				p.Send(ownScrollMsg{})
			},
			OnError: func(err error) {
				p.Send(noticeMsg{err: err})
			},
			OnLoadingChange: func(visible bool) {
				p.Send(loadingMsg{visible: visible})
			},
		},
	})
	defer session.Close()

	p = tea.NewProgram(newChatUI(cfg, session, listClient, drafts, chatID), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// openDraftStore opens the configured draft database, falling back to an
// in-memory store when the database cannot be opened. Drafts are a comfort
// feature; failing to persist them must not block chatting.
func openDraftStore(cfg *config.Config) draft.Store {
	path := cfg.DraftDB
	if path == "" {
		defaultPath, err := config.DefaultDraftDBPath()
		if err != nil {
			log.Printf("supportchat: no home directory, drafts will not persist: %v", err)
			return draft.NewMemoryStore()
		}
		path = defaultPath
	}

	store, err := draft.NewSQLiteStore(path)
	if err != nil {
		log.Printf("supportchat: opening draft store failed, drafts will not persist: %v", err)
		return draft.NewMemoryStore()
	}
	return store
}

// Messages forwarded from session handlers and commands.

type historyMsg struct {
	messages []chat.Message
	user     chat.SessionUser
}

type inboundMsg struct{ message chat.Message }

type ownScrollMsg struct{}

type loadingMsg struct{ visible bool }

type noticeMsg struct{ err error }

type chatsLoadedMsg struct{ chats []chatlist.Chat }

type openedMsg struct{ chatID string }

type clearNoticeMsg struct{}

// uiMode selects between the chat picker and the open chat view.
type uiMode int

const (
	modePicker uiMode = iota
	modeChat
)

var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	ownStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("86"))
	staffStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	systemStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("243")).Italic(true)
	imageStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Underline(true)
	noticeStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	loadingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("99"))
	cursorStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
)

type chatUI struct {
	cfg     *config.Config
	session *chat.Session
	list    *chatlist.Client
	drafts  draft.Store

	mode   uiMode
	chats  []chatlist.Chat
	cursor int

	chatID   string
	messages []chat.Message
	user     chat.SessionUser
	hasUser  bool
	loading  bool
	notice   string

	viewport viewport.Model
	input    textarea.Model
	spin     spinner.Model

	width  int
	height int
	ready  bool
}

func newChatUI(cfg *config.Config, session *chat.Session, list *chatlist.Client, drafts draft.Store, chatID string) *chatUI {
	ta := textarea.New()
	ta.Placeholder = "Type a message..."
	ta.CharLimit = 2000
	ta.SetHeight(1)
	ta.ShowLineNumbers = false
	// Enter sends; alt+enter inserts a newline.
	ta.KeyMap.InsertNewline.SetKeys("alt+enter")
	ta.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	mode := modePicker
	if chatID != "" {
		mode = modeChat
	}

	return &chatUI{
		cfg:     cfg,
		session: session,
		list:    list,
		drafts:  drafts,
		mode:    mode,
		chatID:  chatID,
		input:   ta,
		spin:    sp,
	}
}

func (m *chatUI) Init() tea.Cmd {
	cmds := []tea.Cmd{textarea.Blink, m.spin.Tick}
	if m.mode == modeChat {
		cmds = append(cmds, m.openChat(m.chatID))
	} else {
		cmds = append(cmds, m.fetchChats)
	}
	return tea.Batch(cmds...)
}

// fetchChats loads the chat list for the picker.
func (m *chatUI) fetchChats() tea.Msg {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	chats, err := m.list.List(ctx)
	if err != nil {
		return noticeMsg{err: err}
	}
	return chatsLoadedMsg{chats: chats}
}

// openChat connects the session to a chat and restores its draft. The view
// state is reset here, synchronously, before the session dials: on a fast
// connection the history snapshot can arrive (and render) before the open
// command's own completion message, and a reset in that handler would wipe
// the applied snapshot.
func (m *chatUI) openChat(chatID string) tea.Cmd {
	m.messages = nil
	m.hasUser = false
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		if err := m.session.Open(ctx, chatID); err != nil {
			return noticeMsg{err: err}
		}
		return openedMsg{chatID: chatID}
	}
}

// shouldReconnect reports whether a surfaced error should trigger an
// automatic re-open. Only connection loss qualifies; server rejections
// (inactive chat, rate limit) leave the connection up.
func (m *chatUI) shouldReconnect(err error) bool {
	return m.cfg.Reconnect &&
		m.mode == modeChat &&
		m.chatID != "" &&
		errors.IsCode(err, errors.CodeChatLost)
}

// reconnect re-opens the session with exponential backoff. A successful
// re-open replays history, which replaces the message list wholesale.
func (m *chatUI) reconnect(chatID string) tea.Cmd {
	policy := chat.ReconnectPolicy{
		MaxRetries: uint64(m.cfg.ReconnectMaxRetries),
	}
	return func() tea.Msg {
		if err := policy.Run(context.Background(), m.session, chatID); err != nil {
			return noticeMsg{err: err}
		}
		return openedMsg{chatID: chatID}
	}
}

func (m *chatUI) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.layout()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case chatsLoadedMsg:
		m.chats = msg.chats
		if m.cursor >= len(m.chats) {
			m.cursor = 0
		}
		return m, nil

	case openedMsg:
		m.chatID = msg.chatID
		m.input.SetValue(m.drafts.Get(msg.chatID))
		m.resizeInput()
		return m, nil

	case historyMsg:
		m.messages = msg.messages
		m.user = msg.user
		m.hasUser = true
		m.refreshViewport()
		m.viewport.GotoBottom()
		return m, nil

	case inboundMsg:
		m.messages = append(m.messages, msg.message)
		m.refreshViewport()
		return m, nil

	case ownScrollMsg:
		m.viewport.GotoBottom()
		return m, nil

	case loadingMsg:
		m.loading = msg.visible
		return m, nil

	case noticeMsg:
		m.notice = msg.err.Error()
		clearCmd := tea.Tick(4*time.Second, func(time.Time) tea.Msg { return clearNoticeMsg{} })
		if m.shouldReconnect(msg.err) {
			return m, tea.Batch(clearCmd, m.reconnect(m.chatID))
		}
		return m, clearCmd

	case clearNoticeMsg:
		m.notice = ""
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	}

	return m, m.updateComponents(msg)
}

func (m *chatUI) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC, tea.KeyEsc:
		if m.mode == modeChat {
			// Leaving the chat keeps the draft for next time.
			if m.chatID != "" {
				if err := m.drafts.Set(m.chatID, m.input.Value()); err != nil {
					log.Printf("supportchat: saving draft: %v", err)
				}
			}
			m.session.Close()
		}
		return m, tea.Quit
	}

	if m.mode == modePicker {
		switch msg.String() {
		case "q":
			return m, tea.Quit
		case "up", "k":
			if m.cursor > 0 {
				m.cursor--
			}
			return m, nil
		case "down", "j":
			if m.cursor < len(m.chats)-1 {
				m.cursor++
			}
			return m, nil
		case "enter":
			if len(m.chats) == 0 {
				return m, nil
			}
			selected := m.chats[m.cursor]
			m.mode = modeChat
			return m, m.openChat(strconv.FormatInt(selected.ID, 10))
		}
		return m, nil
	}

	if msg.Type == tea.KeyEnter {
		return m, m.sendCurrentInput()
	}

	return m, m.updateComponents(msg)
}

// sendCurrentInput sends the composed text and resets the input.
func (m *chatUI) sendCurrentInput() tea.Cmd {
	text := m.input.Value()
	if err := m.session.Send(text); err != nil {
		return func() tea.Msg { return noticeMsg{err: err} }
	}

	// Send succeeded: the session cleared the stored draft; reset the
	// input and collapse it back to its minimum height.
	m.input.Reset()
	m.input.SetHeight(1)
	return nil
}

// updateComponents forwards a message to the focused components and
// persists the draft when the input changed.
func (m *chatUI) updateComponents(msg tea.Msg) tea.Cmd {
	var inputCmd, vpCmd tea.Cmd

	before := m.input.Value()
	m.input, inputCmd = m.input.Update(msg)
	if m.mode == modeChat && m.chatID != "" && m.input.Value() != before {
		if err := m.drafts.Set(m.chatID, m.input.Value()); err != nil {
			log.Printf("supportchat: saving draft: %v", err)
		}
		m.resizeInput()
	}

	m.viewport, vpCmd = m.viewport.Update(msg)
	return tea.Batch(inputCmd, vpCmd)
}

// resizeInput grows the input with its content up to maxInputHeight.
func (m *chatUI) resizeInput() {
	h := m.input.LineCount()
	if h < 1 {
		h = 1
	}
	if h > maxInputHeight {
		h = maxInputHeight
	}
	m.input.SetHeight(h)
	m.layout()
}

// layout recomputes component dimensions after a resize.
func (m *chatUI) layout() {
	if m.width == 0 || m.height == 0 {
		return
	}
	footer := m.input.Height() + 3
	if !m.ready {
		m.viewport = viewport.New(m.width, m.height-footer)
		m.ready = true
	} else {
		m.viewport.Width = m.width
		m.viewport.Height = m.height - footer
	}
	m.input.SetWidth(m.width)
	m.refreshViewport()
}

// refreshViewport re-renders the message list into the viewport.
func (m *chatUI) refreshViewport() {
	if !m.ready {
		return
	}
	var lines []string
	for _, msg := range m.messages {
		lines = append(lines, m.formatMessage(msg)...)
	}
	m.viewport.SetContent(joinLines(lines))
	if m.viewport.AtBottom() {
		m.viewport.GotoBottom()
	}
}

// formatMessage renders one message as viewport lines: the text line with a
// sender prefix, then one line per extracted image URL.
func (m *chatUI) formatMessage(msg chat.Message) []string {
	parsed := content.Parse(msg.Content)

	who := msg.Username
	style := lipgloss.NewStyle()
	switch {
	case msg.IsSystem:
		who = "system"
		style = systemStyle
	case m.hasUser && msg.UserID == m.user.UserID:
		who = "you"
		style = ownStyle
	case msg.IsStaff:
		style = staffStyle
	}

	var lines []string
	if parsed.Text != "" || len(parsed.Images) == 0 {
		lines = append(lines, fmt.Sprintf("%s %s", style.Render(who+":"), parsed.Text))
	}
	for _, url := range parsed.Images {
		lines = append(lines, fmt.Sprintf("%s %s", style.Render(who+":"), imageStyle.Render("[image] "+url)))
	}
	return lines
}

func (m *chatUI) View() string {
	if !m.ready {
		return "\n  Starting..."
	}
	if m.mode == modePicker {
		return m.pickerView()
	}
	return m.chatView()
}

func (m *chatUI) pickerView() string {
	s := headerStyle.Render("Support chats") + "\n\n"
	if len(m.chats) == 0 {
		s += "  No chats yet.\n"
	}
	for i, c := range m.chats {
		marker := "  "
		line := fmt.Sprintf("%d  %s", c.ID, c.Topic)
		if !c.IsActive {
			line += "  (closed)"
		}
		if i == m.cursor {
			marker = cursorStyle.Render("> ")
			line = cursorStyle.Render(line)
		}
		s += marker + line + "\n"
	}
	if m.notice != "" {
		s += "\n" + noticeStyle.Render(m.notice) + "\n"
	}
	s += "\nenter: open  q/esc: quit\n"
	return s
}

func (m *chatUI) chatView() string {
	header := headerStyle.Render("chat "+m.chatID) + "  " + string(m.session.State())

	status := ""
	if m.loading {
		status = loadingStyle.Render(m.spin.View() + " loading...")
	}
	if m.notice != "" {
		if status != "" {
			status += "  "
		}
		status += noticeStyle.Render(m.notice)
	}

	return fmt.Sprintf("%s\n%s\n%s\n%s",
		header,
		m.viewport.View(),
		status,
		m.input.View(),
	)
}

func joinLines(lines []string) string {
	out := ""
	for i, l := range lines {
		if i > 0 {
			out += "\n"
		}
		out += l
	}
	return out
}
