// Package chat runs question-and-answer conversations with the backend.
package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hafarna03aja-droid/khutbah-jumat/internal/failure"
	"github.com/hafarna03aja-droid/khutbah-jumat/internal/llm"
	"github.com/hafarna03aja-droid/khutbah-jumat/internal/observability"
	"github.com/hafarna03aja-droid/khutbah-jumat/internal/prompts"
)

var (
	// ErrNotFound is returned for an unknown conversation id.
	ErrNotFound = errors.New("chat: conversation not found")
	// ErrBusy is returned while the conversation waits for a reply.
	ErrBusy = errors.New("chat: reply in progress")
)

// Sender values.
const (
	SenderUser = "user"
	SenderBot  = "bot"
)

// Message is one line of the visible transcript.
type Message struct {
	Sender string `json:"sender"`
	Text   string `json:"text"`
}

type conversation struct {
	id       string
	backend  llm.Conversation
	created  time.Time
	mu       sync.Mutex
	busy     bool
	messages []Message
}

func (c *conversation) snapshot() []Message {
	return append([]Message(nil), c.messages...)
}

// Manager owns the open conversations.
type Manager struct {
	starter llm.ChatStarter
	catalog *prompts.Catalog
	limit   int
	logger  zerolog.Logger

	mu    sync.Mutex
	convs map[string]*conversation
	order []string
}

// NewManager creates a manager keeping at most limit conversations; the
// oldest is forgotten when a new one would exceed it.
func NewManager(starter llm.ChatStarter, catalog *prompts.Catalog, limit int) *Manager {
	if limit < 1 {
		limit = 256
	}
	return &Manager{
		starter: starter,
		catalog: catalog,
		limit:   limit,
		logger:  observability.WithComponent("chat"),
		convs:   make(map[string]*conversation),
	}
}

// Start opens a conversation greeted by the bot.
func (m *Manager) Start(ctx context.Context) (string, []Message, error) {
	backend, err := m.starter.StartChat(ctx, m.catalog.Chat.SystemInstruction)
	if err != nil {
		m.logger.Error().Err(err).Msg("Failed to start chat")
		return "", nil, failure.New(failure.ErrBackendRequest, "chat.start", failure.MsgChatFailed, err)
	}

	c := &conversation{
		id:      uuid.New().String(),
		backend: backend,
		created: time.Now(),
	}
	if g := m.catalog.Chat.Greeting; g != "" {
		c.messages = append(c.messages, Message{Sender: SenderBot, Text: g})
	}

	m.mu.Lock()
	m.convs[c.id] = c
	m.order = append(m.order, c.id)
	for len(m.order) > m.limit {
		delete(m.convs, m.order[0])
		m.order = m.order[1:]
	}
	m.mu.Unlock()

	return c.id, c.snapshot(), nil
}

// Messages returns the transcript of conversation id.
func (m *Manager) Messages(id string) ([]Message, error) {
	c, err := m.get(id)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot(), nil
}

// Send posts text and waits for the reply. A backend failure does not fail
// the call: the bot answers with an apology and the transcript is returned.
func (m *Manager) Send(ctx context.Context, id, text string) ([]Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, failure.New(failure.ErrValidation, "chat.send", "", errors.New("empty message"))
	}
	c, err := m.get(id)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if c.busy {
		c.mu.Unlock()
		return nil, ErrBusy
	}
	c.busy = true
	c.messages = append(c.messages, Message{Sender: SenderUser, Text: text})
	c.mu.Unlock()

	reply, err := c.backend.Send(ctx, text)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.busy = false
	if err != nil {
		m.logger.Error().Err(err).Str("conversation_id", id).Msg("Chat reply failed")
		observability.RecordError("backend_request", "chat")
		reply = failure.MsgChatFailed
	}
	c.messages = append(c.messages, Message{Sender: SenderBot, Text: reply})
	return c.snapshot(), nil
}

func (m *Manager) get(id string) (*conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.convs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return c, nil
}
