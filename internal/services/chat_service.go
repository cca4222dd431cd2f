package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/attribute"

	domain "github.com/muse-store/miniapp/internal/domain"
	"github.com/muse-store/miniapp/internal/platform/observability"
)

// ConciergeGreeting opens every chat log.
const ConciergeGreeting = "Hello, I am Muse. I can assist you with product details, styling advice, or any questions about our brand. How may I help you today?"

const maxChatMessageLength = 2000

// ConciergeChatDeps wires the chat collaborator.
type ConciergeChatDeps struct {
	Model       ChatModel
	Clock       func() time.Time
	IDGenerator func() string
	Logger      Logger
}

// ConciergeChat keeps one session's chat log. At most one message awaits a reply at a time and
// the user's message stays in the log even when the model fails.
type ConciergeChat struct {
	model  ChatModel
	now    func() time.Time
	newID  func() string
	logger Logger

	mu       sync.Mutex
	messages []domain.ChatMessage
	busy     bool
}

// NewConciergeChat starts a log holding the greeting.
func NewConciergeChat(deps ConciergeChatDeps) *ConciergeChat {
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	logger := deps.Logger
	if logger == nil {
		logger = noopLogger
	}
	c := &ConciergeChat{
		model:  deps.Model,
		now:    func() time.Time { return clock().UTC() },
		newID:  idGen,
		logger: logger,
	}
	c.messages = []domain.ChatMessage{{ID: c.newID(), Role: domain.ChatRoleModel, Text: ConciergeGreeting, CreatedAt: c.now()}}
	return c
}

// Messages returns a copy of the log.
func (c *ConciergeChat) Messages() []domain.ChatMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.ChatMessage(nil), c.messages...)
}

// Busy reports whether a reply is pending.
func (c *ConciergeChat) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.busy
}

// Send appends text as a user message and asks the model for a reply. The history passed to
// the model excludes the new message.
func (c *ConciergeChat) Send(ctx context.Context, text string) (domain.ChatMessage, error) {
	text = sanitizeText(text)
	if text == "" {
		return domain.ChatMessage{}, fmt.Errorf("%w: message is required", ErrValidationGuard)
	}
	if len([]rune(text)) > maxChatMessageLength {
		return domain.ChatMessage{}, fmt.Errorf("%w: message exceeds %d characters", ErrValidationGuard, maxChatMessageLength)
	}

	c.mu.Lock()
	if c.busy {
		c.mu.Unlock()
		return domain.ChatMessage{}, ErrChatBusy
	}
	history := append([]domain.ChatMessage(nil), c.messages...)
	c.messages = append(c.messages, domain.ChatMessage{ID: c.newID(), Role: domain.ChatRoleUser, Text: text, CreatedAt: c.now()})
	c.busy = true
	c.mu.Unlock()

	reply, err := c.ask(ctx, history, text)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.busy = false
	if err != nil {
		c.logger(ctx, "chat.reply.failed", map[string]any{"error": err.Error()})
		return domain.ChatMessage{}, err
	}
	msg := domain.ChatMessage{ID: c.newID(), Role: domain.ChatRoleModel, Text: reply, CreatedAt: c.now()}
	c.messages = append(c.messages, msg)
	return msg, nil
}

func (c *ConciergeChat) ask(ctx context.Context, history []domain.ChatMessage, text string) (string, error) {
	if c.model == nil {
		return "", ErrChatUnavailable
	}
	ctx, finish := observability.StartSpan(ctx, "chat.send", attribute.Int("chat.history_length", len(history)))
	reply, err := c.model.Send(ctx, history, text)
	if err == nil && reply == "" {
		err = fmt.Errorf("empty reply")
	}
	finish(err)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrChatUnavailable, err)
	}
	return reply, nil
}
