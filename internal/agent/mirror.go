// Package agent implements the agent-console side of a chat: roster
// management plus a transcript mirror that shares the widget's
// optimistic-echo reconciliation, without any preset-tree logic.
package agent

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/helplane/support-widget/internal/flow"
	"github.com/helplane/support-widget/internal/model"
	"github.com/helplane/support-widget/internal/store"
	"github.com/helplane/support-widget/pkg/logger"
)

// MessageGateway is the slice of the message service the mirror needs.
type MessageGateway interface {
	Create(ctx context.Context, msg model.Message) (model.Message, error)
	List(ctx context.Context, chatID string) ([]model.Message, error)
	MarkRead(ctx context.Context, chatID string) error
}

// Feed is the realtime channel as seen from the agent console.
type Feed interface {
	SubscribeMessages(ctx context.Context, chatID string, fn func(model.Message)) (func(), error)
	SubscribeChatEvents(ctx context.Context, fn func(model.ChatEvent)) (func(), error)
}

// EventPublisher announces roster changes to other consoles.
type EventPublisher interface {
	PublishChatEvent(ctx context.Context, event model.ChatEvent) error
}

// Mirror is one agent's view of the chat roster and the currently opened
// transcript.
type Mirror struct {
	chats     store.ChatStore
	messages  MessageGateway
	feed      Feed
	publisher EventPublisher
	logger    *logger.Logger

	mu          sync.Mutex
	agentID     string
	chatID      string
	msgs        []model.Message
	unsubscribe func()
}

// NewMirror creates a mirror for one agent.
func NewMirror(agentID string, chats store.ChatStore, messages MessageGateway, feed Feed, publisher EventPublisher, log *logger.Logger) *Mirror {
	return &Mirror{
		chats:     chats,
		messages:  messages,
		feed:      feed,
		publisher: publisher,
		logger:    log.WithAgent(agentID),
		agentID:   agentID,
	}
}

// ListChats returns the open roster for this agent: unassigned chats plus
// the agent's own, most recent activity first.
func (m *Mirror) ListChats(ctx context.Context) ([]model.ChatSummary, error) {
	return m.chats.ListOpenChats(ctx, m.agentID)
}

// Assign claims a chat for this agent and activates it.
func (m *Mirror) Assign(ctx context.Context, chatID string) error {
	if err := m.chats.AssignChat(ctx, chatID, m.agentID); err != nil {
		return fmt.Errorf("assign chat: %w", err)
	}
	m.publishEvent(ctx, chatID, model.ChatEventAssigned)
	return nil
}

// Resolve closes out a chat. The widget observes the resolved status and
// discards its cached chat id.
func (m *Mirror) Resolve(ctx context.Context, chatID string) error {
	if err := m.chats.ResolveChat(ctx, chatID); err != nil {
		return fmt.Errorf("resolve chat: %w", err)
	}
	m.publishEvent(ctx, chatID, model.ChatEventResolved)
	return nil
}

// Open loads a chat's transcript, marks its customer messages read, and
// subscribes to new messages. Opening a different chat releases the
// previous subscription first.
func (m *Mirror) Open(ctx context.Context, chatID string) error {
	m.mu.Lock()
	if m.chatID == chatID && m.unsubscribe != nil {
		m.mu.Unlock()
		return nil
	}
	unsub := m.unsubscribe
	m.unsubscribe = nil
	m.chatID = chatID
	m.mu.Unlock()
	if unsub != nil {
		unsub()
	}

	msgs, err := m.messages.List(ctx, chatID)
	if err != nil {
		return fmt.Errorf("load transcript: %w", err)
	}

	if err := m.messages.MarkRead(ctx, chatID); err != nil {
		m.logger.Warn("mark read failed", zap.String("chat_id", chatID), zap.Error(err))
	}

	unsubscribe, err := m.feed.SubscribeMessages(ctx, chatID, m.handleIncoming)
	if err != nil {
		m.logger.Warn("realtime subscription failed", zap.String("chat_id", chatID), zap.Error(err))
		unsubscribe = nil
	}

	m.mu.Lock()
	if m.chatID != chatID {
		m.mu.Unlock()
		if unsubscribe != nil {
			unsubscribe()
		}
		return nil
	}
	m.msgs = msgs
	m.unsubscribe = unsubscribe
	m.mu.Unlock()
	return nil
}

// Send persists an agent message with an optimistic local echo, deduped
// the same way the widget dedupes customer echoes.
func (m *Mirror) Send(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)

	m.mu.Lock()
	if text == "" || m.chatID == "" {
		m.mu.Unlock()
		return nil
	}
	chatID := m.chatID
	msg := model.NewTextMessage(chatID, model.SenderAgent, text)
	msg.SenderID = m.agentID
	m.msgs = append(m.msgs, msg.Optimistic())
	m.mu.Unlock()

	if _, err := m.messages.Create(ctx, msg); err != nil {
		// The echo stays visible; confirmation comes over the feed.
		m.logger.Warn("agent send failed", zap.String("chat_id", chatID), zap.Error(err))
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

// SendAttachment persists an agent attachment message. Attachments are
// uploaded out-of-band; the transcript only carries the resulting URL.
func (m *Mirror) SendAttachment(ctx context.Context, kind model.MessageKind, att model.Attachment) error {
	m.mu.Lock()
	if m.chatID == "" {
		m.mu.Unlock()
		return nil
	}
	chatID := m.chatID
	msg := model.NewAttachmentMessage(chatID, model.SenderAgent, kind, att)
	msg.SenderID = m.agentID
	m.msgs = append(m.msgs, msg.Optimistic())
	m.mu.Unlock()

	if _, err := m.messages.Create(ctx, msg); err != nil {
		m.logger.Warn("agent attachment send failed", zap.String("chat_id", chatID), zap.Error(err))
		return fmt.Errorf("send attachment: %w", err)
	}
	return nil
}

// Messages returns the mirrored transcript.
func (m *Mirror) Messages() []model.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.Message(nil), m.msgs...)
}

// WatchRoster subscribes to roster change events for all chats.
func (m *Mirror) WatchRoster(ctx context.Context, fn func(model.ChatEvent)) (func(), error) {
	return m.feed.SubscribeChatEvents(ctx, fn)
}

// Close releases the transcript subscription.
func (m *Mirror) Close() {
	m.mu.Lock()
	unsub := m.unsubscribe
	m.unsubscribe = nil
	m.chatID = ""
	m.msgs = nil
	m.mu.Unlock()
	if unsub != nil {
		unsub()
	}
}

func (m *Mirror) handleIncoming(msg model.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if msg.ChatID != m.chatID {
		return
	}
	m.msgs = flow.Reconcile(m.msgs, msg)
}

func (m *Mirror) publishEvent(ctx context.Context, chatID string, kind model.ChatEventType) {
	err := m.publisher.PublishChatEvent(ctx, model.ChatEvent{
		ChatID:    chatID,
		Type:      kind,
		AgentID:   m.agentID,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		m.logger.Warn("publish roster event failed", zap.String("chat_id", chatID), zap.Error(err))
	}
}
