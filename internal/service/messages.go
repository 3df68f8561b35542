// Package service composes the persistence gateways with the realtime
// feed: a message is first committed to storage, then announced on the
// feed so every open subscription sees it.
package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/helplane/support-widget/internal/model"
	"github.com/helplane/support-widget/internal/realtime"
	"github.com/helplane/support-widget/internal/store"
	"github.com/helplane/support-widget/pkg/logger"
	"github.com/helplane/support-widget/pkg/metrics"
)

// Messages handles message persistence and fan-out.
type Messages struct {
	store  store.MessageStore
	chats  store.ChatStore
	feed   *realtime.Feed
	logger *logger.Logger
}

// NewMessages creates the message service.
func NewMessages(msgStore store.MessageStore, chatStore store.ChatStore, feed *realtime.Feed, log *logger.Logger) *Messages {
	return &Messages{store: msgStore, chats: chatStore, feed: feed, logger: log}
}

// Create persists a message, bumps the chat's activity timestamp, and
// publishes the committed row to the realtime feed. The publish happens
// after the commit so subscribers only ever see authoritative records.
func (s *Messages) Create(ctx context.Context, msg model.Message) (model.Message, error) {
	stored, err := s.store.CreateMessage(ctx, msg)
	if err != nil {
		return model.Message{}, fmt.Errorf("create message: %w", err)
	}

	if err := s.chats.TouchChat(ctx, stored.ChatID); err != nil {
		s.logger.Warn("touch chat failed", zap.String("chat_id", stored.ChatID), zap.Error(err))
	}

	if err := s.feed.PublishMessage(ctx, stored); err != nil {
		// Subscribers miss this message until reload; the row itself is safe.
		s.logger.Error("publish message failed", zap.String("chat_id", stored.ChatID), zap.Error(err))
	}

	if err := s.feed.PublishChatEvent(ctx, model.ChatEvent{
		ChatID:    stored.ChatID,
		Type:      model.ChatEventMessage,
		CreatedAt: time.Now().UTC(),
	}); err != nil {
		s.logger.Warn("publish chat event failed", zap.String("chat_id", stored.ChatID), zap.Error(err))
	}

	metrics.MessagesTotal.WithLabelValues(string(stored.SenderType)).Inc()
	return stored, nil
}

// List returns a chat's messages ordered by creation time ascending.
func (s *Messages) List(ctx context.Context, chatID string) ([]model.Message, error) {
	return s.store.ListMessages(ctx, chatID)
}

// MarkRead flags unread customer messages as read.
func (s *Messages) MarkRead(ctx context.Context, chatID string) error {
	return s.store.MarkMessagesRead(ctx, chatID)
}
