package supabase

import (
	"context"
	"fmt"

	"github.com/supabase-community/postgrest-go"
	"go.uber.org/zap"

	"github.com/helplane/support-widget/internal/model"
	"github.com/helplane/support-widget/internal/store"
)

// messageRow mirrors the messages table. The attachment variant is stored
// in the metadata jsonb column.
type messageRow struct {
	ID         string            `json:"id,omitempty"`
	ChatID     string            `json:"chat_id"`
	SenderType model.SenderType  `json:"sender_type"`
	SenderID   *string           `json:"sender_id,omitempty"`
	Content    string            `json:"content,omitempty"`
	Kind       model.MessageKind `json:"message_type"`
	Metadata   *model.Attachment `json:"metadata,omitempty"`
	IsRead     bool              `json:"is_read"`
	CreatedAt  string            `json:"created_at,omitempty"`
}

func (r messageRow) toModel() model.Message {
	msg := model.Message{
		ID:         r.ID,
		ChatID:     r.ChatID,
		SenderType: r.SenderType,
		Content:    r.Content,
		Kind:       r.Kind,
		Attachment: r.Metadata,
		IsRead:     r.IsRead,
		CreatedAt:  parseTimestamp(r.CreatedAt),
	}
	if r.SenderID != nil {
		msg.SenderID = *r.SenderID
	}
	return msg
}

// CreateMessage persists a message and returns the stored row.
func (c *Client) CreateMessage(ctx context.Context, msg model.Message) (model.Message, error) {
	row := messageRow{
		ChatID:     msg.ChatID,
		SenderType: msg.SenderType,
		Content:    msg.Content,
		Kind:       msg.Kind,
		Metadata:   msg.Attachment,
	}
	if msg.SenderID != "" {
		row.SenderID = &msg.SenderID
	}

	var inserted []messageRow
	_, err := c.client.From("messages").
		Insert(row, false, "", "representation", "").
		ExecuteTo(&inserted)
	if err != nil {
		return model.Message{}, fmt.Errorf("%w: insert message: %v", store.ErrPersistence, err)
	}
	if len(inserted) == 0 {
		return model.Message{}, fmt.Errorf("%w: insert message returned no row", store.ErrPersistence)
	}

	return inserted[0].toModel(), nil
}

// ListMessages returns a chat's messages ordered by creation time ascending.
func (c *Client) ListMessages(ctx context.Context, chatID string) ([]model.Message, error) {
	var rows []messageRow
	_, err := c.client.From("messages").
		Select("*", "", false).
		Eq("chat_id", chatID).
		Order("created_at", &postgrest.OrderOpts{Ascending: true}).
		ExecuteTo(&rows)
	if err != nil {
		return nil, fmt.Errorf("%w: list messages: %v", store.ErrPersistence, err)
	}

	msgs := make([]model.Message, 0, len(rows))
	for _, r := range rows {
		msgs = append(msgs, r.toModel())
	}
	return msgs, nil
}

// MarkMessagesRead flags all unread customer messages of a chat as read.
func (c *Client) MarkMessagesRead(ctx context.Context, chatID string) error {
	_, _, err := c.client.From("messages").
		Update(map[string]any{"is_read": true}, "", "").
		Eq("chat_id", chatID).
		Eq("sender_type", string(model.SenderCustomer)).
		Eq("is_read", "false").
		Execute()
	if err != nil {
		c.logger.Warn("mark messages read failed",
			zap.String("chat_id", chatID), zap.Error(err))
		return fmt.Errorf("%w: mark read: %v", store.ErrPersistence, err)
	}
	return nil
}
