package supabase

import (
	"context"
	"fmt"
	"time"

	"github.com/supabase-community/postgrest-go"
	"go.uber.org/zap"

	"github.com/helplane/support-widget/internal/model"
	"github.com/helplane/support-widget/internal/store"
)

type chatRow struct {
	ID              string           `json:"id,omitempty"`
	CustomerName    *string          `json:"customer_name,omitempty"`
	CustomerEmail   *string          `json:"customer_email,omitempty"`
	Status          model.ChatStatus `json:"status"`
	AssignedAgentID *string          `json:"assigned_agent_id,omitempty"`
	CreatedAt       string           `json:"created_at,omitempty"`
	UpdatedAt       string           `json:"updated_at,omitempty"`
}

func (r chatRow) toModel() model.Chat {
	chat := model.Chat{
		ID:        r.ID,
		Status:    r.Status,
		CreatedAt: parseTimestamp(r.CreatedAt),
		UpdatedAt: parseTimestamp(r.UpdatedAt),
	}
	if r.CustomerName != nil {
		chat.CustomerName = *r.CustomerName
	}
	if r.CustomerEmail != nil {
		chat.CustomerEmail = *r.CustomerEmail
	}
	if r.AssignedAgentID != nil {
		chat.AssignedAgentID = *r.AssignedAgentID
	}
	return chat
}

// CreateChat inserts a new pending chat.
func (c *Client) CreateChat(ctx context.Context, customerName, customerEmail string) (model.Chat, error) {
	row := chatRow{Status: model.StatusPending}
	if customerName != "" {
		row.CustomerName = &customerName
	}
	if customerEmail != "" {
		row.CustomerEmail = &customerEmail
	}

	var inserted []chatRow
	_, err := c.client.From("chats").
		Insert(row, false, "", "representation", "").
		ExecuteTo(&inserted)
	if err != nil {
		return model.Chat{}, fmt.Errorf("%w: create chat: %v", store.ErrPersistence, err)
	}
	if len(inserted) == 0 {
		return model.Chat{}, fmt.Errorf("%w: create chat returned no row", store.ErrPersistence)
	}

	return inserted[0].toModel(), nil
}

// GetChat fetches a chat by id.
func (c *Client) GetChat(ctx context.Context, chatID string) (model.Chat, error) {
	var rows []chatRow
	_, err := c.client.From("chats").
		Select("*", "", false).
		Eq("id", chatID).
		ExecuteTo(&rows)
	if err != nil {
		return model.Chat{}, fmt.Errorf("%w: get chat: %v", store.ErrPersistence, err)
	}
	if len(rows) == 0 {
		return model.Chat{}, store.ErrNotFound
	}

	return rows[0].toModel(), nil
}

// ListOpenChats returns pending/active chats ordered by latest activity,
// each with its unread customer-message count and last message.
func (c *Client) ListOpenChats(ctx context.Context, agentID string) ([]model.ChatSummary, error) {
	query := c.client.From("chats").
		Select("*", "", false).
		In("status", []string{string(model.StatusPending), string(model.StatusActive)})

	if agentID != "" {
		query = query.Or(fmt.Sprintf("assigned_agent_id.eq.%s,assigned_agent_id.is.null", agentID), "")
	}

	var rows []chatRow
	_, err := query.
		Order("updated_at", &postgrest.OrderOpts{Ascending: false}).
		ExecuteTo(&rows)
	if err != nil {
		return nil, fmt.Errorf("%w: list chats: %v", store.ErrPersistence, err)
	}

	summaries := make([]model.ChatSummary, 0, len(rows))
	for _, r := range rows {
		summary := model.ChatSummary{Chat: r.toModel()}

		_, count, err := c.client.From("messages").
			Select("id", "exact", true).
			Eq("chat_id", summary.ID).
			Eq("sender_type", string(model.SenderCustomer)).
			Eq("is_read", "false").
			Execute()
		if err != nil {
			c.logger.Warn("unread count query failed",
				zap.String("chat_id", summary.ID), zap.Error(err))
		} else {
			summary.UnreadCount = int(count)
		}

		var last []messageRow
		_, err = c.client.From("messages").
			Select("*", "", false).
			Eq("chat_id", summary.ID).
			Order("created_at", &postgrest.OrderOpts{Ascending: false}).
			Limit(1, "").
			ExecuteTo(&last)
		if err != nil {
			c.logger.Warn("last message query failed",
				zap.String("chat_id", summary.ID), zap.Error(err))
		} else if len(last) > 0 {
			msg := last[0].toModel()
			summary.LastMessage = &msg
		}

		summaries = append(summaries, summary)
	}

	return summaries, nil
}

// AssignChat assigns an agent and activates the chat.
func (c *Client) AssignChat(ctx context.Context, chatID, agentID string) error {
	_, _, err := c.client.From("chats").
		Update(map[string]any{
			"assigned_agent_id": agentID,
			"status":            string(model.StatusActive),
		}, "", "").
		Eq("id", chatID).
		Execute()
	if err != nil {
		return fmt.Errorf("%w: assign chat: %v", store.ErrPersistence, err)
	}
	return nil
}

// ResolveChat moves a chat to resolved.
func (c *Client) ResolveChat(ctx context.Context, chatID string) error {
	_, _, err := c.client.From("chats").
		Update(map[string]any{"status": string(model.StatusResolved)}, "", "").
		Eq("id", chatID).
		Execute()
	if err != nil {
		return fmt.Errorf("%w: resolve chat: %v", store.ErrPersistence, err)
	}
	return nil
}

// TouchChat bumps updated_at so roster ordering follows message activity.
func (c *Client) TouchChat(ctx context.Context, chatID string) error {
	_, _, err := c.client.From("chats").
		Update(map[string]any{"updated_at": time.Now().UTC().Format(time.RFC3339Nano)}, "", "").
		Eq("id", chatID).
		Execute()
	if err != nil {
		return fmt.Errorf("%w: touch chat: %v", store.ErrPersistence, err)
	}
	return nil
}
