// Package store defines the gateway contracts the conversation core
// consumes. Implementations live in subpackages; tests substitute
// in-memory fakes.
package store

import (
	"context"

	"github.com/helplane/support-widget/internal/model"
)

// MessageStore is typed access to the append-only chat messages table.
type MessageStore interface {
	// CreateMessage persists a message and returns the stored row,
	// including the server-assigned creation timestamp.
	CreateMessage(ctx context.Context, msg model.Message) (model.Message, error)

	// ListMessages returns all messages of a chat ordered by creation
	// time ascending. An empty chat yields an empty slice, not an error.
	ListMessages(ctx context.Context, chatID string) ([]model.Message, error)

	// MarkMessagesRead flags all unread customer messages of a chat as read.
	MarkMessagesRead(ctx context.Context, chatID string) error
}

// PresetStore is typed, read-only access to the preset tree.
type PresetStore interface {
	// ListChildren returns the active children of a node ordered by
	// order_index then creation time. A nil parentID selects the roots.
	// Fails soft: callers treat an error as an empty option set.
	ListChildren(ctx context.Context, parentID *string) ([]model.Preset, error)
}

// ChatStore is the chat roster used by the widget and the agent console.
type ChatStore interface {
	CreateChat(ctx context.Context, customerName, customerEmail string) (model.Chat, error)
	GetChat(ctx context.Context, chatID string) (model.Chat, error)

	// ListOpenChats returns pending/active chats, most recent activity
	// first, with unread counts and last messages. An empty agentID lists
	// every open chat; otherwise unassigned chats plus that agent's.
	ListOpenChats(ctx context.Context, agentID string) ([]model.ChatSummary, error)

	// AssignChat assigns an agent and moves the chat to active.
	AssignChat(ctx context.Context, chatID, agentID string) error

	// ResolveChat moves the chat to resolved.
	ResolveChat(ctx context.Context, chatID string) error

	// TouchChat bumps the chat's updated_at so roster ordering follows
	// message activity.
	TouchChat(ctx context.Context, chatID string) error
}

// BrandStore is read-only access to brand settings and quick links.
type BrandStore interface {
	// Settings returns the raw settings map. Missing keys are filled in
	// by the brand package defaults, not here.
	Settings(ctx context.Context) (model.BrandSettings, error)

	// QuickLinks returns the active quick links in display order.
	QuickLinks(ctx context.Context) ([]model.QuickLink, error)

	// ActiveAgents returns up to limit active agent profiles for the
	// widget header.
	ActiveAgents(ctx context.Context, limit int) ([]model.Profile, error)
}
