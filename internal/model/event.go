package model

import (
	"time"
)

// ChatEventType classifies roster-level changes.
type ChatEventType string

const (
	ChatEventCreated  ChatEventType = "created"
	ChatEventAssigned ChatEventType = "assigned"
	ChatEventResolved ChatEventType = "resolved"
	ChatEventMessage  ChatEventType = "message"
)

// ChatEvent notifies agent consoles that a chat changed and the roster
// should be refreshed.
type ChatEvent struct {
	ChatID    string        `json:"chat_id"`
	Type      ChatEventType `json:"type"`
	AgentID   string        `json:"agent_id,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
}
