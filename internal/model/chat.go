// Package model defines data structures for the support widget.
package model

import (
	"time"
)

// ChatStatus is the lifecycle state of a chat.
type ChatStatus string

const (
	StatusPending  ChatStatus = "pending"
	StatusActive   ChatStatus = "active"
	StatusResolved ChatStatus = "resolved"
	StatusClosed   ChatStatus = "closed"
)

// Open reports whether the chat is still in a non-terminal state. A cached
// chat id is only reused while its chat is open.
func (s ChatStatus) Open() bool {
	return s == StatusPending || s == StatusActive
}

// Chat represents one customer support session.
type Chat struct {
	ID              string     `json:"id"`
	CustomerName    string     `json:"customer_name,omitempty"`
	CustomerEmail   string     `json:"customer_email,omitempty"`
	Status          ChatStatus `json:"status"`
	AssignedAgentID string     `json:"assigned_agent_id,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// ChatSummary is a roster entry for the agent console: the chat plus
// derived fields the roster view needs.
type ChatSummary struct {
	Chat
	UnreadCount int      `json:"unread_count"`
	LastMessage *Message `json:"last_message,omitempty"`
}

// StartChatRequest is the widget request to start (or resume) a chat.
type StartChatRequest struct {
	CustomerName  string `json:"customer_name,omitempty"`
	CustomerEmail string `json:"customer_email,omitempty"`
}

// StartChatResponse returns the active chat for the visitor session.
type StartChatResponse struct {
	Chat    Chat `json:"chat"`
	Resumed bool `json:"resumed"`
}
