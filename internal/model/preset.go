package model

import (
	"time"
)

// Preset is one node in the admin-configured conversation-flow tree.
// A nil ParentID marks a root node; the tree is a forest. Inactive nodes
// stay in storage but are excluded from customer-facing traversal.
type Preset struct {
	ID              string    `json:"id"`
	ParentID        *string   `json:"parent_id,omitempty"`
	ButtonLabel     string    `json:"button_label"`
	QuestionText    string    `json:"question_text,omitempty"`
	AnswerText      string    `json:"answer_text,omitempty"`
	OrderIndex      int       `json:"order_index"`
	IsActive        bool      `json:"is_active"`
	EscalateToAgent bool      `json:"escalate_to_agent"`
	CreatedAt       time.Time `json:"created_at"`
}
