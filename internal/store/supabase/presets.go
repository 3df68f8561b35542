package supabase

import (
	"context"
	"fmt"

	"github.com/supabase-community/postgrest-go"

	"github.com/helplane/support-widget/internal/model"
	"github.com/helplane/support-widget/internal/store"
)

type presetRow struct {
	ID              string  `json:"id"`
	ParentID        *string `json:"parent_id"`
	ButtonLabel     string  `json:"button_label"`
	QuestionText    string  `json:"question_text,omitempty"`
	AnswerText      string  `json:"answer_text,omitempty"`
	OrderIndex      int     `json:"order_index"`
	IsActive        bool    `json:"is_active"`
	EscalateToAgent bool    `json:"escalate_to_agent"`
	CreatedAt       string  `json:"created_at"`
}

func (r presetRow) toModel() model.Preset {
	return model.Preset{
		ID:              r.ID,
		ParentID:        r.ParentID,
		ButtonLabel:     r.ButtonLabel,
		QuestionText:    r.QuestionText,
		AnswerText:      r.AnswerText,
		OrderIndex:      r.OrderIndex,
		IsActive:        r.IsActive,
		EscalateToAgent: r.EscalateToAgent,
		CreatedAt:       parseTimestamp(r.CreatedAt),
	}
}

// ListChildren returns the active children of a preset node, roots when
// parentID is nil, ordered by order_index then creation time.
func (c *Client) ListChildren(ctx context.Context, parentID *string) ([]model.Preset, error) {
	query := c.client.From("presets").
		Select("*", "", false).
		Eq("is_active", "true")

	if parentID == nil {
		query = query.Is("parent_id", "null")
	} else {
		query = query.Eq("parent_id", *parentID)
	}

	var rows []presetRow
	_, err := query.
		Order("order_index", &postgrest.OrderOpts{Ascending: true}).
		Order("created_at", &postgrest.OrderOpts{Ascending: true}).
		ExecuteTo(&rows)
	if err != nil {
		return nil, fmt.Errorf("%w: list presets: %v", store.ErrPersistence, err)
	}

	presets := make([]model.Preset, 0, len(rows))
	for _, r := range rows {
		presets = append(presets, r.toModel())
	}
	return presets, nil
}
