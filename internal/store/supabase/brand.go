package supabase

import (
	"context"
	"fmt"

	"github.com/supabase-community/postgrest-go"

	"github.com/helplane/support-widget/internal/model"
	"github.com/helplane/support-widget/internal/store"
)

type settingRow struct {
	SettingKey   string `json:"setting_key"`
	SettingValue string `json:"setting_value"`
}

type quickLinkRow struct {
	ID         string `json:"id"`
	Label      string `json:"label"`
	URL        string `json:"url"`
	IconName   string `json:"icon_name,omitempty"`
	OrderIndex int    `json:"order_index"`
	IsActive   bool   `json:"is_active"`
	CreatedAt  string `json:"created_at"`
}

type profileRow struct {
	ID        string     `json:"id"`
	Email     string     `json:"email"`
	FullName  *string    `json:"full_name,omitempty"`
	Role      model.Role `json:"role"`
	AvatarURL *string    `json:"avatar_url,omitempty"`
	IsActive  bool       `json:"is_active"`
	CreatedAt string     `json:"created_at"`
	UpdatedAt string     `json:"updated_at"`
}

// Settings returns the raw brand settings map.
func (c *Client) Settings(ctx context.Context) (model.BrandSettings, error) {
	var rows []settingRow
	_, err := c.client.From("brand_settings").
		Select("setting_key, setting_value", "", false).
		ExecuteTo(&rows)
	if err != nil {
		return nil, fmt.Errorf("%w: brand settings: %v", store.ErrPersistence, err)
	}

	settings := make(model.BrandSettings, len(rows))
	for _, r := range rows {
		settings[r.SettingKey] = r.SettingValue
	}
	return settings, nil
}

// QuickLinks returns the active quick links in display order.
func (c *Client) QuickLinks(ctx context.Context) ([]model.QuickLink, error) {
	var rows []quickLinkRow
	_, err := c.client.From("quick_links").
		Select("*", "", false).
		Eq("is_active", "true").
		Order("order_index", &postgrest.OrderOpts{Ascending: true}).
		ExecuteTo(&rows)
	if err != nil {
		return nil, fmt.Errorf("%w: quick links: %v", store.ErrPersistence, err)
	}

	links := make([]model.QuickLink, 0, len(rows))
	for _, r := range rows {
		links = append(links, model.QuickLink{
			ID:         r.ID,
			Label:      r.Label,
			URL:        r.URL,
			IconName:   r.IconName,
			OrderIndex: r.OrderIndex,
			IsActive:   r.IsActive,
			CreatedAt:  parseTimestamp(r.CreatedAt),
		})
	}
	return links, nil
}

// ActiveAgents returns up to limit active agent profiles.
func (c *Client) ActiveAgents(ctx context.Context, limit int) ([]model.Profile, error) {
	if limit <= 0 {
		limit = 3
	}

	var rows []profileRow
	_, err := c.client.From("profiles").
		Select("id, email, full_name, role, avatar_url, is_active, created_at, updated_at", "", false).
		Eq("role", string(model.RoleAgent)).
		Eq("is_active", "true").
		Limit(limit, "").
		ExecuteTo(&rows)
	if err != nil {
		return nil, fmt.Errorf("%w: active agents: %v", store.ErrPersistence, err)
	}

	profiles := make([]model.Profile, 0, len(rows))
	for _, r := range rows {
		p := model.Profile{
			ID:        r.ID,
			Email:     r.Email,
			Role:      r.Role,
			IsActive:  r.IsActive,
			CreatedAt: parseTimestamp(r.CreatedAt),
			UpdatedAt: parseTimestamp(r.UpdatedAt),
		}
		if r.FullName != nil {
			p.FullName = *r.FullName
		}
		if r.AvatarURL != nil {
			p.AvatarURL = *r.AvatarURL
		}
		profiles = append(profiles, p)
	}
	return profiles, nil
}
