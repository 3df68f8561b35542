package model

import (
	"time"
)

// Brand setting keys consumed by the flow engine and the widget shell.
const (
	SettingBrandName       = "brand_name"
	SettingPrimaryColor    = "primary_color"
	SettingLogoURL         = "logo_url"
	SettingHomeGreeting    = "home_greeting"
	SettingHomeSubtext     = "home_subtext"
	SettingSendMessageText = "send_message_text"
	SettingChatToAgentText = "chat_to_agent_text"
	SettingAutoReplyText   = "auto_reply_message"
)

// BrandSettings is the merged settings map with defaults applied.
type BrandSettings map[string]string

// QuickLink is a configurable shortcut shown on the widget home tab.
type QuickLink struct {
	ID         string    `json:"id"`
	Label      string    `json:"label"`
	URL        string    `json:"url"`
	IconName   string    `json:"icon_name,omitempty"`
	OrderIndex int       `json:"order_index"`
	IsActive   bool      `json:"is_active"`
	CreatedAt  time.Time `json:"created_at"`
}
