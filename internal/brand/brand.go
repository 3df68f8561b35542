// Package brand resolves brand settings and the fixed bot texts consumed
// by the flow engine, falling back to built-in defaults when the lookup
// fails or a key is unconfigured.
package brand

import (
	"context"

	"go.uber.org/zap"

	"github.com/helplane/support-widget/internal/model"
	"github.com/helplane/support-widget/internal/store"
	"github.com/helplane/support-widget/pkg/logger"
)

// Built-in defaults used when a setting is absent or the settings lookup
// fails. Lookups in this package never surface errors to callers.
var defaults = model.BrandSettings{
	model.SettingBrandName:       "Helplane",
	model.SettingPrimaryColor:    "#1e3a8a",
	model.SettingLogoURL:         "",
	model.SettingHomeGreeting:    "Hi there 👋",
	model.SettingHomeSubtext:     "How can we help?",
	model.SettingSendMessageText: "Send us a message",
	model.SettingChatToAgentText: "Connecting you with a support agent. Please hold on.",
	model.SettingAutoReplyText:   "Thanks for your message! One of our representatives will get back to you shortly.",
}

// Provider reads brand configuration through the BrandStore gateway.
type Provider struct {
	store  store.BrandStore
	logger *logger.Logger
}

// NewProvider creates a brand provider.
func NewProvider(s store.BrandStore, log *logger.Logger) *Provider {
	return &Provider{store: s, logger: log}
}

// Settings returns the settings map with defaults filled in for any key
// the backend does not configure.
func (p *Provider) Settings(ctx context.Context) model.BrandSettings {
	merged := make(model.BrandSettings, len(defaults))
	for k, v := range defaults {
		merged[k] = v
	}

	configured, err := p.store.Settings(ctx)
	if err != nil {
		p.logger.Warn("brand settings lookup failed, using defaults", zap.Error(err))
		return merged
	}

	for k, v := range configured {
		if v != "" {
			merged[k] = v
		}
	}
	return merged
}

// setting returns one key with its default fallback.
func (p *Provider) setting(ctx context.Context, key string) string {
	configured, err := p.store.Settings(ctx)
	if err == nil {
		if v, ok := configured[key]; ok && v != "" {
			return v
		}
	} else {
		p.logger.Warn("brand setting lookup failed, using default",
			zap.String("key", key), zap.Error(err))
	}
	return defaults[key]
}

// QuickLinks returns the active quick links in display order.
func (p *Provider) QuickLinks(ctx context.Context) ([]model.QuickLink, error) {
	return p.store.QuickLinks(ctx)
}

// ActiveAgents returns up to limit active agent profiles.
func (p *Provider) ActiveAgents(ctx context.Context, limit int) ([]model.Profile, error) {
	return p.store.ActiveAgents(ctx, limit)
}

// AutoReplyText is the bot reply sent after a customer free-text message.
func (p *Provider) AutoReplyText(ctx context.Context) string {
	return p.setting(ctx, model.SettingAutoReplyText)
}

// HandoffText is the bot message sent when a preset escalates to an agent.
func (p *Provider) HandoffText(ctx context.Context) string {
	return p.setting(ctx, model.SettingChatToAgentText)
}
