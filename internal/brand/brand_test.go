package brand

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/helplane/support-widget/internal/model"
	"github.com/helplane/support-widget/pkg/logger"
)

type fakeBrandStore struct {
	settings model.BrandSettings
	err      error
}

func (f *fakeBrandStore) Settings(ctx context.Context) (model.BrandSettings, error) {
	return f.settings, f.err
}

func (f *fakeBrandStore) QuickLinks(ctx context.Context) ([]model.QuickLink, error) {
	return nil, f.err
}

func (f *fakeBrandStore) ActiveAgents(ctx context.Context, limit int) ([]model.Profile, error) {
	return nil, f.err
}

func newTestProvider(s *fakeBrandStore) *Provider {
	return NewProvider(s, &logger.Logger{Logger: zap.NewNop()})
}

func TestSettingsMergesDefaults(t *testing.T) {
	p := newTestProvider(&fakeBrandStore{settings: model.BrandSettings{
		model.SettingBrandName: "Acme Support",
	}})

	settings := p.Settings(context.Background())

	assert.Equal(t, "Acme Support", settings[model.SettingBrandName])
	assert.NotEmpty(t, settings[model.SettingAutoReplyText], "unconfigured keys fall back to defaults")
}

func TestSettingsIgnoresEmptyValues(t *testing.T) {
	p := newTestProvider(&fakeBrandStore{settings: model.BrandSettings{
		model.SettingAutoReplyText: "",
	}})

	settings := p.Settings(context.Background())

	assert.Equal(t, defaults[model.SettingAutoReplyText], settings[model.SettingAutoReplyText])
}

func TestSettingsLookupFailureFallsBackToDefaults(t *testing.T) {
	p := newTestProvider(&fakeBrandStore{err: errors.New("storage down")})

	settings := p.Settings(context.Background())

	require.NotEmpty(t, settings)
	assert.Equal(t, defaults[model.SettingBrandName], settings[model.SettingBrandName])
}

func TestAutoReplyTextConfigured(t *testing.T) {
	p := newTestProvider(&fakeBrandStore{settings: model.BrandSettings{
		model.SettingAutoReplyText: "We reply within the hour.",
	}})

	assert.Equal(t, "We reply within the hour.", p.AutoReplyText(context.Background()))
}

func TestHandoffTextDefault(t *testing.T) {
	p := newTestProvider(&fakeBrandStore{})

	assert.Equal(t, defaults[model.SettingChatToAgentText], p.HandoffText(context.Background()))
}
