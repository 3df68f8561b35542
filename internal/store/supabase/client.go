// Package supabase implements the store gateways over a hosted Supabase
// project using the PostgREST query API.
package supabase

import (
	"fmt"

	"github.com/supabase-community/supabase-go"

	"github.com/helplane/support-widget/pkg/logger"
)

// Config holds Supabase connection configuration.
type Config struct {
	URL    string
	APIKey string
}

// Client implements the store interfaces against Supabase tables.
type Client struct {
	client *supabase.Client
	logger *logger.Logger
}

// New creates a new Supabase-backed store client.
func New(cfg Config, log *logger.Logger) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("supabase URL is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("supabase API key is required")
	}

	client, err := supabase.NewClient(cfg.URL, cfg.APIKey, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create supabase client: %w", err)
	}

	return &Client{client: client, logger: log}, nil
}
