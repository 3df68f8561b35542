// Package session provides the injected session-store capability: a small
// key-value cache holding the visitor's active chat id so a conversation
// survives page reloads. It is a convenience cache, not a source of truth;
// server-side chat status always wins.
package session

import (
	"context"
	"errors"
)

// Store is the session capability handed to the widget layer. Substituting
// an in-memory implementation in tests is the point of the interface.
type Store interface {
	// Get returns the cached value for a key, or "" if absent.
	Get(ctx context.Context, key string) (string, error)

	// Set stores a value under a key.
	Set(ctx context.Context, key, value string) error

	// Clear removes a key.
	Clear(ctx context.Context, key string) error

	// Close releases store resources.
	Close() error
}

var (
	// ErrInvalidDriver is returned for an unknown store driver.
	ErrInvalidDriver = errors.New("invalid session store driver")

	// ErrInvalidConfig is returned when a driver is missing required options.
	ErrInvalidConfig = errors.New("invalid session store config")
)
