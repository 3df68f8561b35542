// Package navstate persists the customer's position in the preset tree,
// keyed by chat id, so navigation survives reloads. It is best-effort by
// contract: saves may be dropped and restores may come back empty, and the
// flow engine self-heals from the tree roots in either case.
package navstate

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/helplane/support-widget/internal/model"
	"github.com/helplane/support-widget/pkg/logger"
)

// Store saves and restores per-chat navigation state.
type Store interface {
	// Save persists the state. Failures are logged, never returned: the
	// record is a convenience cache, not required for correctness.
	Save(ctx context.Context, chatID string, state model.NavState)

	// Restore returns the persisted state, or nil when absent or
	// undecodable. Corrupt records are treated as absent.
	Restore(ctx context.Context, chatID string) *model.NavState
}

// NewMemory creates an in-process store, used in tests and single-node dev.
func NewMemory() Store {
	return &memoryStore{states: make(map[string]model.NavState)}
}

type memoryStore struct {
	mu     sync.RWMutex
	states map[string]model.NavState
}

func (s *memoryStore) Save(ctx context.Context, chatID string, state model.NavState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[chatID] = state
}

func (s *memoryStore) Restore(ctx context.Context, chatID string) *model.NavState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.states[chatID]
	if !ok {
		return nil
	}
	return &state
}

// NewRedis creates a Redis-backed store with per-key expiry.
func NewRedis(client *redis.Client, ttl time.Duration, log *logger.Logger) Store {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &redisStore{client: client, ttl: ttl, logger: log}
}

type redisStore struct {
	client *redis.Client
	ttl    time.Duration
	logger *logger.Logger
}

func key(chatID string) string {
	return "navstate:" + chatID
}

func (s *redisStore) Save(ctx context.Context, chatID string, state model.NavState) {
	data, err := json.Marshal(state)
	if err != nil {
		s.logger.Warn("navstate marshal failed", zap.String("chat_id", chatID), zap.Error(err))
		return
	}
	if err := s.client.Set(ctx, key(chatID), data, s.ttl).Err(); err != nil {
		s.logger.Warn("navstate save failed", zap.String("chat_id", chatID), zap.Error(err))
	}
}

func (s *redisStore) Restore(ctx context.Context, chatID string) *model.NavState {
	val, err := s.client.Get(ctx, key(chatID)).Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		s.logger.Warn("navstate restore failed", zap.String("chat_id", chatID), zap.Error(err))
		return nil
	}

	var state model.NavState
	if err := json.Unmarshal([]byte(val), &state); err != nil {
		// Corrupt record: treat as absent and let the engine start fresh.
		s.logger.Warn("navstate corrupt, discarding", zap.String("chat_id", chatID), zap.Error(err))
		_ = s.client.Del(ctx, key(chatID)).Err()
		return nil
	}

	return &state
}
