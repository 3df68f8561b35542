package flow

import (
	"context"
	"sync"
)

// Registry manages one engine per chat for the HTTP layer. Engines are
// refcounted so concurrent handlers for the same chat share a single
// subscription, and torn down when the last holder releases.
type Registry struct {
	mu      sync.Mutex
	engines map[string]*entry
	factory func() *Engine
}

type entry struct {
	engine *Engine
	refs   int
}

// NewRegistry creates a registry; factory builds an unconfigured engine.
func NewRegistry(factory func() *Engine) *Registry {
	return &Registry{
		engines: make(map[string]*entry),
		factory: factory,
	}
}

// Acquire returns the engine for a chat, initializing it on first use.
func (r *Registry) Acquire(ctx context.Context, chatID string) (*Engine, error) {
	r.mu.Lock()
	ent, ok := r.engines[chatID]
	if !ok {
		ent = &entry{engine: r.factory()}
		r.engines[chatID] = ent
	}
	ent.refs++
	r.mu.Unlock()

	if err := ent.engine.Initialize(ctx, chatID); err != nil {
		r.Release(chatID)
		return nil, err
	}
	return ent.engine, nil
}

// Release drops one reference; the last release tears the engine down.
func (r *Registry) Release(chatID string) {
	r.mu.Lock()
	ent, ok := r.engines[chatID]
	if !ok {
		r.mu.Unlock()
		return
	}
	ent.refs--
	done := ent.refs <= 0
	if done {
		delete(r.engines, chatID)
	}
	r.mu.Unlock()

	if done {
		ent.engine.Teardown()
	}
}

// Shutdown tears down every engine, releasing all subscriptions.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	entries := make([]*entry, 0, len(r.engines))
	for _, ent := range r.engines {
		entries = append(entries, ent)
	}
	r.engines = make(map[string]*entry)
	r.mu.Unlock()

	for _, ent := range entries {
		ent.engine.Teardown()
	}
}
