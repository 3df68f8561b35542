// Package flow implements the conversation flow engine: the authoritative
// in-process view of one chat's messages and preset navigation. The engine
// applies customer actions optimistically, persists them through the
// gateways, and reconciles against the authoritative records arriving on
// the realtime feed.
package flow

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/helplane/support-widget/internal/model"
	"github.com/helplane/support-widget/internal/navstate"
	"github.com/helplane/support-widget/pkg/logger"
	"github.com/helplane/support-widget/pkg/metrics"
)

// MessageGateway is the slice of the message service the engine needs.
type MessageGateway interface {
	Create(ctx context.Context, msg model.Message) (model.Message, error)
	List(ctx context.Context, chatID string) ([]model.Message, error)
}

// PresetGateway is typed access to the preset tree.
type PresetGateway interface {
	ListChildren(ctx context.Context, parentID *string) ([]model.Preset, error)
}

// Subscriber opens per-chat realtime subscriptions.
type Subscriber interface {
	SubscribeMessages(ctx context.Context, chatID string, fn func(model.Message)) (func(), error)
}

// Options configures an engine.
type Options struct {
	Messages   MessageGateway
	Presets    PresetGateway
	Feed       Subscriber
	Nav        navstate.Store
	Texts      Texts
	ReplyDelay time.Duration
	Logger     *logger.Logger
}

// Engine owns the in-memory state for one active chat. All mutation goes
// through the mutex; realtime events arrive on feed goroutines.
type Engine struct {
	messages   MessageGateway
	presets    PresetGateway
	feed       Subscriber
	nav        navstate.Store
	texts      Texts
	replyDelay time.Duration
	logger     *logger.Logger

	mu          sync.Mutex
	chatID      string
	initialized bool
	msgs        []model.Message
	options     []model.Preset
	current     *string
	path        []model.PathEntry
	showPresets bool
	typing      bool
	replyTimer  *time.Timer
	unsubscribe func()

	watchers  map[int]chan Event
	nextWatch int
}

// New creates an engine. Initialize must be called before use.
func New(opts Options) *Engine {
	delay := opts.ReplyDelay
	if delay <= 0 {
		delay = DefaultReplyDelay
	}
	log := opts.Logger
	if log == nil {
		log = logger.Global()
	}
	return &Engine{
		messages:   opts.Messages,
		presets:    opts.Presets,
		feed:       opts.Feed,
		nav:        opts.Nav,
		texts:      opts.Texts,
		replyDelay: delay,
		logger:     log,
		watchers:   make(map[int]chan Event),
	}
}

// Initialize loads the chat's history and navigation state and opens the
// realtime subscription. Calling it again with the same chat id is a
// no-op; a different id tears down the previous subscription first.
func (e *Engine) Initialize(ctx context.Context, chatID string) error {
	e.mu.Lock()
	if e.initialized && e.chatID == chatID {
		e.mu.Unlock()
		return nil
	}
	wasInitialized := e.initialized
	unsub := e.detachLocked()
	e.chatID = chatID
	e.mu.Unlock()
	if unsub != nil {
		unsub()
	}

	msgs, err := e.messages.List(ctx, chatID)
	if err != nil {
		// Soft failure: start from an empty transcript, sends still work.
		e.logger.Warn("history load failed", zap.String("chat_id", chatID), zap.Error(err))
		msgs = nil
	}

	options, current, path, show, outcome := e.deriveNavigation(ctx, chatID)

	unsubscribe, err := e.feed.SubscribeMessages(ctx, chatID, e.handleIncoming)
	if err != nil {
		// Live updates degrade to reload-to-refresh; local state keeps working.
		e.logger.Warn("realtime subscription failed", zap.String("chat_id", chatID), zap.Error(err))
		unsubscribe = nil
	}

	e.mu.Lock()
	if e.chatID != chatID {
		e.mu.Unlock()
		if unsubscribe != nil {
			unsubscribe()
		}
		return nil
	}
	e.msgs = msgs
	e.options = options
	e.current = current
	e.path = path
	e.showPresets = show
	e.typing = false
	e.unsubscribe = unsubscribe
	e.initialized = true
	e.emitLocked(EventState, nil)
	e.mu.Unlock()

	if !wasInitialized {
		metrics.EnginesActive.Inc()
	}
	metrics.NavRestoresTotal.WithLabelValues(outcome).Inc()
	return nil
}

// deriveNavigation restores persisted navigation state, self-healing to
// the tree roots when the stored node no longer yields children.
func (e *Engine) deriveNavigation(ctx context.Context, chatID string) (options []model.Preset, current *string, path []model.PathEntry, show bool, outcome string) {
	state := e.nav.Restore(ctx, chatID)

	if state != nil {
		children := e.listChildren(ctx, state.CurrentPresetID)
		if len(children) > 0 {
			return children, state.CurrentPresetID, state.Path, state.ShowPresets, "restored"
		}
		if state.CurrentPresetID == nil {
			// Root genuinely has no presets: free-text-only chat.
			return nil, nil, nil, false, "restored"
		}
		// Stored node went stale (deleted or deactivated): fall back to root.
		outcome = "healed"
	} else {
		outcome = "fresh"
	}

	roots := e.listChildren(ctx, nil)
	show = len(roots) > 0
	fresh := model.RootNavState()
	fresh.ShowPresets = show
	e.nav.Save(ctx, chatID, fresh)
	return roots, nil, nil, show, outcome
}

// listChildren queries the preset gateway, degrading to an empty option
// set on error.
func (e *Engine) listChildren(ctx context.Context, parentID *string) []model.Preset {
	children, err := e.presets.ListChildren(ctx, parentID)
	if err != nil {
		e.logger.Warn("preset query failed", zap.Error(err))
		return nil
	}
	return children
}

// SendFreeText handles a customer free-text send: optimistic echo,
// persistence, and the auto-reply policy. Empty input or an uninitialized
// engine is a no-op.
func (e *Engine) SendFreeText(ctx context.Context, text string) {
	text = strings.TrimSpace(text)

	e.mu.Lock()
	if text == "" || e.chatID == "" {
		e.mu.Unlock()
		return
	}
	chatID := e.chatID

	persisted := model.NewTextMessage(chatID, model.SenderCustomer, text)
	e.msgs = append(e.msgs, persisted.Optimistic())
	e.scheduleAutoReplyLocked()
	e.emitLocked(EventState, nil)
	e.mu.Unlock()

	if _, err := e.messages.Create(ctx, persisted); err != nil {
		// The optimistic echo stays visible; the realtime channel is the
		// source of truth for confirmation, not this write response.
		e.logger.Warn("free text persist failed", zap.String("chat_id", chatID), zap.Error(err))
	}
}

// SelectPreset handles a preset button press: echo, breadcrumb, and either
// escalation, answer plus tree descent, or root fallback.
func (e *Engine) SelectPreset(ctx context.Context, preset model.Preset) {
	e.mu.Lock()
	if e.chatID == "" {
		e.mu.Unlock()
		return
	}
	chatID := e.chatID

	echo := model.NewPresetEcho(chatID, preset.ButtonLabel)
	e.msgs = append(e.msgs, echo.Optimistic())

	nextPath := append(append([]model.PathEntry(nil), e.path...),
		model.PathEntry{ID: preset.ID, Label: preset.ButtonLabel})
	e.path = nextPath
	e.emitLocked(EventState, nil)
	e.mu.Unlock()

	metrics.PresetSelectionsTotal.Inc()

	if preset.EscalateToAgent {
		e.escalate(ctx, chatID, preset, echo, nextPath)
		return
	}

	if _, err := e.messages.Create(ctx, echo); err != nil {
		e.logger.Warn("preset echo persist failed", zap.String("chat_id", chatID), zap.Error(err))
	}

	if preset.AnswerText != "" {
		answer := model.NewTextMessage(chatID, model.SenderBot, preset.AnswerText)
		if _, err := e.messages.Create(ctx, answer); err != nil {
			e.logger.Warn("preset answer persist failed", zap.String("chat_id", chatID), zap.Error(err))
		}
	}

	children := e.listChildren(ctx, &preset.ID)
	if len(children) > 0 {
		current := preset.ID
		state := model.NavState{CurrentPresetID: &current, ShowPresets: true, Path: nextPath}

		e.mu.Lock()
		if e.chatID != chatID {
			e.mu.Unlock()
			return
		}
		e.options = children
		e.current = &current
		e.showPresets = true
		e.emitLocked(EventState, nil)
		e.mu.Unlock()

		e.nav.Save(ctx, chatID, state)
		return
	}

	// Dead end that is not an escalation terminal: re-derive from root,
	// hiding the presets entirely if the root set is empty.
	e.resetToRoot(ctx, chatID)
}

// resetToRoot points navigation back at the tree roots and persists the
// reset state.
func (e *Engine) resetToRoot(ctx context.Context, chatID string) {
	roots := e.listChildren(ctx, nil)
	show := len(roots) > 0
	state := model.RootNavState()
	state.ShowPresets = show

	e.mu.Lock()
	if e.chatID != chatID {
		e.mu.Unlock()
		return
	}
	e.options = roots
	e.current = nil
	e.path = nil
	e.showPresets = show
	e.emitLocked(EventState, nil)
	e.mu.Unlock()

	e.nav.Save(ctx, chatID, state)
}

// handleIncoming is invoked by the realtime subscription for each newly
// committed message of the subscribed chat.
func (e *Engine) handleIncoming(msg model.Message) {
	e.mu.Lock()
	if msg.ChatID != e.chatID {
		// A stale subscription can still deliver after a chat switch.
		e.mu.Unlock()
		return
	}
	e.msgs = Reconcile(e.msgs, msg)

	if msg.SenderType != model.SenderCustomer {
		// Notify only for agent/bot messages, never for the customer's
		// own echoed content.
		e.emitLocked(EventNotify, &msg)
	}
	e.emitLocked(EventState, nil)
	e.mu.Unlock()
}

// Teardown releases the realtime subscription and cancels any pending
// auto-reply. It must run before re-initializing with a different chat.
func (e *Engine) Teardown() {
	e.mu.Lock()
	wasInitialized := e.initialized
	unsub := e.detachLocked()
	e.chatID = ""
	e.msgs = nil
	e.options = nil
	e.current = nil
	e.path = nil
	e.mu.Unlock()

	if unsub != nil {
		unsub()
	}
	if wasInitialized {
		metrics.EnginesActive.Dec()
	}
}

// detachLocked stops the reply timer and hands back the unsubscribe
// function so the caller can run it outside the lock.
func (e *Engine) detachLocked() func() {
	if e.replyTimer != nil {
		e.replyTimer.Stop()
		e.replyTimer = nil
	}
	e.typing = false
	e.initialized = false
	unsub := e.unsubscribe
	e.unsubscribe = nil
	return unsub
}
