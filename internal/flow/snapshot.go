package flow

import (
	"github.com/helplane/support-widget/internal/model"
)

// EventType classifies engine events delivered to watchers.
type EventType string

const (
	// EventState signals that the rendered state changed.
	EventState EventType = "state"

	// EventNotify signals an incoming agent/bot message worth an audible
	// cue. Never emitted for the customer's own echoed content.
	EventNotify EventType = "notify"
)

// Event is one engine notification.
type Event struct {
	Type     EventType      `json:"type"`
	Snapshot Snapshot       `json:"snapshot"`
	Message  *model.Message `json:"message,omitempty"`
}

// Snapshot is an immutable view of the engine state for rendering.
type Snapshot struct {
	ChatID      string            `json:"chat_id"`
	Messages    []model.Message   `json:"messages"`
	Options     []model.Preset    `json:"options"`
	Path        []model.PathEntry `json:"preset_path"`
	ShowPresets bool              `json:"show_presets"`
	Typing      bool              `json:"typing"`
}

// Snapshot returns the current view of the engine state.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

func (e *Engine) snapshotLocked() Snapshot {
	return Snapshot{
		ChatID:      e.chatID,
		Messages:    append([]model.Message(nil), e.msgs...),
		Options:     append([]model.Preset(nil), e.options...),
		Path:        append([]model.PathEntry(nil), e.path...),
		ShowPresets: e.showPresets,
		Typing:      e.typing,
	}
}

// Watch registers an event channel. The returned function unregisters it.
// Events are dropped for slow watchers rather than blocking the engine.
func (e *Engine) Watch() (<-chan Event, func()) {
	e.mu.Lock()
	defer e.mu.Unlock()

	id := e.nextWatch
	e.nextWatch++
	ch := make(chan Event, 16)
	e.watchers[id] = ch

	return ch, func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		delete(e.watchers, id)
	}
}

// emitLocked delivers an event to all watchers. Callers hold the mutex.
func (e *Engine) emitLocked(kind EventType, msg *model.Message) {
	if len(e.watchers) == 0 {
		return
	}
	event := Event{Type: kind, Snapshot: e.snapshotLocked(), Message: msg}
	for _, ch := range e.watchers {
		select {
		case ch <- event:
		default:
		}
	}
}
