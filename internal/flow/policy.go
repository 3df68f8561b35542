package flow

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/helplane/support-widget/internal/model"
	"github.com/helplane/support-widget/pkg/metrics"
)

// DefaultReplyDelay simulates agent typing latency before the bot
// auto-reply to a free-text message.
const DefaultReplyDelay = 1500 * time.Millisecond

// Texts resolves the configured bot texts. Implementations never fail;
// they fall back to built-in defaults.
type Texts interface {
	AutoReplyText(ctx context.Context) string
	HandoffText(ctx context.Context) string
}

// scheduleAutoReplyLocked arms the auto-reply timer for a free-text send.
// A timer from a rapid earlier send is canceled so the burst produces one
// reply and the typing indicator is cleared exactly once.
func (e *Engine) scheduleAutoReplyLocked() {
	if e.replyTimer != nil {
		e.replyTimer.Stop()
	}
	e.typing = true
	e.replyTimer = time.AfterFunc(e.replyDelay, e.autoReply)
}

// autoReply fires after the typing delay: it persists exactly one bot
// reply and unconditionally re-displays the root presets. Free text always
// resets tree position to root; typed input is never matched against the
// preset tree.
func (e *Engine) autoReply() {
	// The originating request is long gone when the timer fires.
	ctx := context.Background()

	e.mu.Lock()
	chatID := e.chatID
	e.replyTimer = nil
	e.mu.Unlock()

	if chatID == "" {
		return
	}

	reply := model.NewTextMessage(chatID, model.SenderBot, e.texts.AutoReplyText(ctx))
	if _, err := e.messages.Create(ctx, reply); err != nil {
		e.logger.Warn("auto-reply persist failed", zap.String("chat_id", chatID), zap.Error(err))
	}
	metrics.AutoRepliesTotal.Inc()

	// The typing indicator is cleared exactly once, when the reply has
	// been persisted, however slow that persistence was.
	e.mu.Lock()
	if e.chatID != chatID {
		e.mu.Unlock()
		return
	}
	e.typing = false
	e.emitLocked(EventState, nil)
	e.mu.Unlock()

	e.resetToRoot(ctx, chatID)
}

// escalate is the terminal branch for a preset with the escalate flag:
// one customer echo, one hand-off bot message, presets hidden, and no
// further tree descent.
func (e *Engine) escalate(ctx context.Context, chatID string, preset model.Preset, echo model.Message, path []model.PathEntry) {
	current := preset.ID
	state := model.NavState{CurrentPresetID: &current, ShowPresets: false, Path: path}

	e.mu.Lock()
	if e.chatID != chatID {
		e.mu.Unlock()
		return
	}
	e.showPresets = false
	e.options = nil
	e.current = &current
	e.emitLocked(EventState, nil)
	e.mu.Unlock()

	e.nav.Save(ctx, chatID, state)

	if _, err := e.messages.Create(ctx, echo); err != nil {
		e.logger.Warn("escalation echo persist failed", zap.String("chat_id", chatID), zap.Error(err))
	}

	handoff := model.NewTextMessage(chatID, model.SenderBot, e.texts.HandoffText(ctx))
	if _, err := e.messages.Create(ctx, handoff); err != nil {
		e.logger.Warn("hand-off persist failed", zap.String("chat_id", chatID), zap.Error(err))
	}

	metrics.EscalationsTotal.Inc()
}
