package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/helplane/support-widget/internal/brand"
	"github.com/helplane/support-widget/internal/flow"
	"github.com/helplane/support-widget/internal/middleware"
	"github.com/helplane/support-widget/internal/model"
	"github.com/helplane/support-widget/internal/realtime"
	"github.com/helplane/support-widget/internal/service"
	"github.com/helplane/support-widget/internal/session"
	"github.com/helplane/support-widget/internal/store"
	"github.com/helplane/support-widget/pkg/logger"
	"github.com/helplane/support-widget/pkg/metrics"
)

// WidgetHandler serves the visitor-facing widget API.
type WidgetHandler struct {
	registry *flow.Registry
	messages *service.Messages
	chats    store.ChatStore
	sessions session.Store
	brand    *brand.Provider
	feed     *realtime.Feed
	logger   *logger.Logger
}

// NewWidgetHandler creates a new widget handler.
func NewWidgetHandler(
	registry *flow.Registry,
	messages *service.Messages,
	chats store.ChatStore,
	sessions session.Store,
	brandProvider *brand.Provider,
	feed *realtime.Feed,
	log *logger.Logger,
) *WidgetHandler {
	return &WidgetHandler{
		registry: registry,
		messages: messages,
		chats:    chats,
		sessions: sessions,
		brand:    brandProvider,
		feed:     feed,
		logger:   log,
	}
}

// StartChat handles POST /api/v1/widget/chats.
//
// The visitor session (X-Session-ID header, minted by the widget loader)
// caches at most one open chat id. A cached id is reused while the chat is
// still pending or active; once the server side shows it resolved the
// cache is discarded and a fresh chat starts.
func (h *WidgetHandler) StartChat(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	sessionID := r.Header.Get("X-Session-ID")
	if err := middleware.ValidateSessionID(sessionID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req model.StartChatRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	cached, err := h.sessions.Get(ctx, sessionID)
	if err != nil {
		h.logger.Warn("session lookup failed", zap.String("session_id", sessionID), zap.Error(err))
	}
	if cached != "" {
		chat, err := h.chats.GetChat(ctx, cached)
		switch {
		case err == nil && chat.Status.Open():
			writeJSON(w, http.StatusOK, model.StartChatResponse{Chat: chat, Resumed: true})
			return
		case err == nil || errors.Is(err, store.ErrNotFound):
			// Resolved server-side or gone entirely: drop the cached id.
			if err := h.sessions.Clear(ctx, sessionID); err != nil {
				h.logger.Warn("session clear failed", zap.String("session_id", sessionID), zap.Error(err))
			}
		default:
			writeError(w, http.StatusInternalServerError, "failed to look up chat")
			return
		}
	}

	chat, err := h.chats.CreateChat(ctx, req.CustomerName, req.CustomerEmail)
	if err != nil {
		h.logger.Error("create chat failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to create chat")
		return
	}

	if err := h.sessions.Set(ctx, sessionID, chat.ID); err != nil {
		h.logger.Warn("session store failed", zap.String("session_id", sessionID), zap.Error(err))
	}

	if err := h.feed.PublishChatEvent(ctx, model.ChatEvent{
		ChatID:    chat.ID,
		Type:      model.ChatEventCreated,
		CreatedAt: time.Now().UTC(),
	}); err != nil {
		h.logger.Warn("publish chat created failed", zap.String("chat_id", chat.ID), zap.Error(err))
	}

	metrics.ChatsTotal.Inc()
	writeJSON(w, http.StatusCreated, model.StartChatResponse{Chat: chat, Resumed: false})
}

// ListMessages handles GET /api/v1/widget/chats/{id}/messages.
func (h *WidgetHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	chatID := chi.URLParam(r, "id")

	if err := middleware.ValidateChatID(chatID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	msgs, err := h.messages.List(ctx, chatID)
	if err != nil {
		h.logger.Error("list messages failed", zap.String("chat_id", chatID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list messages")
		return
	}

	writeJSON(w, http.StatusOK, model.ListMessagesResponse{Messages: msgs})
}

// SendMessage handles POST /api/v1/widget/chats/{id}/messages.
func (h *WidgetHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	chatID := chi.URLParam(r, "id")

	if err := middleware.ValidateChatID(chatID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req model.SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	// Attachments bypass the flow engine: no optimistic echo to reconcile
	// and no auto-reply, the realtime feed carries them to both sides.
	if req.Attachment != nil {
		if err := middleware.ValidateAttachment(req.Kind, req.Attachment); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		msg, err := h.messages.Create(ctx, model.NewAttachmentMessage(chatID, model.SenderCustomer, req.Kind, *req.Attachment))
		if err != nil {
			h.logger.Error("attachment persist failed", zap.String("chat_id", chatID), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to send attachment")
			return
		}
		writeJSON(w, http.StatusCreated, msg)
		return
	}

	if err := middleware.ValidateMessageContent(req.Content); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	engine, err := h.registry.Acquire(ctx, chatID)
	if err != nil {
		h.logger.Error("engine acquire failed", zap.String("chat_id", chatID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to open conversation")
		return
	}
	defer h.registry.Release(chatID)

	engine.SendFreeText(ctx, req.Content)

	writeJSON(w, http.StatusAccepted, engine.Snapshot())
}

// SelectPreset handles POST /api/v1/widget/chats/{id}/presets/{presetID}.
// The preset must be among the currently displayed options.
func (h *WidgetHandler) SelectPreset(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	chatID := chi.URLParam(r, "id")
	presetID := chi.URLParam(r, "presetID")

	if err := middleware.ValidateChatID(chatID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := middleware.ValidatePresetID(presetID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	engine, err := h.registry.Acquire(ctx, chatID)
	if err != nil {
		h.logger.Error("engine acquire failed", zap.String("chat_id", chatID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to open conversation")
		return
	}
	defer h.registry.Release(chatID)

	var selected *model.Preset
	for _, opt := range engine.Snapshot().Options {
		if opt.ID == presetID {
			preset := opt
			selected = &preset
			break
		}
	}
	if selected == nil {
		writeError(w, http.StatusConflict, "preset is not among the displayed options")
		return
	}

	engine.SelectPreset(ctx, *selected)

	writeJSON(w, http.StatusAccepted, engine.Snapshot())
}

// Stream handles GET /api/v1/widget/chats/{id}/stream: an SSE stream of
// engine events. The connection holds the chat's engine (and its realtime
// subscription) open for its duration.
func (h *WidgetHandler) Stream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	chatID := chi.URLParam(r, "id")

	if err := middleware.ValidateChatID(chatID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	log := h.logger.WithChat(chatID)

	engine, err := h.registry.Acquire(ctx, chatID)
	if err != nil {
		log.Error("engine acquire failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to open conversation")
		return
	}
	defer h.registry.Release(chatID)

	events, cancel := engine.Watch()
	defer cancel()

	log.Info("widget stream opened")
	defer log.Info("widget stream closed")

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	metrics.IncrementSSEConnections()
	defer metrics.DecrementSSEConnections()

	sendSSEEvent(w, flusher, "state", flow.Event{Type: flow.EventState, Snapshot: engine.Snapshot()})

	heartbeat := time.NewTicker(25 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case event := <-events:
			sendSSEEvent(w, flusher, string(event.Type), event)
		case <-heartbeat.C:
			sendSSEEvent(w, flusher, "heartbeat", map[string]string{
				"ts": time.Now().UTC().Format(time.RFC3339),
			})
		}
	}
}

// Brand handles GET /api/v1/widget/brand: the merged brand settings plus
// quick links and a few active agent profiles for the widget shell.
func (h *WidgetHandler) Brand(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	settings := h.brand.Settings(ctx)

	links, err := h.brand.QuickLinks(ctx)
	if err != nil {
		h.logger.Warn("quick links lookup failed", zap.Error(err))
		links = nil
	}

	agents, err := h.brand.ActiveAgents(ctx, 3)
	if err != nil {
		h.logger.Warn("active agents lookup failed", zap.Error(err))
		agents = nil
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"settings":    settings,
		"quick_links": links,
		"agents":      agents,
	})
}
