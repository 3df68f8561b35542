package handler

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	agentpkg "github.com/helplane/support-widget/internal/agent"
	"github.com/helplane/support-widget/internal/middleware"
	"github.com/helplane/support-widget/internal/model"
	"github.com/helplane/support-widget/internal/realtime"
	"github.com/helplane/support-widget/internal/service"
	"github.com/helplane/support-widget/internal/store"
	"github.com/helplane/support-widget/pkg/logger"
	"github.com/helplane/support-widget/pkg/metrics"
)

// AgentHandler serves the agent-console API. One mirror is kept per
// authenticated agent.
type AgentHandler struct {
	chats    store.ChatStore
	messages *service.Messages
	feed     *realtime.Feed
	logger   *logger.Logger

	mu      sync.Mutex
	mirrors map[string]*agentpkg.Mirror
}

// NewAgentHandler creates a new agent handler.
func NewAgentHandler(chats store.ChatStore, messages *service.Messages, feed *realtime.Feed, log *logger.Logger) *AgentHandler {
	return &AgentHandler{
		chats:    chats,
		messages: messages,
		feed:     feed,
		logger:   log,
		mirrors:  make(map[string]*agentpkg.Mirror),
	}
}

func (h *AgentHandler) mirror(agentID string) *agentpkg.Mirror {
	h.mu.Lock()
	defer h.mu.Unlock()
	m, ok := h.mirrors[agentID]
	if !ok {
		m = agentpkg.NewMirror(agentID, h.chats, h.messages, h.feed, h.feed, h.logger)
		h.mirrors[agentID] = m
	}
	return m
}

// Shutdown releases every mirror's subscription.
func (h *AgentHandler) Shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, m := range h.mirrors {
		m.Close()
	}
	h.mirrors = make(map[string]*agentpkg.Mirror)
}

// ListChats handles GET /api/v1/agent/chats.
func (h *AgentHandler) ListChats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	agentID := middleware.GetAgentID(ctx)

	summaries, err := h.mirror(agentID).ListChats(ctx)
	if err != nil {
		h.logger.Error("roster load failed", zap.String("agent_id", agentID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list chats")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"chats": summaries})
}

// Assign handles POST /api/v1/agent/chats/{id}/assign.
func (h *AgentHandler) Assign(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	agentID := middleware.GetAgentID(ctx)
	chatID := chi.URLParam(r, "id")

	if err := middleware.ValidateChatID(chatID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.mirror(agentID).Assign(ctx, chatID); err != nil {
		h.logger.Error("assign failed", zap.String("chat_id", chatID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to assign chat")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": string(model.StatusActive)})
}

// Resolve handles POST /api/v1/agent/chats/{id}/resolve.
func (h *AgentHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	agentID := middleware.GetAgentID(ctx)
	chatID := chi.URLParam(r, "id")

	if err := middleware.ValidateChatID(chatID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.mirror(agentID).Resolve(ctx, chatID); err != nil {
		h.logger.Error("resolve failed", zap.String("chat_id", chatID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to resolve chat")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": string(model.StatusResolved)})
}

// SendMessage handles POST /api/v1/agent/chats/{id}/messages.
func (h *AgentHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	agentID := middleware.GetAgentID(ctx)
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
	if req.Attachment != nil {
		if err := middleware.ValidateAttachment(req.Kind, req.Attachment); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	} else if err := middleware.ValidateMessageContent(req.Content); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	m := h.mirror(agentID)
	if err := m.Open(ctx, chatID); err != nil {
		h.logger.Error("transcript open failed", zap.String("chat_id", chatID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to open chat")
		return
	}

	var sendErr error
	if req.Attachment != nil {
		sendErr = m.SendAttachment(ctx, req.Kind, *req.Attachment)
	} else {
		sendErr = m.Send(ctx, req.Content)
	}
	if sendErr != nil {
		writeError(w, http.StatusInternalServerError, "failed to send message")
		return
	}

	writeJSON(w, http.StatusAccepted, model.ListMessagesResponse{Messages: m.Messages()})
}

// MarkRead handles POST /api/v1/agent/chats/{id}/read.
func (h *AgentHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	chatID := chi.URLParam(r, "id")

	if err := middleware.ValidateChatID(chatID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.messages.MarkRead(ctx, chatID); err != nil {
		h.logger.Error("mark read failed", zap.String("chat_id", chatID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to mark messages read")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Stream handles GET /api/v1/agent/stream: an SSE stream of roster events
// for the agent console to refresh its chat list.
func (h *AgentHandler) Stream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	agentID := middleware.GetAgentID(ctx)

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	events := make(chan model.ChatEvent, 16)
	unsubscribe, err := h.mirror(agentID).WatchRoster(ctx, func(event model.ChatEvent) {
		select {
		case events <- event:
		default:
		}
	})
	if err != nil {
		h.logger.Error("roster subscription failed", zap.String("agent_id", agentID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to subscribe")
		return
	}
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	metrics.IncrementSSEConnections()
	defer metrics.DecrementSSEConnections()

	sendSSEEvent(w, flusher, "connected", map[string]string{"agent_id": agentID})

	heartbeat := time.NewTicker(25 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case event := <-events:
			sendSSEEvent(w, flusher, "chat_event", event)
		case <-heartbeat.C:
			sendSSEEvent(w, flusher, "heartbeat", map[string]string{
				"ts": time.Now().UTC().Format(time.RFC3339),
			})
		}
	}
}
