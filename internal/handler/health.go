package handler

import (
	"net/http"

	"github.com/helplane/support-widget/internal/realtime"
)

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	realtimeClient *realtime.Client
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(rt *realtime.Client) *HealthHandler {
	return &HealthHandler{realtimeClient: rt}
}

// Health handles GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}

// Ready handles GET /ready
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.realtimeClient == nil || !h.realtimeClient.IsConnected() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"reason": "realtime feed not connected",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ready",
	})
}
