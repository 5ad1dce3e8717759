package handler

import (
	"net/http"

	"github.com/chatsync/internal/ws"
)

type HealthHandler struct {
	hub *ws.Hub
}

func NewHealthHandler(hub *ws.Hub) *HealthHandler {
	return &HealthHandler{hub: hub}
}

func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":        "ok",
		"ws_connection": h.hub.Count(),
	})
}
