package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/chatsync/internal/logger"
	"github.com/chatsync/internal/middleware"
	"github.com/chatsync/internal/ws"
)

type WSHandler struct {
	hub            *ws.Hub
	limits         ws.Limits
	allowedOrigins []string
}

// NewWSHandler создаёт обработчик потока снимков. allowedOrigins — тот же список, что у CORS.
func NewWSHandler(hub *ws.Hub, limits ws.Limits, allowedOrigins []string) *WSHandler {
	return &WSHandler{hub: hub, limits: limits, allowedOrigins: allowedOrigins}
}

func (h *WSHandler) checkOrigin(r *http.Request) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	for _, o := range h.allowedOrigins {
		if o == "*" || o == origin {
			return true
		}
	}
	return false
}

func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "unauthenticated")
		return
	}
	if !h.checkOrigin(r) {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Errorf("ws upgrade user=%s: %v", middleware.MaskID(userID), err)
		return
	}

	// Соединение живёт дольше HTTP-запроса.
	ctx, cancel := context.WithCancel(context.Background())
	client := ws.NewClient(h.hub, conn, userID, h.limits)
	client.Start(ctx, cancel)
	h.hub.Register(client)
}
