package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/chatsync/internal/middleware"
	"github.com/chatsync/internal/model"
	"github.com/chatsync/internal/service"
)

type ConversationHandler struct {
	engine *service.Engine
}

func NewConversationHandler(engine *service.Engine) *ConversationHandler {
	return &ConversationHandler{engine: engine}
}

func (h *ConversationHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	convs, err := h.engine.ListConversations(r.Context(), userID)
	if err != nil {
		writeEngineError(w, "list conversations", err)
		return
	}
	if convs == nil {
		convs = []model.Conversation{}
	}
	writeJSON(w, http.StatusOK, convs)
}

type createConversationRequest struct {
	ParticipantIDs []string `json:"participant_ids"`
}

// Create — startOrGetConversation. Текущий пользователь добавляется в участники, если его нет.
func (h *ConversationHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	var req createConversationRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	ids := req.ParticipantIDs
	found := false
	for _, id := range ids {
		if id == userID {
			found = true
			break
		}
	}
	if !found {
		ids = append([]string{userID}, ids...)
	}
	id, err := h.engine.StartOrGetConversation(r.Context(), ids)
	if err != nil {
		writeEngineError(w, "start conversation", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id})
}

// member проверяет, что текущий пользователь участник чата {id}; иначе пишет 404/403.
func (h *ConversationHandler) member(w http.ResponseWriter, r *http.Request) (userID, convID string, ok bool) {
	userID = middleware.GetUserID(r.Context())
	convID = chi.URLParam(r, "id")
	if err := h.engine.Authorize(r.Context(), userID, convID); err != nil {
		writeEngineError(w, "conversation access", err)
		return "", "", false
	}
	return userID, convID, true
}

func (h *ConversationHandler) Select(w http.ResponseWriter, r *http.Request) {
	userID, convID, ok := h.member(w, r)
	if !ok {
		return
	}
	if err := h.engine.SelectConversation(r.Context(), userID, convID); err != nil {
		writeEngineError(w, "select conversation", err)
		return
	}
	snap, err := h.engine.Snapshot(userID)
	if err != nil {
		writeEngineError(w, "snapshot", err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *ConversationHandler) Messages(w http.ResponseWriter, r *http.Request) {
	_, convID, ok := h.member(w, r)
	if !ok {
		return
	}
	msgs, err := h.engine.ListMessages(r.Context(), convID)
	if err != nil {
		writeEngineError(w, "list messages", err)
		return
	}
	if msgs == nil {
		msgs = []model.Message{}
	}
	writeJSON(w, http.StatusOK, msgs)
}

type sendMessageRequest struct {
	Content string `json:"content"`
}

// Send — отправитель всегда текущий пользователь сессии, и он должен быть участником чата.
func (h *ConversationHandler) Send(w http.ResponseWriter, r *http.Request) {
	userID, convID, ok := h.member(w, r)
	if !ok {
		return
	}
	var req sendMessageRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	m, err := h.engine.SendMessage(r.Context(), convID, userID, req.Content)
	if err != nil {
		writeEngineError(w, "send message", err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

func (h *ConversationHandler) Snapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := h.engine.Snapshot(middleware.GetUserID(r.Context()))
	if err != nil {
		writeEngineError(w, "snapshot", err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}
