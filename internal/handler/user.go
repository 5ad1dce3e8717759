package handler

import (
	"net/http"

	"github.com/chatsync/internal/middleware"
	"github.com/chatsync/internal/model"
	"github.com/chatsync/internal/service"
)

type UserHandler struct {
	engine *service.Engine
}

func NewUserHandler(engine *service.Engine) *UserHandler {
	return &UserHandler{engine: engine}
}

func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	users, err := h.engine.ListUsers(r.Context())
	if err != nil {
		writeEngineError(w, "list users", err)
		return
	}
	if users == nil {
		users = []model.User{}
	}
	writeJSON(w, http.StatusOK, users)
}

type updateProfileRequest struct {
	Name   string `json:"name"`
	Avatar string `json:"avatar"`
}

func (h *UserHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	var req updateProfileRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	u, err := h.engine.UpdateProfile(r.Context(), userID, req.Name, req.Avatar)
	if err != nil {
		writeEngineError(w, "update profile", err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

type statusRequest struct {
	Status model.UserStatus `json:"status"`
}

// SetStatus — updateUserStatus для текущего пользователя.
func (h *UserHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	var req statusRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.engine.SetPresence(r.Context(), userID, req.Status); err != nil {
		writeEngineError(w, "set status", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": string(req.Status)})
}
