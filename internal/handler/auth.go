package handler

import (
	"net/http"

	"github.com/chatsync/internal/middleware"
	"github.com/chatsync/internal/model"
	"github.com/chatsync/internal/service"
)

type AuthHandler struct {
	engine *service.Engine
}

func NewAuthHandler(engine *service.Engine) *AuthHandler {
	return &AuthHandler{engine: engine}
}

type registerRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

type loginRequest struct {
	Email string `json:"email"`
}

// sessionResponse — ответ входа: пользователь и токен для X-Session-Id.
type sessionResponse struct {
	User      *model.User `json:"user"`
	SessionID string      `json:"session_id"`
}

// Register создаёт пользователя и сразу открывает ему сессию.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	u, err := h.engine.Register(r.Context(), req.Name, req.Email)
	if err != nil {
		writeEngineError(w, "register", err)
		return
	}
	h.openSession(w, r, u.ID, http.StatusCreated)
}

// Login — вход по email: открывает сессию и выдаёт новый токен.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	u, err := h.engine.Login(r.Context(), req.Email)
	if err != nil {
		writeEngineError(w, "login", err)
		return
	}
	h.openSession(w, r, u.ID, http.StatusOK)
}

func (h *AuthHandler) openSession(w http.ResponseWriter, r *http.Request, userID string, status int) {
	sess, u, err := h.engine.OpenSession(r.Context(), userID)
	if err != nil {
		writeEngineError(w, "session start user="+middleware.MaskID(userID), err)
		return
	}
	writeJSON(w, status, sessionResponse{User: u, SessionID: sess.ID})
}

// EndSession — выход: токен отзывается; с последним токеном цикл останавливается
// и пользователь становится offline.
func (h *AuthHandler) EndSession(w http.ResponseWriter, r *http.Request) {
	h.engine.CloseSession(r.Context(), middleware.GetSessionID(r.Context()))
	w.WriteHeader(http.StatusNoContent)
}
