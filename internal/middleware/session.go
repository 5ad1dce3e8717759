package middleware

import (
	"net/http"
	"strings"

	"github.com/chatsync/internal/logger"
)

// SessionHeader — заголовок с токеном сессии, выданным при входе или регистрации.
// Браузерный WebSocket заголовки не передаёт, поэтому для /ws есть ?session_id=.
const SessionHeader = "X-Session-Id"

// SessionResolver находит пользователя по токену живой сессии (service.Engine).
type SessionResolver interface {
	UserForSession(sessionID string) (string, bool)
}

// RequireSession пропускает запрос, только если токен принадлежит живой сессии; иначе 401.
// user_id и session_id кладутся в контекст.
func RequireSession(sessions SessionResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sessionID := strings.TrimSpace(r.Header.Get(SessionHeader))
			if sessionID == "" {
				sessionID = strings.TrimSpace(r.URL.Query().Get("session_id"))
			}
			userID, ok := sessions.UserForSession(sessionID)
			if !ok {
				logger.Debugf("session middleware: rejected session=%s path=%s", MaskSessionID(sessionID), r.URL.Path)
				http.Error(w, `{"error":"unauthenticated"}`, http.StatusUnauthorized)
				return
			}
			ctx := WithSession(r.Context(), sessionID, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
