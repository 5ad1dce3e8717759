package middleware

import "context"

type contextKey string

const (
	UserIDKey    contextKey = "user_id"
	SessionIDKey contextKey = "session_id"
	requestKey   contextKey = "request_info"
)

// requestInfo создаётся внешними middleware (RecoverJSON, RequestLog) и заполняется
// RequireSession: так логи запроса видят пользователя, хотя контекст ниже по цепочке новый.
type requestInfo struct {
	userID string
}

func withRequestInfo(ctx context.Context) (context.Context, *requestInfo) {
	if info, ok := ctx.Value(requestKey).(*requestInfo); ok {
		return ctx, info
	}
	info := &requestInfo{}
	return context.WithValue(ctx, requestKey, info), info
}

// GetUserID возвращает user_id из контекста (устанавливается RequireSession).
func GetUserID(ctx context.Context) string {
	v, _ := ctx.Value(UserIDKey).(string)
	return v
}

func GetSessionID(ctx context.Context) string {
	v, _ := ctx.Value(SessionIDKey).(string)
	return v
}

// WithUserID кладёт user_id в контекст (тесты и внутренние вызовы).
func WithUserID(ctx context.Context, userID string) context.Context {
	if info, ok := ctx.Value(requestKey).(*requestInfo); ok {
		info.userID = userID
	}
	return context.WithValue(ctx, UserIDKey, userID)
}

// WithSession кладёт в контекст сессию и её пользователя.
func WithSession(ctx context.Context, sessionID, userID string) context.Context {
	return context.WithValue(WithUserID(ctx, userID), SessionIDKey, sessionID)
}
