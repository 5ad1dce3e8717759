package middleware

import (
	"net/http"
	"time"

	"github.com/chatsync/internal/logger"
)

// RequestLog логирует время выполнения каждого HTTP-запроса (асинхронно, не блокирует)
// и отдельно ответы 5xx, чтобы сбои хранилища были видны при уровне info.
// WebSocket upgrade не логируется: соединение живёт дольше запроса.
func RequestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Upgrade") != "" {
			next.ServeHTTP(w, r)
			return
		}
		rec := record(w)
		ctx, info := withRequestInfo(r.Context())
		defer logger.DeferLogDuration("http "+r.Method+" "+r.URL.Path, time.Now())()
		next.ServeHTTP(rec, r.WithContext(ctx))
		if rec.status >= http.StatusInternalServerError {
			logger.Warnf("http %s %s -> %d user=%s", r.Method, r.URL.Path, rec.status, MaskID(info.userID))
		}
	})
}
