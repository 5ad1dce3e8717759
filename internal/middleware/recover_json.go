package middleware

import (
	"encoding/json"
	"net/http"
	"runtime/debug"

	"github.com/chatsync/internal/logger"
)

// RecoverJSON превращает панику обработчика в JSON 500, если ответ ещё не начат.
// http.ErrAbortHandler пробрасывается дальше: net/http так обрывает соединение.
func RecoverJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := record(w)
		ctx, info := withRequestInfo(r.Context())
		defer func() {
			p := recover()
			if p == nil {
				return
			}
			if p == http.ErrAbortHandler {
				panic(p)
			}
			logger.Errorf("panic %s %s user=%s: %v\n%s", r.Method, r.URL.Path, MaskID(info.userID), p, debug.Stack())
			if rec.wrote {
				return
			}
			rec.Header().Set("Content-Type", "application/json; charset=utf-8")
			rec.WriteHeader(http.StatusInternalServerError)
			_ = json.NewEncoder(rec).Encode(map[string]string{"error": "internal server error"})
		}()
		next.ServeHTTP(rec, r.WithContext(ctx))
	})
}
