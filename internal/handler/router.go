package handler

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/chatsync/internal/middleware"
	"github.com/chatsync/internal/service"
	"github.com/chatsync/internal/ws"
)

// RouterConfig — то, что роутеру нужно из config.Config.
type RouterConfig struct {
	// CORSAllowedOrigins — origins через запятую или "*".
	CORSAllowedOrigins string
	WSLimits           ws.Limits
	// Лимиты запросов в минуту, независимые друг от друга; 0 — без ограничения.
	RateLimitPerIP   int
	RateLimitPerUser int
}

// NewRouter собирает HTTP API движка. hub может быть nil (без /ws).
func NewRouter(engine *service.Engine, hub *ws.Hub, cfg RouterConfig) http.Handler {
	authH := NewAuthHandler(engine)
	userH := NewUserHandler(engine)
	convH := NewConversationHandler(engine)

	origins := splitOrigins(cfg.CORSAllowedOrigins)

	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(middleware.RecoverJSON)
	r.Use(middleware.RequestLog)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", middleware.SessionHeader},
		MaxAge:         300,
	}))

	limit := middleware.RateLimit(cfg.RateLimitPerIP, cfg.RateLimitPerUser)

	if hub != nil {
		r.Get("/health", NewHealthHandler(hub).Health)
	} else {
		r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})
	}

	r.Group(func(r chi.Router) {
		r.Use(limit)
		r.Post("/api/auth/register", authH.Register)
		r.Post("/api/auth/login", authH.Login)
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireSession(engine))
		r.Use(limit)
		r.Delete("/api/session", authH.EndSession)
		r.Get("/api/users", userH.List)
		r.Put("/api/users/me", userH.UpdateMe)
		r.Put("/api/users/me/status", userH.SetStatus)
		r.Get("/api/conversations", convH.List)
		r.Post("/api/conversations", convH.Create)
		r.Post("/api/conversations/{id}/select", convH.Select)
		r.Get("/api/conversations/{id}/messages", convH.Messages)
		r.Post("/api/conversations/{id}/messages", convH.Send)
		r.Get("/api/snapshot", convH.Snapshot)
		if hub != nil {
			r.Get("/ws", NewWSHandler(hub, cfg.WSLimits, origins).ServeWS)
		}
	})
	return r
}

// splitOrigins разбирает список origins. Пустой список означает "*".
func splitOrigins(s string) []string {
	var out []string
	for _, o := range strings.Split(s, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}
