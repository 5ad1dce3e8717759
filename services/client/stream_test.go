package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/chatsync/internal/model"
	"github.com/chatsync/internal/service"
	"github.com/chatsync/internal/ws"
)

func TestParseCommand(t *testing.T) {
	msg, ok := parseCommand("/open user-2", "")
	require.True(t, ok)
	require.Equal(t, ws.IncomingMessage{Type: ws.EventOpenDirect, UserID: "user-2"}, msg)

	msg, ok = parseCommand("/select conv-1", "")
	require.True(t, ok)
	require.Equal(t, ws.EventSelectConversation, msg.Type)
	require.Equal(t, "conv-1", msg.ConversationID)

	msg, ok = parseCommand("/status away", "")
	require.True(t, ok)
	require.Equal(t, model.StatusAway, msg.Status)

	_, ok = parseCommand("hello", "")
	require.False(t, ok)

	msg, ok = parseCommand("hello there", "conv-1")
	require.True(t, ok)
	require.Equal(t, ws.IncomingMessage{Type: ws.EventSendMessage, ConversationID: "conv-1", Content: "hello there"}, msg)
}

func TestWSURL(t *testing.T) {
	u, err := (&apiClient{base: "https://chat.example.com"}).wsURL()
	require.NoError(t, err)
	require.Equal(t, "wss://chat.example.com/ws", u)

	u, err = (&apiClient{base: "http://localhost:8080"}).wsURL()
	require.NoError(t, err)
	require.Equal(t, "ws://localhost:8080/ws", u)
}

func TestProfileRoundTrip(t *testing.T) {
	t.Setenv("CHATSYNC_PROFILE", t.TempDir()+"/client.toml")

	p, err := loadProfile()
	require.NoError(t, err)
	require.Equal(t, Profile{}, *p)

	require.NoError(t, saveProfile(&Profile{Server: "http://localhost:8080", UserID: "user-1", Email: "alice@example.com"}))
	p, err = loadProfile()
	require.NoError(t, err)
	require.Equal(t, "user-1", p.UserID)

	flagAs = ""
	id, err := currentUser()
	require.NoError(t, err)
	require.Equal(t, "user-1", id)
}

func TestAPIClientLoginSendsSessionToken(t *testing.T) {
	var ended string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/api/auth/login":
			var req map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			if req["email"] != "alice@example.com" {
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"unauthenticated"}`))
				return
			}
			_, _ = w.Write([]byte(`{"user":{"id":"user-1"},"session_id":"tok-123"}`))
		case r.Method == http.MethodDelete && r.URL.Path == "/api/session":
			ended = r.Header.Get(sessionHeader)
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	ctx := context.Background()
	api := &apiClient{base: srv.URL, http: srv.Client()}
	err := api.login(ctx, "nobody@example.com")
	require.Error(t, err)
	require.Contains(t, err.Error(), "401")

	require.NoError(t, api.login(ctx, "alice@example.com"))
	require.Equal(t, "tok-123", api.sessionID)
	require.NoError(t, api.endSession(ctx))
	require.Equal(t, "tok-123", ended)
}

func TestOneShotCommandsRefuseMemoryBackend(t *testing.T) {
	t.Setenv("STORE_BACKEND", "memory")
	t.Setenv("CONFIG_PATH", t.TempDir()+"/missing.yaml")
	t.Setenv("LOG_LEVEL", "error")
	flagBackend = ""

	called := false
	err := withEngine(commandTimeout, func(context.Context, *service.Engine) error {
		called = true
		return nil
	})
	require.ErrorIs(t, err, errMemoryBackend)
	require.False(t, called)

	engine, closeFn, err := openEngine(context.Background(), true)
	require.NoError(t, err)
	require.NotNil(t, engine)
	closeFn()
}
