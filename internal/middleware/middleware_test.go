package middleware

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

// sessionSet: токен -> пользователь.
type sessionSet map[string]string

func (s sessionSet) UserForSession(sessionID string) (string, bool) {
	userID, ok := s[sessionID]
	return userID, ok
}

func TestRequireSession(t *testing.T) {
	h := RequireSession(sessionSet{"tok-1": "user-1"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(GetUserID(r.Context()) + " " + GetSessionID(r.Context())))
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/users", nil)
	req.Header.Set(SessionHeader, "tok-1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "user-1 tok-1", rec.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/ws?session_id=tok-1", nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "user-1 tok-1", rec.Body.String())

	// user id вместо токена ничего не даёт
	for _, id := range []string{"", "user-1", "tok-2"} {
		req = httptest.NewRequest(http.MethodGet, "/api/users", nil)
		req.Header.Set(SessionHeader, id)
		req.Header.Set("X-User-Id", "user-1")
		rec = httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		require.Equal(t, http.StatusUnauthorized, rec.Code, id)
	}

	req = httptest.NewRequest(http.MethodGet, "/ws?user_id=user-1", nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequestInfoSeesInnerUser(t *testing.T) {
	ctx, info := withRequestInfo(context.Background())
	inner := WithSession(ctx, "tok-1", "user-1")
	require.Equal(t, "user-1", info.userID)
	require.Equal(t, "user-1", GetUserID(inner))
	require.Equal(t, "tok-1", GetSessionID(inner))

	_, again := withRequestInfo(inner)
	require.Same(t, info, again)

	var seen string
	h := RecoverJSON(RequestLog(RequireSession(sessionSet{"tok-1": "user-1"})(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		_, outer := withRequestInfo(r.Context())
		seen = outer.userID
		panic("boom")
	}))))
	req := httptest.NewRequest(http.MethodGet, "/api/users", nil)
	req.Header.Set(SessionHeader, "tok-1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, "user-1", seen)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestRecoverJSON(t *testing.T) {
	h := RecoverJSON(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.JSONEq(t, `{"error":"internal server error"}`, rec.Body.String())
}

func TestRecoverJSONKeepsStartedResponse(t *testing.T) {
	h := RecoverJSON(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte("partial"))
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Equal(t, "partial", rec.Body.String())
}

func TestRecoverJSONPassesAbort(t *testing.T) {
	h := RecoverJSON(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic(http.ErrAbortHandler)
	}))
	require.PanicsWithValue(t, http.ErrAbortHandler, func() {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	})
}

func TestRateLimit(t *testing.T) {
	h := RateLimit(2, 100)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	require.Equal(t, []int{http.StatusNoContent, http.StatusNoContent, http.StatusTooManyRequests}, codes)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.2:1234"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)
}

func TestRateLimitPerUser(t *testing.T) {
	limited := RateLimit(100, 1)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	serve := func(ip string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = ip
		req = req.WithContext(WithUserID(req.Context(), "user-1"))
		rec := httptest.NewRecorder()
		limited.ServeHTTP(rec, req)
		return rec.Code
	}
	require.Equal(t, http.StatusNoContent, serve("10.0.0.1:1"))
	require.Equal(t, http.StatusTooManyRequests, serve("10.0.0.2:1"))
}

func TestRateLimitZeroDisablesOnlyItsDimension(t *testing.T) {
	noContent := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	serve := func(h http.Handler, ip, userID string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = ip
		if userID != "" {
			req = req.WithContext(WithUserID(req.Context(), userID))
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	userOnly := RateLimit(0, 1)(noContent)
	require.Equal(t, http.StatusNoContent, serve(userOnly, "10.0.0.1:1", "user-1"))
	require.Equal(t, http.StatusTooManyRequests, serve(userOnly, "10.0.0.1:1", "user-1"))
	for i := 0; i < 5; i++ {
		require.Equal(t, http.StatusNoContent, serve(userOnly, "10.0.0.1:1", ""))
	}

	ipOnly := RateLimit(1, 0)(noContent)
	require.Equal(t, http.StatusNoContent, serve(ipOnly, "10.0.0.3:1", "user-1"))
	require.Equal(t, http.StatusTooManyRequests, serve(ipOnly, "10.0.0.3:1", "user-2"))
	for i := 0; i < 5; i++ {
		require.Equal(t, http.StatusNoContent, serve(ipOnly, fmt.Sprintf("10.0.1.%d:1", i), "user-1"))
	}
}

func TestMaskID(t *testing.T) {
	require.Equal(t, "****", MaskID("abc"))
	require.Equal(t, "user-****", MaskID("user-123"))
	require.Equal(t, "user-1234***", MaskID("user-1234abcd"))
	require.Equal(t, "conv-ab12***", MaskID(" conv-ab12cd34 "))
}

func TestMaskSessionID(t *testing.T) {
	require.Equal(t, "****", MaskSessionID(""))
	require.Equal(t, "****", MaskSessionID("12345678"))
	require.Equal(t, "AbCd***", MaskSessionID("AbCdEfGhIj"))
}
