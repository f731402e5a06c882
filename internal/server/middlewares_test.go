package server

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"market-chat/internal/auth"
	mytesting "market-chat/internal/testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func statusOkHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func usernamePayload() *bytes.Buffer {
	return bytes.NewBuffer([]byte(`{"username":"` + mytesting.RandString() + `"}`))
}

func TestEnforceJSON(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest("POST", "/", usernamePayload())
	req.Header.Set("Content-Type", "application/json; charset=utf-8")

	rr := httptest.NewRecorder()
	enforceJSON(http.HandlerFunc(statusOkHandler), 1024).ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
}

func TestEnforceJSON_MalformedContentType(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest("POST", "/", usernamePayload())
	req.Header.Set("Content-Type", "1:2\n+/-")

	rr := httptest.NewRecorder()
	enforceJSON(http.HandlerFunc(statusOkHandler), 1024).ServeHTTP(rr, req)

	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Equal(t, `{"error":"Malformed Content-Type header"}`, rr.Body.String())
}

func TestEnforceJSON_UnsupportedContentType(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest("POST", "/", usernamePayload())
	req.Header.Set("Content-Type", "text/plain")

	rr := httptest.NewRecorder()
	enforceJSON(http.HandlerFunc(statusOkHandler), 1024).ServeHTTP(rr, req)

	require.Equal(t, http.StatusUnsupportedMediaType, rr.Code)
	require.Equal(t, `{"error":"Content-Type header must be application/json"}`, rr.Body.String())
}

func TestEnforceJSON_BlankContentType(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest("POST", "/", usernamePayload())

	rr := httptest.NewRecorder()
	enforceJSON(http.HandlerFunc(statusOkHandler), 1024).ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "application/json", req.Header.Get("Content-Type"))
}

func TestEnforceJSON_NoBody(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest("POST", "/", http.NoBody)

	rr := httptest.NewRecorder()
	enforceJSON(http.HandlerFunc(statusOkHandler), 1024).ServeHTTP(rr, req)

	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Equal(t, `{"error":"No body provided"}`, rr.Body.String())
}

func TestEnforceJSON_MalformedJSON(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest("POST", "/", strings.NewReader(`{"username":`))

	rr := httptest.NewRecorder()
	enforceJSON(http.HandlerFunc(statusOkHandler), 1024).ServeHTTP(rr, req)

	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Equal(t, `{"error":"Malformed JSON"}`, rr.Body.String())
}

func TestEnforceJSON_TooLarge(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest("POST", "/", strings.NewReader(`{"content":"`+mytesting.RandStringN(64)+`"}`))

	rr := httptest.NewRecorder()
	enforceJSON(http.HandlerFunc(statusOkHandler), 16).ServeHTTP(rr, req)

	require.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
}

func TestAuthenticate(t *testing.T) {
	t.Parallel()

	tokens, err := auth.NewTokens(testTokenConfig(), nil)
	require.NoError(t, err)
	h := &handler{logger: zap.NewNop().Sugar(), tokens: tokens}

	var seen auth.Claims
	next := h.authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = claimsFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	rr := httptest.NewRecorder()
	next.ServeHTTP(rr, httptest.NewRequest("GET", "/", nil))
	require.Equal(t, http.StatusUnauthorized, rr.Code)
	require.Equal(t, "Bearer", rr.Header().Get("WWW-Authenticate"))

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	rr = httptest.NewRecorder()
	next.ServeHTTP(rr, req)
	require.Equal(t, http.StatusUnauthorized, rr.Code)
	require.Contains(t, rr.Header().Get("WWW-Authenticate"), "invalid_token")

	token, err := tokens.Issue(42)
	require.NoError(t, err)
	req = httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "bearer "+token)
	rr = httptest.NewRecorder()
	next.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, int64(42), seen.UserID)
}

func TestLogRequests(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.InfoLevel)
	next := logRequests(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}), zap.New(core))

	rr := httptest.NewRecorder()
	next.ServeHTTP(rr, httptest.NewRequest("GET", "/api/health?x=1", nil))

	id := rr.Header().Get("X-Request-ID")
	require.NotEmpty(t, id)

	entries := logs.All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	require.Equal(t, id, fields["id"])
	require.Equal(t, "/api/health?x=1", fields["uri"])
	require.Equal(t, int64(http.StatusTeapot), fields["status"])
}
