// ABOUTME: Tests for the REST handlers: connections, chats, usage, export.
// ABOUTME: Uses httptest with a real SQLite store and a fake MCP upstream.

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/mcpconnect/internal/auth"
	"github.com/2389/mcpconnect/internal/store"
)

func doJSON(t *testing.T, handler http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestCreateConnection_VerifiesUpstream(t *testing.T) {
	env := newTestEnv(t, &scriptedSource{})
	handler := env.server.Handler()

	rec := doJSON(t, handler, http.MethodPost, "/api/connections", CreateConnectionRequest{
		Name: "local-mcp",
		URL:  "http://127.0.0.1:9999/mcp",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp CreateConnectionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "local-mcp", resp.Connection.Name)
	assert.Equal(t, store.TransportHTTP, resp.Connection.Transport)
	assert.Equal(t, "fake-mcp", resp.ServerName)

	// Persisted
	stored, err := env.store.GetConnection(context.Background(), resp.Connection.ID)
	require.NoError(t, err)
	assert.Equal(t, "local-mcp", stored.Name)
}

func TestCreateConnection_UpstreamUnreachable(t *testing.T) {
	env := newTestEnv(t, &scriptedSource{})
	env.upstream.fail = true

	rec := doJSON(t, env.server.Handler(), http.MethodPost, "/api/connections", CreateConnectionRequest{
		Name: "broken",
		URL:  "http://127.0.0.1:9999/mcp",
	})
	assert.Equal(t, http.StatusBadGateway, rec.Code)

	// Nothing persisted
	conns, err := env.store.ListConnections(context.Background())
	require.NoError(t, err)
	assert.Empty(t, conns)
}

func TestCreateConnection_DuplicateName(t *testing.T) {
	env := newTestEnv(t, &scriptedSource{})
	handler := env.server.Handler()

	body := CreateConnectionRequest{Name: "dup", URL: "http://127.0.0.1:9999/mcp"}
	rec := doJSON(t, handler, http.MethodPost, "/api/connections", body)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, handler, http.MethodPost, "/api/connections", body)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestCreateConnection_Validation(t *testing.T) {
	env := newTestEnv(t, &scriptedSource{})
	handler := env.server.Handler()

	rec := doJSON(t, handler, http.MethodPost, "/api/connections", CreateConnectionRequest{URL: "http://x"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, handler, http.MethodPost, "/api/connections", CreateConnectionRequest{
		Name: "x", URL: "http://x", Transport: "carrier-pigeon",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListAndDeleteConnection(t *testing.T) {
	env := newTestEnv(t, &scriptedSource{})
	handler := env.server.Handler()
	conn, _ := env.seedChat(t)

	rec := doJSON(t, handler, http.MethodGet, "/api/connections", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list []ConnectionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, conn.ID, list[0].ID)

	rec = doJSON(t, handler, http.MethodDelete, "/api/connections/"+conn.ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, handler, http.MethodGet, "/api/connections/"+conn.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestConnectionToolsProxy(t *testing.T) {
	env := newTestEnv(t, &scriptedSource{})
	conn, _ := env.seedChat(t)

	rec := doJSON(t, env.server.Handler(), http.MethodGet, "/api/connections/"+conn.ID+"/tools", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), "get_weather")
}

func TestConnectionResourcesProxy(t *testing.T) {
	env := newTestEnv(t, &scriptedSource{})
	conn, _ := env.seedChat(t)

	rec := doJSON(t, env.server.Handler(), http.MethodGet, "/api/connections/"+conn.ID+"/resources", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "file:///notes.txt")
}

func TestChatLifecycle(t *testing.T) {
	env := newTestEnv(t, &scriptedSource{})
	handler := env.server.Handler()
	conn, _ := env.seedChat(t)

	// Create a second chat over the API
	rec := doJSON(t, handler, http.MethodPost, "/api/connections/"+conn.ID+"/chats", CreateChatRequest{Title: "Second"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var created ChatResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, "Second", created.Title)

	// List shows both
	rec = doJSON(t, handler, http.MethodGet, "/api/connections/"+conn.ID+"/chats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var chats []ChatResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &chats))
	assert.Len(t, chats, 2)

	// Get and delete
	rec = doJSON(t, handler, http.MethodGet, "/api/chats/"+created.ID, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, handler, http.MethodDelete, "/api/chats/"+created.ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, handler, http.MethodGet, "/api/chats/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestChatMessagesAndUsage(t *testing.T) {
	env := newTestEnv(t, &scriptedSource{})
	handler := env.server.Handler()
	_, chat := env.seedChat(t)
	ctx := context.Background()

	require.NoError(t, env.store.ReplaceChatMessages(ctx, chat.ID, []*store.Message{
		{ChatID: chat.ID, Kind: store.MessageKindPlain, IsUser: true, Content: "hello", Timestamp: time.Now()},
		{ChatID: chat.ID, Kind: store.MessageKindPlain, Content: "hi there", Timestamp: time.Now()},
	}))
	require.NoError(t, env.store.SaveChatUsage(ctx, &store.ChatUsage{
		ChatID: chat.ID, PromptTokens: 5, CompletionTokens: 7, TotalTokens: 12, UpdatedAt: time.Now(),
	}))

	rec := doJSON(t, handler, http.MethodGet, "/api/chats/"+chat.ID+"/messages", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var msgs ChatMessagesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &msgs))
	require.Len(t, msgs.Messages, 2)
	assert.True(t, msgs.Messages[0].IsUser)
	assert.Equal(t, "hi there", msgs.Messages[1].Content)

	rec = doJSON(t, handler, http.MethodGet, "/api/chats/"+chat.ID+"/usage", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var usage UsageResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &usage))
	assert.Equal(t, 12, usage.TotalTokens)
}

func TestChatUsage_NoneYet(t *testing.T) {
	env := newTestEnv(t, &scriptedSource{})
	_, chat := env.seedChat(t)

	rec := doJSON(t, env.server.Handler(), http.MethodGet, "/api/chats/"+chat.ID+"/usage", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var usage UsageResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &usage))
	assert.Zero(t, usage.TotalTokens)
}

func TestChatExport(t *testing.T) {
	env := newTestEnv(t, &scriptedSource{})
	handler := env.server.Handler()
	_, chat := env.seedChat(t)

	require.NoError(t, env.store.ReplaceChatMessages(context.Background(), chat.ID, []*store.Message{
		{ChatID: chat.ID, Kind: store.MessageKindPlain, IsUser: true, Content: "hello", Timestamp: time.Now()},
	}))

	rec := doJSON(t, handler, http.MethodGet, "/api/chats/"+chat.ID+"/export?format=markdown", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/markdown; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), ".md")
	assert.Contains(t, rec.Body.String(), "## User")

	rec = doJSON(t, handler, http.MethodGet, "/api/chats/"+chat.ID+"/export?format=pdf", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAuthRequiredWhenConfigured(t *testing.T) {
	env := newTestEnv(t, &scriptedSource{})
	verifier := auth.NewJWTVerifier([]byte("test-secret"))
	env.server.verifier = verifier
	handler := env.server.Handler()

	// No token: rejected
	rec := doJSON(t, handler, http.MethodGet, "/api/connections", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Health stays open
	rec = doJSON(t, handler, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Valid token: accepted
	token, err := verifier.Generate("console", time.Hour)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/api/connections", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHealthEndpoints(t *testing.T) {
	env := newTestEnv(t, &scriptedSource{})
	handler := env.server.Handler()

	rec := doJSON(t, handler, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, handler, http.MethodGet, "/health/ready", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, &scriptedSource{})
	rec := doJSON(t, env.server.Handler(), http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "mcpconnect_sends_started_total")
}
