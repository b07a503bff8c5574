// ABOUTME: Shared test fixtures for the console API tests.
// ABOUTME: Provides a real SQLite-backed server with fake upstream and source.

package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/2389/mcpconnect/internal/conversation"
	"github.com/2389/mcpconnect/internal/dedupe"
	"github.com/2389/mcpconnect/internal/events"
	"github.com/2389/mcpconnect/internal/mcpclient"
	"github.com/2389/mcpconnect/internal/store"
	"github.com/2389/mcpconnect/internal/streaming"
)

// fakeTransport answers MCP JSON-RPC calls without a network.
type fakeTransport struct {
	fail bool
}

func (t *fakeTransport) RoundTrip(ctx context.Context, req *mcpclient.Request) (*mcpclient.Response, error) {
	if t.fail {
		return nil, errors.New("connection refused")
	}

	var result string
	switch req.Method {
	case "initialize":
		result = `{"protocolVersion":"2025-03-26","serverInfo":{"name":"fake-mcp","version":"0.1.0"}}`
	case "tools/list":
		result = `{"tools":[{"name":"get_weather","description":"Fetch the weather"}]}`
	case "resources/list":
		result = `{"resources":[{"uri":"file:///notes.txt","name":"notes"}]}`
	default:
		result = `{}`
	}
	return &mcpclient.Response{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result:  json.RawMessage(result),
	}, nil
}

func (t *fakeTransport) Close() error { return nil }

// scriptedSource replays a fixed event sequence for every turn.
type scriptedSource struct {
	events []*events.Event
	err    error
}

func (s *scriptedSource) StartTurn(ctx context.Context, req *TurnRequest) (<-chan *events.Event, error) {
	if s.err != nil {
		return nil, s.err
	}
	ch := make(chan *events.Event, len(s.events))
	for _, e := range s.events {
		ch <- e
	}
	close(ch)
	return ch, nil
}

// testEnv bundles a server with its live collaborators.
type testEnv struct {
	server       *Server
	store        store.Store
	conversation *conversation.Service
	session      *streaming.Session
	upstream     *fakeTransport
}

func newTestEnv(t *testing.T, source EventSource) *testEnv {
	t.Helper()

	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "console.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	broadcaster := conversation.NewBroadcaster(nil)
	t.Cleanup(broadcaster.Close)
	conv := conversation.New(st, broadcaster, nil)
	session := streaming.NewSession(conv, nil)

	cache := dedupe.New(time.Minute, 100)
	t.Cleanup(cache.Close)

	upstream := &fakeTransport{}
	srv := New(Options{
		Store:        st,
		Conversation: conv,
		Session:      session,
		Source:       source,
		Dedupe:       cache,
		Clients: func(ctx context.Context, conn *store.Connection) (*mcpclient.Client, error) {
			if upstream.fail {
				return nil, errors.New("connection refused")
			}
			return mcpclient.New(upstream, nil), nil
		},
		Metrics: NewMetrics(),
	})

	return &testEnv{server: srv, store: st, conversation: conv, session: session, upstream: upstream}
}

// seedChat creates a connection and chat directly in the store.
func (e *testEnv) seedChat(t *testing.T) (*store.Connection, *store.Chat) {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()

	conn := &store.Connection{
		ID:        uuid.New().String(),
		Name:      "local-" + uuid.New().String()[:8],
		URL:       "http://127.0.0.1:9999/mcp",
		Transport: store.TransportHTTP,
		CreatedAt: now,
	}
	require.NoError(t, e.store.CreateConnection(ctx, conn))

	chat := &store.Chat{
		ID:           uuid.New().String(),
		ConnectionID: conn.ID,
		Title:        "Test chat",
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	require.NoError(t, e.store.CreateChat(ctx, chat))
	return conn, chat
}

// newTestHTTPServer wraps the env's handler in an httptest server so SSE
// responses stream through a real connection.
func (e *testEnv) newTestHTTPServer(t *testing.T) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(e.server.Handler())
	t.Cleanup(ts.Close)
	return ts
}
