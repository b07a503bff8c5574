// ABOUTME: Tests for the external bridge event source
// ABOUTME: Covers stream decoding, bad-frame recovery, and reader shutdown

package main

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/mcpconnect/internal/events"
	"github.com/2389/mcpconnect/internal/server"
)

func testBridgeLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func serveBridgeStream(t *testing.T, body string) *bridgeSource {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return newBridgeSource(srv.URL, testBridgeLogger())
}

func collectEvents(t *testing.T, ch <-chan *events.Event) []events.Type {
	t.Helper()
	var seen []events.Type
	for {
		select {
		case event, ok := <-ch:
			if !ok {
				return seen
			}
			seen = append(seen, event.Type)
		case <-time.After(2 * time.Second):
			t.Fatal("bridge channel did not close")
		}
	}
}

func TestBridgeSource_StreamsUntilTerminal(t *testing.T) {
	source := serveBridgeStream(t,
		"data: {\"type\":\"thinking\"}\n\n"+
			"data: {\"type\":\"token\",\"delta\":\"a\"}\n\n"+
			"data: {\"type\":\"message_complete\"}\n\n"+
			"data: {\"type\":\"token\",\"delta\":\"never\"}\n\n")

	ch, err := source.StartTurn(context.Background(), &server.TurnRequest{
		ConnectionID: "conn-1", ChatID: "chat-1", Message: "hi",
	})
	require.NoError(t, err)

	seen := collectEvents(t, ch)
	assert.Equal(t, []events.Type{events.TypeThinking, events.TypeToken, events.TypeMessageComplete}, seen)
}

func TestBridgeSource_SkipsBadFrames(t *testing.T) {
	source := serveBridgeStream(t,
		"data: not json\n\n"+
			"data: {\"type\":\"message_complete\"}\n\n")

	ch, err := source.StartTurn(context.Background(), &server.TurnRequest{
		ConnectionID: "conn-1", ChatID: "chat-1", Message: "hi",
	})
	require.NoError(t, err)

	seen := collectEvents(t, ch)
	assert.Equal(t, []events.Type{events.TypeMessageComplete}, seen)
}

func TestBridgeSource_ClosesOnStreamReadError(t *testing.T) {
	// An over-long SSE line leaves the decoder with a sticky scanner error.
	// The reader must give up on the stream and close the channel rather
	// than retry the decode forever.
	source := serveBridgeStream(t, "data: "+strings.Repeat("x", 2<<20)+"\n\n")

	ch, err := source.StartTurn(context.Background(), &server.TurnRequest{
		ConnectionID: "conn-1", ChatID: "chat-1", Message: "hi",
	})
	require.NoError(t, err)

	seen := collectEvents(t, ch)
	assert.Empty(t, seen)
}

func TestBridgeSource_RequiresURL(t *testing.T) {
	source := newBridgeSource("", testBridgeLogger())
	_, err := source.StartTurn(context.Background(), &server.TurnRequest{})
	assert.Error(t, err)
}

func TestBridgeSource_RejectsNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "busy", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	source := newBridgeSource(srv.URL, testBridgeLogger())
	_, err := source.StartTurn(context.Background(), &server.TurnRequest{})
	assert.ErrorContains(t, err, "503")
}
