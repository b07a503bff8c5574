// ABOUTME: Event source backed by an external LLM bridge over SSE
// ABOUTME: Posts the user turn and decodes the bridge's event stream

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/2389/mcpconnect/internal/events"
	"github.com/2389/mcpconnect/internal/server"
	"github.com/2389/mcpconnect/internal/transport"
)

// bridgeSource turns an external bridge endpoint into a server.EventSource.
// The bridge accepts a JSON turn request and replies with a text/event-stream
// of turn events, which are decoded and fed to the session in order.
type bridgeSource struct {
	url    string
	client *http.Client
	logger *slog.Logger
}

func newBridgeSource(url string, logger *slog.Logger) *bridgeSource {
	return &bridgeSource{
		url:    url,
		client: &http.Client{}, // no timeout: the stream lives as long as the turn
		logger: logger.With("component", "bridge"),
	}
}

// StartTurn posts the turn to the bridge and streams decoded events back on
// the returned channel. The channel is closed at the first terminal event,
// on stream end, or when ctx is cancelled.
func (b *bridgeSource) StartTurn(ctx context.Context, req *server.TurnRequest) (<-chan *events.Event, error) {
	if b.url == "" {
		return nil, errors.New("no bridge configured")
	}

	body, err := json.Marshal(map[string]string{
		"connection_id": req.ConnectionID,
		"chat_id":       req.ChatID,
		"message":       req.Message,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding turn request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building turn request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := b.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("starting turn: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("bridge returned status %d", resp.StatusCode)
	}

	ch := make(chan *events.Event)
	go func() {
		defer close(ch)
		defer func() { _ = resp.Body.Close() }()

		decoder := transport.NewDecoder(resp.Body)
		for {
			event, err := decoder.Next()
			if errors.Is(err, io.EOF) {
				return
			}
			if errors.Is(err, transport.ErrBadFrame) {
				b.logger.Warn("dropping undecodable bridge frame", "error", err)
				continue
			}
			if err != nil {
				// Read failure. The scanner error is sticky, so the stream
				// cannot recover; end the turn.
				b.logger.Warn("bridge stream failed", "error", err)
				return
			}

			select {
			case ch <- event:
			case <-ctx.Done():
				return
			}

			if event.Type.Terminal() {
				return
			}
		}
	}()
	return ch, nil
}
