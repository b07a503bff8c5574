// ABOUTME: HTTP and WebSocket transports for the MCP client
// ABOUTME: One request, one response - serialization is the caller's problem

package mcpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// maxResponseBody caps MCP response bodies (4MB).
const maxResponseBody = 4 << 20

// HTTPTransport posts each JSON-RPC request to a single MCP endpoint URL.
type HTTPTransport struct {
	url    string
	client *http.Client
}

// NewHTTPTransport creates an HTTP transport for the given endpoint.
// A zero timeout defaults to 30 seconds.
func NewHTTPTransport(url string, timeout time.Duration) *HTTPTransport {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &HTTPTransport{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

// RoundTrip posts the request and decodes the JSON-RPC response.
func (t *HTTPTransport) RoundTrip(ctx context.Context, req *Request) (*Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	httpResp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("posting request: %w", err)
	}
	defer func() { _ = httpResp.Body.Close() }()

	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", httpResp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	return &resp, nil
}

// Close is a no-op for the HTTP transport.
func (t *HTTPTransport) Close() error {
	return nil
}

// WSTransport sends JSON-RPC requests over a single WebSocket connection.
// Requests are serialized: one in flight at a time, responses assumed to
// arrive in request order. Responses whose ID does not match the request in
// flight are discarded.
type WSTransport struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

// DialWS opens a WebSocket connection to the given ws:// or wss:// URL.
func DialWS(ctx context.Context, url string) (*WSTransport, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", url, err)
	}
	return &WSTransport{conn: conn}, nil
}

// RoundTrip writes the request and reads frames until the matching response.
func (t *WSTransport) RoundTrip(ctx context.Context, req *Request) (*Response, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if deadline, ok := ctx.Deadline(); ok {
		_ = t.conn.SetWriteDeadline(deadline)
		_ = t.conn.SetReadDeadline(deadline)
	}

	if err := t.conn.WriteJSON(req); err != nil {
		return nil, fmt.Errorf("writing request: %w", err)
	}

	for {
		var resp Response
		if err := t.conn.ReadJSON(&resp); err != nil {
			return nil, fmt.Errorf("reading response: %w", err)
		}
		if resp.ID == req.ID {
			return &resp, nil
		}
		// Notification or stale response; skip it.
	}
}

// Close closes the WebSocket connection.
func (t *WSTransport) Close() error {
	return t.conn.Close()
}

// Ensure both transports implement Transport.
var (
	_ Transport = (*HTTPTransport)(nil)
	_ Transport = (*WSTransport)(nil)
)
