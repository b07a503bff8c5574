// ABOUTME: Thin MCP client issuing JSON-RPC requests over HTTP or WebSocket.
// ABOUTME: No retry, no pooling, no reconnection - a debugging probe, not a runtime.

package mcpclient

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
)

// protocolVersion is the MCP protocol revision we advertise on initialize.
const protocolVersion = "2025-03-26"

// JSON-RPC 2.0 types

// Request represents a JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// Response represents a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *ResponseError  `json:"error,omitempty"`
}

// ResponseError represents a JSON-RPC 2.0 error object.
type ResponseError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// MCP result types

// ServerInfo describes the MCP server reached by initialize.
type ServerInfo struct {
	Name            string `json:"name"`
	Version         string `json:"version"`
	ProtocolVersion string `json:"-"`
}

// Tool is one entry from tools/list.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"inputSchema,omitempty"`
}

// Resource is one entry from resources/list.
type Resource struct {
	URI         string `json:"uri"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
	MimeType    string `json:"mimeType,omitempty"`
}

// ContentBlock is one element of a tool call result.
type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// ToolResult is the outcome of tools/call.
type ToolResult struct {
	Content []ContentBlock `json:"content"`
	IsError bool           `json:"isError,omitempty"`
}

// Sequence issues monotonically increasing JSON-RPC request IDs. Each client
// owns its own Sequence, so separate clients can never collide on IDs.
type Sequence struct {
	n atomic.Int64
}

// Next returns the next request ID.
func (s *Sequence) Next() int64 {
	return s.n.Add(1)
}

// Transport moves one JSON-RPC request/response pair over the wire.
type Transport interface {
	RoundTrip(ctx context.Context, req *Request) (*Response, error)
	Close() error
}

// Client is a thin MCP client over a single transport.
type Client struct {
	transport Transport
	ids       *Sequence
	logger    *slog.Logger
}

// New creates a client over the given transport. Pass nil logger for default.
func New(transport Transport, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		transport: transport,
		ids:       &Sequence{},
		logger:    logger.With("component", "mcpclient"),
	}
}

// call issues one request and decodes the result into out.
func (c *Client) call(ctx context.Context, method string, params, out any) error {
	req := &Request{
		JSONRPC: "2.0",
		ID:      c.ids.Next(),
		Method:  method,
		Params:  params,
	}

	resp, err := c.transport.RoundTrip(ctx, req)
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	if resp.Error != nil {
		return fmt.Errorf("%s: %w", method, resp.Error)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Result, out); err != nil {
		return fmt.Errorf("%s: decoding result: %w", method, err)
	}
	return nil
}

// Initialize performs the MCP handshake and returns server identity.
func (c *Client) Initialize(ctx context.Context) (*ServerInfo, error) {
	params := map[string]any{
		"protocolVersion": protocolVersion,
		"capabilities":    map[string]any{},
		"clientInfo": map[string]any{
			"name":    "mcpconnect",
			"version": "1.0",
		},
	}
	var result struct {
		ProtocolVersion string     `json:"protocolVersion"`
		ServerInfo      ServerInfo `json:"serverInfo"`
	}
	if err := c.call(ctx, "initialize", params, &result); err != nil {
		return nil, err
	}
	info := result.ServerInfo
	info.ProtocolVersion = result.ProtocolVersion

	c.logger.Debug("initialized",
		"server", info.Name,
		"version", info.Version,
		"protocol", info.ProtocolVersion)
	return &info, nil
}

// ListTools returns the server's tool catalog.
func (c *Client) ListTools(ctx context.Context) ([]Tool, error) {
	var result struct {
		Tools []Tool `json:"tools"`
	}
	if err := c.call(ctx, "tools/list", map[string]any{}, &result); err != nil {
		return nil, err
	}
	return result.Tools, nil
}

// ListResources returns the server's resource catalog.
func (c *Client) ListResources(ctx context.Context) ([]Resource, error) {
	var result struct {
		Resources []Resource `json:"resources"`
	}
	if err := c.call(ctx, "resources/list", map[string]any{}, &result); err != nil {
		return nil, err
	}
	return result.Resources, nil
}

// CallTool invokes a tool by name with the given arguments.
func (c *Client) CallTool(ctx context.Context, name string, arguments map[string]any) (*ToolResult, error) {
	params := map[string]any{
		"name":      name,
		"arguments": arguments,
	}
	var result ToolResult
	if err := c.call(ctx, "tools/call", params, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Ping checks the server is responsive.
func (c *Client) Ping(ctx context.Context) error {
	return c.call(ctx, "ping", nil, nil)
}

// Close releases the underlying transport.
func (c *Client) Close() error {
	return c.transport.Close()
}
