// Package mcpclient is a thin JSON-RPC client for inspecting MCP servers.
//
// It issues initialize, tools/list, resources/list, tools/call, and ping
// over HTTP POST or a WebSocket connection. The client is deliberately
// minimal: no retries, no backoff, no connection pooling, no reconnection.
// It exists so the console can probe a server and invoke tools by hand, not
// to be a production MCP runtime.
//
// Request IDs come from a per-client monotonic Sequence, so two clients in
// the same process never share an ID space.
package mcpclient
