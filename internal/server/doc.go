// ABOUTME: Package documentation for the console HTTP API
// ABOUTME: Explains routes, streaming, and collaborator injection

// Package server exposes the console HTTP API.
//
// # Routes
//
//   - POST /api/send: start a streaming turn; the response is an SSE stream
//     of turn events, each applied to the session reducer before forwarding.
//   - GET /api/events?connection_id=X: SSE feed of refresh signals from the
//     conversation broadcaster.
//   - GET/POST /api/connections, GET/DELETE /api/connections/{id},
//     GET /api/connections/{id}/tools|resources (proxied to the upstream
//     MCP server), GET/POST /api/connections/{id}/chats.
//   - GET/DELETE /api/chats/{id}, GET /api/chats/{id}/messages|usage,
//     GET /api/chats/{id}/export?format=text|markdown|json|html.
//   - /health, /health/ready, and an optional Prometheus /metrics endpoint.
//
// # Collaborators
//
// The event producer is an EventSource interface and the upstream MCP
// client is built through a ClientFactory, so both can be substituted in
// tests. Auth is optional: configure a TokenVerifier to require bearer
// tokens on /api routes.
package server
