// Package store provides persistence for mcpconnect data.
//
// # Overview
//
// The store is a two-level keyed transcript store: connections own chats,
// chats own an ordered message list plus cumulative token usage. SQLite is
// the only backing implementation (modernc.org/sqlite, pure Go).
//
// # Entities
//
//   - Connection: a registered MCP server endpoint (URL + transport)
//   - Chat: one conversation against a connection
//   - Message: a typed transcript entry (plain, tool, or error variant)
//   - ChatUsage: cumulative token counters for a chat
//
// # Message Replacement
//
// Transcripts are written whole via ReplaceChatMessages, which swaps the
// entire list inside one transaction. The streaming layer assembles the
// final ordered list for a turn and hands it over in a single call, so a
// reader never sees a half-persisted turn.
//
// # Errors
//
// Lookups return ErrNotFound for missing entities. CreateConnection returns
// ErrDuplicateConnection when the connection name is already taken.
package store
