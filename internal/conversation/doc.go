// Package conversation provides the persistence bridge for chat transcripts.
//
// # Overview
//
// The conversation package sits between the streaming reducer and the store.
// The reducer assembles the final ordered message list for a turn; the
// Service writes it whole and fans out change notifications so console
// views stay live without polling.
//
// # Service
//
// Key operations:
//
//   - LatestMessages(ctx, connID, chatID): persisted transcript at lookup time
//   - UpdateMessages(ctx, connID, chatID, msgs): atomic full-list overwrite
//   - SaveUsage / SavedUsage: cumulative token counters per chat
//   - RefreshAll(ctx, connID): signal derived views to reload
//   - Subscribe(ctx, connID): receive ChatEvents for a connection
//
// # Routing
//
// Every write is addressed by an explicit (connection, chat) pair. The
// Service verifies the chat actually belongs to the connection and returns
// ErrChatMismatch otherwise. This backs the streaming layer's session
// binding: a terminal event always lands in the chat that initiated the
// turn, even if the user has navigated elsewhere by the time it arrives.
package conversation
