// Package streaming implements the session reducer for streaming chat turns.
//
// # Overview
//
// A Session consumes the ordered event sequence of one assistant turn
// (thinking, tokens, partial messages, tool executions, semantic search,
// terminal completion or error) and produces two things: live UI-facing
// state for rendering the in-progress response, and the final ordered
// message list handed to the conversation bridge on terminal events.
//
// # Turn Lifecycle
//
//	session := streaming.NewSession(bridge, logger)
//	session.SwitchChat(ctx, connID, chatID) // seed usage from history
//	session.Start(connID, chatID)            // capture the session binding
//	for each event: session.Handle(ctx, event)
//
// Handle must be called sequentially: terminal events and tool_end perform
// persistence, and the caller must wait for Handle to return before
// delivering the next event.
//
// # Session Binding
//
// Start snapshots the (connection, chat) pair. Terminal events persist to
// that pair, never to whatever chat is current when they arrive, so a
// response that finishes after the user navigated away still lands in the
// chat that initiated it. SwitchChat and Start both refuse to run while a
// turn is streaming (ErrSessionActive).
//
// # Token Usage
//
// Usage accumulates additively across all turns of a chat. It survives
// terminal events and Reset; only SwitchChat zeroes it, re-seeding from the
// chat's persisted counters.
package streaming
