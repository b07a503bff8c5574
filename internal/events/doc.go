// Package events defines the typed event model for streaming chat turns.
//
// # Overview
//
// One assistant turn is delivered as an ordered sequence of events: optional
// thinking and semantic-search phases, incremental text tokens, tool
// executions, and exactly one terminal event (message_complete or error).
//
// # Event Shape
//
// Event is a tagged union: the Type field selects which payload fields are
// meaningful. The wire encoding is JSON, carried in SSE data frames:
//
//	{"type":"token","delta":"Hi"}
//	{"type":"tool_start","tool_name":"search","message_order":3}
//	{"type":"message_complete","usage":{"prompt_tokens":10,...},...}
//
// # Ordering
//
// Producers are expected to emit events in turn order. This package only
// defines shapes; sequencing rules live in the streaming package.
package events
