// ABOUTME: Live state of an in-progress streaming turn
// ABOUTME: Holds content, status, tool messages, turn context, and search substate

package streaming

import (
	"time"

	"github.com/2389/mcpconnect/internal/events"
)

// ToolMessage tracks one tool invocation observed this turn. It is created
// in executing form on tool_start and mutated in place to its completed form
// on the matching tool_end.
type ToolMessage struct {
	ID            string
	Message       string
	IsUser        bool // always false
	IsPartial     bool
	IsExecuting   bool
	ExecutingTool string
	Timestamp     time.Time
	MessageOrder  *int
	ToolExecution *events.ToolExecution
}

// TurnContext is bookkeeping for reconciling partial and tool messages
// before final persistence. Reset every turn.
type TurnContext struct {
	HasPartialMessage       bool
	PartialMessageID        string
	ToolExecutionMessageIDs []string // append-only within a turn
}

// SemanticSearch is the substate for the optional tool-relevance
// pre-filtering phase.
type SemanticSearch struct {
	IsSearching      bool
	SearchID         string
	RelevantTools    []events.RelevantTool
	SearchDurationMS *int64
	StartTime        *time.Time
}

// State is a snapshot of the live streaming state, safe to hand to renderers
// while events keep arriving.
type State struct {
	IsStreaming    bool
	Phase          Phase
	Content        string
	Status         string
	ToolMessages   []ToolMessage
	Context        TurnContext
	SemanticSearch SemanticSearch
	Usage          Usage

	// Session binding captured at Start; terminal writes are routed here,
	// not to whatever chat is current when the event arrives.
	ConnectionID string
	ChatID       string
}
