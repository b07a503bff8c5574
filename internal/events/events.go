// ABOUTME: Typed event model for one streaming assistant turn.
// ABOUTME: Defines the tagged union of turn events and their SSE wire encoding.

package events

import (
	"encoding/json"
	"fmt"
)

// Type identifies the kind of a turn event.
type Type string

const (
	TypeThinking            Type = "thinking"
	TypeToken               Type = "token"
	TypeAssistantPartial    Type = "assistant_partial"
	TypeToolStart           Type = "tool_start"
	TypeToolEnd             Type = "tool_end"
	TypeSemanticSearchStart Type = "semantic_search_start"
	TypeSemanticSearchEnd   Type = "semantic_search_end"
	TypeMessageComplete     Type = "message_complete"
	TypeError               Type = "error"
)

// Terminal reports whether the event kind ends a turn.
func (t Type) Terminal() bool {
	return t == TypeMessageComplete || t == TypeError
}

// Usage carries token consumption for one LLM call.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ToolExecution describes the outcome of a single tool invocation.
type ToolExecution struct {
	ToolName string          `json:"tool_name"`
	Status   string          `json:"status"` // "pending", "success", "error"
	Result   json.RawMessage `json:"result,omitempty"`
	Error    string          `json:"error,omitempty"`
}

// RelevantTool is one semantic-search hit with its relevance score.
type RelevantTool struct {
	Name  string  `json:"name"`
	Score float64 `json:"score"`
}

// MessagePayload is an assistant or tool message as carried on the wire.
// Terminal events deliver the messages to persist in this form.
type MessagePayload struct {
	ID            string         `json:"id,omitempty"`
	Message       string         `json:"message"`
	IsUser        bool           `json:"is_user"`
	MessageOrder  *int           `json:"message_order,omitempty"`
	ToolExecution *ToolExecution `json:"tool_execution,omitempty"`
}

// Event is one element of a turn's event sequence. Type selects which
// payload fields are meaningful; everything else is zero.
type Event struct {
	Type Type `json:"type"`

	// token
	Delta string `json:"delta,omitempty"`

	// assistant_partial
	Content          string `json:"content,omitempty"`
	PartialMessageID string `json:"partial_message_id,omitempty"`

	// tool_start / tool_end
	ToolName      string         `json:"tool_name,omitempty"`
	MessageOrder  *int           `json:"message_order,omitempty"`
	ToolExecution *ToolExecution `json:"tool_execution,omitempty"`

	// semantic_search_start / semantic_search_end
	SemanticSearchID string         `json:"semantic_search_id,omitempty"`
	RelevantTools    []RelevantTool `json:"relevant_tools,omitempty"`
	SearchDurationMS *int64         `json:"search_duration_ms,omitempty"`

	// message_complete
	Usage                 *Usage           `json:"usage,omitempty"`
	AssistantMessage      *MessagePayload  `json:"assistant_message,omitempty"`
	ToolExecutionMessages []MessagePayload `json:"tool_execution_messages,omitempty"`
	FinalAssistantMessage *MessagePayload  `json:"final_assistant_message,omitempty"`

	// error
	Error string `json:"error,omitempty"`
}

// Known reports whether the event kind is one the reducer understands.
// Unknown kinds are preserved so callers can log and skip them.
func (e *Event) Known() bool {
	switch e.Type {
	case TypeThinking, TypeToken, TypeAssistantPartial,
		TypeToolStart, TypeToolEnd,
		TypeSemanticSearchStart, TypeSemanticSearchEnd,
		TypeMessageComplete, TypeError:
		return true
	}
	return false
}

// Encode renders the event as a JSON payload for the SSE data field.
func (e *Event) Encode() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encoding %s event: %w", e.Type, err)
	}
	return data, nil
}

// Decode parses a JSON payload into an Event. Payloads with an unknown
// type still decode successfully; Known reports false for them.
func Decode(data []byte) (*Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("decoding event: %w", err)
	}
	if e.Type == "" {
		return nil, fmt.Errorf("decoding event: missing type")
	}
	return &e, nil
}
