// ABOUTME: Streaming session reducer - applies turn events to live state
// ABOUTME: Persists final ordered message lists through the conversation bridge

package streaming

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/2389/mcpconnect/internal/events"
	"github.com/2389/mcpconnect/internal/store"
)

// defaultErrorText is used when an error event carries no message.
const defaultErrorText = "An unknown error occurred"

// Bridge defines what the session needs from the persistence layer.
// conversation.Service satisfies this.
type Bridge interface {
	LatestMessages(ctx context.Context, connectionID, chatID string) ([]*store.Message, error)
	UpdateMessages(ctx context.Context, connectionID, chatID string, messages []*store.Message) error
	SaveUsage(ctx context.Context, chatID string, usage *store.ChatUsage) error
	SavedUsage(ctx context.Context, chatID string) (*store.ChatUsage, error)
	RefreshAll(ctx context.Context, connectionID string) error
}

// Session consumes the event sequence of one assistant turn and maintains
// the UI-facing streaming state. Events must be delivered one at a time, in
// arrival order: Handle performs persistence on terminal events and the
// caller must wait for it to return before delivering the next event. The
// internal mutex only makes State snapshots safe, it does not make
// concurrent Handle calls meaningful.
type Session struct {
	mu     sync.Mutex
	bridge Bridge
	logger *slog.Logger

	phase       Phase
	isStreaming bool
	buffer      strings.Builder // token accumulation, mirrored into content
	content     string
	status      string

	toolMessages   []ToolMessage
	turnContext    TurnContext
	semanticSearch SemanticSearch
	usage          Usage

	// Session binding captured at Start. Terminal events write to this
	// pair even if the user has navigated to a different chat since.
	connectionID string
	chatID       string
}

// NewSession creates a session reducer. Pass nil logger for default.
func NewSession(bridge Bridge, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		bridge: bridge,
		logger: logger.With("component", "streaming"),
	}
}

// Start begins a turn bound to the given (connection, chat) pair. Transient
// state from any previous turn is cleared; cumulative usage is preserved.
// Returns ErrSessionActive if a turn is already streaming.
func (s *Session) Start(connectionID, chatID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isStreaming {
		return ErrSessionActive
	}

	s.clearTransientLocked()
	s.connectionID = connectionID
	s.chatID = chatID
	s.isStreaming = true
	s.phase = PhaseThinking

	s.logger.Debug("turn started",
		"connection_id", connectionID,
		"chat_id", chatID)
	return nil
}

// SwitchChat re-targets the session to a different chat: transient state is
// cleared and the usage counters are re-seeded from that chat's persisted
// history. This is the only path that resets usage. Rejected while a turn is
// streaming so the active session binding cannot be clobbered mid-turn.
func (s *Session) SwitchChat(ctx context.Context, connectionID, chatID string) error {
	s.mu.Lock()
	if s.isStreaming {
		s.mu.Unlock()
		return ErrSessionActive
	}
	s.mu.Unlock()

	saved, err := s.bridge.SavedUsage(ctx, chatID)
	if err != nil {
		return fmt.Errorf("seeding usage for chat %s: %w", chatID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.clearTransientLocked()
	s.isStreaming = false
	s.phase = PhaseIdle
	s.connectionID = connectionID
	s.chatID = chatID
	s.usage.Reset()
	s.usage.InitializeFrom(saved)

	s.logger.Debug("chat switched",
		"connection_id", connectionID,
		"chat_id", chatID,
		"seeded_total_tokens", s.usage.TotalTokens)
	return nil
}

// Reset clears all transient turn state. Idempotent; cumulative usage and
// the session binding are preserved until the next Start.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearTransientLocked()
	s.isStreaming = false
	s.phase = PhaseIdle
}

// Handle applies one turn event to the state. Unknown event kinds are a
// no-op. Persistence failures on tool_end and terminal events are returned
// to the caller, not retried.
func (s *Session) Handle(ctx context.Context, event *events.Event) error {
	if !event.Known() {
		s.logger.Debug("ignoring unknown event kind", "type", event.Type)
		return nil
	}

	switch event.Type {
	case events.TypeThinking:
		s.handleThinking()
	case events.TypeToken:
		s.handleToken(event)
	case events.TypeAssistantPartial:
		s.handleAssistantPartial(event)
	case events.TypeToolStart:
		s.handleToolStart(event)
	case events.TypeToolEnd:
		return s.handleToolEnd(ctx, event)
	case events.TypeSemanticSearchStart:
		s.handleSearchStart(event)
	case events.TypeSemanticSearchEnd:
		s.handleSearchEnd(event)
	case events.TypeMessageComplete:
		return s.handleComplete(ctx, event)
	case events.TypeError:
		return s.handleError(ctx, event)
	}
	return nil
}

func (s *Session) handleThinking() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.phase = PhaseThinking
	s.status = "thinking..."
	s.buffer.Reset()
	s.content = ""
	s.turnContext = TurnContext{}
}

func (s *Session) handleToken(event *events.Event) {
	if event.Delta == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.phase = PhaseStreaming
	s.buffer.WriteString(event.Delta)
	s.content = s.buffer.String()
	s.status = "streaming..."
}

func (s *Session) handleAssistantPartial(event *events.Event) {
	if event.Content == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	// A full partial message supersedes token-by-token streaming: the
	// buffer is dropped and the content is set directly.
	s.phase = PhaseStreaming
	s.buffer.Reset()
	s.content = event.Content
	s.turnContext.HasPartialMessage = true
	if event.PartialMessageID != "" {
		s.turnContext.PartialMessageID = event.PartialMessageID
	} else {
		s.turnContext.PartialMessageID = uuid.New().String()
	}
}

func (s *Session) handleToolStart(event *events.Event) {
	if event.ToolName == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	msg := ToolMessage{
		ID:            uuid.New().String(),
		Message:       fmt.Sprintf("Executing %s...", event.ToolName),
		IsPartial:     true,
		IsExecuting:   true,
		ExecutingTool: event.ToolName,
		Timestamp:     time.Now(),
		MessageOrder:  event.MessageOrder,
	}
	s.toolMessages = append(s.toolMessages, msg)
	s.turnContext.ToolExecutionMessageIDs = append(s.turnContext.ToolExecutionMessageIDs, msg.ID)
	s.phase = PhaseToolRunning
	s.status = fmt.Sprintf("executing %s...", event.ToolName)
}

func (s *Session) handleToolEnd(ctx context.Context, event *events.Event) error {
	if event.ToolName == "" {
		return nil
	}
	s.mu.Lock()
	for i := range s.toolMessages {
		msg := &s.toolMessages[i]
		if !msg.IsExecuting || msg.ExecutingTool != event.ToolName {
			continue
		}
		msg.IsExecuting = false
		msg.IsPartial = false
		msg.Message = fmt.Sprintf("Executed %s", event.ToolName)
		execution := &events.ToolExecution{
			ToolName: event.ToolName,
			Status:   "success",
		}
		if event.ToolExecution != nil {
			if event.ToolExecution.Status != "" {
				execution.Status = event.ToolExecution.Status
			}
			execution.Result = event.ToolExecution.Result
			execution.Error = event.ToolExecution.Error
		}
		msg.ToolExecution = execution
		break
	}
	s.phase = PhaseStreaming
	s.status = fmt.Sprintf("completed %s", event.ToolName)
	connectionID := s.connectionID
	s.mu.Unlock()

	// Refresh runs even when no executing tool message matched, so derived
	// views pick up whatever the tool wrote.
	if connectionID != "" {
		if err := s.bridge.RefreshAll(ctx, connectionID); err != nil {
			return fmt.Errorf("refreshing after %s: %w", event.ToolName, err)
		}
	}
	return nil
}

func (s *Session) handleSearchStart(event *events.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	searchID := event.SemanticSearchID
	if searchID == "" {
		searchID = uuid.New().String()
	}
	now := time.Now()
	s.semanticSearch = SemanticSearch{
		IsSearching: true,
		SearchID:    searchID,
		StartTime:   &now,
	}
	s.phase = PhaseSearching
	s.status = "searching for relevant tools..."
}

func (s *Session) handleSearchEnd(event *events.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.semanticSearch.IsSearching = false
	s.semanticSearch.RelevantTools = event.RelevantTools
	if event.SearchDurationMS != nil {
		s.semanticSearch.SearchDurationMS = event.SearchDurationMS
	} else if s.semanticSearch.StartTime != nil {
		elapsed := time.Since(*s.semanticSearch.StartTime).Milliseconds()
		s.semanticSearch.SearchDurationMS = &elapsed
	}
	s.phase = PhaseThinking
	s.status = ""
}

func (s *Session) handleComplete(ctx context.Context, event *events.Event) error {
	s.mu.Lock()
	s.buffer.Reset()
	s.content = ""
	s.status = ""
	s.semanticSearch = SemanticSearch{}

	if event.Usage != nil {
		s.usage.Accumulate(*event.Usage)
	}

	connectionID, chatID := s.connectionID, s.chatID
	usageSnapshot := s.usage
	s.mu.Unlock()

	if event.Usage != nil && chatID != "" {
		if err := s.bridge.SaveUsage(ctx, chatID, &store.ChatUsage{
			PromptTokens:     usageSnapshot.PromptTokens,
			CompletionTokens: usageSnapshot.CompletionTokens,
			TotalTokens:      usageSnapshot.TotalTokens,
			UpdatedAt:        time.Now(),
		}); err != nil {
			return fmt.Errorf("persisting usage: %w", err)
		}
	}

	if event.AssistantMessage != nil {
		if connectionID == "" || chatID == "" {
			// Soft fail: without a session binding there is no chat to
			// write to. Observable in logs, not an error.
			s.logger.Warn("no session binding at message_complete, dropping messages")
		} else {
			if err := s.persistFinalMessages(ctx, connectionID, chatID, event); err != nil {
				return err
			}
		}
	}

	s.mu.Lock()
	s.toolMessages = nil
	s.turnContext = TurnContext{}
	s.isStreaming = false
	s.phase = PhaseIdle
	s.mu.Unlock()

	if connectionID != "" {
		if err := s.bridge.RefreshAll(ctx, connectionID); err != nil {
			return fmt.Errorf("refreshing after completion: %w", err)
		}
	}
	return nil
}

// persistFinalMessages assembles the final ordered transcript for the bound
// chat: latest persisted messages, then the assistant message, then tool
// execution messages, then the final assistant message, in that fixed order.
func (s *Session) persistFinalMessages(ctx context.Context, connectionID, chatID string, event *events.Event) error {
	latest, err := s.bridge.LatestMessages(ctx, connectionID, chatID)
	if err != nil {
		return fmt.Errorf("loading latest messages: %w", err)
	}

	final := append([]*store.Message{}, latest...)
	final = append(final, messageFromPayload(chatID, event.AssistantMessage))
	for i := range event.ToolExecutionMessages {
		final = append(final, messageFromPayload(chatID, &event.ToolExecutionMessages[i]))
	}
	if event.FinalAssistantMessage != nil {
		final = append(final, messageFromPayload(chatID, event.FinalAssistantMessage))
	}
	for i, msg := range final {
		msg.Order = i
	}

	if err := s.bridge.UpdateMessages(ctx, connectionID, chatID, final); err != nil {
		return fmt.Errorf("persisting final messages: %w", err)
	}

	s.logger.Debug("turn persisted",
		"connection_id", connectionID,
		"chat_id", chatID,
		"message_count", len(final))
	return nil
}

func (s *Session) handleError(ctx context.Context, event *events.Event) error {
	s.mu.Lock()
	s.buffer.Reset()
	s.content = ""
	s.status = ""
	connectionID, chatID := s.connectionID, s.chatID
	s.mu.Unlock()

	text := event.Error
	if text == "" {
		text = defaultErrorText
	}

	var persistErr error
	if connectionID != "" && chatID != "" {
		latest, err := s.bridge.LatestMessages(ctx, connectionID, chatID)
		if err != nil {
			persistErr = fmt.Errorf("loading latest messages: %w", err)
		} else {
			final := append([]*store.Message{}, latest...)
			final = append(final, &store.Message{
				ID:        uuid.New().String(),
				ChatID:    chatID,
				Kind:      store.MessageKindError,
				Content:   "Error: " + text,
				Order:     len(final),
				Timestamp: time.Now(),
			})
			if err := s.bridge.UpdateMessages(ctx, connectionID, chatID, final); err != nil {
				persistErr = fmt.Errorf("persisting error message: %w", err)
			}
		}
	}

	s.mu.Lock()
	s.toolMessages = nil
	s.turnContext = TurnContext{}
	s.semanticSearch = SemanticSearch{}
	s.isStreaming = false
	s.phase = PhaseIdle
	s.mu.Unlock()

	return persistErr
}

// State returns a snapshot of the live streaming state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := State{
		IsStreaming:    s.isStreaming,
		Phase:          s.phase,
		Content:        s.content,
		Status:         s.status,
		Context:        s.turnContext,
		SemanticSearch: s.semanticSearch,
		Usage:          s.usage,
		ConnectionID:   s.connectionID,
		ChatID:         s.chatID,
	}
	snapshot.ToolMessages = append([]ToolMessage{}, s.toolMessages...)
	snapshot.Context.ToolExecutionMessageIDs = append([]string{}, s.turnContext.ToolExecutionMessageIDs...)
	snapshot.SemanticSearch.RelevantTools = append([]events.RelevantTool{}, s.semanticSearch.RelevantTools...)
	return snapshot
}

// Usage returns the current cumulative token counters.
func (s *Session) Usage() Usage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.usage
}

// clearTransientLocked zeroes everything scoped to a single turn. Callers
// hold s.mu. Usage and the session binding are left untouched.
func (s *Session) clearTransientLocked() {
	s.buffer.Reset()
	s.content = ""
	s.status = ""
	s.toolMessages = nil
	s.turnContext = TurnContext{}
	s.semanticSearch = SemanticSearch{}
}

// messageFromPayload converts a wire message payload into a stored message.
// Payloads carrying a tool execution become the tool variant.
func messageFromPayload(chatID string, payload *events.MessagePayload) *store.Message {
	id := payload.ID
	if id == "" {
		id = uuid.New().String()
	}
	msg := &store.Message{
		ID:        id,
		ChatID:    chatID,
		Kind:      store.MessageKindPlain,
		IsUser:    payload.IsUser,
		Content:   payload.Message,
		Timestamp: time.Now(),
	}
	if payload.MessageOrder != nil {
		msg.Order = *payload.MessageOrder
	}
	if payload.ToolExecution != nil {
		msg.Kind = store.MessageKindTool
		msg.ToolName = payload.ToolExecution.ToolName
		msg.ToolStatus = payload.ToolExecution.Status
		msg.ToolResult = string(payload.ToolExecution.Result)
		msg.ToolError = payload.ToolExecution.Error
	}
	return msg
}
