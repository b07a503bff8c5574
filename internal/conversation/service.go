// ABOUTME: Conversation service is the persistence bridge for chat transcripts
// ABOUTME: All final message lists flow through here - storage is the source of truth

package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/2389/mcpconnect/internal/store"
)

// ErrChatMismatch is returned when a chat does not belong to the given connection
var ErrChatMismatch = errors.New("chat does not belong to connection")

// ConversationStore defines what the service needs from storage
type ConversationStore interface {
	GetChat(ctx context.Context, id string) (*store.Chat, error)
	TouchChat(ctx context.Context, id string, at time.Time) error

	GetChatMessages(ctx context.Context, chatID string) ([]*store.Message, error)
	ReplaceChatMessages(ctx context.Context, chatID string, messages []*store.Message) error

	SaveChatUsage(ctx context.Context, usage *store.ChatUsage) error
	GetChatUsage(ctx context.Context, chatID string) (*store.ChatUsage, error)
}

// Service is the persistence bridge between the streaming reducer and the
// store. Writes are routed by the (connection, chat) pair the caller captured
// at turn start, never by whatever chat is currently displayed.
type Service struct {
	store       ConversationStore
	broadcaster *Broadcaster
	logger      *slog.Logger
}

// New creates a conversation service. Pass nil logger for default.
func New(st ConversationStore, broadcaster *Broadcaster, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:       st,
		broadcaster: broadcaster,
		logger:      logger.With("component", "conversation"),
	}
}

// LatestMessages returns the current persisted transcript for the chat,
// verifying the chat belongs to the given connection.
func (s *Service) LatestMessages(ctx context.Context, connectionID, chatID string) ([]*store.Message, error) {
	if err := s.checkBinding(ctx, connectionID, chatID); err != nil {
		return nil, err
	}
	return s.store.GetChatMessages(ctx, chatID)
}

// UpdateMessages atomically overwrites the chat's transcript with the given
// ordered list, bumps the chat's updated_at, and notifies subscribers.
func (s *Service) UpdateMessages(ctx context.Context, connectionID, chatID string, messages []*store.Message) error {
	if err := s.checkBinding(ctx, connectionID, chatID); err != nil {
		return err
	}

	if err := s.store.ReplaceChatMessages(ctx, chatID, messages); err != nil {
		return fmt.Errorf("replacing messages: %w", err)
	}
	if err := s.store.TouchChat(ctx, chatID, time.Now()); err != nil {
		// The transcript write already succeeded; a stale updated_at only
		// affects chat list ordering.
		s.logger.Warn("failed to bump chat timestamp",
			"chat_id", chatID,
			"error", err)
	}

	s.logger.Debug("transcript updated",
		"connection_id", connectionID,
		"chat_id", chatID,
		"count", len(messages))

	if s.broadcaster != nil {
		s.broadcaster.Publish(connectionID, &ChatEvent{
			Kind:         EventMessagesUpdated,
			ConnectionID: connectionID,
			ChatID:       chatID,
			At:           time.Now(),
		})
	}
	return nil
}

// SaveUsage persists the cumulative token counters for a chat.
func (s *Service) SaveUsage(ctx context.Context, chatID string, usage *store.ChatUsage) error {
	usage.ChatID = chatID
	if err := s.store.SaveChatUsage(ctx, usage); err != nil {
		return fmt.Errorf("saving usage: %w", err)
	}
	return nil
}

// SavedUsage returns the persisted counters for a chat, or nil if the chat
// has no streaming history yet.
func (s *Service) SavedUsage(ctx context.Context, chatID string) (*store.ChatUsage, error) {
	usage, err := s.store.GetChatUsage(ctx, chatID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading usage: %w", err)
	}
	return usage, nil
}

// RefreshAll signals subscribers on the connection that cached derived views
// (tool executions, connection status) should reload from storage.
func (s *Service) RefreshAll(ctx context.Context, connectionID string) error {
	if s.broadcaster != nil {
		s.broadcaster.Publish(connectionID, &ChatEvent{
			Kind:         EventRefresh,
			ConnectionID: connectionID,
			At:           time.Now(),
		})
	}
	return nil
}

// Subscribe registers for chat events on a connection. The subscription is
// cleaned up when ctx is cancelled.
func (s *Service) Subscribe(ctx context.Context, connectionID string) (<-chan *ChatEvent, string) {
	return s.broadcaster.Subscribe(ctx, connectionID)
}

// checkBinding verifies the chat exists and belongs to the connection.
func (s *Service) checkBinding(ctx context.Context, connectionID, chatID string) error {
	chat, err := s.store.GetChat(ctx, chatID)
	if err != nil {
		return fmt.Errorf("resolving chat: %w", err)
	}
	if chat.ConnectionID != connectionID {
		return ErrChatMismatch
	}
	return nil
}
