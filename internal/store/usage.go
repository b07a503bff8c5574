// ABOUTME: SQLite implementation for per-chat token usage tracking
// ABOUTME: Stores cumulative LLM token counters used to seed the live accumulator

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SaveChatUsage upserts the cumulative token counters for a chat.
func (s *SQLiteStore) SaveChatUsage(ctx context.Context, usage *ChatUsage) error {
	query := `
		INSERT INTO chat_usage (chat_id, prompt_tokens, completion_tokens, total_tokens, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(chat_id) DO UPDATE SET
			prompt_tokens = excluded.prompt_tokens,
			completion_tokens = excluded.completion_tokens,
			total_tokens = excluded.total_tokens,
			updated_at = excluded.updated_at
	`
	_, err := s.db.ExecContext(ctx, query,
		usage.ChatID,
		usage.PromptTokens,
		usage.CompletionTokens,
		usage.TotalTokens,
		usage.UpdatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("saving chat usage: %w", err)
	}

	s.logger.Debug("saved chat usage",
		"chat_id", usage.ChatID,
		"prompt_tokens", usage.PromptTokens,
		"completion_tokens", usage.CompletionTokens,
		"total_tokens", usage.TotalTokens,
	)
	return nil
}

// GetChatUsage retrieves the cumulative token counters for a chat.
// Returns ErrNotFound if the chat has no recorded usage.
func (s *SQLiteStore) GetChatUsage(ctx context.Context, chatID string) (*ChatUsage, error) {
	query := `
		SELECT chat_id, prompt_tokens, completion_tokens, total_tokens, updated_at
		FROM chat_usage
		WHERE chat_id = ?
	`
	usage := &ChatUsage{}
	var updatedAt string
	err := s.db.QueryRowContext(ctx, query, chatID).Scan(
		&usage.ChatID,
		&usage.PromptTokens,
		&usage.CompletionTokens,
		&usage.TotalTokens,
		&updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying chat usage: %w", err)
	}

	usage.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt)
	if err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	return usage, nil
}
