// ABOUTME: Message persistence for chat transcripts
// ABOUTME: Provides ordered reads and atomic full-list replacement per chat

package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// GetChatMessages returns all messages for a chat in transcript order
func (s *SQLiteStore) GetChatMessages(ctx context.Context, chatID string) ([]*Message, error) {
	query := `
		SELECT id, chat_id, kind, is_user, content, msg_order, timestamp,
		       tool_name, tool_status, tool_result, tool_error
		FROM messages
		WHERE chat_id = ?
		ORDER BY msg_order ASC
	`
	rows, err := s.db.QueryContext(ctx, query, chatID)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var messages []*Message
	for rows.Next() {
		msg := &Message{}
		var isUser int
		var timestamp string
		err := rows.Scan(
			&msg.ID,
			&msg.ChatID,
			&msg.Kind,
			&isUser,
			&msg.Content,
			&msg.Order,
			&timestamp,
			&msg.ToolName,
			&msg.ToolStatus,
			&msg.ToolResult,
			&msg.ToolError,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning message row: %w", err)
		}
		msg.IsUser = isUser != 0
		msg.Timestamp, err = time.Parse(time.RFC3339, timestamp)
		if err != nil {
			return nil, fmt.Errorf("parsing timestamp: %w", err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating message rows: %w", err)
	}
	return messages, nil
}

// ReplaceChatMessages atomically overwrites the full message list for a chat.
// The transcript is always written whole so readers never observe a partial
// turn. Message order is taken from the slice position; any Order value on
// the incoming messages is ignored.
func (s *SQLiteStore) ReplaceChatMessages(ctx context.Context, chatID string, messages []*Message) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE chat_id = ?`, chatID); err != nil {
		return fmt.Errorf("clearing messages: %w", err)
	}

	insert := `
		INSERT INTO messages (
			id, chat_id, kind, is_user, content, msg_order, timestamp,
			tool_name, tool_status, tool_result, tool_error
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	for i, msg := range messages {
		if msg.ID == "" {
			msg.ID = uuid.New().String()
		}
		isUser := 0
		if msg.IsUser {
			isUser = 1
		}
		kind := msg.Kind
		if kind == "" {
			kind = MessageKindPlain
		}
		_, err := tx.ExecContext(ctx, insert,
			msg.ID,
			chatID,
			kind,
			isUser,
			msg.Content,
			i,
			msg.Timestamp.UTC().Format(time.RFC3339),
			msg.ToolName,
			msg.ToolStatus,
			msg.ToolResult,
			msg.ToolError,
		)
		if err != nil {
			return fmt.Errorf("inserting message %s: %w", msg.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing messages: %w", err)
	}

	s.logger.Debug("chat messages replaced",
		"chat_id", chatID,
		"count", len(messages))
	return nil
}
