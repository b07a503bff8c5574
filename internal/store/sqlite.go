// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides connection/chat persistence with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS connections (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			url TEXT NOT NULL,
			transport TEXT NOT NULL,
			created_at DATETIME NOT NULL
		);

		CREATE UNIQUE INDEX IF NOT EXISTS idx_connections_name
			ON connections(name);

		CREATE TABLE IF NOT EXISTS chats (
			id TEXT PRIMARY KEY,
			connection_id TEXT NOT NULL,
			title TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			FOREIGN KEY (connection_id) REFERENCES connections(id) ON DELETE CASCADE
		);

		CREATE INDEX IF NOT EXISTS idx_chats_connection
			ON chats(connection_id);

		CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			chat_id TEXT NOT NULL,
			kind TEXT NOT NULL DEFAULT 'plain',
			is_user INTEGER NOT NULL DEFAULT 0,
			content TEXT NOT NULL,
			msg_order INTEGER NOT NULL,
			timestamp DATETIME NOT NULL,
			tool_name TEXT NOT NULL DEFAULT '',
			tool_status TEXT NOT NULL DEFAULT '',
			tool_result TEXT NOT NULL DEFAULT '',
			tool_error TEXT NOT NULL DEFAULT '',
			FOREIGN KEY (chat_id) REFERENCES chats(id) ON DELETE CASCADE
		);

		CREATE INDEX IF NOT EXISTS idx_messages_chat_order
			ON messages(chat_id, msg_order);

		CREATE TABLE IF NOT EXISTS chat_usage (
			chat_id TEXT PRIMARY KEY,
			prompt_tokens INTEGER NOT NULL DEFAULT 0,
			completion_tokens INTEGER NOT NULL DEFAULT 0,
			total_tokens INTEGER NOT NULL DEFAULT 0,
			updated_at DATETIME NOT NULL,
			FOREIGN KEY (chat_id) REFERENCES chats(id) ON DELETE CASCADE
		);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("executing schema: %w", err)
	}
	return nil
}

// CreateConnection inserts a new MCP connection record
func (s *SQLiteStore) CreateConnection(ctx context.Context, conn *Connection) error {
	query := `
		INSERT INTO connections (id, name, url, transport, created_at)
		VALUES (?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		conn.ID,
		conn.Name,
		conn.URL,
		conn.Transport,
		conn.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateConnection
		}
		return fmt.Errorf("inserting connection: %w", err)
	}

	s.logger.Debug("connection created",
		"connection_id", conn.ID,
		"name", conn.Name,
		"transport", conn.Transport)
	return nil
}

// GetConnection retrieves a connection by ID
func (s *SQLiteStore) GetConnection(ctx context.Context, id string) (*Connection, error) {
	query := `
		SELECT id, name, url, transport, created_at
		FROM connections
		WHERE id = ?
	`
	conn := &Connection{}
	var createdAt string
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&conn.ID,
		&conn.Name,
		&conn.URL,
		&conn.Transport,
		&createdAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying connection: %w", err)
	}

	conn.CreatedAt, err = time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	return conn, nil
}

// ListConnections returns all registered connections, newest first
func (s *SQLiteStore) ListConnections(ctx context.Context) ([]*Connection, error) {
	query := `
		SELECT id, name, url, transport, created_at
		FROM connections
		ORDER BY created_at DESC
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying connections: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var conns []*Connection
	for rows.Next() {
		conn := &Connection{}
		var createdAt string
		if err := rows.Scan(&conn.ID, &conn.Name, &conn.URL, &conn.Transport, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning connection row: %w", err)
		}
		conn.CreatedAt, err = time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		conns = append(conns, conn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating connection rows: %w", err)
	}
	return conns, nil
}

// DeleteConnection removes a connection and cascades to its chats
func (s *SQLiteStore) DeleteConnection(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM connections WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting connection: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateChat inserts a new chat record
func (s *SQLiteStore) CreateChat(ctx context.Context, chat *Chat) error {
	query := `
		INSERT INTO chats (id, connection_id, title, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		chat.ID,
		chat.ConnectionID,
		chat.Title,
		chat.CreatedAt.UTC().Format(time.RFC3339),
		chat.UpdatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting chat: %w", err)
	}

	s.logger.Debug("chat created",
		"chat_id", chat.ID,
		"connection_id", chat.ConnectionID)
	return nil
}

// GetChat retrieves a chat by ID
func (s *SQLiteStore) GetChat(ctx context.Context, id string) (*Chat, error) {
	query := `
		SELECT id, connection_id, title, created_at, updated_at
		FROM chats
		WHERE id = ?
	`
	chat := &Chat{}
	var createdAt, updatedAt string
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&chat.ID,
		&chat.ConnectionID,
		&chat.Title,
		&createdAt,
		&updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying chat: %w", err)
	}

	if chat.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if chat.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	return chat, nil
}

// ListChats returns all chats for a connection, most recently updated first
func (s *SQLiteStore) ListChats(ctx context.Context, connectionID string) ([]*Chat, error) {
	query := `
		SELECT id, connection_id, title, created_at, updated_at
		FROM chats
		WHERE connection_id = ?
		ORDER BY updated_at DESC
	`
	rows, err := s.db.QueryContext(ctx, query, connectionID)
	if err != nil {
		return nil, fmt.Errorf("querying chats: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var chats []*Chat
	for rows.Next() {
		chat := &Chat{}
		var createdAt, updatedAt string
		if err := rows.Scan(&chat.ID, &chat.ConnectionID, &chat.Title, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scanning chat row: %w", err)
		}
		if chat.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		if chat.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
			return nil, fmt.Errorf("parsing updated_at: %w", err)
		}
		chats = append(chats, chat)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating chat rows: %w", err)
	}
	return chats, nil
}

// TouchChat bumps a chat's updated_at timestamp
func (s *SQLiteStore) TouchChat(ctx context.Context, id string, at time.Time) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE chats SET updated_at = ? WHERE id = ?`,
		at.UTC().Format(time.RFC3339), id)
	if err != nil {
		return fmt.Errorf("touching chat: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteChat removes a chat and cascades to its messages and usage
func (s *SQLiteStore) DeleteChat(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM chats WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting chat: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// Close closes the underlying database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// isUniqueViolation reports whether the error is a SQLite unique constraint failure
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// Ensure SQLiteStore implements the Store interface
var _ Store = (*SQLiteStore)(nil)
