// ABOUTME: Store interface and data types for mcpconnect persistence
// ABOUTME: Defines Connection, Chat, Message structs and the Store interface

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrDuplicateConnection is returned when trying to create a connection whose name is taken
var ErrDuplicateConnection = errors.New("connection already exists")

// Transport constants for MCP connection transports
const (
	TransportHTTP      = "http"
	TransportWebSocket = "websocket"
)

// Connection represents a registered MCP server endpoint
type Connection struct {
	ID        string
	Name      string
	URL       string
	Transport string // "http" or "websocket"
	CreatedAt time.Time
}

// Chat represents one conversation against a connection
type Chat struct {
	ID           string
	ConnectionID string
	Title        string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// MessageKind constants for the message variant
const (
	MessageKindPlain = "plain" // Regular user/assistant text message
	MessageKindTool  = "tool"  // Tool invocation record
	MessageKindError = "error" // Synthetic error message appended to the transcript
)

// ToolStatus constants for tool message outcomes
const (
	ToolStatusPending = "pending"
	ToolStatusSuccess = "success"
	ToolStatusError   = "error"
)

// Message is a single transcript entry. Kind selects the variant:
// tool fields are only meaningful for MessageKindTool.
type Message struct {
	ID        string
	ChatID    string
	Kind      string // "plain", "tool", "error"
	IsUser    bool
	Content   string
	Order     int
	Timestamp time.Time

	// Tool variant fields
	ToolName   string
	ToolStatus string // "pending", "success", "error"
	ToolResult string // JSON-encoded tool result
	ToolError  string
}

// ChatUsage holds the cumulative token counters persisted for a chat
type ChatUsage struct {
	ChatID           string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	UpdatedAt        time.Time
}

// Store defines the interface for connection, chat, and message persistence
type Store interface {
	// Connections
	CreateConnection(ctx context.Context, conn *Connection) error
	GetConnection(ctx context.Context, id string) (*Connection, error)
	ListConnections(ctx context.Context) ([]*Connection, error)
	DeleteConnection(ctx context.Context, id string) error

	// Chats
	CreateChat(ctx context.Context, chat *Chat) error
	GetChat(ctx context.Context, id string) (*Chat, error)
	ListChats(ctx context.Context, connectionID string) ([]*Chat, error)
	TouchChat(ctx context.Context, id string, at time.Time) error
	DeleteChat(ctx context.Context, id string) error

	// Messages
	GetChatMessages(ctx context.Context, chatID string) ([]*Message, error)
	ReplaceChatMessages(ctx context.Context, chatID string, messages []*Message) error

	// Token usage
	SaveChatUsage(ctx context.Context, usage *ChatUsage) error
	GetChatUsage(ctx context.Context, chatID string) (*ChatUsage, error)

	// Close releases any resources held by the store
	Close() error
}
