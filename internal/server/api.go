// ABOUTME: REST handlers for connections, chats, messages, usage, and export.
// ABOUTME: Follows manual path parsing over a plain ServeMux.

package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/2389/mcpconnect/internal/export"
	"github.com/2389/mcpconnect/internal/store"
)

// ConnectionResponse is the JSON shape for a stored connection.
type ConnectionResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	URL       string `json:"url"`
	Transport string `json:"transport"`
	CreatedAt string `json:"created_at"`
}

// CreateConnectionRequest is the JSON request body for POST /api/connections.
type CreateConnectionRequest struct {
	Name      string `json:"name"`
	URL       string `json:"url"`
	Transport string `json:"transport,omitempty"`
}

// CreateConnectionResponse includes the server info reported by the
// upstream during the verification handshake.
type CreateConnectionResponse struct {
	Connection ConnectionResponse `json:"connection"`
	ServerName string             `json:"server_name,omitempty"`
	Version    string             `json:"server_version,omitempty"`
}

// ChatResponse is the JSON shape for a chat.
type ChatResponse struct {
	ID           string `json:"id"`
	ConnectionID string `json:"connection_id"`
	Title        string `json:"title"`
	CreatedAt    string `json:"created_at"`
	UpdatedAt    string `json:"updated_at"`
}

// CreateChatRequest is the JSON request body for POST /api/connections/{id}/chats.
type CreateChatRequest struct {
	Title string `json:"title"`
}

// MessageResponse is the JSON shape for one transcript message.
type MessageResponse struct {
	ID        string `json:"id"`
	Kind      string `json:"kind"`
	IsUser    bool   `json:"is_user"`
	Content   string `json:"content"`
	Order     int    `json:"order"`
	Timestamp string `json:"timestamp"`

	ToolName   string          `json:"tool_name,omitempty"`
	ToolStatus string          `json:"tool_status,omitempty"`
	ToolResult json.RawMessage `json:"tool_result,omitempty"`
	ToolError  string          `json:"tool_error,omitempty"`
}

// ChatMessagesResponse is the JSON response for GET /api/chats/{id}/messages.
type ChatMessagesResponse struct {
	ChatID   string            `json:"chat_id"`
	Messages []MessageResponse `json:"messages"`
}

// UsageResponse is the JSON response for GET /api/chats/{id}/usage.
type UsageResponse struct {
	ChatID           string `json:"chat_id"`
	PromptTokens     int    `json:"prompt_tokens"`
	CompletionTokens int    `json:"completion_tokens"`
	TotalTokens      int    `json:"total_tokens"`
	UpdatedAt        string `json:"updated_at,omitempty"`
}

func connectionResponse(c *store.Connection) ConnectionResponse {
	return ConnectionResponse{
		ID:        c.ID,
		Name:      c.Name,
		URL:       c.URL,
		Transport: c.Transport,
		CreatedAt: c.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func chatResponse(c *store.Chat) ChatResponse {
	return ChatResponse{
		ID:           c.ID,
		ConnectionID: c.ConnectionID,
		Title:        c.Title,
		CreatedAt:    c.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:    c.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func messageResponse(m *store.Message) MessageResponse {
	resp := MessageResponse{
		ID:        m.ID,
		Kind:      m.Kind,
		IsUser:    m.IsUser,
		Content:   m.Content,
		Order:     m.Order,
		Timestamp: m.Timestamp.UTC().Format(time.RFC3339),
	}
	if m.Kind == store.MessageKindTool {
		resp.ToolName = m.ToolName
		resp.ToolStatus = m.ToolStatus
		if m.ToolResult != "" {
			resp.ToolResult = json.RawMessage(m.ToolResult)
		}
		resp.ToolError = m.ToolError
	}
	return resp
}

// writeJSON writes a JSON response with the given status.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

// handleConnections handles GET and POST /api/connections.
func (s *Server) handleConnections(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleListConnections(w, r)
	case http.MethodPost:
		s.handleCreateConnection(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleListConnections(w http.ResponseWriter, r *http.Request) {
	conns, err := s.store.ListConnections(r.Context())
	if err != nil {
		s.logger.Error("failed to list connections", "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	resp := make([]ConnectionResponse, 0, len(conns))
	for _, c := range conns {
		resp = append(resp, connectionResponse(c))
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCreateConnection(w http.ResponseWriter, r *http.Request) {
	var req CreateConnectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Name == "" || req.URL == "" {
		s.sendJSONError(w, http.StatusBadRequest, "name and url are required")
		return
	}
	transport := req.Transport
	if transport == "" {
		transport = store.TransportHTTP
	}
	if transport != store.TransportHTTP && transport != store.TransportWebSocket {
		s.sendJSONError(w, http.StatusBadRequest, fmt.Sprintf("unknown transport %q", transport))
		return
	}

	conn := &store.Connection{
		ID:        uuid.New().String(),
		Name:      req.Name,
		URL:       req.URL,
		Transport: transport,
		CreatedAt: time.Now().UTC(),
	}

	// Verify the endpoint answers the MCP handshake before storing it.
	client, err := s.clients(r.Context(), conn)
	if err != nil {
		s.sendJSONError(w, http.StatusBadGateway, fmt.Sprintf("cannot reach MCP server: %v", err))
		return
	}
	defer client.Close()

	info, err := client.Initialize(r.Context())
	if err != nil {
		s.sendJSONError(w, http.StatusBadGateway, fmt.Sprintf("MCP handshake failed: %v", err))
		return
	}

	if err := s.store.CreateConnection(r.Context(), conn); err != nil {
		if errors.Is(err, store.ErrDuplicateConnection) {
			s.sendJSONError(w, http.StatusConflict, "connection name already in use")
			return
		}
		s.logger.Error("failed to create connection", "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	s.logger.Info("connection created",
		"connection_id", conn.ID,
		"name", conn.Name,
		"server", info.Name)

	s.writeJSON(w, http.StatusCreated, CreateConnectionResponse{
		Connection: connectionResponse(conn),
		ServerName: info.Name,
		Version:    info.Version,
	})
}

// handleConnectionRoutes dispatches /api/connections/{id}[/tools|/resources|/chats].
func (s *Server) handleConnectionRoutes(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/connections/")
	parts := strings.SplitN(rest, "/", 2)
	connectionID := parts[0]
	if connectionID == "" {
		s.sendJSONError(w, http.StatusBadRequest, "connection id is required")
		return
	}

	conn, err := s.store.GetConnection(r.Context(), connectionID)
	if errors.Is(err, store.ErrNotFound) {
		s.sendJSONError(w, http.StatusNotFound, "connection not found")
		return
	}
	if err != nil {
		s.logger.Error("failed to load connection", "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if len(parts) == 1 {
		switch r.Method {
		case http.MethodGet:
			s.writeJSON(w, http.StatusOK, connectionResponse(conn))
		case http.MethodDelete:
			s.handleDeleteConnection(w, r, conn)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
		return
	}

	switch parts[1] {
	case "tools":
		s.handleConnectionTools(w, r, conn)
	case "resources":
		s.handleConnectionResources(w, r, conn)
	case "chats":
		s.handleConnectionChats(w, r, conn)
	default:
		s.sendJSONError(w, http.StatusNotFound, "not found")
	}
}

func (s *Server) handleDeleteConnection(w http.ResponseWriter, r *http.Request, conn *store.Connection) {
	if err := s.store.DeleteConnection(r.Context(), conn.ID); err != nil {
		s.logger.Error("failed to delete connection", "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleConnectionTools proxies tools/list to the upstream MCP server.
func (s *Server) handleConnectionTools(w http.ResponseWriter, r *http.Request, conn *store.Connection) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	client, err := s.clients(r.Context(), conn)
	if err != nil {
		s.sendJSONError(w, http.StatusBadGateway, "cannot reach MCP server")
		return
	}
	defer client.Close()

	tools, err := client.ListTools(r.Context())
	if err != nil {
		s.logger.Error("tools/list failed", "connection_id", conn.ID, "error", err)
		s.sendJSONError(w, http.StatusBadGateway, "tools/list failed")
		return
	}
	s.writeJSON(w, http.StatusOK, tools)
}

// handleConnectionResources proxies resources/list to the upstream MCP server.
func (s *Server) handleConnectionResources(w http.ResponseWriter, r *http.Request, conn *store.Connection) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	client, err := s.clients(r.Context(), conn)
	if err != nil {
		s.sendJSONError(w, http.StatusBadGateway, "cannot reach MCP server")
		return
	}
	defer client.Close()

	resources, err := client.ListResources(r.Context())
	if err != nil {
		s.logger.Error("resources/list failed", "connection_id", conn.ID, "error", err)
		s.sendJSONError(w, http.StatusBadGateway, "resources/list failed")
		return
	}
	s.writeJSON(w, http.StatusOK, resources)
}

// handleConnectionChats handles GET (list) and POST (create) on
// /api/connections/{id}/chats.
func (s *Server) handleConnectionChats(w http.ResponseWriter, r *http.Request, conn *store.Connection) {
	switch r.Method {
	case http.MethodGet:
		chats, err := s.store.ListChats(r.Context(), conn.ID)
		if err != nil {
			s.logger.Error("failed to list chats", "error", err)
			s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
			return
		}
		resp := make([]ChatResponse, 0, len(chats))
		for _, c := range chats {
			resp = append(resp, chatResponse(c))
		}
		s.writeJSON(w, http.StatusOK, resp)

	case http.MethodPost:
		var req CreateChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		title := req.Title
		if title == "" {
			title = "New chat"
		}
		now := time.Now().UTC()
		chat := &store.Chat{
			ID:           uuid.New().String(),
			ConnectionID: conn.ID,
			Title:        title,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := s.store.CreateChat(r.Context(), chat); err != nil {
			s.logger.Error("failed to create chat", "error", err)
			s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
			return
		}
		s.writeJSON(w, http.StatusCreated, chatResponse(chat))

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// handleChatRoutes dispatches /api/chats/{id}[/messages|/usage|/export].
func (s *Server) handleChatRoutes(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/chats/")
	parts := strings.SplitN(rest, "/", 2)
	chatID := parts[0]
	if chatID == "" {
		s.sendJSONError(w, http.StatusBadRequest, "chat id is required")
		return
	}

	chat, err := s.store.GetChat(r.Context(), chatID)
	if errors.Is(err, store.ErrNotFound) {
		s.sendJSONError(w, http.StatusNotFound, "chat not found")
		return
	}
	if err != nil {
		s.logger.Error("failed to load chat", "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if len(parts) == 1 {
		switch r.Method {
		case http.MethodGet:
			s.writeJSON(w, http.StatusOK, chatResponse(chat))
		case http.MethodDelete:
			if err := s.store.DeleteChat(r.Context(), chat.ID); err != nil {
				s.logger.Error("failed to delete chat", "error", err)
				s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
				return
			}
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
		return
	}

	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	switch parts[1] {
	case "messages":
		s.handleChatMessages(w, r, chat)
	case "usage":
		s.handleChatUsage(w, r, chat)
	case "export":
		s.handleChatExport(w, r, chat)
	default:
		s.sendJSONError(w, http.StatusNotFound, "not found")
	}
}

func (s *Server) handleChatMessages(w http.ResponseWriter, r *http.Request, chat *store.Chat) {
	messages, err := s.store.GetChatMessages(r.Context(), chat.ID)
	if err != nil {
		s.logger.Error("failed to load messages", "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	resp := ChatMessagesResponse{
		ChatID:   chat.ID,
		Messages: make([]MessageResponse, 0, len(messages)),
	}
	for _, m := range messages {
		resp.Messages = append(resp.Messages, messageResponse(m))
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleChatUsage(w http.ResponseWriter, r *http.Request, chat *store.Chat) {
	usage, err := s.store.GetChatUsage(r.Context(), chat.ID)
	if errors.Is(err, store.ErrNotFound) {
		// No usage persisted yet; report zeroes rather than 404.
		s.writeJSON(w, http.StatusOK, UsageResponse{ChatID: chat.ID})
		return
	}
	if err != nil {
		s.logger.Error("failed to load usage", "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	s.writeJSON(w, http.StatusOK, UsageResponse{
		ChatID:           chat.ID,
		PromptTokens:     usage.PromptTokens,
		CompletionTokens: usage.CompletionTokens,
		TotalTokens:      usage.TotalTokens,
		UpdatedAt:        usage.UpdatedAt.UTC().Format(time.RFC3339),
	})
}

// handleChatExport handles GET /api/chats/{id}/export?format=....
func (s *Server) handleChatExport(w http.ResponseWriter, r *http.Request, chat *store.Chat) {
	format := export.FormatText
	if raw := r.URL.Query().Get("format"); raw != "" {
		var err error
		format, err = export.ParseFormat(raw)
		if err != nil {
			s.sendJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	messages, err := s.store.GetChatMessages(r.Context(), chat.ID)
	if err != nil {
		s.logger.Error("failed to load messages", "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	transcript := export.Transcript{Chat: *chat}
	for _, m := range messages {
		transcript.Messages = append(transcript.Messages, *m)
	}
	if conn, err := s.store.GetConnection(r.Context(), chat.ConnectionID); err == nil {
		transcript.Connection = conn
	}
	if usage, err := s.store.GetChatUsage(r.Context(), chat.ID); err == nil {
		transcript.Usage = usage
	}

	out, err := export.Render(format, transcript)
	if err != nil {
		s.logger.Error("failed to render export", "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", "chat-"+chat.ID+"."+format.Extension()))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(out)
}
