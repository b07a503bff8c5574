// ABOUTME: Streaming send endpoint and live event feed for the console.
// ABOUTME: Feeds turn events through the session reducer and out as SSE.

package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/2389/mcpconnect/internal/conversation"
	"github.com/2389/mcpconnect/internal/events"
	"github.com/2389/mcpconnect/internal/store"
	"github.com/2389/mcpconnect/internal/streaming"
)

// SendRequest is the JSON request body for POST /api/send.
type SendRequest struct {
	RequestID    string `json:"request_id,omitempty"`
	ConnectionID string `json:"connection_id"`
	ChatID       string `json:"chat_id"`
	Message      string `json:"message"`
}

// parseSendRequest parses and validates a SendRequest from the given reader.
// Returns an error if the JSON is invalid or required fields are missing.
func parseSendRequest(r io.Reader) (*SendRequest, error) {
	var req SendRequest
	if err := json.NewDecoder(r).Decode(&req); err != nil {
		return nil, errors.New("invalid JSON body")
	}

	if req.ConnectionID == "" {
		return nil, errors.New("connection_id is required")
	}
	if req.ChatID == "" {
		return nil, errors.New("chat_id is required")
	}
	if req.Message == "" {
		return nil, errors.New("message is required")
	}

	return &req, nil
}

// handleSend handles POST /api/send. It appends the user message to the
// chat, binds the streaming session to (connection, chat), and forwards the
// turn events to the client as SSE while the session persists them.
func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	req, err := parseSendRequest(r.Body)
	if err != nil {
		s.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	// Reject retried submissions inside the dedupe window.
	if req.RequestID != "" && s.dedupe != nil && s.dedupe.SeenOrRecord(req.RequestID) {
		s.sendJSONError(w, http.StatusConflict, "duplicate request")
		return
	}

	// Check streaming support before doing any work (fail fast)
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.logger.Error("streaming not supported")
		s.sendJSONError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	ctx := r.Context()

	// Verify the chat belongs to the connection and load the transcript.
	latest, err := s.conversation.LatestMessages(ctx, req.ConnectionID, req.ChatID)
	if errors.Is(err, store.ErrNotFound) {
		s.sendJSONError(w, http.StatusNotFound, "chat not found")
		return
	}
	if errors.Is(err, conversation.ErrChatMismatch) {
		s.sendJSONError(w, http.StatusBadRequest, "chat does not belong to connection")
		return
	}
	if err != nil {
		s.logger.Error("failed to load chat messages", "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	// Re-target the session if the console moved to a different chat. This
	// is the only path that re-seeds the usage counters.
	if state := s.session.State(); state.ChatID != req.ChatID || state.ConnectionID != req.ConnectionID {
		if err := s.session.SwitchChat(ctx, req.ConnectionID, req.ChatID); err != nil {
			if errors.Is(err, streaming.ErrSessionActive) {
				s.sendJSONError(w, http.StatusConflict, "a turn is already streaming")
				return
			}
			s.logger.Error("failed to switch chat", "error", err)
			s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
			return
		}
	}

	if err := s.session.Start(req.ConnectionID, req.ChatID); err != nil {
		if errors.Is(err, streaming.ErrSessionActive) {
			s.sendJSONError(w, http.StatusConflict, "a turn is already streaming")
			return
		}
		s.logger.Error("failed to start session", "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	// Persist the user's message before streaming begins so the terminal
	// transcript rebuild includes it.
	userMsg := &store.Message{
		ID:        uuid.New().String(),
		ChatID:    req.ChatID,
		Kind:      store.MessageKindPlain,
		IsUser:    true,
		Content:   req.Message,
		Order:     len(latest),
		Timestamp: time.Now().UTC(),
	}
	if err := s.conversation.UpdateMessages(ctx, req.ConnectionID, req.ChatID, append(latest, userMsg)); err != nil {
		s.session.Reset()
		s.logger.Error("failed to persist user message", "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	stream, err := s.source.StartTurn(ctx, &TurnRequest{
		ConnectionID: req.ConnectionID,
		ChatID:       req.ChatID,
		Message:      req.Message,
	})
	if err != nil {
		s.session.Reset()
		s.logger.Error("event source failed to start turn", "error", err)
		s.sendJSONError(w, http.StatusBadGateway, "upstream unavailable")
		return
	}

	if s.metrics != nil {
		s.metrics.SendsStarted.Inc()
		s.metrics.ActiveStreams.Inc()
		defer s.metrics.ActiveStreams.Dec()
	}

	// Set SSE headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	s.writeSSEEvent(w, "started", map[string]string{
		"chat_id":    req.ChatID,
		"message_id": userMsg.ID,
	})
	flusher.Flush()

	s.streamTurn(r.Context(), w, flusher, stream)
}

// streamTurn reads turn events, applies each to the session reducer, then
// forwards it to the client. Events are handled strictly in order; the next
// event is not read until the previous one is fully applied.
func (s *Server) streamTurn(ctx context.Context, w http.ResponseWriter, flusher http.Flusher, stream <-chan *events.Event) {
	for {
		select {
		case <-ctx.Done():
			s.session.Reset()
			return

		case event, ok := <-stream:
			if !ok {
				s.session.Reset()
				return
			}

			if err := s.session.Handle(ctx, event); err != nil {
				s.logger.Error("failed to apply turn event", "type", event.Type, "error", err)
				s.writeSSEEvent(w, "error", map[string]string{"error": "persistence failure"})
				flusher.Flush()
				s.session.Reset()
				return
			}

			if s.metrics != nil {
				s.metrics.EventsHandled.WithLabelValues(string(event.Type)).Inc()
			}

			s.writeSSEEvent(w, string(event.Type), event)
			flusher.Flush()

			if event.Type.Terminal() {
				return
			}
		}
	}
}

// handleEvents handles GET /api/events?connection_id=X. It subscribes the
// client to the refresh broadcaster for one connection and forwards chat
// events as SSE until the client disconnects.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	connectionID := r.URL.Query().Get("connection_id")
	if connectionID == "" {
		s.sendJSONError(w, http.StatusBadRequest, "connection_id is required")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.sendJSONError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	ch, subID := s.conversation.Subscribe(r.Context(), connectionID)
	s.logger.Debug("event feed subscribed", "connection_id", connectionID, "subscriber_id", subID)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	flusher.Flush()

	keepAlive := time.NewTicker(30 * time.Second)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-keepAlive.C:
			// Comment frame keeps proxies from closing the stream.
			fmt.Fprint(w, ": keep-alive\n\n")
			flusher.Flush()
		case event, ok := <-ch:
			if !ok {
				return
			}
			s.writeSSEEvent(w, event.Kind, event)
			flusher.Flush()
		}
	}
}

// writeSSEEvent writes a single SSE event to the response writer.
func (s *Server) writeSSEEvent(w http.ResponseWriter, event string, data interface{}) {
	dataJSON, err := json.Marshal(data)
	if err != nil {
		s.logger.Error("failed to marshal SSE data", "error", err)
		return
	}

	fmt.Fprintf(w, "event: %s\n", event)
	fmt.Fprintf(w, "data: %s\n\n", dataJSON)
}

// sendJSONError writes a JSON error response.
func (s *Server) sendJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
