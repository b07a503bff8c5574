// ABOUTME: HTTP server wiring for the console API.
// ABOUTME: Builds the route mux, applies auth middleware, and manages lifecycle.

package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/2389/mcpconnect/internal/auth"
	"github.com/2389/mcpconnect/internal/conversation"
	"github.com/2389/mcpconnect/internal/dedupe"
	"github.com/2389/mcpconnect/internal/events"
	"github.com/2389/mcpconnect/internal/mcpclient"
	"github.com/2389/mcpconnect/internal/store"
	"github.com/2389/mcpconnect/internal/streaming"
)

// TurnRequest describes one user turn handed to the event source.
type TurnRequest struct {
	ConnectionID string
	ChatID       string
	Message      string
}

// EventSource produces the typed turn events for one send request. The
// returned channel is closed by the producer when the turn is over; the
// server stops reading at the first terminal event regardless.
type EventSource interface {
	StartTurn(ctx context.Context, req *TurnRequest) (<-chan *events.Event, error)
}

// ClientFactory builds an MCP client for a stored connection. Injected so
// tests can substitute a fake upstream.
type ClientFactory func(ctx context.Context, conn *store.Connection) (*mcpclient.Client, error)

// DefaultClientFactory dials the connection's URL with the configured
// request timeout, choosing the transport recorded on the connection.
func DefaultClientFactory(timeout time.Duration, logger *slog.Logger) ClientFactory {
	return func(ctx context.Context, conn *store.Connection) (*mcpclient.Client, error) {
		switch conn.Transport {
		case store.TransportWebSocket:
			t, err := mcpclient.DialWS(ctx, conn.URL)
			if err != nil {
				return nil, fmt.Errorf("dialing %s: %w", conn.URL, err)
			}
			return mcpclient.New(t, logger), nil
		default:
			return mcpclient.New(mcpclient.NewHTTPTransport(conn.URL, timeout), logger), nil
		}
	}
}

// Options bundles the collaborators a Server needs.
type Options struct {
	Store        store.Store
	Conversation *conversation.Service
	Session      *streaming.Session
	Source       EventSource
	Dedupe       *dedupe.Cache
	Clients      ClientFactory
	Verifier     auth.TokenVerifier // nil disables API auth
	Metrics      *Metrics           // nil disables the metrics endpoint
	MetricsPath  string
	Logger       *slog.Logger
}

// Server is the console HTTP API.
type Server struct {
	store        store.Store
	conversation *conversation.Service
	session      *streaming.Session
	source       EventSource
	dedupe       *dedupe.Cache
	clients      ClientFactory
	verifier     auth.TokenVerifier
	metrics      *Metrics
	metricsPath  string
	logger       *slog.Logger

	httpServer *http.Server
}

// New creates a Server from the given options.
func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		store:        opts.Store,
		conversation: opts.Conversation,
		session:      opts.Session,
		source:       opts.Source,
		dedupe:       opts.Dedupe,
		clients:      opts.Clients,
		verifier:     opts.Verifier,
		metrics:      opts.Metrics,
		metricsPath:  opts.MetricsPath,
		logger:       logger.With("component", "server"),
	}
}

// Handler builds the route mux. API routes go through the auth middleware
// when a verifier is configured; health and metrics stay open.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	api := func(h http.HandlerFunc) http.Handler {
		if s.verifier != nil {
			return auth.Middleware(s.verifier)(h)
		}
		return h
	}

	mux.Handle("/api/send", api(s.handleSend))
	mux.Handle("/api/events", api(s.handleEvents))
	mux.Handle("/api/connections", api(s.handleConnections))
	mux.Handle("/api/connections/", api(s.handleConnectionRoutes))
	mux.Handle("/api/chats/", api(s.handleChatRoutes))

	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/health/ready", s.handleReady)

	if s.metrics != nil {
		path := s.metricsPath
		if path == "" {
			path = "/metrics"
		}
		mux.Handle(path, s.metrics.Handler())
	}

	return mux
}

// ListenAndServe starts the HTTP server on addr and blocks until Shutdown
// or a listener error.
func (s *Server) ListenAndServe(addr string) error {
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("console API listening", "addr", addr)
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	// Ready when the store answers a trivial query.
	if _, err := s.store.ListConnections(r.Context()); err != nil {
		http.Error(w, "store unavailable", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
