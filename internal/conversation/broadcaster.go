// ABOUTME: In-memory fan-out broadcaster for chat events on a connection
// ABOUTME: Notifies console clients of transcript updates and refresh signals

package conversation

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// subscriberBufferSize is the channel buffer for each subscriber.
const subscriberBufferSize = 64

// ChatEvent kinds published to subscribers.
const (
	EventMessagesUpdated = "messages_updated" // a chat transcript was overwritten
	EventRefresh         = "refresh"          // derived views should reload from storage
)

// ChatEvent notifies subscribers of persisted changes on a connection.
type ChatEvent struct {
	Kind         string    `json:"kind"`
	ConnectionID string    `json:"connection_id"`
	ChatID       string    `json:"chat_id,omitempty"` // empty for connection-wide refresh signals
	At           time.Time `json:"at"`
}

// Broadcaster provides in-memory pub/sub for ChatEvents. Subscribers
// register for a connection ID and receive events as transcripts are
// persisted. This enables live console views without polling.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[string]map[string]chan *ChatEvent // connectionID -> subID -> ch
	logger      *slog.Logger
}

// NewBroadcaster creates a broadcaster. Pass nil logger for default.
func NewBroadcaster(logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		subscribers: make(map[string]map[string]chan *ChatEvent),
		logger:      logger.With("component", "broadcaster"),
	}
}

// Subscribe registers a subscriber for events on the given connection.
// Returns a channel that receives events and a subscription ID for later
// unsubscription. The subscription is automatically cleaned up when ctx is
// cancelled.
func (b *Broadcaster) Subscribe(ctx context.Context, connectionID string) (<-chan *ChatEvent, string) {
	subID := uuid.New().String()
	ch := make(chan *ChatEvent, subscriberBufferSize)

	b.mu.Lock()
	if _, ok := b.subscribers[connectionID]; !ok {
		b.subscribers[connectionID] = make(map[string]chan *ChatEvent)
	}
	b.subscribers[connectionID][subID] = ch
	b.mu.Unlock()

	b.logger.Debug("subscriber added",
		"connection_id", connectionID,
		"sub_id", subID)

	// Auto-cleanup on context cancellation
	go func() {
		<-ctx.Done()
		b.Unsubscribe(connectionID, subID)
	}()

	return ch, subID
}

// Publish sends an event to all subscribers of the given connection.
// Non-blocking: events are dropped for subscribers whose channels are full.
func (b *Broadcaster) Publish(connectionID string, event *ChatEvent) {
	b.mu.RLock()
	subs, ok := b.subscribers[connectionID]
	if !ok || len(subs) == 0 {
		b.mu.RUnlock()
		return
	}

	// Copy subscriber channels under read lock to avoid holding lock during sends
	targets := make([]chan *ChatEvent, 0, len(subs))
	for _, ch := range subs {
		targets = append(targets, ch)
	}
	b.mu.RUnlock()

	for _, ch := range targets {
		select {
		case ch <- event:
			// Sent
		default:
			// Subscriber channel full, drop event for this subscriber
			b.logger.Debug("dropped event for slow subscriber",
				"connection_id", connectionID,
				"kind", event.Kind)
		}
	}
}

// Unsubscribe removes a subscription and closes its channel.
func (b *Broadcaster) Unsubscribe(connectionID, subID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs, ok := b.subscribers[connectionID]
	if !ok {
		return
	}

	ch, exists := subs[subID]
	if !exists {
		return
	}

	delete(subs, subID)
	close(ch)

	// Clean up empty connection entries
	if len(subs) == 0 {
		delete(b.subscribers, connectionID)
	}

	b.logger.Debug("subscriber removed",
		"connection_id", connectionID,
		"sub_id", subID)
}

// Close shuts down the broadcaster and closes all subscriber channels.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for connID, subs := range b.subscribers {
		for subID, ch := range subs {
			close(ch)
			delete(subs, subID)
		}
		delete(b.subscribers, connID)
	}

	b.logger.Debug("broadcaster closed")
}
