// ABOUTME: Tests for the chat event broadcaster
// ABOUTME: Verifies fan-out, slow subscriber drops, unsubscribe, and context cleanup

package conversation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBroadcaster_FanOut(t *testing.T) {
	b := NewBroadcaster(nil)
	defer b.Close()

	ctx := context.Background()
	ch1, _ := b.Subscribe(ctx, "conn-1")
	ch2, _ := b.Subscribe(ctx, "conn-1")
	other, _ := b.Subscribe(ctx, "conn-2")

	b.Publish("conn-1", &ChatEvent{Kind: EventRefresh, ConnectionID: "conn-1", At: time.Now()})

	for _, ch := range []<-chan *ChatEvent{ch1, ch2} {
		select {
		case event := <-ch:
			assert.Equal(t, EventRefresh, event.Kind)
		case <-time.After(time.Second):
			t.Fatal("subscriber did not receive event")
		}
	}

	select {
	case <-other:
		t.Fatal("subscriber on different connection received event")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBroadcaster_SlowSubscriberDropsEvents(t *testing.T) {
	b := NewBroadcaster(nil)
	defer b.Close()

	ch, _ := b.Subscribe(context.Background(), "conn-1")

	// Fill the buffer and then some; extra events must be dropped, not block.
	for i := 0; i < subscriberBufferSize+10; i++ {
		b.Publish("conn-1", &ChatEvent{Kind: EventRefresh, ConnectionID: "conn-1"})
	}

	received := 0
	for {
		select {
		case <-ch:
			received++
		default:
			assert.Equal(t, subscriberBufferSize, received)
			return
		}
	}
}

func TestBroadcaster_Unsubscribe(t *testing.T) {
	b := NewBroadcaster(nil)
	defer b.Close()

	ch, subID := b.Subscribe(context.Background(), "conn-1")
	b.Unsubscribe("conn-1", subID)

	// Channel is closed after unsubscribe
	_, open := <-ch
	assert.False(t, open)

	// Publishing after unsubscribe must not panic
	b.Publish("conn-1", &ChatEvent{Kind: EventRefresh})
}

func TestBroadcaster_ContextCancelCleansUp(t *testing.T) {
	b := NewBroadcaster(nil)
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	ch, _ := b.Subscribe(ctx, "conn-1")
	cancel()

	require.Eventually(t, func() bool {
		select {
		case _, open := <-ch:
			return !open
		default:
			return false
		}
	}, time.Second, 10*time.Millisecond, "channel should close after context cancel")
}
