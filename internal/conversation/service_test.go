// ABOUTME: Tests for the conversation service
// ABOUTME: Verifies transcript overwrite, binding checks, usage seeding, and notifications

package conversation

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/mcpconnect/internal/store"
)

func createTestStore(t *testing.T) *store.SQLiteStore {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")
	s, err := store.NewSQLiteStore(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func createConnectionAndChat(t *testing.T, s *store.SQLiteStore) (*store.Connection, *store.Chat) {
	ctx := context.Background()
	conn := &store.Connection{
		ID:        uuid.New().String(),
		Name:      "conn-" + uuid.New().String()[:8],
		URL:       "http://localhost:3001/mcp",
		Transport: store.TransportHTTP,
		CreatedAt: time.Now(),
	}
	require.NoError(t, s.CreateConnection(ctx, conn))

	chat := &store.Chat{
		ID:           uuid.New().String(),
		ConnectionID: conn.ID,
		Title:        "debug session",
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}
	require.NoError(t, s.CreateChat(ctx, chat))
	return conn, chat
}

func TestService_UpdateMessages_Overwrites(t *testing.T) {
	testStore := createTestStore(t)
	svc := New(testStore, NewBroadcaster(nil), nil)
	conn, chat := createConnectionAndChat(t, testStore)
	ctx := context.Background()

	now := time.Now()
	first := []*store.Message{
		{ID: uuid.New().String(), ChatID: chat.ID, IsUser: true, Content: "hi", Order: 0, Timestamp: now},
	}
	require.NoError(t, svc.UpdateMessages(ctx, conn.ID, chat.ID, first))

	second := append(first, &store.Message{
		ID: uuid.New().String(), ChatID: chat.ID, Content: "hello", Order: 1, Timestamp: now,
	})
	require.NoError(t, svc.UpdateMessages(ctx, conn.ID, chat.ID, second))

	got, err := svc.LatestMessages(ctx, conn.ID, chat.ID)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "hi", got[0].Content)
	assert.Equal(t, "hello", got[1].Content)
}

func TestService_UpdateMessages_RejectsWrongConnection(t *testing.T) {
	testStore := createTestStore(t)
	svc := New(testStore, nil, nil)
	_, chat := createConnectionAndChat(t, testStore)
	other, _ := createConnectionAndChat(t, testStore)

	err := svc.UpdateMessages(context.Background(), other.ID, chat.ID, nil)
	assert.ErrorIs(t, err, ErrChatMismatch)
}

func TestService_UpdateMessages_MissingChat(t *testing.T) {
	testStore := createTestStore(t)
	svc := New(testStore, nil, nil)
	conn, _ := createConnectionAndChat(t, testStore)

	err := svc.UpdateMessages(context.Background(), conn.ID, "missing", nil)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestService_UpdateMessages_Notifies(t *testing.T) {
	testStore := createTestStore(t)
	broadcaster := NewBroadcaster(nil)
	svc := New(testStore, broadcaster, nil)
	conn, chat := createConnectionAndChat(t, testStore)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch, _ := svc.Subscribe(ctx, conn.ID)

	require.NoError(t, svc.UpdateMessages(ctx, conn.ID, chat.ID, []*store.Message{
		{ID: uuid.New().String(), ChatID: chat.ID, Content: "x", Timestamp: time.Now()},
	}))

	select {
	case event := <-ch:
		assert.Equal(t, EventMessagesUpdated, event.Kind)
		assert.Equal(t, chat.ID, event.ChatID)
	case <-time.After(time.Second):
		t.Fatal("expected messages_updated event")
	}
}

func TestService_RefreshAll_Notifies(t *testing.T) {
	testStore := createTestStore(t)
	svc := New(testStore, NewBroadcaster(nil), nil)
	conn, _ := createConnectionAndChat(t, testStore)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch, _ := svc.Subscribe(ctx, conn.ID)

	require.NoError(t, svc.RefreshAll(ctx, conn.ID))

	select {
	case event := <-ch:
		assert.Equal(t, EventRefresh, event.Kind)
		assert.Empty(t, event.ChatID)
	case <-time.After(time.Second):
		t.Fatal("expected refresh event")
	}
}

func TestService_SavedUsage_NilWhenAbsent(t *testing.T) {
	testStore := createTestStore(t)
	svc := New(testStore, nil, nil)
	_, chat := createConnectionAndChat(t, testStore)
	ctx := context.Background()

	usage, err := svc.SavedUsage(ctx, chat.ID)
	require.NoError(t, err)
	assert.Nil(t, usage)

	require.NoError(t, svc.SaveUsage(ctx, chat.ID, &store.ChatUsage{
		PromptTokens: 7, CompletionTokens: 3, TotalTokens: 10, UpdatedAt: time.Now(),
	}))

	usage, err = svc.SavedUsage(ctx, chat.ID)
	require.NoError(t, err)
	require.NotNil(t, usage)
	assert.Equal(t, 10, usage.TotalTokens)
}
