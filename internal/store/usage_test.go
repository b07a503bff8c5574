// ABOUTME: Tests for chat usage persistence
// ABOUTME: Verifies upsert semantics and missing-usage sentinel

package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChatUsage_SaveAndGet(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	chat := setupChat(t, s)

	usage := &ChatUsage{
		ChatID:           chat.ID,
		PromptTokens:     100,
		CompletionTokens: 40,
		TotalTokens:      140,
		UpdatedAt:        time.Now(),
	}
	require.NoError(t, s.SaveChatUsage(ctx, usage))

	got, err := s.GetChatUsage(ctx, chat.ID)
	require.NoError(t, err)
	assert.Equal(t, 100, got.PromptTokens)
	assert.Equal(t, 40, got.CompletionTokens)
	assert.Equal(t, 140, got.TotalTokens)
}

func TestChatUsage_UpsertReplaces(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	chat := setupChat(t, s)

	require.NoError(t, s.SaveChatUsage(ctx, &ChatUsage{
		ChatID: chat.ID, PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15, UpdatedAt: time.Now(),
	}))
	require.NoError(t, s.SaveChatUsage(ctx, &ChatUsage{
		ChatID: chat.ID, PromptTokens: 30, CompletionTokens: 12, TotalTokens: 42, UpdatedAt: time.Now(),
	}))

	got, err := s.GetChatUsage(ctx, chat.ID)
	require.NoError(t, err)
	assert.Equal(t, 42, got.TotalTokens)
}

func TestChatUsage_NotFound(t *testing.T) {
	s := createTestStore(t)
	_, err := s.GetChatUsage(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}
