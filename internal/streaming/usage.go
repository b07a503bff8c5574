// ABOUTME: Token usage accumulator for a chat's streaming turns
// ABOUTME: Adds per-turn counters to running totals, reset only on chat switch

package streaming

import (
	"time"

	"github.com/2389/mcpconnect/internal/events"
	"github.com/2389/mcpconnect/internal/store"
)

// Usage tracks cumulative token consumption across every turn of a chat.
// Unlike the rest of the streaming state it survives turn boundaries: it is
// seeded when a chat is opened and zeroed only by an explicit chat switch.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	LastUpdated      *time.Time
}

// Accumulate adds the turn's counters to the running totals (never replaces)
// and stamps LastUpdated. The total invariant
// TotalTokens == PromptTokens + CompletionTokens holds whenever each input
// satisfies it.
func (u *Usage) Accumulate(turn events.Usage) {
	u.PromptTokens += turn.PromptTokens
	u.CompletionTokens += turn.CompletionTokens
	u.TotalTokens += turn.TotalTokens
	now := time.Now()
	u.LastUpdated = &now
}

// InitializeFrom seeds the running totals from persisted history when a chat
// is (re)opened. A nil record or a zero total falls back to all-zero, which
// keeps stale totals from a previously viewed chat out of a fresh one.
func (u *Usage) InitializeFrom(saved *store.ChatUsage) {
	if saved == nil || saved.TotalTokens == 0 {
		u.Reset()
		return
	}
	u.PromptTokens = saved.PromptTokens
	u.CompletionTokens = saved.CompletionTokens
	u.TotalTokens = saved.TotalTokens
	updated := saved.UpdatedAt
	u.LastUpdated = &updated
}

// Reset unconditionally zeroes all counters and clears LastUpdated. Invoked
// only on explicit chat switch, never at turn boundaries.
func (u *Usage) Reset() {
	u.PromptTokens = 0
	u.CompletionTokens = 0
	u.TotalTokens = 0
	u.LastUpdated = nil
}
