// ABOUTME: Explicit phase machine for a streaming turn
// ABOUTME: Names the states the original inferred from which fields were set

package streaming

import "errors"

// ErrSessionActive is returned when Start is called while a turn is already
// streaming. The caller must wait for the terminal event or call Reset.
var ErrSessionActive = errors.New("streaming session already active")

// Phase is the named state of the current turn.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseThinking
	PhaseStreaming
	PhaseToolRunning
	PhaseSearching
)

// String returns the phase name for logging.
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseThinking:
		return "thinking"
	case PhaseStreaming:
		return "streaming"
	case PhaseToolRunning:
		return "tool_running"
	case PhaseSearching:
		return "searching"
	default:
		return "unknown"
	}
}
