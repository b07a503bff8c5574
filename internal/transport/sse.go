// ABOUTME: SSE decoding for streamed turn events
// ABOUTME: Parses text/event-stream frames and delivers events strictly in order

package transport

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/2389/mcpconnect/internal/events"
)

// maxLineSize bounds a single SSE line (1MB).
const maxLineSize = 1 << 20

// ErrBadFrame marks a frame whose payload could not be decoded. Callers may
// skip such frames and keep reading; any other Decoder error is a stream
// read failure and the stream must be abandoned.
var ErrBadFrame = errors.New("bad frame")

// Decoder reads SSE frames from a stream and produces turn events.
type Decoder struct {
	scanner *bufio.Scanner
}

// NewDecoder wraps a text/event-stream reader.
func NewDecoder(r io.Reader) *Decoder {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	return &Decoder{scanner: scanner}
}

// Next returns the next event from the stream, or io.EOF when the stream
// ends. The event kind comes from the JSON payload's type field; if absent,
// the frame's event name is used.
func (d *Decoder) Next() (*events.Event, error) {
	var eventName string
	var data strings.Builder

	for d.scanner.Scan() {
		line := d.scanner.Text()

		switch {
		case line == "":
			// Frame boundary. Comment-only frames carry no data; keep reading.
			if data.Len() == 0 {
				eventName = ""
				continue
			}
			return decodeFrame(eventName, data.String())

		case strings.HasPrefix(line, ":"):
			// Comment (keep-alive), ignored

		case strings.HasPrefix(line, "event:"):
			eventName = strings.TrimSpace(strings.TrimPrefix(line, "event:"))

		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		}
	}

	if err := d.scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading stream: %w", err)
	}
	if data.Len() > 0 {
		// Stream ended mid-frame; deliver what we have.
		return decodeFrame(eventName, data.String())
	}
	return nil, io.EOF
}

func decodeFrame(eventName, data string) (*events.Event, error) {
	var event events.Event
	if err := json.Unmarshal([]byte(data), &event); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadFrame, err)
	}
	if event.Type == "" {
		if eventName == "" {
			return nil, fmt.Errorf("%w: no event type", ErrBadFrame)
		}
		// Payload carried no type field; fall back to the frame's event name.
		event.Type = events.Type(eventName)
	}
	return &event, nil
}

// HandlerFunc processes one decoded event. Pump waits for each call to
// return before reading the next frame, which gives the streaming reducer
// the sequential delivery it requires.
type HandlerFunc func(ctx context.Context, event *events.Event) error

// Pump reads events from the stream and hands them to fn one at a time.
// It stops after a terminal event, on stream end, on context cancellation,
// or on the first handler error.
func Pump(ctx context.Context, r io.Reader, fn HandlerFunc) error {
	decoder := NewDecoder(r)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		event, err := decoder.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		if err := fn(ctx, event); err != nil {
			return err
		}
		if event.Type.Terminal() {
			return nil
		}
	}
}
