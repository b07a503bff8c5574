// Package transport decodes streamed turn events from SSE.
//
// Decoder parses text/event-stream frames into events.Event values. Pump
// drives a handler with decoded events one at a time, waiting for each call
// to return before reading the next frame. This is the delivery discipline the
// streaming reducer depends on, since terminal events persist to storage.
package transport
