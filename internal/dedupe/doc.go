// Package dedupe tracks recently accepted send-request IDs in a time-based
// cache so retried submissions within the window are rejected as duplicates.
package dedupe
