// Package config handles configuration loading for mcpconnect.
//
// # Overview
//
// Configuration is loaded from YAML files with environment variable expansion.
// The package provides struct-tag validation and sensible defaults.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	auth:
//	  jwt_secret: "${MCPCONNECT_JWT_SECRET}"
//
// Syntax: ${VAR_NAME}
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	upstream:
//	  request_timeout: "30s"
//	dedupe:
//	  ttl: "5m"
//
// Supported units: ns, us, ms, s, m, h
//
// # Configuration Sections
//
// Server settings:
//
//	server:
//	  http_addr: "0.0.0.0:8080"   # Console API and SSE stream
//
// Database:
//
//	database:
//	  path: "/var/lib/mcpconnect/console.db"
//
// Authentication:
//
//	auth:
//	  enabled: true
//	  jwt_secret: "${MCPCONNECT_JWT_SECRET}"
//	  token_ttl: "24h"
//
// Metrics:
//
//	metrics:
//	  enabled: true
//	  path: "/metrics"
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
// # Validation
//
// Load() validates the parsed struct with go-playground/validator tags:
// required listen address and database path, a JWT secret whenever auth is
// enabled, and known logging level/format values.
package config
