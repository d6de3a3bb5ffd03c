// Package server provides HTTP and WebSocket handlers
package server

import "time"

// Server configuration constants
const (
	// Per-connection websocket rate limiting
	RateLimitMessages = 10
	RateLimitWindow   = time.Second

	// Broadcast write deadline per client
	BroadcastWriteTimeout = 2 * time.Second

	// Default number of rows for list endpoints
	DefaultListLimit = 50
)
