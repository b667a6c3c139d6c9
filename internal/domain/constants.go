package domain

import "time"

// ==== WebSocket Constants ====

// MaxMessageSize is the maximum allowed WebSocket message size in bytes
const MaxMessageSize = 4096

// SendBufferSize is the per-connection outbound queue depth. A connection
// whose queue is full is treated as dead and pruned.
const SendBufferSize = 256

// ==== Timing Constants ====

const (
	// WriteWait is the time allowed to write a message to the peer
	WriteWait = 10 * time.Second

	// PongWait is the time allowed to read the next pong from the peer
	PongWait = 60 * time.Second

	// PingPeriod is the transport keepalive interval (must be less than PongWait)
	PingPeriod = (PongWait * 9) / 10
)

// ==== Rate Limit Constants ====

const (
	// DefaultRateLimitAPI is the default rate limit for API endpoints (requests/sec)
	DefaultRateLimitAPI = 10

	// DefaultRateLimitWS is the default rate limit for WebSocket upgrades (req/sec)
	DefaultRateLimitWS = 5
)
