// Package constants provides shared constants used across the codebase.
package constants

// Streaming constants
const (
	// MJPEGReadInterval is the delay in milliseconds between frame reads of the MJPEG stream (~30/s)
	MJPEGReadInterval = 33

	// MJPEGMaxConsecutiveMisses ends an MJPEG stream after this many reads without a frame
	MJPEGMaxConsecutiveMisses = 30

	// WebSocketPushInterval is the delay in milliseconds between WebSocket frame pushes (~10/s)
	WebSocketPushInterval = 100

	// WebSocketWriteTimeout is the per-message write deadline in seconds
	WebSocketWriteTimeout = 5

	// MJPEGBoundary is the multipart boundary of the video stream
	MJPEGBoundary = "frame"
)

// Request constants
const (
	// MaxRequestBodySize is the maximum accepted JSON request body in bytes (1MB)
	MaxRequestBodySize = 1 << 20
)
