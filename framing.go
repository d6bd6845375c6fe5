// Package framing implements length-prefixed message framing over
// byte-stream transports such as TCP. Every message travels as a fixed
// 4-byte length prefix followed by exactly that many payload bytes, so
// whole messages survive arbitrary packet fragmentation.
//
// Reader and Writer are the two framing directions over a Transport.
// Conn pairs them on one connection and adds a future-based API for
// asynchronous callers. Pump owns an accepted connection and runs
// callback-driven read and write loops, and Server accepts connections
// and hands them to an application Handler.
package framing

import (
	"time"

	"github.com/pkg/errors"
)

// PrefixSize is the fixed width of the length prefix in bytes. The prefix
// counts payload bytes only, never itself.
const PrefixSize = 4

// Default configuration values.
const (
	// defaultBufferSize is the default size of the pump's send channel buffer.
	defaultBufferSize = 1
	// defaultMaxFrameSize is the default maximum size of a single payload (1MB).
	defaultMaxFrameSize = 1024 * 1024
	// defaultIdleTimeout is the default pump deadline for transport progress.
	defaultIdleTimeout = time.Second * 30
)

// Errors returned by framing operations.
var (
	// ErrInvalidOnMessage is returned when no message handler is provided.
	ErrInvalidOnMessage = errors.New("invalid on message callback")
	// ErrMessageTooLarge is returned when a payload exceeds the maximum allowed size.
	ErrMessageTooLarge = errors.New("message too large")
)

// ErrConnectionClosed is returned when operating on a closed connection.
var ErrConnectionClosed = errors.New("connection closed")
