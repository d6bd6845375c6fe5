package framing

import (
	"encoding/binary"
	"math"
	"time"
)

// ErrorAction defines the action to take when an error occurs.
type ErrorAction int

const (
	// Disconnect closes the connection when an error occurs.
	Disconnect ErrorAction = iota
	// Continue suppresses the error and continues processing.
	Continue
)

// maxPrefixValue is the largest payload length the 4-byte prefix can carry.
var maxPrefixValue = int64(math.MaxUint32)

// options holds the configuration shared by readers, writers, connections
// and pumps.
type options struct {
	byteOrder binary.ByteOrder
	logger    Logger

	onMessage func(payload []byte) error
	// onError is called when an error occurs.
	// Returns Disconnect to close the connection, Continue to suppress the error.
	onError func(error) ErrorAction

	bufferSize   int           // size of the pump's buffered send channel
	maxFrameSize int           // maximum size of a single payload
	idleTimeout  time.Duration // pump deadline for transport progress
}

// Option is a function that configures framing options.
type Option func(*options)

// ByteOrderOption returns an Option that sets the byte order of the
// length prefix. The default is little-endian. Both peers must be
// configured with the same order.
func ByteOrderOption(order binary.ByteOrder) Option {
	return func(o *options) {
		o.byteOrder = order
	}
}

// BufferSizeOption returns an Option that sets the size of the pump's send
// channel buffer. A larger buffer allows more payloads to be queued before
// Write reports backpressure.
func BufferSizeOption(size int) Option {
	return func(o *options) {
		o.bufferSize = size
	}
}

// IdleTimeoutOption returns an Option that sets how long a pump waits for
// a single transport operation to make progress before the connection is
// considered dead.
func IdleTimeoutOption(timeout time.Duration) Option {
	return func(o *options) {
		o.idleTimeout = timeout
	}
}

// MessageMaxSize returns an Option that sets the maximum payload size.
// Inbound frames declaring a larger payload are rejected before any
// buffer is allocated, and oversized outbound payloads are refused before
// anything reaches the wire.
func MessageMaxSize(size int) Option {
	return func(o *options) {
		o.maxFrameSize = size
	}
}

// OnErrorOption returns an Option that sets the error callback used by a
// pump. The callback is invoked when a read/write error occurs. Return
// Disconnect to close the connection, or Continue to suppress the error.
// After a framing error the inbound stream may no longer be aligned on a
// frame boundary, so Continue is only safe for errors raised before any
// bytes were consumed.
func OnErrorOption(cb func(error) ErrorAction) Option {
	return func(o *options) {
		o.onError = cb
	}
}

// OnMessageOption returns an Option that sets the payload handler used by
// a pump. The pump requires it and invokes it for each received frame, in
// arrival order. Readers, writers and connections ignore it.
func OnMessageOption(cb func(payload []byte) error) Option {
	return func(o *options) {
		o.onMessage = cb
	}
}

// LoggerOption returns an Option that sets the logger.
// If not set, the default slog logger will be used.
func LoggerOption(logger Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// loadOptions applies the given options and fills in defaults.
func loadOptions(opt ...Option) options {
	var opts options
	for _, o := range opt {
		o(&opts)
	}

	if opts.byteOrder == nil {
		opts.byteOrder = binary.LittleEndian
	}

	if opts.bufferSize <= 0 {
		opts.bufferSize = defaultBufferSize
	}

	if opts.maxFrameSize <= 0 {
		opts.maxFrameSize = defaultMaxFrameSize
	}
	if int64(opts.maxFrameSize) > maxPrefixValue {
		opts.maxFrameSize = int(maxPrefixValue)
	}

	if opts.idleTimeout <= 0 {
		opts.idleTimeout = defaultIdleTimeout
	}

	if opts.onError == nil {
		opts.onError = func(err error) ErrorAction { return Disconnect }
	}

	if opts.logger == nil {
		opts.logger = defaultLogger()
	}

	return opts
}
