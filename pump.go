package framing

import (
	"context"
	"net"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// Pump owns one accepted connection and runs its read and write loops.
// Inbound frames are delivered to the OnMessageOption callback in arrival
// order; outbound payloads are queued with Write, WriteBlocking or
// WriteTimeout and framed by the write loop, so application code never
// touches the wire format. Unlike a bare Conn, a Pump owns its connection
// and closes it when Run returns.
type Pump struct {
	rawConn net.Conn
	conn    *Conn
	logger  Logger

	opts options

	sendMsg chan []byte
	closed  atomic.Bool
	cancel  context.CancelFunc
}

// NewPump wraps an accepted connection. It applies the provided options
// and validates them before returning. OnMessageOption is required;
// without it NewPump returns ErrInvalidOnMessage.
func NewPump(conn net.Conn, opt ...Option) (*Pump, error) {
	opts := loadOptions(opt...)
	if opts.onMessage == nil {
		return nil, ErrInvalidOnMessage
	}

	transport := NewNetTransport(conn)
	transport.idleTimeout = opts.idleTimeout

	return &Pump{
		rawConn: conn,
		conn:    NewConn(transport, opt...),
		logger:  opts.logger,
		opts:    opts,
		sendMsg: make(chan []byte, opts.bufferSize),
	}, nil
}

// Run starts the pump's read and write loops.
// It creates two goroutines for concurrent reading and writing,
// and blocks until an error occurs or the context is canceled.
// The connection is automatically closed when Run returns.
func (p *Pump) Run(ctx context.Context) error {
	p.logger.Info("connection established", "addr", p.Addr())
	p.logger.Debug("connection options", "addr", p.Addr(),
		"buffer_size", p.opts.bufferSize,
		"max_frame_size", p.opts.maxFrameSize,
		"idle_timeout", p.opts.idleTimeout)

	ctx, p.cancel = context.WithCancel(ctx)
	group, child := errgroup.WithContext(ctx)

	group.Go(func() error {
		return p.readLoop(child)
	})

	group.Go(func() error {
		return p.writeLoop(child)
	})

	err := group.Wait()
	p.closeConn()

	if err != nil && !errors.Is(err, context.Canceled) {
		p.logger.Info("connection closed with error", "addr", p.Addr(), "error", err)
	} else {
		p.logger.Info("connection closed", "addr", p.Addr())
	}

	return err
}

// Close gracefully shuts the pump down.
// It cancels the loop context and closes the underlying connection.
// Safe to call multiple times.
func (p *Pump) Close() error {
	if p.closed.Swap(true) {
		return nil // already closed
	}
	if p.cancel != nil {
		p.cancel()
	}
	return p.rawConn.Close()
}

// IsClosed returns true if the pump has been closed.
func (p *Pump) IsClosed() bool {
	return p.closed.Load()
}

// ErrBufferFull is returned when the send buffer is full and cannot accept more payloads.
// This error indicates backpressure - the peer is not consuming messages fast enough.
// Recommended handling strategies:
//   - Drop the payload (for non-critical data like metrics)
//   - Use WriteBlocking or WriteTimeout to wait for buffer space
//   - Implement application-level flow control
var ErrBufferFull = errors.New("send buffer full")

// Write queues a payload for sending without blocking (fire-and-forget).
// The write loop frames it and pushes it onto the wire.
//
// Returns:
//   - nil: payload was successfully queued (not yet sent)
//   - ErrBufferFull: send buffer is full, payload was NOT queued
//   - ErrConnectionClosed: pump is closed
//   - ErrMessageTooLarge: payload exceeds the configured maximum
//
// Use this method when:
//   - You can tolerate message loss under backpressure
//   - You have your own retry/backpressure logic
//   - Low latency is critical and blocking is unacceptable
//
// For guaranteed delivery, use WriteBlocking or WriteTimeout instead.
func (p *Pump) Write(payload []byte) error {
	if p.closed.Load() {
		return ErrConnectionClosed
	}

	if len(payload) > p.opts.maxFrameSize {
		return errors.Wrapf(ErrMessageTooLarge,
			"framing: payload length %d exceeds limit %d", len(payload), p.opts.maxFrameSize)
	}

	select {
	case p.sendMsg <- payload:
		return nil
	default:
		return ErrBufferFull
	}
}

// WriteBlocking queues a payload for sending, blocking until there is
// buffer space or the context is canceled. This is the safest write
// method for guaranteed delivery.
//
// Returns:
//   - nil: payload was successfully queued
//   - context.Canceled or context.DeadlineExceeded: context was canceled
//   - ErrConnectionClosed: pump is closed
//   - ErrMessageTooLarge: payload exceeds the configured maximum
func (p *Pump) WriteBlocking(ctx context.Context, payload []byte) error {
	if p.closed.Load() {
		return ErrConnectionClosed
	}

	if len(payload) > p.opts.maxFrameSize {
		return errors.Wrapf(ErrMessageTooLarge,
			"framing: payload length %d exceeds limit %d", len(payload), p.opts.maxFrameSize)
	}

	select {
	case p.sendMsg <- payload:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// WriteTimeout queues a payload for sending with a time limit. This
// provides a middle ground between Write (non-blocking) and WriteBlocking.
//
// Returns:
//   - nil: payload was successfully queued
//   - ErrBufferFull: timeout expired before the payload could be queued
//   - ErrConnectionClosed: pump is closed
//   - ErrMessageTooLarge: payload exceeds the configured maximum
func (p *Pump) WriteTimeout(payload []byte, timeout time.Duration) error {
	if p.closed.Load() {
		return ErrConnectionClosed
	}

	if len(payload) > p.opts.maxFrameSize {
		return errors.Wrapf(ErrMessageTooLarge,
			"framing: payload length %d exceeds limit %d", len(payload), p.opts.maxFrameSize)
	}

	select {
	case p.sendMsg <- payload:
		return nil
	case <-time.After(timeout):
		return ErrBufferFull
	}
}

// Addr returns the remote address of the connection.
func (p *Pump) Addr() net.Addr {
	return p.rawConn.RemoteAddr()
}

// readLoop continuously receives frames and hands their payloads to the
// message handler. Returns when the context is canceled or an
// unrecoverable error occurs. Frames declaring more than the configured
// maximum payload size surface as ErrMessageTooLarge.
func (p *Pump) readLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			payload, err := p.conn.Receive()
			if err != nil {
				p.logger.Debug("read error", "addr", p.Addr(), "error", err)
				if p.opts.onError(err) == Disconnect {
					return err
				}
				continue
			}

			if err = p.opts.onMessage(payload); err != nil {
				return err
			}
		}
	}
}

// writeLoop continuously frames payloads from the send channel onto the
// connection. Returns when the context is canceled or an unrecoverable
// error occurs.
func (p *Pump) writeLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case payload := <-p.sendMsg:
			if err := p.write(payload); err != nil {
				return err
			}
		}
	}
}

// write sends one payload as a frame.
// If an error occurs and onError returns Disconnect, the error is
// propagated. Otherwise the error is suppressed and writing continues.
func (p *Pump) write(payload []byte) error {
	_, err := p.conn.Send(payload)
	if err != nil {
		p.logger.Debug("write error", "addr", p.Addr(), "error", err)
		if p.opts.onError(err) == Disconnect {
			return err
		}
	}

	return nil
}

// closeConn marks the pump as closed and closes the underlying connection.
func (p *Pump) closeConn() {
	p.closed.Store(true)
	p.rawConn.Close()
}
