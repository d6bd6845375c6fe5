package framing

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

// phase is the accumulator's position within a single frame.
type phase int

const (
	awaitingPrefix phase = iota
	awaitingPayload
	frameDone
)

// accumulator is the receive-side state machine for exactly one frame.
// It owns its destination buffers exclusively: a fresh accumulator is
// created per frame and discarded once the payload is handed out, so no
// state crosses message boundaries.
type accumulator struct {
	order   binary.ByteOrder
	maxSize int

	phase   phase
	prefix  [PrefixSize]byte
	payload []byte
	filled  int // bytes of the current phase's buffer filled so far
}

func newAccumulator(order binary.ByteOrder, maxSize int) *accumulator {
	return &accumulator{order: order, maxSize: maxSize}
}

// done reports whether a complete frame has been accumulated.
func (a *accumulator) done() bool {
	return a.phase == frameDone
}

// window returns the buffer the next transport read must fill: the
// unfilled remainder of the prefix, then of the payload. A short read
// shrinks the window instead of failing.
func (a *accumulator) window() []byte {
	if a.phase == awaitingPrefix {
		return a.prefix[a.filled:]
	}
	return a.payload[a.filled:]
}

// advance folds one transport read result into the state machine: n bytes
// landed at the front of the window, err is whatever the read reported.
// Progress applies before the error is classified, so a read that
// delivers the final bytes and fails at the same time still completes
// the frame.
func (a *accumulator) advance(n int, err error) error {
	a.filled += n

	if a.phase == awaitingPrefix && a.filled == PrefixSize {
		if err := a.beginPayload(); err != nil {
			return err
		}
	} else if a.phase == awaitingPayload && a.filled == len(a.payload) {
		a.phase = frameDone
	}

	if err == nil || a.phase == frameDone {
		return nil
	}

	if err == io.EOF {
		if a.phase == awaitingPrefix && a.filled == 0 {
			// Clean end of stream between frames.
			return io.EOF
		}
		err = io.ErrUnexpectedEOF
	}

	if a.phase == awaitingPrefix {
		return errors.Wrap(err, "framing: read length prefix")
	}
	return errors.Wrap(err, "framing: read payload")
}

// beginPayload decodes the completed prefix and moves to the payload
// phase. The declared length is checked against maxSize before any
// allocation. A zero-length frame completes immediately, without another
// transport read.
func (a *accumulator) beginPayload() error {
	length := a.order.Uint32(a.prefix[:])
	if uint64(length) > uint64(a.maxSize) {
		return errors.Wrapf(ErrMessageTooLarge,
			"framing: declared payload length %d exceeds limit %d", length, a.maxSize)
	}

	a.payload = make([]byte, int(length))
	a.filled = 0

	if length == 0 {
		a.phase = frameDone
	} else {
		a.phase = awaitingPayload
	}
	return nil
}

// Reader decodes length-prefixed frames from a Transport. One Reader
// serves one receive direction; the caller must keep at most one
// ReadFrame in flight at a time. Frames are delivered in wire order.
type Reader struct {
	transport Transport
	order     binary.ByteOrder
	maxSize   int
}

// NewReader wraps a transport for reading. ByteOrderOption and
// MessageMaxSize apply; other options are ignored.
func NewReader(transport Transport, opt ...Option) *Reader {
	opts := loadOptions(opt...)
	return &Reader{
		transport: transport,
		order:     opts.byteOrder,
		maxSize:   opts.maxFrameSize,
	}
}

// ReadFrame blocks until one whole frame has been accumulated and returns
// its payload. Partial reads are re-issued for the remainder, they are
// never an error. A zero-length frame yields an empty, non-nil payload.
// io.EOF is returned as-is when the stream ends cleanly between frames;
// an EOF inside a frame surfaces as io.ErrUnexpectedEOF, and any other
// transport failure is returned wrapped. A failed receive is never
// retried.
func (r *Reader) ReadFrame() ([]byte, error) {
	if !r.transport.Connected() {
		return nil, ErrConnectionClosed
	}

	acc := newAccumulator(r.order, r.maxSize)
	for !acc.done() {
		n, err := r.transport.Read(acc.window())
		if err = acc.advance(n, err); err != nil {
			return nil, err
		}
	}

	return acc.payload, nil
}
