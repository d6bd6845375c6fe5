package framing

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

// Writer encodes length-prefixed frames onto a Transport. One Writer
// serves one send direction; the caller must keep at most one WriteFrame
// in flight at a time. Frames appear on the wire in call order.
type Writer struct {
	transport Transport
	order     binary.ByteOrder
	maxSize   int
}

// NewWriter wraps a transport for writing. ByteOrderOption and
// MessageMaxSize apply; other options are ignored.
func NewWriter(transport Transport, opt ...Option) *Writer {
	opts := loadOptions(opt...)
	return &Writer{
		transport: transport,
		order:     opts.byteOrder,
		maxSize:   opts.maxFrameSize,
	}
}

// WriteFrame sends one payload as a prefix-plus-payload frame. Short
// writes are re-issued from the correct offset until the transport has
// accepted every byte; the call never reports success before then. The
// returned count is the total bytes accepted, prefix included. Payloads
// larger than the configured maximum are rejected with ErrMessageTooLarge
// before anything reaches the wire, and a transport failure mid-frame is
// returned wrapped together with the progress made.
func (w *Writer) WriteFrame(payload []byte) (int, error) {
	if !w.transport.Connected() {
		return 0, ErrConnectionClosed
	}
	if len(payload) > w.maxSize {
		return 0, errors.Wrapf(ErrMessageTooLarge,
			"framing: payload length %d exceeds limit %d", len(payload), w.maxSize)
	}

	frame := make([]byte, PrefixSize+len(payload))
	w.order.PutUint32(frame[:PrefixSize], uint32(len(payload)))
	copy(frame[PrefixSize:], payload)

	var written int
	for written < len(frame) {
		n, err := w.transport.Write(frame[written:])
		written += n
		if err != nil {
			return written, errors.Wrap(err, "framing: write frame")
		}
		if n == 0 {
			return written, errors.Wrap(io.ErrShortWrite, "framing: write frame")
		}
	}

	return written, nil
}
