package framing

// Conn pairs a Reader and a Writer over one Transport, giving a
// connection both framing directions plus an asynchronous per-operation
// API. A Conn borrows its transport: it never closes it, and closing the
// underlying connection (by whoever owns it) is the way to abort
// in-flight operations, which then resolve with the resulting error.
//
// The two directions are independent: one send and one receive may be in
// flight at the same time. Within a direction the caller must keep at
// most one operation outstanding, issuing the next SendMessage only after
// the previous send resolved and the next ReceiveMessage only after the
// previous receive resolved. This is a documented precondition, not an
// enforced one; overlapping operations in the same direction interleave
// partial reads or writes and corrupt framing for the rest of the stream.
// Under that discipline, messages complete in FIFO order per direction.
type Conn struct {
	transport Transport
	reader    *Reader
	writer    *Writer
}

// NewConn wraps an established transport with both framing directions.
func NewConn(transport Transport, opt ...Option) *Conn {
	return &Conn{
		transport: transport,
		reader:    NewReader(transport, opt...),
		writer:    NewWriter(transport, opt...),
	}
}

// Send frames one payload and blocks until the transport has accepted
// every byte. It returns the total bytes written, prefix included.
func (c *Conn) Send(payload []byte) (int, error) {
	return c.writer.WriteFrame(payload)
}

// Receive blocks until the next whole frame arrives and returns its
// payload.
func (c *Conn) Receive() ([]byte, error) {
	return c.reader.ReadFrame()
}

// SendMessage starts sending one payload and returns immediately. The
// handle resolves once the whole frame has been accepted by the transport,
// with the total bytes written, or with the error that stopped the send.
func (c *Conn) SendMessage(payload []byte) *Pending[int] {
	p := newPending[int]()
	go func() {
		p.resolve(c.writer.WriteFrame(payload))
	}()
	return p
}

// ReceiveMessage starts receiving the next frame and returns immediately.
// The handle resolves with the frame's payload, or with the error that
// ended the stream.
func (c *Conn) ReceiveMessage() *Pending[[]byte] {
	p := newPending[[]byte]()
	go func() {
		p.resolve(c.reader.ReadFrame())
	}()
	return p
}
