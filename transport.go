package framing

import (
	"io"
	"net"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
)

// Transport is the minimal capability the framing layer needs from a
// byte-stream connection. Read and Write follow the io contracts: either
// may transfer fewer bytes than requested, and the framing layer re-issues
// the operation for the remainder. Connected reports whether the transport
// can still carry bytes; once it returns false, framing operations fail
// fast with ErrConnectionClosed.
//
// Lifecycle stays with the caller: the framing layer never closes a
// transport. Closing the underlying connection is how an in-flight
// operation is aborted, and the abort surfaces as that operation's error.
type Transport interface {
	io.Reader
	io.Writer

	// Connected reports whether the transport is still usable.
	Connected() bool
}

// NetTransport adapts a net.Conn to the Transport interface. Liveness is
// tracked by observing operation results: any read or write error other
// than a deadline expiry marks the transport as no longer connected.
type NetTransport struct {
	conn net.Conn
	// idleTimeout, when set, is armed as a deadline before every read
	// and write. Zero means no deadlines.
	idleTimeout time.Duration
	closed      atomic.Bool
}

// NewNetTransport wraps an established network connection. The caller
// keeps ownership of conn and stays responsible for closing it.
func NewNetTransport(conn net.Conn) *NetTransport {
	return &NetTransport{conn: conn}
}

func (t *NetTransport) Read(p []byte) (int, error) {
	if t.closed.Load() {
		return 0, ErrConnectionClosed
	}

	if t.idleTimeout > 0 {
		_ = t.conn.SetReadDeadline(time.Now().Add(t.idleTimeout))
	}

	n, err := t.conn.Read(p)
	if err != nil {
		t.observe(err)
	}
	return n, err
}

func (t *NetTransport) Write(p []byte) (int, error) {
	if t.closed.Load() {
		return 0, ErrConnectionClosed
	}

	if t.idleTimeout > 0 {
		_ = t.conn.SetWriteDeadline(time.Now().Add(t.idleTimeout))
	}

	n, err := t.conn.Write(p)
	if err != nil {
		t.observe(err)
	}
	return n, err
}

// Connected reports whether any past read or write saw a fatal error.
func (t *NetTransport) Connected() bool {
	return !t.closed.Load()
}

// observe classifies an operation error. Deadline expiry leaves the
// connection usable; everything else, including EOF, marks it dead.
func (t *NetTransport) observe(err error) {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return
	}
	t.closed.Store(true)
}
