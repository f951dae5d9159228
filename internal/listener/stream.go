package listener

import (
	"errors"
	"net"
	"sync"
	"time"
)

// ErrStreamClosed is returned by Stream operations after the last
// clone has been closed.
var ErrStreamClosed = errors.New("stream is closed")

// Stream makes one negotiated TLS session safely usable by code that
// issues interleaved reads and writes without coordinating access
// itself. Each direction is serialized by its own lock, so a single
// operation is always atomic with respect to its peers, while a read
// blocked waiting for peer data cannot starve writes. Clones share
// the underlying session; the session closes when the last clone is
// closed. Stream implements net.Conn.
type Stream struct {
	shared *sharedConn
}

type sharedConn struct {
	readMu  sync.Mutex
	writeMu sync.Mutex

	mu     sync.Mutex // guards refs, closed, deadline calls
	conn   net.Conn
	refs   int
	closed bool
}

// NewStream wraps a negotiated session. The caller's handle counts as
// the first reference.
func NewStream(conn net.Conn) *Stream {
	return &Stream{shared: &sharedConn{conn: conn, refs: 1}}
}

// Clone returns a new handle to the same underlying session
func (s *Stream) Clone() *Stream {
	s.shared.mu.Lock()
	defer s.shared.mu.Unlock()
	s.shared.refs++
	return &Stream{shared: s.shared}
}

// Read reads from the session; concurrent reads are serialized
func (s *Stream) Read(p []byte) (int, error) {
	c := s.shared
	c.readMu.Lock()
	defer c.readMu.Unlock()
	if c.isClosed() {
		return 0, ErrStreamClosed
	}
	return c.conn.Read(p)
}

// Write writes to the session; concurrent writes are serialized so
// bytes from two operations never interleave
func (s *Stream) Write(p []byte) (int, error) {
	c := s.shared
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.isClosed() {
		return 0, ErrStreamClosed
	}
	return c.conn.Write(p)
}

// Close releases this handle; the underlying session is closed when
// the last handle is released. Closing an already-closed handle is an
// error.
func (s *Stream) Close() error {
	c := s.shared
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrStreamClosed
	}
	c.refs--
	if c.refs > 0 {
		return nil
	}
	c.closed = true
	return c.conn.Close()
}

// LocalAddr returns the session's local address
func (s *Stream) LocalAddr() net.Addr {
	return s.shared.conn.LocalAddr()
}

// RemoteAddr returns the session's remote address
func (s *Stream) RemoteAddr() net.Addr {
	return s.shared.conn.RemoteAddr()
}

// SetDeadline sets the read and write deadlines on the session
func (s *Stream) SetDeadline(t time.Time) error {
	c := s.shared
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrStreamClosed
	}
	return c.conn.SetDeadline(t)
}

// SetReadDeadline sets the read deadline on the session
func (s *Stream) SetReadDeadline(t time.Time) error {
	c := s.shared
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrStreamClosed
	}
	return c.conn.SetReadDeadline(t)
}

// SetWriteDeadline sets the write deadline on the session
func (s *Stream) SetWriteDeadline(t time.Time) error {
	c := s.shared
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrStreamClosed
	}
	return c.conn.SetWriteDeadline(t)
}

func (c *sharedConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
