package httpconn

import (
	"io"
	"net"
	"sync"
)

// singleConnListener adapts one established net.Conn to the
// net.Listener interface so it can be served by an http.Server, which
// only takes listeners. Accept returns the connection exactly once;
// subsequent calls return io.EOF.
type singleConnListener struct {
	conn net.Conn
	once sync.Once
}

func (l *singleConnListener) Accept() (net.Conn, error) {
	var c net.Conn
	l.once.Do(func() {
		c = l.conn
	})
	if c != nil {
		return c, nil
	}
	return nil, io.EOF
}

// Close is a no-op; the listener did not open the connection and is
// not responsible for closing it.
func (l *singleConnListener) Close() error {
	return nil
}

func (l *singleConnListener) Addr() net.Addr {
	return l.conn.LocalAddr()
}
