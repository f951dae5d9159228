package listener

import (
	"crypto/tls"
	"net"
)

// Acceptor performs TLS negotiation on a raw TCP connection.
//
// Implementations own the negotiation completely, which allows custom
// ALPN routing or multiplexing other protocols on the same port. A
// return of (nil, nil) means negotiation succeeded but the connection
// is not meant for the HTTP layer (the acceptor has taken ownership
// of it); a non-nil error means negotiation failed and the listener
// closes the raw connection.
//
// The standard cert/key and prebuilt-config paths are implemented as
// instances of this same interface, so the accept loop has a single
// call site regardless of how the listener was configured.
type Acceptor interface {
	Accept(conn net.Conn) (net.Conn, error)
}

// standardAcceptor runs the stock crypto/tls server handshake. The
// tls.Config is shared read-only across all connections.
type standardAcceptor struct {
	config *tls.Config
}

func (a *standardAcceptor) Accept(conn net.Conn) (net.Conn, error) {
	tlsConn := tls.Server(conn, a.config)
	if err := tlsConn.Handshake(); err != nil {
		return nil, err
	}
	return tlsConn, nil
}
