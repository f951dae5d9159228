package listener

import (
	"context"
	"errors"
	"net"
	"syscall"
	"time"

	"tlsgate/internal/logging"
)

// acceptBackoff is how long the accept loop pauses after a
// non-transient accept error before retrying.
const acceptBackoff = 500 * time.Millisecond

// Handler processes one decrypted connection for its full lifetime.
// The stream is closed by the listener when HandleConn returns;
// clones held elsewhere keep the session open.
type Handler interface {
	HandleConn(ctx context.Context, stream *Stream, info ConnInfo) error
}

// HandlerFunc adapts a function to the Handler interface
type HandlerFunc func(ctx context.Context, stream *Stream, info ConnInfo) error

// HandleConn calls f
func (f HandlerFunc) HandleConn(ctx context.Context, stream *Stream, info ConnInfo) error {
	return f(ctx, stream, info)
}

// ConnInfo carries per-connection metadata for the handler. Addresses
// are best-effort and may be nil.
type ConnInfo struct {
	LocalAddr net.Addr
	PeerAddr  net.Addr
	Scheme    string
}

// Recorder receives accept-loop and connection lifecycle events
type Recorder interface {
	ConnAccepted()
	ConnClosed()
	HandshakeError()
	AcceptTransient()
	AcceptBackoff()
}

// Listener terminates TLS on inbound TCP connections and hands the
// decrypted streams to a Handler. Build one with Build.
type Listener struct {
	source  *tcpSource
	config  *acceptorConfig
	logger  *logging.Logger
	metrics Recorder
	sleep   func(time.Duration)
}

// Addr returns the bound address, or "" before the listener has bound
func (l *Listener) Addr() string {
	return l.source.addr()
}

// Serve resolves the acceptor and the listening socket, then accepts
// connections until ctx is cancelled or the socket fails fatally. Each
// accepted connection is handled on its own goroutine and never blocks
// the loop. Resolution errors are returned; accept-time errors are
// absorbed and logged.
func (l *Listener) Serve(ctx context.Context, h Handler) error {
	acceptor, err := l.config.resolve()
	if err != nil {
		return err
	}

	ln, err := l.source.resolve(ctx)
	if err != nil {
		return err
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			ln.Close()
		case <-done:
		}
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			if isTransientError(err) {
				l.logger.Debug("transient accept error", map[string]interface{}{
					"error": err.Error(),
				})
				if l.metrics != nil {
					l.metrics.AcceptTransient()
				}
				continue
			}
			l.logger.Error("accept error, pausing", map[string]interface{}{
				"error": err.Error(),
				"delay": acceptBackoff.String(),
			})
			if l.metrics != nil {
				l.metrics.AcceptBackoff()
			}
			l.sleep(acceptBackoff)
			continue
		}

		go l.handleConn(ctx, conn, acceptor, h)
	}
}

// handleConn runs the TLS negotiation and the handler for one raw
// connection. Failures are logged and absorbed; nothing propagates
// back to the accept loop.
func (l *Listener) handleConn(ctx context.Context, raw net.Conn, acceptor Acceptor, h Handler) {
	start := time.Now()

	// Capture addresses before negotiation; the raw connection may be
	// consumed or closed by the acceptor.
	info := ConnInfo{
		LocalAddr: raw.LocalAddr(),
		PeerAddr:  raw.RemoteAddr(),
		Scheme:    "https",
	}

	session, err := acceptor.Accept(raw)
	if err != nil {
		if l.metrics != nil {
			l.metrics.HandshakeError()
		}
		l.logger.LogConn(logging.ConnLog{
			Event:     "handshake_error",
			LocalAddr: addrString(info.LocalAddr),
			PeerAddr:  addrString(info.PeerAddr),
			Error:     err.Error(),
			Duration:  float64(time.Since(start).Microseconds()) / 1000,
		})
		raw.Close()
		return
	}
	if session == nil {
		// The acceptor took ownership of the connection and routed it
		// elsewhere; nothing for the HTTP layer here.
		return
	}

	if l.metrics != nil {
		l.metrics.ConnAccepted()
		defer l.metrics.ConnClosed()
	}

	stream := NewStream(session)
	defer stream.Close()

	if err := h.HandleConn(ctx, stream, info); err != nil {
		l.logger.LogConn(logging.ConnLog{
			Event:     "handler_error",
			LocalAddr: addrString(info.LocalAddr),
			PeerAddr:  addrString(info.PeerAddr),
			Scheme:    info.Scheme,
			Error:     err.Error(),
			Duration:  float64(time.Since(start).Microseconds()) / 1000,
		})
	}
}

// isTransientError reports whether an accept error is a race with a
// peer that disconnected before or during the accept handshake. Such
// errors are retried immediately, without the backoff pause.
func isTransientError(err error) bool {
	return errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) ||
		errors.Is(err, syscall.ECONNRESET)
}

func addrString(a net.Addr) string {
	if a == nil {
		return ""
	}
	return a.String()
}
