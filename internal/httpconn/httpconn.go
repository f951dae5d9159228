package httpconn

import (
	"context"
	"io"
	"net"
	"net/http"
	"sync"

	"tlsgate/internal/listener"
	"tlsgate/internal/logging"
)

type contextKey int

const connInfoKey contextKey = 0

// Info returns the connection metadata attached to a request's
// context, if the request arrived through a Handler.
func Info(ctx context.Context) (listener.ConnInfo, bool) {
	info, ok := ctx.Value(connInfoKey).(listener.ConnInfo)
	return info, ok
}

// Handler serves HTTP/1.x request/response traffic over each
// decrypted connection handed to it by a listener. The connection's
// peer and local addresses and its scheme hint are attached to every
// request context; retrieve them with Info.
type Handler struct {
	HTTP   http.Handler
	Logger *logging.Logger
}

// New creates a connection handler around an HTTP handler
func New(h http.Handler, logger *logging.Logger) *Handler {
	return &Handler{HTTP: h, Logger: logger}
}

// HandleConn serves one connection until the client is done with it.
// It returns after the HTTP server has fully closed the connection.
func (h *Handler) HandleConn(ctx context.Context, stream *listener.Stream, info listener.ConnInfo) error {
	if info.Scheme == "" && h.Logger != nil {
		h.Logger.Warn("connection has no scheme hint, requests will not be marked secure", map[string]interface{}{
			"peer_addr": addrString(info.PeerAddr),
		})
	}

	done := make(chan struct{})
	var once sync.Once

	server := &http.Server{
		Handler: h.HTTP,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
		ConnContext: func(ctx context.Context, c net.Conn) context.Context {
			return context.WithValue(ctx, connInfoKey, info)
		},
		ConnState: func(c net.Conn, state http.ConnState) {
			if state == http.StateClosed || state == http.StateHijacked {
				once.Do(func() { close(done) })
			}
		},
	}

	// The server owns its clone of the stream; the listener keeps the
	// original. Close releases the clone if the context is cancelled
	// mid-connection.
	defer server.Close()

	err := server.Serve(&singleConnListener{conn: stream.Clone()})
	if err != nil && err != io.EOF {
		// EOF is normal when the singleConnListener declines to accept
		// a second connection.
		return err
	}

	// Serve returns as soon as the listener is exhausted; wait for the
	// in-flight connection to finish.
	select {
	case <-done:
	case <-ctx.Done():
	}
	return nil
}

func addrString(a net.Addr) string {
	if a == nil {
		return ""
	}
	return a.String()
}
