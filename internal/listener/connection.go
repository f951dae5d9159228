package listener

import (
	"context"
	"fmt"
	"net"
	"sync"
)

// tcpSource is the one-shot connection source: either a set of
// resolved addresses waiting to be bound, or an already-listening
// socket. Once bound it never reverts.
type tcpSource struct {
	mu    sync.Mutex
	addrs []*net.TCPAddr
	ln    net.Listener
}

// resolve binds the first address that can be bound, in the order
// supplied, or returns the adopted pre-bound socket. Idempotent.
func (s *tcpSource) resolve(ctx context.Context) (net.Listener, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ln != nil {
		return s.ln, nil
	}

	lc := net.ListenConfig{Control: reuseAddrControl}
	var lastErr error
	for _, addr := range s.addrs {
		ln, err := lc.Listen(ctx, "tcp", addr.String())
		if err != nil {
			lastErr = err
			continue
		}
		s.ln = ln
		return ln, nil
	}

	return nil, fmt.Errorf("failed to bind any supplied address: %w", lastErr)
}

// addr returns the bound address, or "" if not yet bound
func (s *tcpSource) addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln != nil {
		return s.ln.Addr().String()
	}
	return ""
}
