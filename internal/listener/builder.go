package listener

import (
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"time"

	"tlsgate/internal/logging"
)

// ErrInvalidConfig is wrapped by every builder validation failure
var ErrInvalidConfig = errors.New("invalid listener configuration")

// Builder accumulates listener options and validates them on Finish.
// Exactly one of {Cert+Key, TLSConfig, TLSAcceptor} and exactly one
// of {TCP, Addrs} must be supplied.
type Builder struct {
	keyPath   string
	certPath  string
	tlsConfig *tls.Config
	acceptor  Acceptor

	tcp     net.Listener
	addrs   []*net.TCPAddr
	addrErr error

	logger  *logging.Logger
	metrics Recorder
}

// Build starts an empty listener builder
func Build() *Builder {
	return &Builder{}
}

// Key supplies the private key file path, in PKCS#8 or RSA PEM
// format. Must be used together with Cert.
func (b *Builder) Key(path string) *Builder {
	b.keyPath = path
	return b
}

// Cert supplies the certificate chain file path. Must be used
// together with Key.
func (b *Builder) Cert(path string) *Builder {
	b.certPath = path
	return b
}

// TLSConfig supplies a prebuilt server TLS configuration, bypassing
// file-based configuration entirely.
func (b *Builder) TLSConfig(cfg *tls.Config) *Builder {
	b.tlsConfig = cfg
	return b
}

// TLSAcceptor supplies a custom acceptance strategy, giving the
// caller full control over TLS negotiation.
func (b *Builder) TLSAcceptor(a Acceptor) *Builder {
	b.acceptor = a
	return b
}

// TCP adopts an already-listening socket instead of binding one
func (b *Builder) TCP(ln net.Listener) *Builder {
	b.tcp = ln
	return b
}

// Addrs supplies one or more host:port specifications to bind.
// Hostnames are resolved eagerly; a resolution failure is reported by
// Finish rather than silently discarded.
func (b *Builder) Addrs(addrs ...string) *Builder {
	for _, a := range addrs {
		resolved, err := net.ResolveTCPAddr("tcp", a)
		if err != nil {
			b.addrErr = fmt.Errorf("failed to resolve %q: %w", a, err)
			return b
		}
		b.addrs = append(b.addrs, resolved)
	}
	return b
}

// Logger sets the logger used by the accept loop and connection
// handlers. Defaults to an info-level logger on stderr.
func (b *Builder) Logger(l *logging.Logger) *Builder {
	b.logger = l
	return b
}

// Metrics sets an optional recorder for accept-loop and connection
// lifecycle events.
func (b *Builder) Metrics(r Recorder) *Builder {
	b.metrics = r
	return b
}

// Finish validates the accumulated options and produces a Listener.
// No file or socket I/O happens here; certificates are loaded and
// sockets bound on the first Serve call.
func (b *Builder) Finish() (*Listener, error) {
	config := newAcceptorConfig()
	haveStandard := b.certPath != "" || b.keyPath != ""

	switch {
	case haveStandard && b.tlsConfig == nil && b.acceptor == nil:
		if b.certPath == "" || b.keyPath == "" {
			return nil, fmt.Errorf("%w: cert and key must be supplied together", ErrInvalidConfig)
		}
		config.state = statePaths
		config.certPath = b.certPath
		config.keyPath = b.keyPath
	case !haveStandard && b.tlsConfig != nil && b.acceptor == nil:
		config.state = stateServerConfig
		config.tlsConfig = b.tlsConfig
	case !haveStandard && b.tlsConfig == nil && b.acceptor != nil:
		config.state = stateCustom
		config.acceptor = b.acceptor
	default:
		return nil, fmt.Errorf("%w: need exactly one of cert + key, TLS config, or TLS acceptor", ErrInvalidConfig)
	}

	if b.addrErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, b.addrErr)
	}

	source := &tcpSource{}
	switch {
	case b.tcp != nil && b.addrs == nil:
		source.ln = b.tcp
	case b.tcp == nil && len(b.addrs) > 0:
		source.addrs = b.addrs
	default:
		return nil, fmt.Errorf("%w: need exactly one of a pre-bound listener or bind addresses", ErrInvalidConfig)
	}

	logger := b.logger
	if logger == nil {
		logger, _ = logging.New(logging.Config{Level: "info", Output: "stderr"})
	}

	return &Listener{
		source:  source,
		config:  config,
		logger:  logger,
		metrics: b.metrics,
		sleep:   time.Sleep,
	}, nil
}
