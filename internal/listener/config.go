package listener

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"sync"
)

// Sentinel errors for certificate and key resolution. File-open
// failures are returned wrapped, not as these sentinels.
var (
	// ErrNoCertificate means the cert file contained no CERTIFICATE
	// PEM block.
	ErrNoCertificate = errors.New("no certificate found")
	// ErrNoPrivateKey means the key file contained neither a usable
	// PKCS#8 nor RSA private key.
	ErrNoPrivateKey = errors.New("no usable private key found")
)

// acceptorState tags the configuration variant currently held
type acceptorState int

const (
	stateUnconfigured acceptorState = iota
	statePaths
	stateServerConfig
	stateCustom
	stateResolved
)

// acceptorConfig is the one-shot configuration state machine. It
// starts in one of the three supplied variants and transitions to
// stateResolved exactly once, on first use; the resolved acceptor is
// cached and later calls return it without redoing file I/O.
type acceptorConfig struct {
	mu    sync.Mutex
	state acceptorState

	certPath  string
	keyPath   string
	tlsConfig *tls.Config
	acceptor  Acceptor

	// readFile is swappable so tests can count file accesses
	readFile func(string) ([]byte, error)
}

func newAcceptorConfig() *acceptorConfig {
	return &acceptorConfig{readFile: os.ReadFile}
}

// resolve produces the acceptance capability, memoizing the result
func (c *acceptorConfig) resolve() (Acceptor, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case stateResolved:
		return c.acceptor, nil

	case statePaths:
		cfg, err := c.loadServerConfig()
		if err != nil {
			return nil, err
		}
		c.acceptor = &standardAcceptor{config: cfg}

	case stateServerConfig:
		c.acceptor = &standardAcceptor{config: c.tlsConfig}

	case stateCustom:
		// already an acceptor, nothing to resolve

	default:
		return nil, errors.New("could not configure listener: no TLS configuration supplied")
	}

	c.state = stateResolved
	return c.acceptor, nil
}

// loadServerConfig reads the cert and key files and builds a server
// TLS configuration with no client certificate requirement.
func (c *acceptorConfig) loadServerConfig() (*tls.Config, error) {
	certPEM, err := c.readFile(c.certPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read certificate file: %w", err)
	}
	keyPEM, err := c.readFile(c.keyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}

	chain, err := parseCertificates(certPEM)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", c.certPath, err)
	}
	key, err := parsePrivateKey(keyPEM)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", c.keyPath, err)
	}

	return &tls.Config{
		Certificates: []tls.Certificate{{
			Certificate: chain,
			PrivateKey:  key,
		}},
		ClientAuth: tls.NoClientCert,
		MinVersion: tls.VersionTLS12,
	}, nil
}

// parseCertificates collects every CERTIFICATE block from a PEM file
func parseCertificates(pemData []byte) ([][]byte, error) {
	var chain [][]byte
	rest := pemData
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		if block.Type == "CERTIFICATE" {
			chain = append(chain, block.Bytes)
		}
	}
	if len(chain) == 0 {
		return nil, ErrNoCertificate
	}
	return chain, nil
}

// parsePrivateKey tries PKCS#8 blocks first; if the file yields no
// usable PKCS#8 key it is rescanned from the start for RSA (PKCS#1)
// blocks. Both passes operate on the same file content.
func parsePrivateKey(pemData []byte) (interface{}, error) {
	rest := pemData
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		if block.Type != "PRIVATE KEY" {
			continue
		}
		key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err == nil {
			return key, nil
		}
	}

	rest = pemData
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		if block.Type != "RSA PRIVATE KEY" {
			continue
		}
		key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
		if err == nil {
			return key, nil
		}
	}

	return nil, ErrNoPrivateKey
}
