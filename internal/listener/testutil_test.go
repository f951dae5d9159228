package listener

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"tlsgate/internal/logging"
)

// testCertFiles writes a self-signed certificate plus matching PKCS#8
// and RSA-encoded key files into a temp directory.
type testCertFiles struct {
	cert     string
	pkcs8Key string
	rsaKey   string
}

func generateCertFiles(t *testing.T) testCertFiles {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}

	template := x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "localhost"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		DNSNames:     []string{"localhost"},
		IPAddresses:  []net.IP{net.IPv4(127, 0, 0, 1)},
	}

	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("failed to create certificate: %v", err)
	}

	pkcs8, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		t.Fatalf("failed to marshal PKCS#8 key: %v", err)
	}

	dir := t.TempDir()
	files := testCertFiles{
		cert:     filepath.Join(dir, "server.crt"),
		pkcs8Key: filepath.Join(dir, "server-pkcs8.key"),
		rsaKey:   filepath.Join(dir, "server-rsa.key"),
	}

	writePEM(t, files.cert, "CERTIFICATE", der)
	writePEM(t, files.pkcs8Key, "PRIVATE KEY", pkcs8)
	writePEM(t, files.rsaKey, "RSA PRIVATE KEY", x509.MarshalPKCS1PrivateKey(key))

	return files
}

func writePEM(t *testing.T, path, blockType string, der []byte) {
	t.Helper()
	data := pem.EncodeToMemory(&pem.Block{Type: blockType, Bytes: der})
	if err := os.WriteFile(path, data, 0600); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
}

// generateECDSACertFiles covers the non-RSA PKCS#8 path
func generateECDSAKeyFile(t *testing.T) string {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("failed to generate ECDSA key: %v", err)
	}
	pkcs8, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		t.Fatalf("failed to marshal PKCS#8 key: %v", err)
	}

	path := filepath.Join(t.TempDir(), "ecdsa.key")
	writePEM(t, path, "PRIVATE KEY", pkcs8)
	return path
}

func serverConfigForTest(t *testing.T) *tls.Config {
	t.Helper()
	files := generateCertFiles(t)
	cert, err := tls.LoadX509KeyPair(files.cert, files.pkcs8Key)
	if err != nil {
		t.Fatalf("failed to load key pair: %v", err)
	}
	return &tls.Config{Certificates: []tls.Certificate{cert}}
}

func testLogger() *logging.Logger {
	l, _ := logging.New(logging.Config{Level: "error", Output: "stderr"})
	return l
}

// scriptedListener feeds a fixed sequence of accept results, then
// reports itself closed.
type scriptedListener struct {
	results []acceptResult
	i       int
}

type acceptResult struct {
	conn net.Conn
	err  error
}

func (s *scriptedListener) Accept() (net.Conn, error) {
	if s.i < len(s.results) {
		r := s.results[s.i]
		s.i++
		return r.conn, r.err
	}
	return nil, net.ErrClosed
}

func (s *scriptedListener) Close() error { return nil }

func (s *scriptedListener) Addr() net.Addr {
	return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0}
}

// acceptorFunc adapts a function to the Acceptor interface
type acceptorFunc func(net.Conn) (net.Conn, error)

func (f acceptorFunc) Accept(conn net.Conn) (net.Conn, error) { return f(conn) }
