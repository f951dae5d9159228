package httpconn

import (
	"io"
	"net"
	"testing"
)

func TestSingleConnListenerAcceptsOnce(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	l := &singleConnListener{conn: server}

	conn, err := l.Accept()
	if err != nil {
		t.Fatalf("first accept failed: %v", err)
	}
	if conn != server {
		t.Error("expected the wrapped connection back")
	}

	if _, err := l.Accept(); err != io.EOF {
		t.Errorf("expected io.EOF from second accept, got %v", err)
	}

	if err := l.Close(); err != nil {
		t.Errorf("close should be a no-op, got %v", err)
	}

	// The wrapped connection survives the listener's Close.
	go server.Write([]byte("x"))
	if _, err := client.Read(make([]byte, 1)); err != nil {
		t.Errorf("connection should still be usable, read failed: %v", err)
	}
}
