package listener

import (
	"bytes"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// overlapConn fails the test if two reads or two writes ever run at
// the same time on the underlying connection.
type overlapConn struct {
	t            *testing.T
	activeReads  int32
	activeWrites int32

	mu  sync.Mutex
	buf bytes.Buffer
}

func (c *overlapConn) Read(p []byte) (int, error) {
	if atomic.AddInt32(&c.activeReads, 1) > 1 {
		c.t.Error("two reads ran concurrently on the underlying session")
	}
	time.Sleep(time.Millisecond)
	defer atomic.AddInt32(&c.activeReads, -1)

	c.mu.Lock()
	defer c.mu.Unlock()
	copy(p, []byte{0})
	return 1, nil
}

func (c *overlapConn) Write(p []byte) (int, error) {
	if atomic.AddInt32(&c.activeWrites, 1) > 1 {
		c.t.Error("two writes ran concurrently on the underlying session")
	}
	time.Sleep(time.Millisecond)
	defer atomic.AddInt32(&c.activeWrites, -1)

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buf.Write(p)
}

func (c *overlapConn) Close() error                       { return nil }
func (c *overlapConn) LocalAddr() net.Addr                { return nil }
func (c *overlapConn) RemoteAddr() net.Addr               { return nil }
func (c *overlapConn) SetDeadline(t time.Time) error      { return nil }
func (c *overlapConn) SetReadDeadline(t time.Time) error  { return nil }
func (c *overlapConn) SetWriteDeadline(t time.Time) error { return nil }

func (c *overlapConn) written() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]byte(nil), c.buf.Bytes()...)
}

func TestStreamSerializesOperations(t *testing.T) {
	conn := &overlapConn{t: t}
	stream := NewStream(conn)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				stream.Write([]byte("abcdef"))
			}
		}()

		wg.Add(1)
		go func() {
			defer wg.Done()
			buf := make([]byte, 1)
			for j := 0; j < 10; j++ {
				stream.Read(buf)
			}
		}()
	}
	wg.Wait()

	// Every write landed atomically, so the output must be a whole
	// number of the 6-byte pattern.
	out := conn.written()
	if len(out)%6 != 0 {
		t.Fatalf("output length %d is not a multiple of the write size", len(out))
	}
	for i := 0; i < len(out); i += 6 {
		if string(out[i:i+6]) != "abcdef" {
			t.Fatalf("interleaved bytes at offset %d: %q", i, out[i:i+6])
		}
	}
}

func TestStreamClonesShareSession(t *testing.T) {
	left, right := net.Pipe()
	defer right.Close()

	stream := NewStream(left)
	clone := stream.Clone()

	go func() {
		clone.Write([]byte("hello"))
	}()

	buf := make([]byte, 5)
	if _, err := right.Read(buf); err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if string(buf) != "hello" {
		t.Errorf("expected 'hello' through the clone, got %q", buf)
	}

	// Closing one handle keeps the session open for the other.
	if err := clone.Close(); err != nil {
		t.Fatalf("clone close failed: %v", err)
	}
	go func() {
		stream.Write([]byte("again"))
	}()
	if _, err := right.Read(buf); err != nil {
		t.Fatalf("read after clone close failed: %v", err)
	}

	// Closing the last handle closes the session.
	if err := stream.Close(); err != nil {
		t.Fatalf("final close failed: %v", err)
	}
	if _, err := left.Write([]byte("x")); err == nil {
		t.Error("expected underlying session to be closed")
	}
}

func TestStreamClosedOperationsFail(t *testing.T) {
	left, _ := net.Pipe()
	stream := NewStream(left)

	if err := stream.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	if _, err := stream.Read(make([]byte, 1)); !errors.Is(err, ErrStreamClosed) {
		t.Errorf("expected ErrStreamClosed from Read, got %v", err)
	}
	if _, err := stream.Write([]byte("x")); !errors.Is(err, ErrStreamClosed) {
		t.Errorf("expected ErrStreamClosed from Write, got %v", err)
	}
	if err := stream.Close(); !errors.Is(err, ErrStreamClosed) {
		t.Errorf("expected ErrStreamClosed from second Close, got %v", err)
	}
	if err := stream.SetDeadline(time.Now()); !errors.Is(err, ErrStreamClosed) {
		t.Errorf("expected ErrStreamClosed from SetDeadline, got %v", err)
	}
}
