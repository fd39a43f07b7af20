package tcp

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeConn is a write-only transport that records frames or fails every write.
type fakeConn struct {
	net.Conn // nil, calling an unimplemented method panics

	mu         sync.Mutex
	buf        bytes.Buffer
	failWrites bool
	closed     bool
}

func (f *fakeConn) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return 0, net.ErrClosed
	}
	if f.failWrites {
		return 0, errors.New("write: broken pipe")
	}
	return f.buf.Write(p)
}

func (f *fakeConn) Read(p []byte) (int, error) {
	return 0, io.EOF
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeConn) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeConn) SetDeadline(time.Time) error      { return nil }
func (f *fakeConn) SetReadDeadline(time.Time) error  { return nil }
func (f *fakeConn) SetWriteDeadline(time.Time) error { return nil }

func (f *fakeConn) RemoteAddr() net.Addr {
	return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 40000}
}

func (f *fakeConn) LocalAddr() net.Addr {
	return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 8081}
}

// messages decodes every frame written so far.
func (f *fakeConn) messages(t *testing.T) []*Message {
	t.Helper()
	f.mu.Lock()
	data := append([]byte(nil), f.buf.Bytes()...)
	f.mu.Unlock()

	dec := NewDecoder(bytes.NewReader(data), 0)
	var out []*Message
	for {
		msg, err := dec.Decode()
		if errors.Is(err, io.EOF) {
			return out
		}
		require.NoError(t, err)
		out = append(out, msg)
	}
}
