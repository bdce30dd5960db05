package jsonrpc2

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/vipnode/jsonrpc/internal/pretty"
)

// Transport moves whole frames. ReadFrame is only called from one goroutine
// at a time, and WriteFrame calls are serialized by the caller.
type Transport interface {
	ReadFrame() ([]byte, error)
	WriteFrame([]byte) error
	Close() error
}

// TransportListener accepts inbound transports. Accept returns the transport
// and a label for the remote end, used for logging.
type TransportListener interface {
	Accept() (Transport, string, error)
	Close() error
	Addr() net.Addr
}

// DialFunc establishes an outbound transport.
type DialFunc func(ctx context.Context) (Transport, error)

// ListenFunc binds a TransportListener.
type ListenFunc func(ctx context.Context) (TransportListener, error)

// NewStreamTransport frames messages over conn. Frames larger than maxFrame
// are rejected, and a read that sees no bytes for timeout fails with
// ErrTimeout. Zero disables either limit.
func NewStreamTransport(conn net.Conn, maxFrame int, timeout time.Duration) Transport {
	frames := NewFrameReader(&idleReader{conn: conn, timeout: timeout}, maxFrame)
	// Conn closes on an oversized frame, so there is no point reading it.
	frames.FailFast = true
	return &streamTransport{
		conn:   conn,
		frames: frames,
	}
}

type streamTransport struct {
	conn   net.Conn
	frames *FrameReader
}

func (t *streamTransport) ReadFrame() ([]byte, error) {
	return t.frames.ReadFrame()
}

func (t *streamTransport) WriteFrame(p []byte) error {
	return WriteFrame(t.conn, p)
}

func (t *streamTransport) Close() error {
	return t.conn.Close()
}

// idleReader arms a read deadline before every Read, so the timeout measures
// silence rather than total frame time.
type idleReader struct {
	conn    net.Conn
	timeout time.Duration
}

func (r *idleReader) Read(p []byte) (int, error) {
	if r.timeout > 0 {
		if err := r.conn.SetReadDeadline(time.Now().Add(r.timeout)); err != nil {
			return 0, err
		}
	}
	n, err := r.conn.Read(p)
	if err != nil && isTimeout(err) {
		return n, fmt.Errorf("%w: no data for %s", ErrTimeout, r.timeout)
	}
	return n, err
}

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// DialStream returns a DialFunc for a TCP or unix socket address.
func DialStream(addr Address, maxFrame int, timeout time.Duration) DialFunc {
	return func(ctx context.Context) (Transport, error) {
		var dialer net.Dialer
		conn, err := dialer.DialContext(ctx, addr.Network, addr.Address)
		if err != nil {
			return nil, err
		}
		return NewStreamTransport(conn, maxFrame, timeout), nil
	}
}

// ListenStream returns a ListenFunc for a TCP or unix socket address.
func ListenStream(addr Address, maxFrame int, timeout time.Duration) ListenFunc {
	return func(ctx context.Context) (TransportListener, error) {
		var lc net.ListenConfig
		l, err := lc.Listen(ctx, addr.Network, addr.Address)
		if err != nil {
			return nil, err
		}
		return &streamListener{
			Listener: l,
			maxFrame: maxFrame,
			timeout:  timeout,
		}, nil
	}
}

type streamListener struct {
	net.Listener
	maxFrame int
	timeout  time.Duration
}

func (l *streamListener) Accept() (Transport, string, error) {
	conn, err := l.Listener.Accept()
	if err != nil {
		return nil, "", err
	}
	remote := conn.RemoteAddr().String()
	if remote == "" || remote == "@" {
		remote = l.Listener.Addr().String()
	}
	return NewStreamTransport(conn, l.maxFrame, l.timeout), remote, nil
}

// debugFrameLen bounds how much of each frame DebugTransport logs.
const debugFrameLen = 500

// DebugTransport logs every frame that passes through t.
func DebugTransport(label string, t Transport, logger Logger) Transport {
	return &debugTransport{Transport: t, label: label, logger: logger}
}

type debugTransport struct {
	Transport
	label  string
	logger Logger
}

func (t *debugTransport) ReadFrame() ([]byte, error) {
	data, err := t.Transport.ReadFrame()
	if err == nil {
		t.logger.Debugf("%s --> %s", t.label, pretty.Abbrev(data, debugFrameLen))
	}
	return data, err
}

func (t *debugTransport) WriteFrame(data []byte) error {
	t.logger.Debugf("%s <-- %s", t.label, pretty.Abbrev(data, debugFrameLen))
	return t.Transport.WriteFrame(data)
}
