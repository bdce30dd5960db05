// Websocket implementation using gobwas/ws
package gobwas

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/vipnode/jsonrpc/jsonrpc2"
	jsonrpcws "github.com/vipnode/jsonrpc/jsonrpc2/ws"
)

// Dial returns a DialFunc that opens a client-side websocket to url. Payload
// and timeout limits come from cfg.
func Dial(url string, cfg jsonrpc2.Config) jsonrpc2.DialFunc {
	cfg = cfg.WithDefaults()
	return func(ctx context.Context) (jsonrpc2.Transport, error) {
		conn, br, _, err := ws.Dial(ctx, url)
		if err != nil {
			return nil, err
		}
		var r io.Reader = conn
		if br != nil {
			// The server spoke first; keep what the handshake buffered.
			r = br
		}
		return newTransport(conn, r, ws.StateClientSide, cfg.MaxPayload, cfg.Timeout), nil
	}
}

var _ jsonrpcws.Upgrader = &Upgrader{}

// Upgrader upgrades server-side requests.
type Upgrader struct {
	Upgrader   ws.HTTPUpgrader
	MaxPayload int
	Timeout    time.Duration
}

// NewUpgrader returns an Upgrader with payload and timeout limits from cfg.
func NewUpgrader(cfg jsonrpc2.Config) *Upgrader {
	cfg = cfg.WithDefaults()
	return &Upgrader{
		MaxPayload: cfg.MaxPayload,
		Timeout:    cfg.Timeout,
	}
}

func (u *Upgrader) Upgrade(r *http.Request, w http.ResponseWriter) (jsonrpc2.Transport, error) {
	conn, _, _, err := u.Upgrader.Upgrade(r, w)
	if err != nil {
		return nil, err
	}
	return newTransport(conn, conn, ws.StateServerSide, u.MaxPayload, u.Timeout), nil
}

var _ jsonrpc2.Transport = &transport{}

// transport reads one websocket message per frame with a wsutil.Reader.
// Control frames are answered from the reader, so all writes go through
// muWrite.
type transport struct {
	conn    net.Conn
	reader  io.Reader
	state   ws.State
	max     int
	timeout time.Duration
	muWrite sync.Mutex
}

func newTransport(conn net.Conn, r io.Reader, state ws.State, maxPayload int, timeout time.Duration) *transport {
	return &transport{
		conn:    conn,
		reader:  r,
		state:   state,
		max:     maxPayload,
		timeout: timeout,
	}
}

func (t *transport) Read(p []byte) (int, error) {
	return t.reader.Read(p)
}

func (t *transport) Write(p []byte) (int, error) {
	t.muWrite.Lock()
	defer t.muWrite.Unlock()
	return t.conn.Write(p)
}

func (t *transport) ReadFrame() ([]byte, error) {
	if t.timeout > 0 {
		if err := t.conn.SetReadDeadline(time.Now().Add(t.timeout)); err != nil {
			return nil, err
		}
	}
	data, err := t.readMessage()
	if err != nil {
		var closed wsutil.ClosedError
		var netErr net.Error
		switch {
		case errors.Is(err, jsonrpc2.ErrFrameTooLarge):
		case errors.As(err, &closed), errors.Is(err, io.EOF):
			return nil, io.EOF
		case errors.As(err, &netErr) && netErr.Timeout():
			return nil, fmt.Errorf("%w: %s", jsonrpc2.ErrTimeout, err)
		}
		return nil, err
	}
	return data, nil
}

// readMessage reads the next data message. Frame headers are checked
// against the size limit before their payload is read, including every
// continuation of a fragmented message.
func (t *transport) readMessage() ([]byte, error) {
	var total int64
	tooLarge := func(n int64) error {
		if t.max > 0 && n > int64(t.max) {
			return fmt.Errorf("%w: %d bytes exceeds limit of %d", jsonrpc2.ErrFrameTooLarge, n, t.max)
		}
		return nil
	}
	control := wsutil.ControlFrameHandler(t, t.state)
	rd := wsutil.Reader{
		Source:         t,
		State:          t.state,
		CheckUTF8:      true,
		OnIntermediate: control,
		OnContinuation: func(hdr ws.Header, _ io.Reader) error {
			total += hdr.Length
			return tooLarge(total)
		},
	}
	for {
		hdr, err := rd.NextFrame()
		if err != nil {
			return nil, err
		}
		if hdr.OpCode.IsControl() {
			if err := control(hdr, &rd); err != nil {
				return nil, err
			}
			continue
		}
		if hdr.OpCode&(ws.OpText|ws.OpBinary) == 0 {
			if err := rd.Discard(); err != nil {
				return nil, err
			}
			continue
		}
		total = hdr.Length
		if err := tooLarge(total); err != nil {
			return nil, err
		}
		var body io.Reader = &rd
		if t.max > 0 {
			body = io.LimitReader(body, int64(t.max)+1)
		}
		data, err := io.ReadAll(body)
		if err != nil {
			return nil, err
		}
		if err := tooLarge(int64(len(data))); err != nil {
			return nil, err
		}
		return data, nil
	}
}

func (t *transport) WriteFrame(data []byte) error {
	t.muWrite.Lock()
	defer t.muWrite.Unlock()
	if t.state == ws.StateClientSide {
		return wsutil.WriteClientMessage(t.conn, ws.OpText, data)
	}
	return wsutil.WriteServerMessage(t.conn, ws.OpText, data)
}

func (t *transport) Close() error {
	return t.conn.Close()
}
