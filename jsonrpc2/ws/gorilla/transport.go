// Websocket implementation using Gorilla's Websocket library
package gorilla

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vipnode/jsonrpc/jsonrpc2"
	"github.com/vipnode/jsonrpc/jsonrpc2/ws"
)

// Dial returns a DialFunc that opens a client-side websocket to url. Payload
// and timeout limits come from cfg.
func Dial(url string, cfg jsonrpc2.Config) jsonrpc2.DialFunc {
	cfg = cfg.WithDefaults()
	return func(ctx context.Context) (jsonrpc2.Transport, error) {
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
		if err != nil {
			return nil, err
		}
		return newTransport(conn, cfg.MaxPayload, cfg.Timeout), nil
	}
}

var _ ws.Upgrader = &Upgrader{}

// Upgrader upgrades server-side requests.
type Upgrader struct {
	Upgrader   websocket.Upgrader
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
	conn, err := u.Upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}
	return newTransport(conn, u.MaxPayload, u.Timeout), nil
}

var _ jsonrpc2.Transport = &transport{}

type transport struct {
	muWrite sync.Mutex
	conn    *websocket.Conn
	timeout time.Duration
}

func newTransport(conn *websocket.Conn, maxPayload int, timeout time.Duration) *transport {
	if maxPayload > 0 {
		conn.SetReadLimit(int64(maxPayload))
	}
	return &transport{conn: conn, timeout: timeout}
}

func (t *transport) ReadFrame() ([]byte, error) {
	if t.timeout > 0 {
		if err := t.conn.SetReadDeadline(time.Now().Add(t.timeout)); err != nil {
			return nil, err
		}
	}
	_, data, err := t.conn.ReadMessage()
	if err == nil {
		return data, nil
	}

	var netErr net.Error
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		return nil, fmt.Errorf("%w: %s", jsonrpc2.ErrFrameTooLarge, err)
	case errors.As(err, &netErr) && netErr.Timeout():
		return nil, fmt.Errorf("%w: %s", jsonrpc2.ErrTimeout, err)
	case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway):
		return nil, io.EOF
	}
	return nil, err
}

func (t *transport) WriteFrame(data []byte) error {
	t.muWrite.Lock()
	defer t.muWrite.Unlock()
	return t.conn.WriteMessage(websocket.TextMessage, data)
}

func (t *transport) Close() error {
	return t.conn.Close()
}
