package jsonrpc2

import (
	"context"
	"fmt"
	"net"
)

// Client is a Conn that dials out. It owns a single worker for its
// handlers, released when the connection stops.
type Client struct {
	*Conn
	cfg  Config
	pool *workerPool
}

// NewClient returns a Client in StateInitializing. Register handlers, then
// Connect.
func NewClient(cfg Config) *Client {
	cfg = cfg.WithDefaults()
	pool := newWorkerPool(1)
	c := &Client{
		Conn: newConn(cfg, newHandlers(cfg.Registry), pool.pick()),
		cfg:  cfg,
		pool: pool,
	}
	c.Conn.onClose = func(*Conn) { pool.stop() }
	return c
}

// Connect dials a TCP or unix socket address.
func (c *Client) Connect(ctx context.Context, addr Address) error {
	return c.ConnectTransport(ctx, addr.String(), DialStream(addr, c.cfg.MaxPayload, c.cfg.Timeout))
}

// ConnectTransport starts the client over a transport from dial. It can only
// be called once; on failure the client ends in StateStopped.
func (c *Client) ConnectTransport(ctx context.Context, label string, dial DialFunc) error {
	if !c.begin(label) {
		return fmt.Errorf("%w: cannot connect while %s", ErrInvalidState, c.State())
	}
	t, err := dial(ctx)
	if err != nil {
		c.abort(err)
		c.logger.Warningf("%s: connect to %s failed: %s", c.id, label, err)
		return err
	}
	c.pool.start()
	c.start(t)
	c.logger.Infof("%s: connected to %s", c.id, label)
	return nil
}

// Pipe returns two started clients joined in memory. It is mostly useful for
// tests; handlers can still be registered on either end after it returns.
func Pipe(cfg Config) (*Client, *Client, error) {
	a, b := NewClient(cfg), NewClient(cfg)
	ca, cb := net.Pipe()
	if err := a.ConnectTransport(context.Background(), "pipe", a.pipeDialer(ca)); err != nil {
		return nil, nil, err
	}
	if err := b.ConnectTransport(context.Background(), "pipe", b.pipeDialer(cb)); err != nil {
		a.Stop()
		return nil, nil, err
	}
	return a, b, nil
}

func (c *Client) pipeDialer(conn net.Conn) DialFunc {
	return func(context.Context) (Transport, error) {
		return NewStreamTransport(conn, c.cfg.MaxPayload, c.cfg.Timeout), nil
	}
}
