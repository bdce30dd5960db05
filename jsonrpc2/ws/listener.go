// Package ws serves jsonrpc2 connections over websockets. Each websocket
// message carries one payload, so there is no Content-Length framing. The
// websocket itself comes from the gorilla or gobwas subpackage.
package ws

import (
	"context"
	"net"
	"net/http"
	"sync"

	"github.com/vipnode/jsonrpc/jsonrpc2"
)

// Upgrader completes a websocket handshake on an HTTP request. On failure it
// has already written the HTTP error response.
type Upgrader interface {
	Upgrade(*http.Request, http.ResponseWriter) (jsonrpc2.Transport, error)
}

var _ jsonrpc2.TransportListener = &Listener{}

type accepted struct {
	transport jsonrpc2.Transport
	remote    string
}

// Listener is an http.Handler that upgrades every request it serves and
// hands the resulting transport to Accept. It can be mounted on an existing
// mux, or bound on its own with Listen.
type Listener struct {
	upgrader Upgrader
	addr     net.Addr
	server   *http.Server

	accepted  chan accepted
	closed    chan struct{}
	closeOnce sync.Once
}

// NewListener returns a Listener reporting addr as its address.
func NewListener(addr net.Addr, upgrader Upgrader) *Listener {
	return &Listener{
		upgrader: upgrader,
		addr:     addr,
		accepted: make(chan accepted),
		closed:   make(chan struct{}),
	}
}

// Listen returns a ListenFunc that serves websocket upgrades on a TCP
// address, on any path.
func Listen(addr string, upgrader Upgrader) jsonrpc2.ListenFunc {
	return func(ctx context.Context) (jsonrpc2.TransportListener, error) {
		var lc net.ListenConfig
		ln, err := lc.Listen(ctx, "tcp", addr)
		if err != nil {
			return nil, err
		}
		l := NewListener(ln.Addr(), upgrader)
		l.server = &http.Server{Handler: l}
		go l.server.Serve(ln)
		return l, nil
	}
}

func (l *Listener) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	select {
	case <-l.closed:
		http.Error(w, "server is shutting down", http.StatusServiceUnavailable)
		return
	default:
	}
	t, err := l.upgrader.Upgrade(r, w)
	if err != nil {
		// Upgraders write their own error response.
		return
	}
	select {
	case l.accepted <- accepted{transport: t, remote: r.RemoteAddr}:
	case <-l.closed:
		t.Close()
	}
}

func (l *Listener) Accept() (jsonrpc2.Transport, string, error) {
	select {
	case a := <-l.accepted:
		return a.transport, a.remote, nil
	case <-l.closed:
		return nil, "", net.ErrClosed
	}
}

// Close stops accepting. Connections already accepted stay open.
func (l *Listener) Close() error {
	l.closeOnce.Do(func() { close(l.closed) })
	if l.server != nil {
		return l.server.Close()
	}
	return nil
}

func (l *Listener) Addr() net.Addr {
	return l.addr
}
