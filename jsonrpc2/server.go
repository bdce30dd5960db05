package jsonrpc2

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"sync"

	"golang.org/x/exp/maps"
	"golang.org/x/sync/errgroup"
)

// Server accepts connections and serves the same handlers on all of them.
// Handlers are registered on the Server itself before Bind.
type Server struct {
	lifecycle

	// OnConnect and OnDisconnect, if set before Bind, are called as
	// connections come and go.
	OnConnect    func(*Conn)
	OnDisconnect func(*Conn)

	cfg      Config
	pool     *workerPool
	handlers *handlers
	listener TransportListener
	done     chan struct{}

	mu    sync.Mutex
	conns map[ConnID]*Conn
}

func NewServer(cfg Config) *Server {
	cfg = cfg.WithDefaults()
	return &Server{
		lifecycle: lifecycle{name: "server", logger: cfg.Logger},
		cfg:       cfg,
		pool:      newWorkerPool(cfg.Workers),
		handlers:  newHandlers(cfg.Registry),
		done:      make(chan struct{}),
		conns:     map[ConnID]*Conn{},
	}
}

func (s *Server) handlerTable() *handlers {
	return s.handlers
}

// Bind listens on a TCP or unix socket address.
func (s *Server) Bind(ctx context.Context, addr Address) error {
	return s.BindListener(ctx, addr.String(), ListenStream(addr, s.cfg.MaxPayload, s.cfg.Timeout))
}

// BindListener starts the server on a listener from listen. It can only be
// called once; on failure the server ends in StateStopped.
func (s *Server) BindListener(ctx context.Context, label string, listen ListenFunc) error {
	if !s.begin(label) {
		return fmt.Errorf("%w: cannot bind while %s", ErrInvalidState, s.State())
	}
	l, err := listen(ctx)
	if err != nil {
		s.advance(StateStarting, StateStopped)
		close(s.done)
		s.logger.Warningf("server: bind %s failed: %s", label, err)
		return err
	}
	s.listener = l
	s.pool.start()
	s.advance(StateStarting, StateStarted)
	s.logger.Infof("server: listening on %s", l.Addr())
	go s.serve(l)
	return nil
}

func (s *Server) serve(l TransportListener) {
	for {
		t, remote, err := l.Accept()
		if err != nil {
			if s.State() == StateStarted {
				s.logger.Errorf("server: accept failed: %s", err)
				s.Stop()
			}
			return
		}
		s.accept(t, remote)
	}
}

func (s *Server) accept(t Transport, remote string) {
	c := newConn(s.cfg, s.handlers, s.pool.pick())
	c.onClose = s.remove
	c.begin(remote)

	s.mu.Lock()
	if s.State() != StateStarted {
		s.mu.Unlock()
		t.Close()
		c.abort(ErrClosed)
		return
	}
	s.conns[c.id] = c
	c.start(t)
	s.mu.Unlock()

	s.logger.Infof("server: %s connected from %s", c.id, remote)
	if s.OnConnect != nil {
		s.OnConnect(c)
	}
}

func (s *Server) remove(c *Conn) {
	s.mu.Lock()
	delete(s.conns, c.id)
	s.mu.Unlock()
	if s.OnDisconnect != nil {
		s.OnDisconnect(c)
	}
}

// Stop closes the listener and every connection, then releases the workers.
// It is a no-op unless the server is started.
func (s *Server) Stop() error {
	if !s.advance(StateStarted, StateStopping) {
		return nil
	}
	err := s.listener.Close()
	if errors.Is(err, net.ErrClosed) {
		err = nil
	}

	s.mu.Lock()
	conns := maps.Values(s.conns)
	s.mu.Unlock()

	var g errgroup.Group
	for _, c := range conns {
		g.Go(c.Stop)
	}
	g.Wait()

	s.pool.stop()
	s.advance(StateStopping, StateStopped)
	close(s.done)
	s.logger.Infof("server: stopped")
	return err
}

// Done is closed once the server has stopped.
func (s *Server) Done() <-chan struct{} {
	return s.done
}

// Addr returns the bound address, or nil before Bind.
func (s *Server) Addr() net.Addr {
	if s.State() < StateStarted || s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Conn returns a live connection.
func (s *Server) Conn(id ConnID) (*Conn, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conns[id]
	return c, ok
}

// Conns returns the ids of live connections in ascending order.
func (s *Server) Conns() []ConnID {
	s.mu.Lock()
	ids := maps.Keys(s.conns)
	s.mu.Unlock()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
