package jsonrpc2

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// ConnID identifies a connection within the process.
type ConnID uint64

func (id ConnID) String() string {
	return fmt.Sprintf("conn-%d", uint64(id))
}

var lastConnID uint64

func nextConnID() ConnID {
	return ConnID(atomic.AddUint64(&lastConnID, 1))
}

// cancelKey identifies a received request. Ids are chosen by the peer, so
// they are only unique per connection.
type cancelKey struct {
	peer ConnID
	id   RequestID
}

// Conn is one bidirectional connection. It can issue calls with Send and
// Notify and serve the handlers registered on it.
//
// A single reader goroutine decodes and dispatches incoming frames. Handlers
// run on the worker the connection is pinned to, and replies are written
// from their own goroutines, so the reader never waits on a handler.
type Conn struct {
	lifecycle

	id       ConnID
	codec    *Codec
	handlers *handlers
	worker   *worker
	logger   Logger
	trace    bool
	onClose  func(*Conn)

	transport Transport
	done      chan struct{}
	writeMu   sync.Mutex

	mu       sync.Mutex
	closed   bool
	err      error
	pending  map[RequestID]*pendingCall
	inflight map[cancelKey]*CancellationToken
}

var _ ResponseTypes = &Conn{}

func newConn(cfg Config, h *handlers, w *worker) *Conn {
	c := &Conn{
		id:       nextConnID(),
		handlers: h,
		worker:   w,
		logger:   cfg.Logger,
		trace:    cfg.Logging,
		done:     make(chan struct{}),
		pending:  map[RequestID]*pendingCall{},
		inflight: map[cancelKey]*CancellationToken{},
	}
	c.lifecycle = lifecycle{name: c.id.String(), logger: cfg.Logger}
	c.codec = &Codec{
		Registry:   cfg.Registry,
		MaxPayload: cfg.MaxPayload,
		Responses:  c,
	}
	return c
}

func (c *Conn) ID() ConnID {
	return c.id
}

// Done is closed once the connection has stopped.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Err returns what stopped the connection, or nil if it was stopped locally
// or is still running.
func (c *Conn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Stop closes the connection. Pending calls fail with ErrClosed and in-flight
// requests are cancelled. It is a no-op unless the connection is started.
func (c *Conn) Stop() error {
	c.teardown(nil)
	return nil
}

func (c *Conn) handlerTable() *handlers {
	return c.handlers
}

func (c *Conn) sender() *Conn {
	return c
}

// ResponseMethod implements ResponseTypes from the pending table.
func (c *Conn) ResponseMethod(id RequestID) (Method, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	pc, ok := c.pending[id]
	if !ok {
		return nil, false
	}
	return pc.method, true
}

// start attaches t to a connection in Starting and begins reading.
func (c *Conn) start(t Transport) {
	if c.trace {
		t = DebugTransport(c.id.String(), t, c.logger)
	}
	c.transport = t
	c.advance(StateStarting, StateStarted)
	go c.serve()
}

// abort settles a connection that failed to start.
func (c *Conn) abort(cause error) {
	if !c.advance(StateStarting, StateStopped) {
		return
	}
	c.mu.Lock()
	c.closed = true
	c.err = cause
	c.mu.Unlock()
	close(c.done)
}

func (c *Conn) teardown(cause error) {
	if !c.advance(StateStarted, StateStopping) {
		return
	}
	c.transport.Close()

	closeErr := ErrClosed
	if cause != nil {
		closeErr = fmt.Errorf("%w: %w", ErrClosed, cause)
	}

	c.mu.Lock()
	c.closed = true
	c.err = cause
	pending := c.pending
	inflight := c.inflight
	c.pending = map[RequestID]*pendingCall{}
	c.inflight = map[cancelKey]*CancellationToken{}
	c.mu.Unlock()

	for _, pc := range pendingOldest(pending, len(pending)) {
		pc.complete(nil, closeErr)
	}
	for _, token := range inflight {
		token.Cancel()
	}

	switch {
	case cause == nil:
		c.logger.Infof("%s: stopped", c.id)
	case errors.Is(cause, io.EOF):
		c.logger.Infof("%s: closed by peer", c.id)
	default:
		c.logger.Warningf("%s: connection lost: %s", c.id, cause)
	}

	c.advance(StateStopping, StateStopped)
	close(c.done)
	if c.onClose != nil {
		c.onClose(c)
	}
}

func (c *Conn) serve() {
	for {
		data, err := c.transport.ReadFrame()
		if err != nil {
			c.teardown(err)
			return
		}
		msg, err := c.codec.Decode(data)
		if err != nil {
			if !c.reject(err) {
				c.teardown(err)
				return
			}
			continue
		}
		c.dispatch(msg)
	}
}

// reject answers a message that could not be decoded. It reports false if
// the failure is fatal.
func (c *Conn) reject(err error) bool {
	var decodeErr *DecodeError
	if !errors.As(err, &decodeErr) {
		return false
	}
	switch {
	case decodeErr.Kind == KindResponse && decodeErr.ID != nil:
		c.resolve(*decodeErr.ID, nil, decodeErr.Err)
	case decodeErr.Kind == KindNotification:
		c.logger.Warningf("%s: dropping notification: %s", c.id, err)
	default:
		c.logger.Debugf("%s: rejecting message: %s", c.id, err)
		c.replyError(decodeErr.ID, decodeErr.Err)
	}
	return true
}

func (c *Conn) dispatch(msg *Message) {
	switch msg.Kind {
	case KindRequest:
		c.dispatchRequest(msg)
	case KindNotification:
		c.dispatchNotification(msg)
	case KindResponse:
		c.resolve(*msg.ID, msg.Result, nil)
	case KindError:
		if msg.ID == nil {
			c.logger.Warningf("%s: peer reported an error: %s", c.id, msg.Error)
			return
		}
		c.resolve(*msg.ID, nil, msg.Error)
	}
}

func (c *Conn) dispatchRequest(msg *Message) {
	id := *msg.ID
	handler, ok := c.handlers.request(msg.Method)
	if !ok {
		c.logger.Debugf("%s: no handler for request %s", c.id, msg.Method)
		c.replyError(&id, NewError(ErrCodeMethodNotFound, "method not found: %s", msg.Method))
		return
	}

	key := cancelKey{peer: c.id, id: id}
	token := NewCancellationToken()
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	if _, ok := c.inflight[key]; ok {
		c.mu.Unlock()
		c.replyError(&id, NewError(ErrCodeInvalidRequest, "request id %s is already in flight", id))
		return
	}
	c.inflight[key] = token
	c.mu.Unlock()

	replies := make(chan *Message, 1)
	in := &inbound{key: key, token: token, sink: replies, logger: c.logger}
	in.release = func() { c.release(key, token) }
	token.OnCancel(in.cancel)
	go c.awaitReply(key, replies)

	params := msg.Params
	if !c.worker.submit(func() { handler(params, in) }) {
		in.fail(NewError(ErrCodeServerNotInitialized, "not accepting requests"))
	}
}

// awaitReply writes the single reply to a received request.
func (c *Conn) awaitReply(key cancelKey, replies <-chan *Message) {
	var msg *Message
	select {
	case msg = <-replies:
	case <-c.done:
		return
	}
	err := c.writeMessage(msg)
	if errors.Is(err, ErrPayloadTooLarge) {
		err = c.writeMessage(newErrorMessage(&key.id, NewError(ErrCodeInternal, "reply to %s is too large", key.id)))
	}
	if err != nil {
		c.logger.Debugf("%s: reply to %s not sent: %s", c.id, key.id, err)
	}
}

// release removes a received request from the in-flight table.
func (c *Conn) release(key cancelKey, token *CancellationToken) {
	c.mu.Lock()
	if c.inflight[key] == token {
		delete(c.inflight, key)
	}
	c.mu.Unlock()
}

func (c *Conn) dispatchNotification(msg *Message) {
	if msg.Method == CancelMethodName {
		if params, ok := msg.Params.(CancelParams); ok {
			c.cancelInbound(params.ID)
		}
		return
	}
	handler, ok := c.handlers.notification(msg.Method)
	if !ok {
		c.logger.Debugf("%s: no handler for notification %s", c.id, msg.Method)
		return
	}
	params := msg.Params
	c.worker.submit(func() { handler(params, c.id) })
}

func (c *Conn) cancelInbound(id RequestID) {
	c.mu.Lock()
	token := c.inflight[cancelKey{peer: c.id, id: id}]
	c.mu.Unlock()
	if token == nil {
		c.logger.Debugf("%s: cancel for unknown request %s", c.id, id)
		return
	}
	token.Cancel()
}

// resolve completes the pending call id. err must be nil or non-nil
// *ResponseError, never a typed nil.
func (c *Conn) resolve(id RequestID, result interface{}, err error) {
	c.mu.Lock()
	pc, ok := c.pending[id]
	delete(c.pending, id)
	c.mu.Unlock()
	if !ok {
		c.logger.Infof("%s: dropping response to unknown request %s", c.id, id)
		return
	}
	pc.complete(result, err)
}

// call registers a pending call and writes the request.
func (c *Conn) call(m Method, params interface{}) (*pendingCall, error) {
	if c.State() != StateStarted {
		return nil, ErrNotReady
	}
	id := StringID(uuid.New().String())
	pc := newPendingCall(id, m)
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrNotReady
	}
	c.pending[id] = pc
	c.mu.Unlock()

	if err := c.writeMessage(newRequestMessage(id, m.Name(), params)); err != nil {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return nil, err
	}
	return pc, nil
}

func (c *Conn) notify(m Method, params interface{}) error {
	return c.writeMessage(newNotificationMessage(m.Name(), params))
}

// replyError answers a request from the reader goroutine. The write is
// handed to the worker so the reader keeps draining the stream.
func (c *Conn) replyError(id *RequestID, rerr *ResponseError) {
	msg := newErrorMessage(id, rerr)
	c.worker.submit(func() {
		if err := c.writeMessage(msg); err != nil {
			c.logger.Debugf("%s: error reply not sent: %s", c.id, err)
		}
	})
}

func (c *Conn) writeMessage(msg *Message) error {
	data, err := c.codec.Encode(msg)
	if err != nil {
		return err
	}
	return c.writeFrame(data)
}

func (c *Conn) writeFrame(data []byte) error {
	if c.State() != StateStarted {
		return ErrNotReady
	}
	c.writeMu.Lock()
	err := c.transport.WriteFrame(data)
	c.writeMu.Unlock()
	if err != nil {
		c.teardown(err)
		return fmt.Errorf("%w: %w", ErrClosed, err)
	}
	return nil
}
