package jsonrpc2

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
)

const (
	replyPending int32 = iota
	replySent
	replyCancelled
)

// inbound is the reply state of one received request. The handler's Request
// and the cancellation token both point at it, but it never points back at
// the Request, so a dropped Request can be collected.
type inbound struct {
	key    cancelKey
	token  *CancellationToken
	state  int32
	sink   chan<- *Message
	logger Logger
	// release drops the request from the connection's in-flight table.
	release func()

	mu        sync.Mutex
	cancelled *Message
}

// complete delivers msg as the reply. It reports false if the request was
// cancelled first, and panics if a reply was already delivered.
func (in *inbound) complete(msg *Message) bool {
	if atomic.CompareAndSwapInt32(&in.state, replyPending, replySent) {
		in.settle()
		in.sink <- msg
		return true
	}
	if atomic.LoadInt32(&in.state) == replyCancelled {
		return false
	}
	panic(fmt.Sprintf("jsonrpc2: request %s on %s replied more than once", in.key.id, in.key.peer))
}

// fail delivers err unless a reply was already delivered.
func (in *inbound) fail(err *ResponseError) {
	if atomic.CompareAndSwapInt32(&in.state, replyPending, replySent) {
		in.settle()
		in.sink <- newErrorMessage(&in.key.id, err)
	}
}

// settle runs once a reply is chosen. A cancel arriving after this point is
// a no-op and never reaches the handler's callbacks.
func (in *inbound) settle() {
	in.token.seal()
	if in.release != nil {
		in.release()
	}
}

func (in *inbound) cancel() {
	if !atomic.CompareAndSwapInt32(&in.state, replyPending, replyCancelled) {
		return
	}
	if in.release != nil {
		in.release()
	}
	in.mu.Lock()
	msg := in.cancelled
	in.mu.Unlock()
	if msg == nil {
		msg = newErrorMessage(&in.key.id, NewError(ErrCodeRequestCancelled, "request %s cancelled", in.key.id))
	}
	in.sink <- msg
}

func (in *inbound) setCancelled(msg *Message) {
	in.mu.Lock()
	in.cancelled = msg
	in.mu.Unlock()
}

func (in *inbound) abandon() {
	if atomic.LoadInt32(&in.state) != replyPending {
		return
	}
	in.logger.Errorf("jsonrpc2: request %s on %s was dropped without a reply", in.key.id, in.key.peer)
	in.fail(NewError(ErrCodeInternal, "request %s was dropped without a reply", in.key.id))
}

// Request is the handle a request handler receives. Exactly one of Reply or
// ReplyError must be called, from any goroutine; a second call panics. If the
// peer cancels first, the cancellation reply is sent and later replies are
// ignored. A Request that is garbage collected without a reply is answered
// with an InternalError.
type Request[P, R any] struct {
	Params       P
	ID           RequestID
	Peer         ConnID
	Cancellation *CancellationToken

	ctx    context.Context
	cancel context.CancelFunc
	in     *inbound
}

func newRequest[P, R any](params P, in *inbound) *Request[P, R] {
	ctx, cancel := context.WithCancel(context.Background())
	in.token.OnCancel(cancel)
	req := &Request[P, R]{
		Params:       params,
		ID:           in.key.id,
		Peer:         in.key.peer,
		Cancellation: in.token,
		ctx:          ctx,
		cancel:       cancel,
		in:           in,
	}
	runtime.SetFinalizer(req, func(req *Request[P, R]) {
		req.in.abandon()
	})
	return req
}

// Reply sends result.
func (r *Request[P, R]) Reply(result R) {
	r.reply(newResponseMessage(r.ID, result))
}

// ReplyError sends err. A *ResponseError anywhere in err's chain is sent
// as-is; anything else becomes an InternalError.
func (r *Request[P, R]) ReplyError(err error) {
	var rerr *ResponseError
	if !errors.As(err, &rerr) {
		rerr = NewError(ErrCodeInternal, "%v", err)
	}
	r.reply(newErrorMessage(&r.ID, rerr))
}

func (r *Request[P, R]) reply(msg *Message) {
	if r.in.complete(msg) {
		r.cancel()
	}
}

func (r *Request[P, R]) IsCancelled() bool {
	return r.Cancellation.IsCancelled()
}

// OnCancel is a shortcut for r.Cancellation.OnCancel.
func (r *Request[P, R]) OnCancel(fn func()) (remove func()) {
	return r.Cancellation.OnCancel(fn)
}

// SetCancelledResult makes cancellation reply with result instead of a
// RequestCancelled error.
func (r *Request[P, R]) SetCancelledResult(result R) {
	r.in.setCancelled(newResponseMessage(r.ID, result))
}

// Context is done once the request is cancelled or replied to.
func (r *Request[P, R]) Context() context.Context {
	return r.ctx
}

// Notification is what a notification handler receives.
type Notification[P any] struct {
	Method string
	Params P
	Peer   ConnID
}
