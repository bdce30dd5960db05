package jsonrpc2

import (
	"context"
	"encoding/json"
	"sync"
)

// Sender can issue calls. It is implemented by *Conn and *Client.
type Sender interface {
	sender() *Conn
}

// Call is an outbound request. Its result arrives exactly once: the peer's
// response, an error response, or ErrClosed if the connection stops first.
type Call[R any] struct {
	ID RequestID

	conn       *Conn
	pc         *pendingCall
	cancelOnce sync.Once
}

// Send issues a request for m. It fails with ErrNotReady unless the
// connection is started.
func Send[P, R any](s Sender, m RequestMethod[P, R], params P) (*Call[R], error) {
	c := s.sender()
	pc, err := c.call(m, params)
	if err != nil {
		return nil, err
	}
	return &Call[R]{ID: pc.id, conn: c, pc: pc}, nil
}

// Do sends a request and waits for its result.
func Do[P, R any](ctx context.Context, s Sender, m RequestMethod[P, R], params P) (R, error) {
	call, err := Send(s, m, params)
	if err != nil {
		var zero R
		return zero, err
	}
	return call.Wait(ctx)
}

// Notify sends a notification for m.
func Notify[P any](s Sender, m NotificationMethod[P], params P) error {
	return s.sender().notify(m, params)
}

// Done is closed when the result is available.
func (call *Call[R]) Done() <-chan struct{} {
	return call.pc.done
}

// Result returns the outcome without blocking, or ErrPending.
func (call *Call[R]) Result() (R, error) {
	select {
	case <-call.pc.done:
		return call.result()
	default:
		var zero R
		return zero, ErrPending
	}
}

// Wait blocks for the outcome. If ctx ends first the request is cancelled
// on the peer and ctx.Err() is returned.
func (call *Call[R]) Wait(ctx context.Context) (R, error) {
	select {
	case <-call.pc.done:
		return call.result()
	case <-ctx.Done():
		call.Cancel()
		var zero R
		return zero, ctx.Err()
	}
}

// Cancel asks the peer to cancel the request. The call still completes with
// whatever the peer replies, typically a RequestCancelled error. Cancelling
// a completed call does nothing.
func (call *Call[R]) Cancel() {
	call.cancelOnce.Do(func() {
		select {
		case <-call.pc.done:
			return
		default:
		}
		if err := call.conn.notify(cancelRequest, CancelParams{ID: call.ID}); err != nil {
			call.conn.logger.Debugf("%s: cancel of %s not sent: %s", call.conn.id, call.ID, err)
		}
	})
}

func (call *Call[R]) result() (R, error) {
	var zero R
	if call.pc.err != nil {
		return zero, call.pc.err
	}
	switch result := call.pc.result.(type) {
	case R:
		return result, nil
	case json.RawMessage:
		var r R
		if err := unmarshalPayload(result, &r); err != nil {
			return zero, NewError(ErrCodeParse, "invalid result for %s: %s", call.pc.method.Name(), err)
		}
		return r, nil
	}
	return zero, nil
}
