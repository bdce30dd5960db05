package jsonrpc2

import (
	"context"
	"fmt"
	"sync"
)

type requestHandler func(params interface{}, in *inbound)

type notificationHandler func(params interface{}, peer ConnID)

// handlers maps method names to at most one handler each.
type handlers struct {
	registry *Registry

	mu            sync.RWMutex
	requests      map[string]requestHandler
	notifications map[string]notificationHandler
}

func newHandlers(registry *Registry) *handlers {
	return &handlers{
		registry:      registry,
		requests:      map[string]requestHandler{},
		notifications: map[string]notificationHandler{},
	}
}

func (h *handlers) addRequest(m Method, fn requestHandler) error {
	name := m.Name()
	if registered, ok := h.registry.LookupRequest(name); !ok || registered != m {
		return fmt.Errorf("%w: request %q", ErrUnknownMethod, name)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.requests[name]; ok {
		return fmt.Errorf("%w: request %q", ErrHandlerExists, name)
	}
	h.requests[name] = fn
	return nil
}

func (h *handlers) addNotification(m Method, fn notificationHandler) error {
	name := m.Name()
	if name == CancelMethodName {
		return fmt.Errorf("jsonrpc2: %q is handled internally", name)
	}
	if registered, ok := h.registry.LookupNotification(name); !ok || registered != m {
		return fmt.Errorf("%w: notification %q", ErrUnknownMethod, name)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.notifications[name]; ok {
		return fmt.Errorf("%w: notification %q", ErrHandlerExists, name)
	}
	h.notifications[name] = fn
	return nil
}

func (h *handlers) request(name string) (requestHandler, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	fn, ok := h.requests[name]
	return fn, ok
}

func (h *handlers) notification(name string) (notificationHandler, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	fn, ok := h.notifications[name]
	return fn, ok
}

// Registrar accepts handler registrations. It is implemented by *Conn,
// *Client and *Server; a Server's handlers serve every connection it accepts.
type Registrar interface {
	handlerTable() *handlers
}

// HandleRequest registers fn for m. The method must be in the endpoint's
// Registry and can only be handled once.
//
// fn runs on the connection's worker, so it should reply or hand the
// Request off quickly.
func HandleRequest[P, R any](r Registrar, m RequestMethod[P, R], fn func(*Request[P, R])) error {
	return r.handlerTable().addRequest(m, func(params interface{}, in *inbound) {
		p, _ := params.(P)
		fn(newRequest[P, R](p, in))
	})
}

// HandleFunc registers a synchronous function for m. Each call runs in its
// own goroutine with a context that is cancelled along with the request.
func HandleFunc[P, R any](r Registrar, m RequestMethod[P, R], fn func(ctx context.Context, params P) (R, error)) error {
	return HandleRequest(r, m, func(req *Request[P, R]) {
		go func() {
			result, err := fn(req.Context(), req.Params)
			if err != nil {
				req.ReplyError(err)
				return
			}
			req.Reply(result)
		}()
	})
}

// HandleNotification registers fn for m. fn runs on the connection's worker.
func HandleNotification[P any](r Registrar, m NotificationMethod[P], fn func(*Notification[P])) error {
	name := m.Name()
	return r.handlerTable().addNotification(m, func(params interface{}, peer ConnID) {
		p, _ := params.(P)
		fn(&Notification[P]{Method: name, Params: p, Peer: peer})
	})
}
