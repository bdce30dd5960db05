package jsonrpc2

import "sync"

// CancellationToken fires at most once. Callbacks run synchronously, in
// registration order, on the goroutine that calls Cancel.
type CancellationToken struct {
	mu        sync.Mutex
	cancelled bool
	sealed    bool
	nextKey   int
	callbacks []cancelCallback
}

type cancelCallback struct {
	key int
	fn  func()
}

func NewCancellationToken() *CancellationToken {
	return &CancellationToken{}
}

func (t *CancellationToken) IsCancelled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancelled
}

// OnCancel registers fn and returns a func that unregisters it. If the token
// already fired, fn runs immediately.
func (t *CancellationToken) OnCancel(fn func()) (remove func()) {
	t.mu.Lock()
	if t.cancelled {
		t.mu.Unlock()
		fn()
		return func() {}
	}
	if t.sealed {
		t.mu.Unlock()
		return func() {}
	}
	key := t.nextKey
	t.nextKey++
	t.callbacks = append(t.callbacks, cancelCallback{key: key, fn: fn})
	t.mu.Unlock()

	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		for i, cb := range t.callbacks {
			if cb.key == key {
				t.callbacks = append(t.callbacks[:i:i], t.callbacks[i+1:]...)
				return
			}
		}
	}
}

// Cancel fires the token. It reports false if the token had already fired.
func (t *CancellationToken) Cancel() bool {
	t.mu.Lock()
	if t.cancelled || t.sealed {
		t.mu.Unlock()
		return false
	}
	t.cancelled = true
	callbacks := t.callbacks
	t.callbacks = nil
	t.mu.Unlock()

	for _, cb := range callbacks {
		cb.fn()
	}
	return true
}

// seal makes the token inert once the work it guards has finished. It never
// fires afterwards and pending callbacks are dropped unrun.
func (t *CancellationToken) seal() {
	t.mu.Lock()
	t.sealed = true
	t.callbacks = nil
	t.mu.Unlock()
}
