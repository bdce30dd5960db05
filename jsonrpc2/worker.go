package jsonrpc2

import (
	"sync"
	"sync/atomic"
)

// worker runs tasks one at a time, in submission order. Its queue is
// unbounded so submitting never blocks the reader.
type worker struct {
	mu      sync.Mutex
	queue   []func()
	stopped bool
	wake    chan struct{}
	done    chan struct{}
}

func newWorker() *worker {
	return &worker{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
}

func (w *worker) run() {
	defer close(w.done)
	for {
		w.mu.Lock()
		for len(w.queue) == 0 {
			if w.stopped {
				w.mu.Unlock()
				return
			}
			w.mu.Unlock()
			<-w.wake
			w.mu.Lock()
		}
		task := w.queue[0]
		w.queue[0] = nil
		w.queue = w.queue[1:]
		w.mu.Unlock()

		task()
	}
}

// submit queues task. It reports false once the worker is stopped.
func (w *worker) submit(task func()) bool {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return false
	}
	w.queue = append(w.queue, task)
	w.mu.Unlock()
	w.signal()
	return true
}

func (w *worker) signal() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// stop lets queued tasks drain and rejects new ones. It does not wait.
func (w *worker) stop() {
	w.mu.Lock()
	w.stopped = true
	w.mu.Unlock()
	w.signal()
}

// workerPool is a fixed set of workers. Each connection is pinned to one, so
// its handlers run in arrival order.
type workerPool struct {
	workers   []*worker
	next      uint32
	startOnce sync.Once
	stopOnce  sync.Once
}

func newWorkerPool(size int) *workerPool {
	if size < 1 {
		size = 1
	}
	p := &workerPool{workers: make([]*worker, size)}
	for i := range p.workers {
		p.workers[i] = newWorker()
	}
	return p
}

func (p *workerPool) start() {
	p.startOnce.Do(func() {
		for _, w := range p.workers {
			go w.run()
		}
	})
}

// pick returns workers round robin.
func (p *workerPool) pick() *worker {
	n := atomic.AddUint32(&p.next, 1) - 1
	return p.workers[n%uint32(len(p.workers))]
}

func (p *workerPool) stop() {
	p.stopOnce.Do(func() {
		for _, w := range p.workers {
			w.stop()
		}
	})
}
