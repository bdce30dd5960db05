package jsonrpc2

import (
	"sort"
	"sync"
	"time"
)

// pendingCall is an outbound request awaiting its response.
type pendingCall struct {
	id        RequestID
	method    Method
	timestamp time.Time

	once   sync.Once
	done   chan struct{}
	result interface{}
	err    error
}

func newPendingCall(id RequestID, m Method) *pendingCall {
	return &pendingCall{
		id:        id,
		method:    m,
		timestamp: time.Now(),
		done:      make(chan struct{}),
	}
}

func (pc *pendingCall) complete(result interface{}, err error) {
	pc.once.Do(func() {
		pc.result, pc.err = result, err
		close(pc.done)
	})
}

type pendingQueue []*pendingCall

func (p pendingQueue) Len() int {
	return len(p)
}

func (p pendingQueue) Less(i, j int) bool {
	return p[i].timestamp.Before(p[j].timestamp)
}

func (p pendingQueue) Swap(i, j int) {
	p[i], p[j] = p[j], p[i]
}

// pendingOldest returns up to num calls, oldest first.
func pendingOldest(pending map[RequestID]*pendingCall, num int) pendingQueue {
	if num > len(pending) {
		num = len(pending)
	}
	queue := make(pendingQueue, 0, len(pending))
	for _, pc := range pending {
		queue = append(queue, pc)
	}
	sort.Sort(queue)
	return queue[:num]
}
