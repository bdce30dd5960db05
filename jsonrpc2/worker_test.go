package jsonrpc2

import (
	"reflect"
	"testing"
)

func TestWorkerOrder(t *testing.T) {
	w := newWorker()
	go w.run()

	var got []int
	for i := 0; i < 100; i++ {
		i := i
		if !w.submit(func() { got = append(got, i) }) {
			t.Fatal("submit rejected before stop")
		}
	}
	w.stop()
	waitDone(t, w.done, "worker to drain")

	want := make([]int, 100)
	for i := range want {
		want[i] = i
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("tasks ran out of order: %v", got)
	}
	if w.submit(func() {}) {
		t.Error("submit accepted after stop")
	}
}

func TestWorkerPoolPick(t *testing.T) {
	p := newWorkerPool(3)
	seen := map[*worker]int{}
	for i := 0; i < 9; i++ {
		seen[p.pick()]++
	}
	if len(seen) != 3 {
		t.Errorf("got %d distinct workers; want 3", len(seen))
	}
	for w, n := range seen {
		if n != 3 {
			t.Errorf("worker %p picked %d times; want 3", w, n)
		}
	}

	p.start()
	p.stop()
	p.stop()
	for _, w := range p.workers {
		waitDone(t, w.done, "worker to stop")
	}
}
