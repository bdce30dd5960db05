package jsonrpc2

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"runtime"
	"strings"
	"testing"
	"time"
)

// pipeWith joins two clients with their own configs over net.Pipe.
func pipeWith(t *testing.T, cfgA, cfgB Config) (*Client, *Client) {
	t.Helper()
	ca, cb := net.Pipe()
	a, b := NewClient(cfgA), NewClient(cfgB)
	if err := a.ConnectTransport(context.Background(), "pipe", a.pipeDialer(ca)); err != nil {
		t.Fatal(err)
	}
	if err := b.ConnectTransport(context.Background(), "pipe", b.pipeDialer(cb)); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		a.Stop()
		b.Stop()
	})
	return a, b
}

func TestPipeHello(t *testing.T) {
	a, b := pipe(t)
	if err := HandleRequest(b, helloMethod, greet); err != nil {
		t.Fatal(err)
	}

	got, err := Do(testContext(t), a, helloMethod, helloParams{Name: "bob"})
	if err != nil {
		t.Fatal(err)
	}
	if want := "hello bob"; got.Greet != want {
		t.Errorf("got: %q; want %q", got.Greet, want)
	}
}

func TestBidirectional(t *testing.T) {
	pinger, ponger := pipe(t)

	HandleFunc(ponger, pongMethod, func(ctx context.Context, _ struct{}) (string, error) {
		return "pong", nil
	})
	HandleFunc(pinger, pingMethod, func(ctx context.Context, _ struct{}) (string, error) {
		pong, err := Do(ctx, pinger, pongMethod, struct{}{})
		if err != nil {
			return "", err
		}
		return "ping" + pong, nil
	})

	ctx := testContext(t)
	got, err := Do(ctx, pinger, pongMethod, struct{}{})
	if err != nil {
		t.Fatal(err)
	}
	if want := "pong"; got != want {
		t.Errorf("got: %q; want %q", got, want)
	}

	got, err = Do(ctx, ponger, pingMethod, struct{}{})
	if err != nil {
		t.Fatal(err)
	}
	if want := "pingpong"; got != want {
		t.Errorf("got: %q; want %q", got, want)
	}
}

func TestRecursiveCalls(t *testing.T) {
	a, b := pipe(t)

	fib := func(self *Client) func(context.Context, fibParams) (int, error) {
		return func(ctx context.Context, p fibParams) (int, error) {
			x, y := p.B, p.A+p.B
			if p.Steps <= 0 {
				return y, nil
			}
			return Do(ctx, self, fibMethod, fibParams{A: x, B: y, Steps: p.Steps - 1})
		}
	}
	HandleFunc(a, fibMethod, fib(a))
	HandleFunc(b, fibMethod, fib(b))

	// 0, 1, 1, 2, 3, 5, 8, 13, 21
	got, err := Do(testContext(t), a, fibMethod, fibParams{A: 0, B: 1, Steps: 6})
	if err != nil {
		t.Fatal(err)
	}
	if want := 21; got != want {
		t.Errorf("got: %d; want %d", got, want)
	}
}

func TestUnknownMethod(t *testing.T) {
	a, b := pipe(t)
	HandleRequest(b, helloMethod, greet)
	ctx := testContext(t)

	// Registered but unhandled, and not registered at all.
	_, err := Do(ctx, a, unknownMethod, helloParams{Name: "bob"})
	assertErrorCode(t, err, ErrCodeMethodNotFound)
	_, err = Do(ctx, a, NewRequestMethod[int, int]("nothere"), 1)
	assertErrorCode(t, err, ErrCodeMethodNotFound)

	got, err := Do(ctx, a, helloMethod, helloParams{Name: "alice"})
	if err != nil {
		t.Fatal(err)
	}
	if want := "hello alice"; got.Greet != want {
		t.Errorf("got: %q; want %q", got.Greet, want)
	}
}

func TestOutOfOrderReplies(t *testing.T) {
	a, b := pipe(t)
	reqs := make(chan *Request[string, string], 3)
	HandleRequest(b, echoMethod, func(req *Request[string, string]) {
		reqs <- req
	})

	names := []string{"A", "B", "C"}
	calls := make([]*Call[string], len(names))
	for i, name := range names {
		call, err := Send(a, echoMethod, name)
		if err != nil {
			t.Fatal(err)
		}
		calls[i] = call
	}

	received := make([]*Request[string, string], 0, len(names))
	for range names {
		received = append(received, waitFor(t, reqs, "request"))
	}
	for i, req := range received {
		if req.Params != names[i] {
			t.Errorf("handler %d got %q; want %q", i, req.Params, names[i])
		}
	}
	for i := len(received) - 1; i >= 0; i-- {
		received[i].Reply(received[i].Params)
	}

	ctx := testContext(t)
	for i, call := range calls {
		got, err := call.Wait(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if got != names[i] {
			t.Errorf("call %d got %q; want %q", i, got, names[i])
		}
	}
}

func TestNotification(t *testing.T) {
	a, b := pipe(t)
	received := make(chan *Notification[helloParams], 1)
	HandleNotification(b, hiMethod, func(n *Notification[helloParams]) {
		received <- n
	})

	if err := Notify(a, hiMethod, helloParams{Name: "bob"}); err != nil {
		t.Fatal(err)
	}
	n := waitFor(t, received, "notification")
	if n.Params.Name != "bob" || n.Method != "hi" {
		t.Errorf("unexpected notification: %+v", n)
	}
	if n.Peer != b.ID() {
		t.Errorf("got peer %s; want %s", n.Peer, b.ID())
	}
}

func TestCancelBeforeReply(t *testing.T) {
	a, b := pipe(t)
	reqs := make(chan *Request[string, string], 1)
	cancelled := make(chan struct{}, 1)
	HandleRequest(b, echoMethod, func(req *Request[string, string]) {
		req.OnCancel(func() { cancelled <- struct{}{} })
		reqs <- req
	})

	call, err := Send(a, echoMethod, "slow")
	if err != nil {
		t.Fatal(err)
	}
	req := waitFor(t, reqs, "request")
	call.Cancel()
	waitFor(t, cancelled, "cancel callback")

	_, err = call.Wait(testContext(t))
	assertErrorCode(t, err, ErrCodeRequestCancelled)

	if !req.IsCancelled() {
		t.Error("request not marked cancelled")
	}
	if req.Context().Err() == nil {
		t.Error("request context not done after cancel")
	}
	// Replies after cancellation are ignored.
	req.Reply("late")
}

func TestCancelledResult(t *testing.T) {
	a, b := pipe(t)
	reqs := make(chan *Request[string, string], 1)
	HandleRequest(b, echoMethod, func(req *Request[string, string]) {
		req.SetCancelledResult("partial")
		reqs <- req
	})

	call, err := Send(a, echoMethod, "slow")
	if err != nil {
		t.Fatal(err)
	}
	req := waitFor(t, reqs, "request")
	call.Cancel()

	got, err := call.Wait(testContext(t))
	if err != nil {
		t.Fatal(err)
	}
	if want := "partial"; got != want {
		t.Errorf("got: %q; want %q", got, want)
	}
	runtime.KeepAlive(req)
}

func TestCancelAfterReply(t *testing.T) {
	a, b := pipe(t)
	HandleRequest(b, helloMethod, greet)
	ctx := testContext(t)

	call, err := Send(a, helloMethod, helloParams{Name: "bob"})
	if err != nil {
		t.Fatal(err)
	}
	waitDone(t, call.Done(), "reply")
	call.Cancel()

	got, err := call.Result()
	if err != nil {
		t.Fatal(err)
	}
	if want := "hello bob"; got.Greet != want {
		t.Errorf("got: %q; want %q", got.Greet, want)
	}

	if _, err := Do(ctx, a, helloMethod, helloParams{Name: "again"}); err != nil {
		t.Errorf("connection unusable after late cancel: %s", err)
	}
}

func TestWaitContextCancels(t *testing.T) {
	a, b := pipe(t)
	cancelled := make(chan struct{}, 1)
	held := make(chan *Request[string, string], 1)
	HandleRequest(b, echoMethod, func(req *Request[string, string]) {
		req.OnCancel(func() { cancelled <- struct{}{} })
		held <- req
	})

	call, err := Send(a, echoMethod, "slow")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := call.Result(); !errors.Is(err, ErrPending) {
		t.Errorf("got: %v; want ErrPending", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := call.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("got: %v; want context.DeadlineExceeded", err)
	}
	waitFor(t, cancelled, "remote cancellation")
	waitFor(t, held, "held request")
}

func TestDoubleReplyPanics(t *testing.T) {
	a, b := pipe(t)
	panics := make(chan interface{}, 1)
	HandleRequest(b, echoMethod, func(req *Request[string, string]) {
		defer func() { panics <- recover() }()
		req.Reply("first")
		req.Reply("second")
	})

	got, err := Do(testContext(t), a, echoMethod, "x")
	if err != nil {
		t.Fatal(err)
	}
	if want := "first"; got != want {
		t.Errorf("got: %q; want %q", got, want)
	}
	if p := waitFor(t, panics, "handler"); p == nil {
		t.Error("second reply did not panic")
	}
}

func TestDroppedRequest(t *testing.T) {
	a, b := pipe(t)
	HandleRequest(b, echoMethod, func(req *Request[string, string]) {})

	call, err := Send(a, echoMethod, "dropped")
	if err != nil {
		t.Fatal(err)
	}
	eventually(t, func() bool {
		runtime.GC()
		select {
		case <-call.Done():
			return true
		default:
			return false
		}
	}, "dropped request to be answered")

	_, err = call.Result()
	assertErrorCode(t, err, ErrCodeInternal)
}

func TestReplyError(t *testing.T) {
	a, b := pipe(t)
	HandleFunc(b, echoMethod, func(ctx context.Context, s string) (string, error) {
		if s == "custom" {
			return "", NewError(ErrCodeInvalidParams, "bad echo")
		}
		return "", errors.New("plain failure")
	})
	ctx := testContext(t)

	_, err := Do(ctx, a, echoMethod, "custom")
	assertErrorCode(t, err, ErrCodeInvalidParams)

	_, err = Do(ctx, a, echoMethod, "plain")
	assertErrorCode(t, err, ErrCodeInternal)
	if !strings.Contains(err.Error(), "plain failure") {
		t.Errorf("got: %q; want it to mention the handler error", err)
	}
}

func TestReplyTooLarge(t *testing.T) {
	small := testConfig()
	small.MaxPayload = 200
	a, b := pipeWith(t, testConfig(), small)
	HandleRequest(b, echoMethod, func(req *Request[string, string]) {
		req.Reply(strings.Repeat("x", 500))
	})

	_, err := Do(testContext(t), a, echoMethod, "big")
	assertErrorCode(t, err, ErrCodeInternal)
}

func TestStopFailsPending(t *testing.T) {
	a, b := pipe(t)
	held := make(chan *Request[string, string], 1)
	HandleRequest(b, echoMethod, func(req *Request[string, string]) {
		held <- req
	})

	call, err := Send(a, echoMethod, "never")
	if err != nil {
		t.Fatal(err)
	}
	req := waitFor(t, held, "request")

	a.Stop()
	_, err = call.Wait(testContext(t))
	if !errors.Is(err, ErrClosed) {
		t.Errorf("got: %v; want ErrClosed", err)
	}
	if got := a.State(); got != StateStopped {
		t.Errorf("got state %s; want %s", got, StateStopped)
	}

	// The peer sees EOF, which cancels what it was handling.
	waitDone(t, b.Done(), "peer to stop")
	if !req.IsCancelled() {
		t.Error("in-flight request not cancelled when its connection closed")
	}

	if _, err := Send(a, echoMethod, "after"); !errors.Is(err, ErrNotReady) {
		t.Errorf("got: %v; want ErrNotReady", err)
	}
}

func TestIdleTimeout(t *testing.T) {
	impatient := testConfig()
	impatient.Timeout = 100 * time.Millisecond
	a, b := pipeWith(t, impatient, testConfig())
	held := make(chan *Request[string, string], 1)
	HandleRequest(b, echoMethod, func(req *Request[string, string]) {
		held <- req
	})

	call, err := Send(a, echoMethod, "silence")
	if err != nil {
		t.Fatal(err)
	}
	req := waitFor(t, held, "request")

	_, err = call.Wait(testContext(t))
	runtime.KeepAlive(req)
	if !errors.Is(err, ErrClosed) || !errors.Is(err, ErrTimeout) {
		t.Errorf("got: %v; want ErrClosed and ErrTimeout", err)
	}
	if !errors.Is(a.Err(), ErrTimeout) {
		t.Errorf("got: %v; want ErrTimeout", a.Err())
	}
}

func TestLifecycle(t *testing.T) {
	client := NewClient(testConfig())
	if got := client.State(); got != StateInitializing {
		t.Errorf("got state %s; want %s", got, StateInitializing)
	}
	if _, err := Send(client, echoMethod, "early"); !errors.Is(err, ErrNotReady) {
		t.Errorf("got: %v; want ErrNotReady", err)
	}
	if err := Notify(client, hiMethod, helloParams{}); !errors.Is(err, ErrNotReady) {
		t.Errorf("got: %v; want ErrNotReady", err)
	}

	// Stop before start does nothing.
	client.Stop()
	if got := client.State(); got != StateInitializing {
		t.Errorf("got state %s; want %s", got, StateInitializing)
	}

	dialErr := errors.New("no route")
	err := client.ConnectTransport(context.Background(), "nowhere", func(context.Context) (Transport, error) {
		return nil, dialErr
	})
	if !errors.Is(err, dialErr) {
		t.Errorf("got: %v; want %v", err, dialErr)
	}
	if got := client.State(); got != StateStopped {
		t.Errorf("got state %s; want %s", got, StateStopped)
	}
	waitDone(t, client.Done(), "failed client")

	err = client.Connect(context.Background(), TCP("127.0.0.1", 1))
	if !errors.Is(err, ErrInvalidState) {
		t.Errorf("got: %v; want ErrInvalidState", err)
	}
}

// rawPeer connects a Client to a bare stream transport driven by the test.
func rawPeer(t *testing.T) (*Client, Transport) {
	t.Helper()
	ca, cb := net.Pipe()
	client := NewClient(testConfig())
	if err := client.ConnectTransport(context.Background(), "pipe", client.pipeDialer(ca)); err != nil {
		t.Fatal(err)
	}
	raw := NewStreamTransport(cb, 0, 0)
	t.Cleanup(func() {
		client.Stop()
		raw.Close()
	})
	return client, raw
}

func readReply(t *testing.T, raw Transport) map[string]json.RawMessage {
	t.Helper()
	data, err := raw.ReadFrame()
	if err != nil {
		t.Fatal(err)
	}
	var reply map[string]json.RawMessage
	if err := json.Unmarshal(data, &reply); err != nil {
		t.Fatal(err)
	}
	return reply
}

func TestRawPeerErrors(t *testing.T) {
	client, raw := rawPeer(t)
	held := make(chan *Request[string, string], 2)
	HandleRequest(client, helloMethod, greet)
	HandleRequest(client, echoMethod, func(req *Request[string, string]) {
		held <- req
	})

	tests := []struct {
		Send string
		ID   string
		Code ErrorCode
	}{
		{`{"jsonrpc":"2.0","id":1,"method":"hello","params":{"name":5}}`, `1`, ErrCodeInvalidParams},
		{`[{"jsonrpc":"2.0","id":2,"method":"hello"}]`, `null`, ErrCodeInvalidRequest},
		{`{"jsonrpc":"2.0","id":3}`, `3`, ErrCodeInvalidRequest},
		{`{"jsonrpc":"2.0","id":"s","method":"nothere"}`, `"s"`, ErrCodeMethodNotFound},
		{`{"jsonrpc":"2.0","id":7,"method":"hello","params":{"name":}`, `7`, ErrCodeParse},
	}
	for i, tc := range tests {
		if err := raw.WriteFrame([]byte(tc.Send)); err != nil {
			t.Fatal(err)
		}
		reply := readReply(t, raw)
		if got := string(reply["id"]); got != tc.ID {
			t.Errorf("[%d] got id %s; want %s", i, got, tc.ID)
		}
		var rerr ResponseError
		if err := json.Unmarshal(reply["error"], &rerr); err != nil {
			t.Fatalf("[%d] %s", i, err)
		}
		if rerr.Code != tc.Code {
			t.Errorf("[%d] got code %s; want %s", i, rerr.Code, tc.Code)
		}
	}

	// A second request reusing an in-flight id is rejected.
	raw.WriteFrame([]byte(`{"jsonrpc":"2.0","id":9,"method":"echo","params":"one"}`))
	first := waitFor(t, held, "first request")
	raw.WriteFrame([]byte(`{"jsonrpc":"2.0","id":9,"method":"echo","params":"two"}`))
	reply := readReply(t, raw)
	if string(reply["id"]) != "9" || !strings.Contains(string(reply["error"]), "-32600") {
		t.Errorf("unexpected reply to duplicate id: %v", reply)
	}

	// Responses to unknown ids are dropped and the connection carries on.
	raw.WriteFrame([]byte(`{"jsonrpc":"2.0","id":"unknown","result":1}`))
	raw.WriteFrame([]byte(`{"jsonrpc":"2.0","id":10,"method":"hello","params":{"name":"raw"}}`))
	reply = readReply(t, raw)
	if got, want := string(reply["result"]), `{"greet":"hello raw"}`; got != want {
		t.Errorf("got: %s; want %s", got, want)
	}

	// Malformed JSON with no readable id is fatal.
	raw.WriteFrame([]byte(`{"jsonrpc":`))
	waitDone(t, client.Done(), "client to stop on bad payload")
	if !errors.Is(client.Err(), ErrBadPayload) {
		t.Errorf("got: %v; want ErrBadPayload", client.Err())
	}
	runtime.KeepAlive(first)
}

func TestRawPeerDamagedResponse(t *testing.T) {
	client, raw := rawPeer(t)

	calls := make(chan *Call[helloResult], 1)
	go func() {
		call, err := Send(client, helloMethod, helloParams{Name: "bob"})
		if err != nil {
			t.Error(err)
			return
		}
		calls <- call
	}()
	request := readReply(t, raw)
	call := waitFor(t, calls, "call to be sent")

	damaged := `{"jsonrpc":"2.0","id":` + string(request["id"]) + `,"result":{"greet":}`
	if err := raw.WriteFrame([]byte(damaged)); err != nil {
		t.Fatal(err)
	}
	_, err := call.Wait(testContext(t))
	assertErrorCode(t, err, ErrCodeParse)

	// The connection survives.
	select {
	case <-client.Done():
		t.Fatalf("client stopped: %v", client.Err())
	default:
	}
}

func TestFrameTooLargeIsFatal(t *testing.T) {
	client, raw := rawPeer(t)
	raw.WriteFrame([]byte(`{"pad":"` + strings.Repeat("x", DefaultMaxPayload) + `"}`))
	waitDone(t, client.Done(), "client to stop on oversized frame")
	if !errors.Is(client.Err(), ErrFrameTooLarge) {
		t.Errorf("got: %v; want ErrFrameTooLarge", client.Err())
	}
}
