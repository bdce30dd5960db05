package jsonrpc2

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"
)

type helloParams struct {
	Name string `json:"name"`
}

type helloResult struct {
	Greet string `json:"greet"`
}

type fibParams struct {
	A     int `json:"a"`
	B     int `json:"b"`
	Steps int `json:"steps"`
}

var (
	helloMethod   = NewRequestMethod[helloParams, helloResult]("hello")
	unknownMethod = NewRequestMethod[helloParams, helloResult]("unknown")
	echoMethod    = NewRequestMethod[string, string]("echo")
	pingMethod    = NewRequestMethod[struct{}, string]("ping")
	pongMethod    = NewRequestMethod[struct{}, string]("pong")
	fibMethod     = NewRequestMethod[fibParams, int]("fibonacci")
	hiMethod      = NewNotificationMethod[helloParams]("hi")
)

func testRegistry() *Registry {
	return MustRegistry(helloMethod, unknownMethod, echoMethod, pingMethod, pongMethod, fibMethod, hiMethod)
}

func testConfig() Config {
	return Config{Registry: testRegistry()}
}

func greet(req *Request[helloParams, helloResult]) {
	req.Reply(helloResult{Greet: "hello " + req.Params.Name})
}

// startServer binds a server on a random local port with hello registered.
func startServer(t *testing.T, cfg Config) *Server {
	t.Helper()
	server := NewServer(cfg)
	if err := HandleRequest(server, helloMethod, greet); err != nil {
		t.Fatal(err)
	}
	if err := server.Bind(context.Background(), TCP("127.0.0.1", 0)); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { server.Stop() })
	return server
}

func connectClient(t *testing.T, cfg Config, server *Server) *Client {
	t.Helper()
	client := NewClient(cfg)
	if err := client.Connect(context.Background(), Address{Network: "tcp", Address: server.Addr().String()}); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { client.Stop() })
	return client
}

func pipe(t *testing.T) (*Client, *Client) {
	t.Helper()
	a, b, err := Pipe(testConfig())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		a.Stop()
		b.Stop()
	})
	return a, b
}

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// waitFor receives from ch or fails the test after a few seconds.
func waitFor[T any](t *testing.T, ch chan T, what string) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
	panic("unreachable")
}

func waitDone(t *testing.T, done <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
}

// eventually polls cond until it holds or fails the test after a few seconds.
func eventually(t *testing.T, cond func() bool, format string, args ...interface{}) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting: "+format, args...)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func assertEqualJSON(t *testing.T, a, b interface{}, format string, args ...interface{}) {
	t.Helper()

	aa, err := json.Marshal(a)
	if err != nil {
		t.Fatal(err)
	}
	bb, err := json.Marshal(b)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(aa, bb) {
		prefix := fmt.Sprintf(format, args...)
		t.Errorf(prefix+"\n   got: %q\n  want: %q", aa, bb)
	}
}

func assertErrorCode(t *testing.T, err error, want ErrorCode) {
	t.Helper()
	rerr, ok := err.(*ResponseError)
	if !ok {
		t.Fatalf("got error %v (%T); want *ResponseError with code %s", err, err, want)
	}
	if rerr.Code != want {
		t.Errorf("got code: %s; want %s", rerr.Code, want)
	}
}
