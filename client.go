package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/vipnode/jsonrpc/internal/example"
	"github.com/vipnode/jsonrpc/jsonrpc2"
	"github.com/vipnode/jsonrpc/jsonrpc2/ws/gobwas"
	"github.com/vipnode/jsonrpc/jsonrpc2/ws/gorilla"
)

const defaultClientAddress = "127.0.0.1:8080"

// dialer picks a transport for target: ws:// URLs go through the chosen
// websocket implementation, anything else is a raw socket address.
func dialer(target string, impl string, cfg jsonrpc2.Config) (jsonrpc2.DialFunc, error) {
	if isWebSocketURL(target) {
		switch impl {
		case "", "gorilla":
			return gorilla.Dial(target, cfg), nil
		case "gobwas":
			return gobwas.Dial(target, cfg), nil
		default:
			return nil, fmt.Errorf("unknown websocket implementation: %q", impl)
		}
	}
	addr, err := jsonrpc2.ParseAddress(target)
	if err != nil {
		return nil, err
	}
	cfg = cfg.WithDefaults()
	return jsonrpc2.DialStream(addr, cfg.MaxPayload, cfg.Timeout), nil
}

func runClient(options Options, cfg jsonrpc2.Config) error {
	target := options.Client.Args.Address
	if target == "" {
		target = defaultClientAddress
	}
	dial, err := dialer(target, options.Client.WebSocket, cfg)
	if err != nil {
		return ErrExplain{err, "Address must be host:port, a unix socket path, or a ws:// URL."}
	}

	client := jsonrpc2.NewClient(cfg)
	err = jsonrpc2.HandleNotification(client, example.Hi, func(n *jsonrpc2.Notification[example.HiParams]) {
		logger.Infof("%s: %s", n.Params.From, n.Params.Message)
	})
	if err != nil {
		return err
	}

	logger.Infof("Connecting to: %s", target)
	ctx, cancel := context.WithTimeout(context.Background(), rpcTimeout)
	err = client.ConnectTransport(ctx, target, dial)
	cancel()
	if err != nil {
		return ErrExplain{err, fmt.Sprintf("Failed to connect to %s. Make sure the server is running.", target)}
	}

	ctx, cancel = context.WithTimeout(context.Background(), rpcTimeout)
	result, err := jsonrpc2.Do(ctx, client, example.Hello, example.HelloParams{Name: options.Client.Name})
	cancel()
	if err != nil {
		client.Stop()
		return err
	}
	fmt.Println(result.Greet)

	// Register client.Stop() on ctrl+c signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	go func() {
		for range sigCh {
			logger.Info("Shutting down...")
			client.Stop()
		}
	}()

	<-client.Done()
	return client.Err()
}
