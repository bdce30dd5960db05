package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/vipnode/jsonrpc/internal/example"
	"github.com/vipnode/jsonrpc/jsonrpc2"
	"github.com/vipnode/jsonrpc/jsonrpc2/ws"
	"github.com/vipnode/jsonrpc/jsonrpc2/ws/gobwas"
	"github.com/vipnode/jsonrpc/jsonrpc2/ws/gorilla"
)

// listener picks how the server accepts connections. An empty impl serves
// raw sockets on bind.
func listener(bind string, impl string, cfg jsonrpc2.Config) (jsonrpc2.ListenFunc, error) {
	cfg = cfg.WithDefaults()
	switch impl {
	case "":
		addr, err := jsonrpc2.ParseAddress(bind)
		if err != nil {
			return nil, err
		}
		return jsonrpc2.ListenStream(addr, cfg.MaxPayload, cfg.Timeout), nil
	case "gorilla":
		return ws.Listen(bind, gorilla.NewUpgrader(cfg)), nil
	case "gobwas":
		return ws.Listen(bind, gobwas.NewUpgrader(cfg)), nil
	}
	return nil, fmt.Errorf("unknown websocket implementation: %q", impl)
}

func runServer(options Options, cfg jsonrpc2.Config) error {
	listen, err := listener(options.Server.Bind, options.Server.WebSocket, cfg)
	if err != nil {
		return ErrExplain{err, "Use --websocket=gorilla or --websocket=gobwas, or leave it empty for raw sockets."}
	}

	server := jsonrpc2.NewServer(cfg)
	server.OnConnect = func(c *jsonrpc2.Conn) {
		logger.Infof("Connected: %s", c.ID())
	}
	server.OnDisconnect = func(c *jsonrpc2.Conn) {
		if err := c.Err(); err != nil {
			logger.Infof("Disconnected: %s: %s", c.ID(), err)
			return
		}
		logger.Infof("Disconnected: %s", c.ID())
	}
	if err := example.Serve(server, logger); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), rpcTimeout)
	err = server.BindListener(ctx, options.Server.Bind, listen)
	cancel()
	if err != nil {
		return ErrExplain{err, fmt.Sprintf("Failed to listen on %s. Is another process using it?", options.Server.Bind)}
	}
	logger.Infof("Starting server (version %s), listening on: %s", Version, server.Addr())

	// Register server.Stop() on ctrl+c signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	go func() {
		for range sigCh {
			logger.Info("Shutting down...")
			server.Stop()
		}
	}()

	<-server.Done()
	return nil
}
