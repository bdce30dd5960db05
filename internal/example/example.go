// Package example holds the method table shared by the demo client and
// server.
package example

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/vipnode/jsonrpc/jsonrpc2"
)

type HelloParams struct {
	Name string          `json:"name"`
	Data json.RawMessage `json:"data,omitempty"`
}

type HelloResult struct {
	Greet string `json:"greet"`
}

type HiParams struct {
	From    string `json:"from"`
	Message string `json:"message"`
}

var (
	// Hello greets the caller by name.
	Hello = jsonrpc2.NewRequestMethod[HelloParams, HelloResult]("hello")
	// Unknown is registered so it decodes, but the server never handles it.
	Unknown = jsonrpc2.NewRequestMethod[HelloParams, HelloResult]("unknown")
	// Hi is broadcast by the server to every connected client.
	Hi = jsonrpc2.NewNotificationMethod[HiParams]("hi")
)

// Registry returns the method table for both ends.
func Registry() *jsonrpc2.Registry {
	return jsonrpc2.MustRegistry(Hello, Unknown, Hi)
}

// Greet answers a Hello request.
func Greet(ctx context.Context, params HelloParams) (HelloResult, error) {
	if params.Name == "" {
		return HelloResult{}, jsonrpc2.NewError(jsonrpc2.ErrCodeInvalidParams, "name is required")
	}
	return HelloResult{Greet: fmt.Sprintf("hello %s", params.Name)}, nil
}

// Serve registers the server side. Hello is answered and announced to every
// connection with a Hi; a Hi from any client is relayed to all of them.
func Serve(server *jsonrpc2.Server, logger jsonrpc2.Logger) error {
	broadcast := func(params HiParams) {
		if _, err := jsonrpc2.NotifyClients(server, Hi, params, jsonrpc2.All()); err != nil {
			logger.Warningf("hi broadcast failed: %s", err)
		}
	}

	err := jsonrpc2.HandleRequest(server, Hello, func(req *jsonrpc2.Request[HelloParams, HelloResult]) {
		result, err := Greet(req.Context(), req.Params)
		if err != nil {
			req.ReplyError(err)
			return
		}
		req.Reply(result)
		broadcast(HiParams{
			From:    "server",
			Message: fmt.Sprintf("%s joined", req.Params.Name),
		})
	})
	if err != nil {
		return err
	}
	return jsonrpc2.HandleNotification(server, Hi, func(n *jsonrpc2.Notification[HiParams]) {
		broadcast(n.Params)
	})
}
