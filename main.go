package main

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"time"

	"github.com/alexcesaro/log"
	flags "github.com/jessevdk/go-flags"
	"github.com/vipnode/jsonrpc/internal/config"
	"github.com/vipnode/jsonrpc/internal/example"
	"github.com/vipnode/jsonrpc/jsonrpc2"
)

// Version of the binary, assigned during build.
var Version string = "dev"

var rpcTimeout = time.Second * 5

// Options contains the flag options
type Options struct {
	Verbose []bool `short:"v" long:"verbose" description:"Show verbose logging."`
	Version bool   `long:"version" description:"Print version and exit."`
	Config  string `long:"config" description:"Path to a YAML config file. Defaults to the XDG config dir."`

	Client struct {
		Args struct {
			Address string `positional-arg-name:"address" description:"host:port, unix socket path, or ws:// URL of the server"`
		} `positional-args:"yes"`
		Name      string `long:"name" description:"Name to greet the server with." default:"bob"`
		WebSocket string `long:"websocket" description:"WebSocket implementation for ws:// addresses. (gorilla|gobwas)" default:"gorilla"`
	} `command:"client" description:"Connect to a server, say hello, and print broadcasts."`

	Server struct {
		Bind      string `long:"bind" description:"Address and port to listen on, or a unix socket path." default:"127.0.0.1:8080"`
		WebSocket string `long:"websocket" description:"Serve over WebSocket instead of raw sockets. (gorilla|gobwas)"`
	} `command:"server" description:"Start a server that greets clients and announces joins."`
}

const clientUsage = `Examples:
* Connect to a local server over TCP:
  $ jsonrpc client 127.0.0.1:8080

* Connect over a unix socket:
  $ jsonrpc client /tmp/jsonrpc.sock

* Connect over WebSocket using gobwas:
  $ jsonrpc client --websocket=gobwas ws://127.0.0.1:8080/
`

func subcommand(cmd string, options Options, cfg jsonrpc2.Config) error {
	switch cmd {
	case "client":
		return runClient(options, cfg)
	case "server":
		return runServer(options, cfg)
	}
	return fmt.Errorf("unknown command: %s", cmd)
}

func main() {
	options := Options{}
	parser := flags.NewParser(&options, flags.Default)
	parser.SubcommandsOptional = true
	p, err := parser.Parse()
	if err != nil {
		if p == nil {
			fmt.Println(err)
		}
		if flagErr, ok := err.(*flags.Error); ok && flagErr.Type == flags.ErrHelp && parser.Active != nil {
			// Print additional usage help when run with --help
			switch parser.Active.Name {
			case "client":
				exit(0, clientUsage)
			}
		}
		return
	}

	if options.Version {
		fmt.Println(Version)
		os.Exit(0)
	}

	logLevel := SetLogger(os.Stderr, len(options.Verbose))

	opts, err := config.Load(options.Config)
	if err != nil {
		exit(1, "failed to load config: %s\n", err)
	}
	cfg := opts.Apply(jsonrpc2.Config{
		Registry: example.Registry(),
		Logger:   logger,
	})
	if logLevel == log.Debug {
		// Trace frames and connection state from the library too
		cfg.Logging = true
	}

	cmd := "client"
	if parser.Active != nil {
		cmd = parser.Active.Name
	}
	err = explain(subcommand(cmd, options, cfg))
	if err != nil {
		exit(2, "%s failed: %s\n", cmd, err)
	}
}

// explain annotates err with a hint for the operator. Errors that are
// already explained pass through.
func explain(err error) error {
	if err == nil {
		return nil
	}
	var explained ErrExplain
	if errors.As(err, &explained) {
		return err
	}
	if errors.Is(err, io.EOF) || errors.Is(err, jsonrpc2.ErrClosed) {
		return ErrExplain{err, "Connection closed by the other end."}
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return ErrExplain{err, `Disconnected unexpectedly. Could be a connectivity issue or the server is down. Try again?`}
	}
	var coded interface{ ErrorCode() int }
	if errors.As(err, &coded) {
		switch jsonrpc2.ErrorCode(coded.ErrorCode()) {
		case jsonrpc2.ErrCodeMethodNotFound:
			return ErrExplain{err, `The other end does not implement a required method. Make sure both ends run the same version.`}
		case jsonrpc2.ErrCodeRequestCancelled:
			return ErrExplain{err, `The request was cancelled before it completed.`}
		default:
			return ErrExplain{err, fmt.Sprintf(`Unexpected RPC error occurred: %T (code %d).`, coded, coded.ErrorCode())}
		}
	}
	return ErrExplain{err, fmt.Sprintf(`Error type %T is missing an explanation.`, err)}
}

func exit(code int, format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format, args...)
	os.Exit(code)
}

// ErrExplain annotates an error with an explanation.
type ErrExplain struct {
	Cause       error
	Explanation string
}

func (err ErrExplain) Error() string {
	return fmt.Sprintf("%s\n -> %s", err.Cause, err.Explanation)
}

func (err ErrExplain) Unwrap() error {
	return err.Cause
}

func isWebSocketURL(s string) bool {
	return strings.HasPrefix(s, "ws://") || strings.HasPrefix(s, "wss://")
}
