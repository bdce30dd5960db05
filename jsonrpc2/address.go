package jsonrpc2

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// Address names a stream endpoint: a TCP host and port, or a unix socket
// path.
type Address struct {
	Network string
	Address string
}

// TCP returns the address of a TCP endpoint. Host may be empty to listen on
// all interfaces.
func TCP(host string, port int) Address {
	return Address{Network: "tcp", Address: net.JoinHostPort(host, strconv.Itoa(port))}
}

// Unix returns the address of a unix domain socket.
func Unix(path string) Address {
	return Address{Network: "unix", Address: path}
}

// ParseAddress accepts "host:port", ":port", "unix://path", or a filesystem
// path starting with "/" or ".".
func ParseAddress(s string) (Address, error) {
	switch {
	case strings.HasPrefix(s, "unix://"):
		return Unix(strings.TrimPrefix(s, "unix://")), nil
	case strings.HasPrefix(s, "/"), strings.HasPrefix(s, "."):
		return Unix(s), nil
	}
	host, port, err := net.SplitHostPort(s)
	if err != nil {
		return Address{}, fmt.Errorf("invalid address %q: %w", s, err)
	}
	n, err := strconv.Atoi(port)
	if err != nil || n < 0 || n > 65535 {
		return Address{}, fmt.Errorf("invalid port in address %q", s)
	}
	return TCP(host, n), nil
}

func (a Address) String() string {
	if a.Network == "unix" {
		return "unix://" + a.Address
	}
	return a.Address
}
