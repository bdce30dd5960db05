package jsonrpc2

import "errors"

// Framing errors are fatal to the connection that produced them.
var (
	ErrFrameTooLarge  = errors.New("jsonrpc2: frame too large")
	ErrTruncatedFrame = errors.New("jsonrpc2: truncated frame")
	ErrBadHeader      = errors.New("jsonrpc2: malformed frame header")
	ErrTimeout        = errors.New("jsonrpc2: idle read timeout")
)

// Codec errors.
var (
	ErrBadPayload      = errors.New("jsonrpc2: bad payload")
	ErrPayloadTooLarge = errors.New("jsonrpc2: payload too large")
)

// Connection and configuration errors.
var (
	ErrClosed          = errors.New("jsonrpc2: connection closed")
	ErrNotReady        = errors.New("jsonrpc2: connection not ready")
	ErrInvalidState    = errors.New("jsonrpc2: invalid state")
	ErrPending         = errors.New("jsonrpc2: call still pending")
	ErrHandlerExists   = errors.New("jsonrpc2: handler already registered")
	ErrUnknownMethod   = errors.New("jsonrpc2: method not in registry")
	ErrDuplicateMethod = errors.New("jsonrpc2: duplicate method")
)
