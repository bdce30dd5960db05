package jsonrpc2

import (
	"runtime"
	"time"
)

const (
	// DefaultMaxPayload bounds frames and encoded messages, in bytes.
	DefaultMaxPayload = 1000000
	// DefaultTimeout is how long a connection may go without receiving a
	// byte before it is closed.
	DefaultTimeout = 3600 * time.Second
)

// Config is shared by Client and Server.
type Config struct {
	// Registry is required to decode typed params and results. Without one
	// only the built-in cancel notification is known.
	Registry *Registry
	// MaxPayload defaults to DefaultMaxPayload.
	MaxPayload int
	// Timeout defaults to DefaultTimeout. A negative value disables it.
	Timeout time.Duration
	// Workers defaults to GOMAXPROCS. A Client only uses one.
	Workers int
	// Logging enables diagnostics and frame tracing on Logger, which
	// defaults to stderr. When false nothing is logged.
	Logging bool
	Logger  Logger
}

// WithDefaults returns a copy of cfg with unset fields filled in.
func (cfg Config) WithDefaults() Config {
	if cfg.Registry == nil {
		cfg.Registry = MustRegistry()
	}
	if cfg.MaxPayload <= 0 {
		cfg.MaxPayload = DefaultMaxPayload
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	} else if cfg.Timeout < 0 {
		cfg.Timeout = 0
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.GOMAXPROCS(0)
	}
	if !cfg.Logging {
		cfg.Logger = discardLogger()
	} else if cfg.Logger == nil {
		cfg.Logger = stderrLogger()
	}
	return cfg
}
