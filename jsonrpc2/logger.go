package jsonrpc2

import (
	"io"
	"os"

	"github.com/alexcesaro/log"
	"github.com/alexcesaro/log/golog"
)

// Logger receives connection diagnostics. *golog.Logger satisfies it.
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warningf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

func discardLogger() Logger {
	return golog.New(io.Discard, log.Debug)
}

func stderrLogger() Logger {
	return golog.New(os.Stderr, log.Info)
}
