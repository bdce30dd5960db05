package main

import (
	"io"

	"github.com/alexcesaro/log"
	"github.com/alexcesaro/log/golog"
)

// logger is shared by the command and, once configured, the jsonrpc2
// connections it opens. It discards everything until main sets it up.
var logger = golog.New(io.Discard, log.Debug)

// Levels selected by repeating -v.
var logLevels = []log.Level{
	log.Warning,
	log.Info,
	log.Debug,
}

func levelFor(verbosity int) log.Level {
	if verbosity >= len(logLevels) {
		verbosity = len(logLevels) - 1
	}
	return logLevels[verbosity]
}

// SetLogger replaces the command logger, writing to w at the level chosen
// by verbosity. It returns that level.
func SetLogger(w io.Writer, verbosity int) log.Level {
	level := levelFor(verbosity)
	logger = golog.New(w, level)
	return level
}
