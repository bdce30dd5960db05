package jsonrpc2

import (
	"fmt"
	"sync"
)

// State is the lifecycle position of a Conn, Client or Server. States only
// move forward.
type State int

const (
	StateInitializing State = iota
	StateStarting
	StateStarted
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateStarting:
		return "starting"
	case StateStarted:
		return "started"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

type lifecycle struct {
	name   string
	logger Logger

	stateMu sync.Mutex
	state   State
	addr    string
}

// State returns the current lifecycle state.
func (l *lifecycle) State() State {
	l.stateMu.Lock()
	defer l.stateMu.Unlock()
	return l.state
}

// Address returns the address given when starting, or "" before that.
func (l *lifecycle) Address() string {
	l.stateMu.Lock()
	defer l.stateMu.Unlock()
	return l.addr
}

// advance moves from one state to a later one. It reports false, and changes
// nothing, if the current state is not from.
func (l *lifecycle) advance(from, to State) bool {
	l.stateMu.Lock()
	defer l.stateMu.Unlock()
	if l.state != from || to <= from {
		return false
	}
	l.state = to
	l.logger.Debugf("%s: %s -> %s", l.name, from, to)
	return true
}

// begin records addr and moves from Initializing to Starting.
func (l *lifecycle) begin(addr string) bool {
	l.stateMu.Lock()
	defer l.stateMu.Unlock()
	if l.state != StateInitializing {
		return false
	}
	l.state = StateStarting
	l.addr = addr
	l.logger.Debugf("%s: %s -> %s (%s)", l.name, StateInitializing, StateStarting, addr)
	return true
}
