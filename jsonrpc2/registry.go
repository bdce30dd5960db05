package jsonrpc2

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

// CancelMethodName is the notification a peer sends to cancel one of its
// in-flight requests. It is registered in every Registry.
const CancelMethodName = "$/cancelRequest"

// CancelParams are the params of a cancel notification.
type CancelParams struct {
	ID RequestID `json:"id"`
}

var cancelRequest = NewNotificationMethod[CancelParams](CancelMethodName)

// Method is a registered method descriptor. It is implemented by
// RequestMethod and NotificationMethod.
type Method interface {
	Name() string
	isNotification() bool
	decodeParams(raw json.RawMessage) (interface{}, error)
	decodeResult(raw json.RawMessage) (interface{}, error)
}

// RequestMethod describes a request with params of type P answered by a
// result of type R.
type RequestMethod[P, R any] struct {
	name string
}

// NewRequestMethod returns the descriptor of a request method.
func NewRequestMethod[P, R any](name string) RequestMethod[P, R] {
	return RequestMethod[P, R]{name: name}
}

func (m RequestMethod[P, R]) Name() string { return m.name }

func (m RequestMethod[P, R]) isNotification() bool { return false }

func (m RequestMethod[P, R]) decodeParams(raw json.RawMessage) (interface{}, error) {
	var params P
	if err := unmarshalPayload(raw, &params); err != nil {
		return nil, err
	}
	return params, nil
}

func (m RequestMethod[P, R]) decodeResult(raw json.RawMessage) (interface{}, error) {
	var result R
	if err := unmarshalPayload(raw, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// NotificationMethod describes a notification with params of type P.
type NotificationMethod[P any] struct {
	name string
}

// NewNotificationMethod returns the descriptor of a notification method.
func NewNotificationMethod[P any](name string) NotificationMethod[P] {
	return NotificationMethod[P]{name: name}
}

func (m NotificationMethod[P]) Name() string { return m.name }

func (m NotificationMethod[P]) isNotification() bool { return true }

func (m NotificationMethod[P]) decodeParams(raw json.RawMessage) (interface{}, error) {
	var params P
	if err := unmarshalPayload(raw, &params); err != nil {
		return nil, err
	}
	return params, nil
}

func (m NotificationMethod[P]) decodeResult(raw json.RawMessage) (interface{}, error) {
	return nil, errors.New("notifications have no result")
}

// Registry is the immutable method table shared by a Codec and the handler
// tables built on it. Request and notification names are separate
// namespaces.
type Registry struct {
	requests      map[string]Method
	notifications map[string]Method
}

// NewRegistry builds a Registry. A name may appear at most once per kind, and
// CancelMethodName is reserved.
func NewRegistry(methods ...Method) (*Registry, error) {
	r := &Registry{
		requests:      map[string]Method{},
		notifications: map[string]Method{CancelMethodName: cancelRequest},
	}
	for _, m := range methods {
		name := m.Name()
		if name == "" {
			return nil, errors.New("jsonrpc2: method with empty name")
		}
		if name == CancelMethodName {
			return nil, fmt.Errorf("jsonrpc2: method name %q is reserved", name)
		}
		table := r.requests
		if m.isNotification() {
			table = r.notifications
		}
		if _, ok := table[name]; ok {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateMethod, name)
		}
		table[name] = m
	}
	return r, nil
}

// MustRegistry is like NewRegistry but panics on error. It is meant for
// package-level method tables.
func MustRegistry(methods ...Method) *Registry {
	r, err := NewRegistry(methods...)
	if err != nil {
		panic(err)
	}
	return r
}

// LookupRequest returns the request method registered under name.
func (r *Registry) LookupRequest(name string) (Method, bool) {
	if r == nil {
		return nil, false
	}
	m, ok := r.requests[name]
	return m, ok
}

// LookupNotification returns the notification method registered under name.
func (r *Registry) LookupNotification(name string) (Method, bool) {
	if r == nil {
		if name == CancelMethodName {
			return cancelRequest, true
		}
		return nil, false
	}
	m, ok := r.notifications[name]
	return m, ok
}

// Methods returns the sorted names of every registered method, including the
// built-in cancel notification.
func (r *Registry) Methods() []string {
	if r == nil {
		return []string{CancelMethodName}
	}
	names := make([]string, 0, len(r.requests)+len(r.notifications))
	for name := range r.requests {
		names = append(names, name)
	}
	for name := range r.notifications {
		if _, ok := r.requests[name]; ok {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
