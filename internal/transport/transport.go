// Package transport connects the engine to the remote service: a
// request/response channel and an asynchronous push-event stream.
package transport

import (
	"context"
	"encoding/json"
	"fmt"
)

// Remote methods used by the engine
const (
	MethodRelationshipList = "relationship/list"
	MethodPeerInfo         = "peer/info"
	MethodSubscribeUpdates = "peer/subscribeUpdates"
	MethodLogin            = "auth/login"
	MethodLogout           = "auth/logout"
)

// Requester issues request/response calls. result may be nil when the
// response body is not needed.
type Requester interface {
	Request(ctx context.Context, method string, params, result any) error
}

// Handler receives the raw payload of one push event
type Handler func(ctx context.Context, payload json.RawMessage)

// EventSource delivers push events to registered handlers, one call per
// event, in delivery order
type EventSource interface {
	OnEvent(kind string, handler Handler)
}

// Error is a failed request/response call: network, remote or decoding
type Error struct {
	Method string
	Reason string
	Err    error
}

func (e *Error) Error() string {
	switch {
	case e.Err != nil && e.Reason != "":
		return fmt.Sprintf("%s: %s: %v", e.Method, e.Reason, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Method, e.Err)
	default:
		return fmt.Sprintf("%s: %s", e.Method, e.Reason)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}
