// Package transporttest provides an in-process transport for tests.
package transporttest

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/mcoot/relsync/internal/transport"
)

// Responder produces the result of one request given its encoded params
type Responder func(params json.RawMessage) (any, error)

// Call records one request
type Call struct {
	Method string
	Params json.RawMessage
}

// Fake is both a Requester and an EventSource. Requests are answered by
// per-method responders; events are delivered synchronously by Emit.
type Fake struct {
	mu         sync.Mutex
	handlers   map[string][]transport.Handler
	responders map[string]Responder
	calls      []Call
}

var (
	_ transport.Requester   = (*Fake)(nil)
	_ transport.EventSource = (*Fake)(nil)
)

// New creates an empty Fake
func New() *Fake {
	return &Fake{
		handlers:   make(map[string][]transport.Handler),
		responders: make(map[string]Responder),
	}
}

// Handle sets the responder for method
func (f *Fake) Handle(method string, r Responder) {
	f.mu.Lock()
	f.responders[method] = r
	f.mu.Unlock()
}

// Reply answers method with a fixed result
func (f *Fake) Reply(method string, result any) {
	f.Handle(method, func(json.RawMessage) (any, error) { return result, nil })
}

// Fail makes every call to method fail with reason
func (f *Fake) Fail(method, reason string) {
	f.Handle(method, func(json.RawMessage) (any, error) {
		return nil, &transport.Error{Method: method, Reason: reason}
	})
}

// Request records the call and answers it through the method's responder
func (f *Fake) Request(ctx context.Context, method string, params, result any) error {
	raw, err := json.Marshal(params)
	if err != nil {
		return &transport.Error{Method: method, Reason: "failed to marshal request", Err: err}
	}

	f.mu.Lock()
	f.calls = append(f.calls, Call{Method: method, Params: raw})
	r := f.responders[method]
	f.mu.Unlock()

	if r == nil {
		return &transport.Error{Method: method, Reason: "no responder"}
	}

	out, err := r(raw)
	if err != nil {
		return err
	}
	if result == nil || out == nil {
		return nil
	}

	data, err := json.Marshal(out)
	if err != nil {
		return &transport.Error{Method: method, Reason: "failed to marshal response", Err: err}
	}
	if err := json.Unmarshal(data, result); err != nil {
		return &transport.Error{Method: method, Reason: "failed to parse response data", Err: err}
	}
	return nil
}

// Calls returns every call made to method, in order
func (f *Fake) Calls(method string) []Call {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []Call
	for _, c := range f.calls {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

// OnEvent registers a handler for kind
func (f *Fake) OnEvent(kind string, handler transport.Handler) {
	f.mu.Lock()
	f.handlers[kind] = append(f.handlers[kind], handler)
	f.mu.Unlock()
}

// Emit delivers payload, JSON encoded, to the handlers of kind
func (f *Fake) Emit(ctx context.Context, kind string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		panic(err)
	}
	f.EmitRaw(ctx, kind, string(data))
}

// EmitRaw delivers a raw payload to the handlers of kind
func (f *Fake) EmitRaw(ctx context.Context, kind, payload string) {
	f.mu.Lock()
	handlers := append([]transport.Handler{}, f.handlers[kind]...)
	f.mu.Unlock()

	for _, h := range handlers {
		h(ctx, json.RawMessage(payload))
	}
}
