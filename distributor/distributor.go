// Package distributor defines the core interfaces and types for gazefan
// transport adapters. Each adapter implementation (mqtt, http, websocket,
// udp, sse, broker-backed variants) should be in its own sub-package and
// register itself with the distributor registry.
package distributor

import (
	"context"
	"sync"
	"time"

	"github.com/gazefan/gazefan/internal/engine/jsoncodec"
)

// State describes the connection state of one distributor instance.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateError        State = "error"
)

// Params is the raw, transport-specific parameter record for one
// distributor entry as it appears in a session config. Adapters decode it
// into their own typed parameter structs via DecodeParams.
type Params map[string]any

// Clone returns a deep copy of the params. Nested maps are copied so a
// produced session config never aliases template or caller state.
func (p Params) Clone() Params {
	if p == nil {
		return nil
	}
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = cloneValue(v)
	}
	return out
}

// Merge deep-merges overlay on top of p, field-level: overlay keys win per
// field, and nested maps are merged instead of replaced wholesale. Neither
// input is mutated.
func (p Params) Merge(overlay Params) Params {
	out := p.Clone()
	if out == nil {
		out = make(Params, len(overlay))
	}
	for k, v := range overlay {
		base, okBase := out[k].(map[string]any)
		over, okOver := v.(map[string]any)
		if okBase && okOver {
			out[k] = map[string]any(Params(base).Merge(Params(over)))
			continue
		}
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch tv := v.(type) {
	case map[string]any:
		return map[string]any(Params(tv).Clone())
	case []any:
		out := make([]any, len(tv))
		for i, e := range tv {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}

// DecodeParams converts a raw parameter record into a typed parameter
// struct through a JSON round trip, so adapters get the same coercion rules
// (string numbers stay strings, JSON numbers become the target field type)
// regardless of whether the record came from a template or the caller.
func DecodeParams(p Params, v any) error {
	return jsoncodec.Remap(p, v)
}

// Envelope is the JSON wire shape shared by the text-oriented adapters
// (websocket, sse, http, broker publishes). The payload is handed through
// unmodified.
type Envelope struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
	Data      any    `json:"data"`
}

// NewEnvelope wraps a payload for an event with the current time in
// milliseconds.
func NewEnvelope(event string, payload any) Envelope {
	return Envelope{
		Type:      event,
		Timestamp: time.Now().UnixMilli(),
		Data:      payload,
	}
}

// Distributor wraps one transport connection behind a uniform capability
// set. Implementations must be safe for concurrent Sends; Connect,
// Reconfigure, and Disconnect are serialized by the session manager's
// per-session critical section.
type Distributor interface {
	// Name returns the distributor name the instance was registered under.
	Name() string

	// Connect establishes the transport connection. Calling Connect on an
	// already-connected instance is a no-op success.
	Connect(ctx context.Context) error

	// Send delivers one event. It must not block indefinitely: every
	// implementation bounds the call with an adapter-level timeout.
	Send(ctx context.Context, event string, payload any) error

	// Reconfigure tears the connection down and reconnects with the new
	// parameters as one atomic operation from the caller's perspective. If
	// the new connection fails the instance is left in StateError; the old
	// connection is not restored.
	Reconfigure(ctx context.Context, params Params) error

	// Disconnect closes the connection. It is idempotent and always
	// succeeds locally; network errors during close are logged, never
	// surfaced.
	Disconnect() error

	// State reports the current connection state.
	State() State
}

// Status is a concurrency-safe holder for a Distributor's connection state.
// Adapters embed a Status so dispatch-time reads never race with lifecycle
// transitions.
type Status struct {
	mu    sync.RWMutex
	state State
}

// NewStatus returns a Status starting in StateDisconnected.
func NewStatus() *Status {
	return &Status{state: StateDisconnected}
}

// Set transitions the state.
func (s *Status) Set(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// State returns the current state.
func (s *Status) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}
