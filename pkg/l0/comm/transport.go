package comm

import (
	"context"
	"fmt"
)

// Transport is the capability set shared by every link backend.
// None of the methods block.
type Transport interface {
	// Send pushes bytes to the peer. A backend that can't deliver
	// outbound data returns an error wrapping ErrUnsupported.
	Send(p []byte) error
	// TryReceive copies pending inbound bytes into p.
	// It returns 0, nil when nothing is pending.
	TryReceive(p []byte) (int, error)
	// IsLinkActive reports whether a peer is present and ready.
	IsLinkActive() bool
}

// Kind identifies the lifecycle a backend follows.
type Kind int

// Backend kinds.
const (
	// KindWireless advertises and waits for a peer to connect.
	KindWireless Kind = iota
	// KindWired waits for the host-presence signal on an open stream.
	KindWired
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindWireless:
		return "wireless"
	case KindWired:
		return "wired"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Backend is a Transport whose lifecycle is driven by a Link.
type Backend interface {
	Transport
	// Kind tells which state machine drives the backend.
	Kind() Kind
	// Open starts advertising (wireless) or opens the stream (wired).
	// It must not block waiting for a peer.
	Open() error
	// Close stops advertising, drops the peer and releases resources.
	Close() error
}

// InputFlusher is optionally implemented by backends which can drop
// bytes received before a session starts.
type InputFlusher interface {
	ResetInput() error
}

// SessionTracker is optionally implemented by backends where a peer
// can go away and another take its place between two polls. SessionID
// changes whenever a new peer session starts.
type SessionTracker interface {
	SessionID() uint64
}

// State is the connection state of a Link.
type State int

// Connection states.
const (
	StateDisconnected State = iota
	StateAdvertising
	StateWaitingForHost
	StateConnected
	StateLinkLost
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateAdvertising:
		return "advertising"
	case StateWaitingForHost:
		return "waiting-for-host"
	case StateConnected:
		return "connected"
	case StateLinkLost:
		return "link-lost"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// IsConnected indicates a peer session is active.
func (s State) IsConnected() bool {
	return s == StateConnected
}

// StateNotifier is called when link state changed.
type StateNotifier interface {
	StateChanged(context.Context, State)
}

// StateChangedFunc is func type of StateNotifier.
type StateChangedFunc func(context.Context, State)

// StateChanged implements StateNotifier.
func (f StateChangedFunc) StateChanged(ctx context.Context, state State) {
	f(ctx, state)
}

// StateNotifiers fans out to multiple notifiers.
type StateNotifiers []StateNotifier

// StateChanged implements StateNotifier.
func (n StateNotifiers) StateChanged(ctx context.Context, state State) {
	for _, notifier := range n {
		notifier.StateChanged(ctx, state)
	}
}
