package comm

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/golang/glog"
)

// Default link timings.
const (
	DefaultWaitTimeout = 30 * time.Second
	DefaultRetryMin    = 500 * time.Millisecond
	DefaultRetryMax    = 10 * time.Second
)

// LinkOptions configures a Link.
type LinkOptions struct {
	// WaitTimeout bounds Advertising and WaitingForHost. When it expires
	// the backend is closed and reopened after a retry delay.
	// Zero waits forever.
	WaitTimeout time.Duration
	// RetryMin and RetryMax bound the exponential retry delay.
	RetryMin time.Duration
	RetryMax time.Duration
	// Notifier receives every state change.
	Notifier StateNotifier
}

// DefaultLinkOptions returns the default options.
func DefaultLinkOptions() LinkOptions {
	return LinkOptions{
		WaitTimeout: DefaultWaitTimeout,
		RetryMin:    DefaultRetryMin,
		RetryMax:    DefaultRetryMax,
	}
}

// Link is the connection state machine. It owns the backend lifecycle
// and clears the receive buffer whenever a session ends, so bytes from
// one session are never parsed as part of the next.
//
// Wireless: Disconnected -> Advertising -> Connected -> LinkLost -> Disconnected.
// Wired: Disconnected -> WaitingForHost -> Connected -> WaitingForHost.
//
// Link is not safe for concurrent use; it is driven by Step from the
// control loop.
type Link struct {
	backend Backend
	buffer  *RecvBuffer
	opts    LinkOptions

	state    State
	since    time.Time
	retryAt  time.Time
	backoff  *backoff.ExponentialBackOff
	degraded bool
	sessions uint64
	peer     uint64
}

// NewLink creates a Link in Disconnected state.
func NewLink(backend Backend, buffer *RecvBuffer, opts LinkOptions) *Link {
	if opts.RetryMin <= 0 {
		opts.RetryMin = DefaultRetryMin
	}
	if opts.RetryMax < opts.RetryMin {
		opts.RetryMax = opts.RetryMin
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = opts.RetryMin
	b.MaxInterval = opts.RetryMax
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()
	return &Link{
		backend: backend,
		buffer:  buffer,
		opts:    opts,
		state:   StateDisconnected,
		backoff: b,
	}
}

// State returns the current state.
func (l *Link) State() State {
	return l.state
}

// Since returns when the current state was entered.
func (l *Link) Since() time.Time {
	return l.since
}

// RetryAt returns when the next Open attempt is allowed.
func (l *Link) RetryAt() time.Time {
	return l.retryAt
}

// Degraded indicates outbound data is not deliverable in the current
// session. Inbound commands are still processed.
func (l *Link) Degraded() bool {
	return l.degraded
}

// Sessions returns the number of sessions established.
func (l *Link) Sessions() uint64 {
	return l.sessions
}

// Step advances the state machine. It never blocks.
func (l *Link) Step(ctx context.Context, now time.Time) State {
	switch l.state {
	case StateDisconnected:
		if now.Before(l.retryAt) {
			break
		}
		if err := l.backend.Open(); err != nil {
			glog.Warningf("link open %s: %v", l.backend.Kind(), err)
			l.scheduleRetry(now)
			break
		}
		if l.backend.Kind() == KindWired {
			l.setState(ctx, now, StateWaitingForHost)
		} else {
			l.setState(ctx, now, StateAdvertising)
		}
		l.stepWaiting(ctx, now)
	case StateAdvertising, StateWaitingForHost:
		l.stepWaiting(ctx, now)
	case StateConnected:
		if !l.backend.IsLinkActive() {
			l.lose(ctx, now)
		} else if id, ok := l.peerSession(); ok && id != l.peer {
			l.replacePeer(id)
		}
	case StateLinkLost:
		l.disconnect(ctx, now)
	}
	return l.state
}

// ReportError feeds a transport error into the state machine.
// ErrUnsupported switches the session into degraded mode; anything
// else is treated as link loss.
func (l *Link) ReportError(ctx context.Context, now time.Time, err error) {
	if err == nil {
		return
	}
	if errors.Is(err, ErrUnsupported) {
		if !l.degraded {
			glog.Warningf("link degraded, outbound disabled for this session: %v", err)
		}
		l.degraded = true
		return
	}
	if l.state != StateConnected {
		glog.V(2).Infof("transport error in %s: %v", l.state, err)
		return
	}
	glog.Warningf("transport error, link lost: %v", err)
	if l.backend.Kind() == KindWired {
		l.leaveSession()
		l.disconnect(ctx, now)
		return
	}
	l.lose(ctx, now)
}

// Close closes the backend and returns to Disconnected.
func (l *Link) Close(ctx context.Context) error {
	if l.state == StateConnected {
		l.leaveSession()
	}
	err := l.backend.Close()
	l.buffer.Reset()
	l.setState(ctx, time.Now(), StateDisconnected)
	return err
}

func (l *Link) stepWaiting(ctx context.Context, now time.Time) {
	if l.backend.IsLinkActive() {
		l.connect(ctx, now)
		return
	}
	if l.opts.WaitTimeout > 0 && now.Sub(l.since) >= l.opts.WaitTimeout {
		glog.Infof("no peer after %s in %s, restarting", l.opts.WaitTimeout, l.state)
		l.disconnect(ctx, now)
	}
}

func (l *Link) connect(ctx context.Context, now time.Time) {
	l.buffer.Reset()
	if flusher, ok := l.backend.(InputFlusher); ok {
		if err := flusher.ResetInput(); err != nil {
			glog.Warningf("reset input: %v", err)
		}
	}
	l.backoff.Reset()
	l.degraded = false
	l.sessions++
	l.peer, _ = l.peerSession()
	l.setState(ctx, now, StateConnected)
}

func (l *Link) peerSession() (uint64, bool) {
	if tracker, ok := l.backend.(SessionTracker); ok {
		return tracker.SessionID(), true
	}
	return 0, false
}

// replacePeer starts a new session for a peer which took over between two
// steps. Bytes already queued in the backend belong to the new peer, only
// the partial packet of the previous one is dropped.
func (l *Link) replacePeer(id uint64) {
	glog.Infof("link %s: peer replaced, session %d -> %d", l.backend.Kind(), l.peer, id)
	l.leaveSession()
	l.sessions++
	l.peer = id
}

func (l *Link) lose(ctx context.Context, now time.Time) {
	l.leaveSession()
	if l.backend.Kind() == KindWired {
		l.setState(ctx, now, StateWaitingForHost)
		return
	}
	l.setState(ctx, now, StateLinkLost)
	l.disconnect(ctx, now)
}

func (l *Link) leaveSession() {
	l.buffer.Reset()
	l.degraded = false
}

func (l *Link) disconnect(ctx context.Context, now time.Time) {
	if err := l.backend.Close(); err != nil {
		glog.Warningf("link close %s: %v", l.backend.Kind(), err)
	}
	l.buffer.Reset()
	l.scheduleRetry(now)
	l.setState(ctx, now, StateDisconnected)
}

func (l *Link) scheduleRetry(now time.Time) {
	l.retryAt = now.Add(l.backoff.NextBackOff())
}

func (l *Link) setState(ctx context.Context, now time.Time, state State) {
	if l.state == state {
		return
	}
	glog.V(1).Infof("link %s: %s -> %s", l.backend.Kind(), l.state, state)
	l.state, l.since = state, now
	if n := l.opts.Notifier; n != nil {
		n.StateChanged(ctx, state)
	}
}
