// Package ble implements the wireless link backend as a BLE GATT peripheral.
package ble

import (
	"fmt"
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/neurolink/pkg/l0/comm"
)

// Defaults.
const (
	DefaultQueueLen    = 32
	DefaultChunkSize   = 20
	DefaultIdleTimeout = 10 * time.Second
)

// Config configures the BLE backend.
type Config struct {
	// Name is the advertised local name.
	Name string
	// AdapterID selects a host adapter, empty for default.
	AdapterID string
	// Capabilities is exposed through the read characteristic.
	Capabilities []byte
	// QueueLen bounds inbound writes waiting to be polled.
	QueueLen int
	// ChunkSize is the largest notification payload.
	ChunkSize int
	// IdleTimeout drops a peer which was only detected by its writes
	// after it stays silent this long. Stacks without connect events
	// (BlueZ peripheral role) rely on it. Zero disables.
	IdleTimeout time.Duration
}

// Stats counts inbound traffic.
type Stats struct {
	Writes  uint64
	Dropped uint64
	Notifys uint64
}

// Backend implements comm.Backend over a GATT server. Inbound writes
// arrive from the bluetooth stack and are queued until TryReceive; the
// three write characteristics share one receive path.
type Backend struct {
	cfg    Config
	server gattServer
	now    func() time.Time

	lock        sync.Mutex
	open        bool
	connected   bool
	seenByWrite bool
	session     uint64
	lastWrite   time.Time
	queue       [][]byte
	pending     []byte
	stats       Stats
}

// New creates a Backend on the host bluetooth stack.
func New(cfg Config) *Backend {
	return newBackend(cfg, newPeripheral(cfg.AdapterID))
}

func newBackend(cfg Config, server gattServer) *Backend {
	if cfg.Name == "" {
		cfg.Name = DefaultName
	}
	if cfg.QueueLen <= 0 {
		cfg.QueueLen = DefaultQueueLen
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	return &Backend{cfg: cfg, server: server, now: time.Now}
}

// Kind implements comm.Backend.
func (b *Backend) Kind() comm.Kind {
	return comm.KindWireless
}

// Open implements comm.Backend. It registers the service on first use
// and starts advertising.
func (b *Backend) Open() error {
	err := b.server.Start(b.cfg.Name, b.cfg.Capabilities, gattHandlers{
		connected: b.handleConnected,
		written:   b.handleWrite,
	})
	if err != nil {
		return err
	}
	if err := b.server.Advertise(); err != nil {
		return fmt.Errorf("start advertising: %w", err)
	}
	b.lock.Lock()
	b.open = true
	b.lock.Unlock()
	glog.Infof("ble advertising as %q", b.cfg.Name)
	return nil
}

// Close implements comm.Backend.
func (b *Backend) Close() error {
	b.lock.Lock()
	wasOpen := b.open
	b.open, b.connected, b.seenByWrite = false, false, false
	b.queue, b.pending = nil, nil
	b.lock.Unlock()
	if !wasOpen {
		return nil
	}
	if err := b.server.StopAdvertising(); err != nil {
		return fmt.Errorf("stop advertising: %w", err)
	}
	return nil
}

// IsLinkActive implements comm.Transport.
func (b *Backend) IsLinkActive() bool {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.activeLocked()
}

func (b *Backend) activeLocked() bool {
	if !b.open || !b.connected {
		return false
	}
	if b.seenByWrite && b.cfg.IdleTimeout > 0 && b.now().Sub(b.lastWrite) >= b.cfg.IdleTimeout {
		glog.Infof("ble peer silent for %s, assuming disconnected", b.cfg.IdleTimeout)
		b.connected, b.seenByWrite = false, false
		return false
	}
	return true
}

// Send implements comm.Transport. Payloads longer than the chunk size
// are split into several notifications.
func (b *Backend) Send(p []byte) error {
	if !b.IsLinkActive() {
		return comm.ErrNotConnected
	}
	for len(p) > 0 {
		n := len(p)
		if n > b.cfg.ChunkSize {
			n = b.cfg.ChunkSize
		}
		if err := b.server.Notify(p[:n]); err != nil {
			return fmt.Errorf("notify: %w: %v", comm.ErrUnsupported, err)
		}
		p = p[n:]
		b.lock.Lock()
		b.stats.Notifys++
		b.lock.Unlock()
	}
	return nil
}

// TryReceive implements comm.Transport.
func (b *Backend) TryReceive(p []byte) (int, error) {
	b.lock.Lock()
	defer b.lock.Unlock()
	if len(b.pending) == 0 {
		if len(b.queue) == 0 {
			return 0, nil
		}
		b.pending = b.queue[0]
		b.queue[0] = nil
		b.queue = b.queue[1:]
	}
	n := copy(p, b.pending)
	b.pending = b.pending[n:]
	return n, nil
}

// ResetInput implements comm.InputFlusher.
func (b *Backend) ResetInput() error {
	b.lock.Lock()
	b.queue, b.pending = nil, nil
	b.lock.Unlock()
	return nil
}

// SessionID implements comm.SessionTracker. It changes on every peer
// connect, including a reconnect the link did not poll in between.
func (b *Backend) SessionID() uint64 {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.session
}

// Stats returns counters.
func (b *Backend) Stats() Stats {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.stats
}

func (b *Backend) handleConnected(connected bool) {
	b.lock.Lock()
	defer b.lock.Unlock()
	if connected && b.open && !b.connected {
		b.session++
	}
	b.connected = connected && b.open
	b.seenByWrite = false
	if !connected {
		b.queue, b.pending = nil, nil
	}
}

// Newest writes are dropped when the queue is full.
func (b *Backend) handleWrite(data []byte) {
	b.lock.Lock()
	defer b.lock.Unlock()
	if !b.open {
		return
	}
	b.stats.Writes++
	b.lastWrite = b.now()
	if !b.connected {
		b.connected, b.seenByWrite = true, true
		b.session++
	}
	if len(b.queue) >= b.cfg.QueueLen {
		b.stats.Dropped++
		glog.Warningf("ble write queue full (%d), %d bytes dropped", b.cfg.QueueLen, len(data))
		return
	}
	b.queue = append(b.queue, append([]byte(nil), data...))
}
