// Package stream implements a wired link backend over a single accepted
// network connection, either plain TCP or a websocket carrying binary
// frames. It lets simulators and bench rigs stand in for a cable.
package stream

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/golang/glog"
	"golang.org/x/net/websocket"

	"github.com/robotalks/neurolink/pkg/l0/comm"
)

// Networks.
const (
	NetworkTCP       = "tcp"
	NetworkWebsocket = "ws"
)

// Defaults.
const (
	DefaultPath         = "/link"
	DefaultQueueLen     = 16
	DefaultWriteTimeout = time.Second
	readChunkSize       = 512
)

// Config configures the stream backend.
type Config struct {
	// Network is NetworkTCP or NetworkWebsocket.
	Network string
	// Addr is the listen address.
	Addr string
	// Path is the websocket endpoint.
	Path string
	// QueueLen bounds chunks read ahead of TryReceive.
	QueueLen int
	// WriteTimeout bounds a Send to a peer which stopped reading.
	WriteTimeout time.Duration
}

type writeDeadliner interface {
	SetWriteDeadline(time.Time) error
}

type peer struct {
	conn    io.ReadWriteCloser
	remote  string
	chunks  chan []byte
	closing chan struct{}
	done    chan struct{}
	err     error
	once    sync.Once
}

func newPeer(conn io.ReadWriteCloser, remote string, queueLen int) *peer {
	return &peer{
		conn:    conn,
		remote:  remote,
		chunks:  make(chan []byte, queueLen),
		closing: make(chan struct{}),
		done:    make(chan struct{}),
	}
}

func (p *peer) readLoop() {
	defer close(p.done)
	buf := make([]byte, readChunkSize)
	for {
		n, err := p.conn.Read(buf)
		if n > 0 {
			select {
			case p.chunks <- append([]byte(nil), buf[:n]...):
			case <-p.closing:
				return
			}
		}
		if err != nil {
			p.err = err
			return
		}
	}
}

func (p *peer) alive() bool {
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

func (p *peer) close() {
	p.once.Do(func() {
		close(p.closing)
		p.conn.Close()
	})
}

// Backend implements comm.Backend. It serves one peer at a time;
// extra connections are closed right after accept.
type Backend struct {
	cfg Config

	lock     sync.Mutex
	listener net.Listener
	server   *http.Server
	peer     *peer
	pending  []byte
	session  uint64
}

// New creates a Backend.
func New(cfg Config) (*Backend, error) {
	switch cfg.Network {
	case "":
		cfg.Network = NetworkTCP
	case NetworkTCP, NetworkWebsocket:
	default:
		return nil, fmt.Errorf("unsupported network %q", cfg.Network)
	}
	if cfg.Addr == "" {
		return nil, errors.New("listen address is empty")
	}
	if cfg.Path == "" {
		cfg.Path = DefaultPath
	}
	if cfg.QueueLen <= 0 {
		cfg.QueueLen = DefaultQueueLen
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}
	return &Backend{cfg: cfg}, nil
}

// Kind implements comm.Backend.
func (b *Backend) Kind() comm.Kind {
	return comm.KindWired
}

// Addr returns the listening address, nil if not open.
func (b *Backend) Addr() net.Addr {
	b.lock.Lock()
	defer b.lock.Unlock()
	if b.listener == nil {
		return nil
	}
	return b.listener.Addr()
}

// Open implements comm.Backend.
func (b *Backend) Open() error {
	b.lock.Lock()
	defer b.lock.Unlock()
	if b.listener != nil {
		return nil
	}
	ln, err := net.Listen("tcp", b.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", b.cfg.Addr, err)
	}
	b.listener = ln
	if b.cfg.Network == NetworkWebsocket {
		mux := http.NewServeMux()
		mux.Handle(b.cfg.Path, websocket.Server{Handler: b.serveWebsocket})
		b.server = &http.Server{Handler: mux}
		go b.server.Serve(ln)
	} else {
		go b.acceptLoop(ln)
	}
	glog.Infof("%s link listening on %s", b.cfg.Network, ln.Addr())
	return nil
}

// Close implements comm.Backend.
func (b *Backend) Close() error {
	b.lock.Lock()
	ln, srv, p := b.listener, b.server, b.peer
	b.listener, b.server, b.peer, b.pending = nil, nil, nil, nil
	b.lock.Unlock()
	if p != nil {
		p.close()
	}
	if srv != nil {
		return srv.Close()
	}
	if ln != nil {
		return ln.Close()
	}
	return nil
}

// IsLinkActive implements comm.Transport. A peer which went away is
// released so the next connection can take its place.
func (b *Backend) IsLinkActive() bool {
	b.lock.Lock()
	defer b.lock.Unlock()
	if b.peer == nil {
		return false
	}
	if b.peer.alive() {
		return true
	}
	glog.Infof("peer %s gone: %v", b.peer.remote, b.peer.err)
	b.peer.close()
	b.peer, b.pending = nil, nil
	return false
}

// SessionID implements comm.SessionTracker.
func (b *Backend) SessionID() uint64 {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.session
}

// Send implements comm.Transport. A peer not draining its socket fails
// the Send after WriteTimeout.
func (b *Backend) Send(p []byte) error {
	b.lock.Lock()
	pr := b.peer
	b.lock.Unlock()
	if pr == nil {
		return comm.ErrNotConnected
	}
	if d, ok := pr.conn.(writeDeadliner); ok {
		if err := d.SetWriteDeadline(time.Now().Add(b.cfg.WriteTimeout)); err != nil {
			return fmt.Errorf("write deadline %s: %w", pr.remote, err)
		}
	}
	for len(p) > 0 {
		n, err := pr.conn.Write(p)
		if err != nil {
			return fmt.Errorf("write %s: %w", pr.remote, err)
		}
		p = p[n:]
	}
	return nil
}

// TryReceive implements comm.Transport.
func (b *Backend) TryReceive(p []byte) (int, error) {
	b.lock.Lock()
	defer b.lock.Unlock()
	if b.peer == nil {
		return 0, comm.ErrNotConnected
	}
	if len(b.pending) == 0 {
		select {
		case chunk := <-b.peer.chunks:
			b.pending = chunk
		default:
			return 0, nil
		}
	}
	n := copy(p, b.pending)
	b.pending = b.pending[n:]
	return n, nil
}

// ResetInput implements comm.InputFlusher.
func (b *Backend) ResetInput() error {
	b.lock.Lock()
	defer b.lock.Unlock()
	b.pending = nil
	if b.peer == nil {
		return nil
	}
	for {
		select {
		case <-b.peer.chunks:
		default:
			return nil
		}
	}
}

func (b *Backend) acceptLoop(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			glog.V(2).Infof("accept stopped: %v", err)
			return
		}
		if p := b.attach(conn, conn.RemoteAddr().String()); p != nil {
			go p.readLoop()
		}
	}
}

func (b *Backend) serveWebsocket(ws *websocket.Conn) {
	ws.PayloadType = websocket.BinaryFrame
	p := b.attach(ws, ws.Request().RemoteAddr)
	if p == nil {
		return
	}
	// the connection is closed when the handler returns.
	p.readLoop()
}

func (b *Backend) attach(conn io.ReadWriteCloser, remote string) *peer {
	b.lock.Lock()
	defer b.lock.Unlock()
	if b.listener == nil || (b.peer != nil && b.peer.alive()) {
		glog.Warningf("reject %s: link busy", remote)
		conn.Close()
		return nil
	}
	if b.peer != nil {
		b.peer.close()
	}
	b.peer, b.pending = newPeer(conn, remote, b.cfg.QueueLen), nil
	b.session++
	glog.Infof("peer %s attached, session %d", remote, b.session)
	return b.peer
}
