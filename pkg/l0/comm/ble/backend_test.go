package ble

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/neurolink/pkg/l0/comm"
)

type fakeServer struct {
	name        string
	caps        []byte
	h           gattHandlers
	starts      int
	advertising bool
	notifyErr   error
	notified    [][]byte
}

func (s *fakeServer) Start(name string, caps []byte, h gattHandlers) error {
	s.name, s.caps, s.h = name, caps, h
	s.starts++
	return nil
}

func (s *fakeServer) Advertise() error {
	s.advertising = true
	return nil
}

func (s *fakeServer) StopAdvertising() error {
	s.advertising = false
	return nil
}

func (s *fakeServer) Notify(p []byte) error {
	if s.notifyErr != nil {
		return s.notifyErr
	}
	s.notified = append(s.notified, append([]byte(nil), p...))
	return nil
}

func newTestBackend(cfg Config) (*Backend, *fakeServer) {
	srv := &fakeServer{}
	return newBackend(cfg, srv), srv
}

func TestBackendOpenAdvertises(t *testing.T) {
	b, srv := newTestBackend(Config{Capabilities: []byte("caps")})
	require.Equal(t, comm.KindWireless, b.Kind())
	require.NoError(t, b.Open())
	require.True(t, srv.advertising)
	require.Equal(t, DefaultName, srv.name)
	require.Equal(t, []byte("caps"), srv.caps)
	require.False(t, b.IsLinkActive())

	require.NoError(t, b.Close())
	require.False(t, srv.advertising)
	require.NoError(t, b.Open())
	require.Equal(t, 2, srv.starts)
}

func TestBackendConnectEvents(t *testing.T) {
	b, srv := newTestBackend(Config{})
	require.NoError(t, b.Open())
	srv.h.connected(true)
	require.True(t, b.IsLinkActive())
	srv.h.written([]byte{0x05, 0x00})
	srv.h.connected(false)
	require.False(t, b.IsLinkActive())
	n, err := b.TryReceive(make([]byte, 8))
	require.NoError(t, err)
	require.Zero(t, n, "queued bytes dropped on disconnect")
}

func TestBackendReceivePartialReads(t *testing.T) {
	b, srv := newTestBackend(Config{})
	require.NoError(t, b.Open())
	srv.h.connected(true)
	srv.h.written([]byte{1, 2, 3, 4, 5})
	srv.h.written([]byte{6})

	p := make([]byte, 2)
	var got []byte
	for {
		n, err := b.TryReceive(p)
		require.NoError(t, err)
		if n == 0 {
			break
		}
		got = append(got, p[:n]...)
	}
	require.Equal(t, []byte{1, 2, 3, 4, 5, 6}, got)
}

func TestBackendQueueBounded(t *testing.T) {
	b, srv := newTestBackend(Config{QueueLen: 2})
	require.NoError(t, b.Open())
	srv.h.connected(true)
	srv.h.written([]byte{1})
	srv.h.written([]byte{2})
	srv.h.written([]byte{3})
	require.Equal(t, uint64(1), b.Stats().Dropped)
	p := make([]byte, 4)
	n, _ := b.TryReceive(p)
	require.Equal(t, []byte{1}, p[:n])
	n, _ = b.TryReceive(p)
	require.Equal(t, []byte{2}, p[:n])
	n, _ = b.TryReceive(p)
	require.Zero(t, n)
}

func TestBackendSendChunks(t *testing.T) {
	b, srv := newTestBackend(Config{ChunkSize: 4})
	require.Equal(t, comm.ErrNotConnected, b.Send([]byte{1}))
	require.NoError(t, b.Open())
	srv.h.connected(true)
	require.NoError(t, b.Send([]byte{1, 2, 3, 4, 5, 6, 7, 8, 9}))
	require.Equal(t, [][]byte{{1, 2, 3, 4}, {5, 6, 7, 8}, {9}}, srv.notified)
}

func TestBackendNotifyUnsupported(t *testing.T) {
	b, srv := newTestBackend(Config{})
	require.NoError(t, b.Open())
	srv.h.connected(true)
	srv.notifyErr = errors.New("notify not permitted")
	err := b.Send([]byte("{}"))
	require.True(t, errors.Is(err, comm.ErrUnsupported))
	require.True(t, b.IsLinkActive())
}

func TestBackendPeerDetectedByWrites(t *testing.T) {
	b, srv := newTestBackend(Config{IdleTimeout: time.Second})
	now := time.Unix(100, 0)
	b.now = func() time.Time { return now }
	require.NoError(t, b.Open())
	require.False(t, b.IsLinkActive())

	srv.h.written([]byte{0x05, 0x00})
	require.True(t, b.IsLinkActive())
	now = now.Add(900 * time.Millisecond)
	require.True(t, b.IsLinkActive())
	now = now.Add(100 * time.Millisecond)
	require.False(t, b.IsLinkActive())
}

func TestBackendWritesIgnoredWhenClosed(t *testing.T) {
	b, srv := newTestBackend(Config{})
	require.NoError(t, b.Open())
	require.NoError(t, b.Close())
	srv.h.written([]byte{1})
	require.False(t, b.IsLinkActive())
	require.Zero(t, b.Stats().Writes)
}

func TestBackendWithCore(t *testing.T) {
	b, srv := newTestBackend(Config{})
	caps := []byte(`{"display":{"matrix":true}}`)
	core := comm.NewCore(b, comm.Actuators{Capabilities: caps}, comm.CoreOptions{Link: comm.DefaultLinkOptions()})
	ctx, now := context.Background(), time.Unix(0, 0)
	require.Equal(t, comm.StateAdvertising, core.Tick(ctx, now))
	srv.h.connected(true)
	require.Equal(t, comm.StateConnected, core.Tick(ctx, now))
	srv.h.written([]byte{0x05, 0x00})
	core.Tick(ctx, now)
	require.Equal(t, [][]byte{caps[:20], caps[20:]}, srv.notified)
}

func TestBackendReconnectBetweenTicks(t *testing.T) {
	b, srv := newTestBackend(Config{})
	var fired [][]comm.Coord
	display := displayFunc(func(coords []comm.Coord) { fired = append(fired, coords) })
	core := comm.NewCore(b, comm.Actuators{Display: display}, comm.CoreOptions{Link: comm.DefaultLinkOptions()})
	ctx, now := context.Background(), time.Unix(0, 0)
	core.Tick(ctx, now)
	srv.h.connected(true)
	require.Equal(t, comm.StateConnected, core.Tick(ctx, now))
	first := b.SessionID()

	srv.h.written([]byte{0x01, 0x02, 0x00})
	core.Tick(ctx, now)
	require.Equal(t, 3, core.Buffer.Len())

	srv.h.connected(false)
	srv.h.connected(true)
	srv.h.written([]byte{0x00, 0x04, 0x04})
	require.Equal(t, first+1, b.SessionID())
	require.Equal(t, comm.StateConnected, core.Tick(ctx, now))
	require.Equal(t, uint64(2), core.Link.Sessions())
	require.Empty(t, fired)

	srv.h.written(comm.Encode(&comm.NeuronFiring{Coords: []comm.Coord{{X: 4, Y: 4}}}))
	core.Tick(ctx, now)
	require.Equal(t, [][]comm.Coord{{{X: 4, Y: 4}}}, fired)
}

func TestBackendSessionFromWrites(t *testing.T) {
	b, srv := newTestBackend(Config{IdleTimeout: time.Second})
	now := time.Unix(100, 0)
	b.now = func() time.Time { return now }
	require.NoError(t, b.Open())
	srv.h.written([]byte{1})
	require.Equal(t, uint64(1), b.SessionID())
	srv.h.written([]byte{2})
	require.Equal(t, uint64(1), b.SessionID())
	now = now.Add(time.Second)
	require.False(t, b.IsLinkActive())
	srv.h.written([]byte{3})
	require.Equal(t, uint64(2), b.SessionID())
}

type displayFunc func([]comm.Coord)

func (f displayFunc) ShowNeurons(coords []comm.Coord) { f(coords) }

func (f displayFunc) SetMatrix([comm.MatrixSize]byte) {}
