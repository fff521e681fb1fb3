package serial

import (
	"context"
	"errors"
	"io"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	goserial "go.bug.st/serial"

	"github.com/robotalks/neurolink/pkg/l0/comm"
)

type fakePort struct {
	dsr       bool
	statusErr error
	readErr   error
	in        []byte
	out       []byte
	maxWrite  int
	closed    bool
	flushed   int
	timeout   time.Duration
	stall     chan struct{}
	closeOnce sync.Once
}

func (p *fakePort) Read(b []byte) (int, error) {
	if p.readErr != nil {
		return 0, p.readErr
	}
	n := copy(b, p.in)
	p.in = p.in[n:]
	return n, nil
}

func (p *fakePort) Write(b []byte) (int, error) {
	if p.stall != nil {
		<-p.stall
		return 0, io.ErrClosedPipe
	}
	n := len(b)
	if p.maxWrite > 0 && n > p.maxWrite {
		n = p.maxWrite
	}
	p.out = append(p.out, b[:n]...)
	return n, nil
}

func (p *fakePort) Close() error {
	p.closed = true
	if p.stall != nil {
		p.closeOnce.Do(func() { close(p.stall) })
	}
	return nil
}

func (p *fakePort) SetReadTimeout(t time.Duration) error {
	p.timeout = t
	return nil
}

func (p *fakePort) GetModemStatusBits() (*goserial.ModemStatusBits, error) {
	if p.statusErr != nil {
		return nil, p.statusErr
	}
	return &goserial.ModemStatusBits{DSR: p.dsr}, nil
}

func (p *fakePort) ResetInputBuffer() error {
	p.flushed++
	p.in = nil
	return nil
}

func withFakePort(t *testing.T, fp *fakePort) *[]string {
	var opened []string
	orig := openPort
	openPort = func(name string, baud int) (port, error) {
		opened = append(opened, name)
		require.Equal(t, DefaultBaudRate, baud)
		return fp, nil
	}
	t.Cleanup(func() { openPort = orig })
	return &opened
}

func TestNewValidates(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)
	_, err = New(Config{Port: "/dev/ttyGS0", BaudRate: -1})
	require.Error(t, err)
	b, err := New(Config{Port: "/dev/ttyGS0"})
	require.NoError(t, err)
	require.Equal(t, DefaultBaudRate, b.cfg.BaudRate)
	require.Equal(t, comm.KindWired, b.Kind())
}

func TestHostPresenceFollowsDSR(t *testing.T) {
	fp := &fakePort{}
	opened := withFakePort(t, fp)
	b, err := New(Config{Port: "/dev/ttyGS0"})
	require.NoError(t, err)
	require.False(t, b.IsLinkActive())
	require.NoError(t, b.Open())
	require.Equal(t, []string{"/dev/ttyGS0"}, *opened)
	require.Equal(t, DefaultPollTimeout, fp.timeout)
	require.False(t, b.IsLinkActive())
	fp.dsr = true
	require.True(t, b.IsLinkActive())

	fp.statusErr = errors.New("inappropriate ioctl")
	require.False(t, b.IsLinkActive())
}

func TestIgnoreHostSignal(t *testing.T) {
	fp := &fakePort{statusErr: errors.New("no modem lines")}
	withFakePort(t, fp)
	b, err := New(Config{Port: "/dev/pts/3", IgnoreHostSignal: true})
	require.NoError(t, err)
	require.NoError(t, b.Open())
	require.True(t, b.IsLinkActive())
}

func TestSendReceive(t *testing.T) {
	fp := &fakePort{maxWrite: 3, in: []byte{0x05, 0x00}}
	withFakePort(t, fp)
	b, err := New(Config{Port: "/dev/ttyACM0"})
	require.NoError(t, err)
	require.Equal(t, comm.ErrNotConnected, b.Send([]byte{1}))
	_, err = b.TryReceive(make([]byte, 4))
	require.Equal(t, comm.ErrNotConnected, err)

	require.NoError(t, b.Open())
	require.NoError(t, b.Send([]byte("hello world")))
	require.Equal(t, []byte("hello world"), fp.out)

	p := make([]byte, 8)
	n, err := b.TryReceive(p)
	require.NoError(t, err)
	require.Equal(t, []byte{0x05, 0x00}, p[:n])
	n, err = b.TryReceive(p)
	require.NoError(t, err)
	require.Zero(t, n)

	fp.readErr = io.EOF
	_, err = b.TryReceive(p)
	require.Equal(t, comm.ErrLinkClosed, err)

	require.NoError(t, b.Close())
	require.True(t, fp.closed)
}

func TestWiredCoreSession(t *testing.T) {
	fp := &fakePort{}
	withFakePort(t, fp)
	b, err := New(Config{Port: "/dev/ttyGS0"})
	require.NoError(t, err)
	caps := []byte(`{"gpio":{"digital":8}}`)
	core := comm.NewCore(b, comm.Actuators{Capabilities: caps}, comm.CoreOptions{Link: comm.DefaultLinkOptions()})
	ctx, now := context.Background(), time.Unix(0, 0)

	require.Equal(t, comm.StateWaitingForHost, core.Tick(ctx, now))
	fp.dsr = true
	fp.in = []byte{0xff}
	require.Equal(t, comm.StateConnected, core.Tick(ctx, now))
	require.Equal(t, 1, fp.flushed)

	fp.in = []byte{0x05, 0x00}
	core.Tick(ctx, now)
	require.Equal(t, caps, fp.out)

	fp.dsr = false
	require.Equal(t, comm.StateWaitingForHost, core.Tick(ctx, now))
	require.False(t, fp.closed)
}

func TestStalledWriteIsLinkLoss(t *testing.T) {
	fp := &fakePort{dsr: true, stall: make(chan struct{})}
	withFakePort(t, fp)
	b, err := New(Config{Port: "/dev/ttyGS0", WriteTimeout: 20 * time.Millisecond})
	require.NoError(t, err)
	core := comm.NewCore(b, comm.Actuators{}, comm.CoreOptions{Link: comm.DefaultLinkOptions()})
	ctx, now := context.Background(), time.Unix(0, 0)
	require.Equal(t, comm.StateConnected, core.Tick(ctx, now))

	err = core.SendTelemetry(ctx, now, []byte(`{"buttons":{"a":false,"b":false}}`))
	require.ErrorIs(t, err, os.ErrDeadlineExceeded)
	require.True(t, fp.closed)
	require.Equal(t, comm.StateDisconnected, core.Link.State())
	require.Equal(t, comm.ErrNotConnected, b.Send([]byte{1}))
}
