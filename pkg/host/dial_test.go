package host

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/neurolink/pkg/device"
	"github.com/robotalks/neurolink/pkg/framework"
	"github.com/robotalks/neurolink/pkg/l0/comm"
	"github.com/robotalks/neurolink/pkg/l0/comm/stream"
)

func runDevice(t *testing.T, network string) (*device.Device, net.Addr) {
	b, err := stream.New(stream.Config{Network: network, Addr: "127.0.0.1:0"})
	require.NoError(t, err)
	conf := device.NewConfig()
	conf.ID, conf.Pins = "bench", device.EdgePins
	conf.TelemetryInterval = 5 * time.Millisecond
	d := device.New(conf, b, device.DefaultCapabilities(conf.Pins))

	loop := framework.NewLoop().Add(d)
	loop.Interval = time.Millisecond
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		loop.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		d.Close(context.Background())
	})
	require.Eventually(t, func() bool { return b.Addr() != nil }, waitFor, time.Millisecond)
	return d, b.Addr()
}

// awaitSession waits for the first telemetry sample, which the device
// only sends once the session is up and stale input is flushed.
func awaitSession(t *testing.T, c *Client) {
	select {
	case <-c.Telemetry():
	case <-time.After(waitFor):
		require.Fail(t, "no telemetry")
	}
}

func TestDialTCPSession(t *testing.T) {
	d, addr := runDevice(t, stream.NetworkTCP)
	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()

	c, err := Dial(ctx, "tcp://"+addr.String())
	require.NoError(t, err)
	defer c.Close()
	awaitSession(t, c)

	caps, err := c.Capabilities(ctx)
	require.NoError(t, err)
	require.Equal(t, d.Capabilities, []byte(caps))

	require.NoError(t, c.Fire(comm.Coord{X: 2, Y: 2}))
	require.Eventually(t, func() bool {
		f := d.Matrix.Frame()
		return f.Lit(2, 2) && !f.Lit(0, 0)
	}, waitFor, time.Millisecond)
}

func TestDialWebsocketSession(t *testing.T) {
	d, addr := runDevice(t, stream.NetworkWebsocket)
	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()

	c, err := Dial(ctx, "ws://"+addr.String()+stream.DefaultPath)
	require.NoError(t, err)
	defer c.Close()
	awaitSession(t, c)

	require.NoError(t, c.SetPwm(13, 77))
	require.Eventually(t, func() bool {
		s, _ := d.Pins.Pin(13)
		return s.Mode == comm.PinPwmOutput && s.Value == 77
	}, waitFor, time.Millisecond)
}
