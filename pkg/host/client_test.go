package host

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/neurolink/pkg/l0/comm"
)

const waitFor = 2 * time.Second

// serveFake decodes packets written by the client. GetCapabilities is
// answered with a telemetry sample followed by the descriptor.
func serveFake(conn net.Conn, caps []byte, cmds chan<- comm.Command) {
	buf := comm.NewRecvBuffer(0)
	p := make([]byte, 64)
	for {
		n, err := conn.Read(p)
		if err != nil {
			close(cmds)
			return
		}
		buf.Append(p[:n])
		for {
			pkt, err := buf.TryExtractPacket()
			if err != nil || pkt == nil {
				break
			}
			if pkt.ID == comm.IDGetCapabilities {
				conn.Write([]byte(`{"accel":[0,0,0.8],"buttons":{"a":false,"b":false}}`))
				conn.Write(caps)
			}
			cmds <- pkt.Command
		}
	}
}

func newPipeClient(t *testing.T, caps []byte) (*Client, net.Conn, chan comm.Command) {
	hostEnd, devEnd := net.Pipe()
	cmds := make(chan comm.Command, 16)
	go serveFake(devEnd, caps, cmds)
	c := NewClient(hostEnd)
	t.Cleanup(func() {
		c.Close()
		devEnd.Close()
	})
	return c, devEnd, cmds
}

func TestClientCommands(t *testing.T) {
	c, _, cmds := newPipeClient(t, nil)
	require.NoError(t, c.Fire(comm.Coord{X: 1, Y: 2}))
	require.NoError(t, c.SetGpio(8, comm.PinDigitalOutput, 1))
	require.NoError(t, c.SetPwm(1, 128))
	var m [comm.MatrixSize]byte
	m[12] = 255
	require.NoError(t, c.SetMatrix(m))

	require.Equal(t, &comm.NeuronFiring{Coords: []comm.Coord{{X: 1, Y: 2}}}, <-cmds)
	require.Equal(t, &comm.SetGpio{Pin: 8, Mode: comm.PinDigitalOutput, Value: 1}, <-cmds)
	require.Equal(t, &comm.SetPwm{Pin: 1, Duty: 128}, <-cmds)
	require.Equal(t, &comm.SetLedMatrix{Brightness: m}, <-cmds)
}

func TestClientCapabilities(t *testing.T) {
	caps := []byte(`{"display":{"matrix":true}}`)
	c, _, _ := newPipeClient(t, caps)
	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()

	got, err := c.Capabilities(ctx)
	require.NoError(t, err)
	require.JSONEq(t, string(caps), string(got))

	got, err = c.ReadCapabilities(ctx)
	require.NoError(t, err)
	require.JSONEq(t, string(caps), string(got))

	select {
	case doc := <-c.Telemetry():
		var sample map[string]json.RawMessage
		require.NoError(t, json.Unmarshal(doc, &sample))
		require.Contains(t, sample, "accel")
		require.Equal(t, `{"accel":[0,0,0.8],"buttons":{"a":false,"b":false}}`, FormatTelemetry(doc))
	case <-time.After(waitFor):
		require.Fail(t, "no telemetry")
	}
}

func TestClientConnectionGone(t *testing.T) {
	c, devEnd, _ := newPipeClient(t, nil)
	devEnd.Close()
	select {
	case <-c.Done():
	case <-time.After(waitFor):
		require.Fail(t, "read loop still running")
	}
	require.Error(t, c.Err())
	require.Equal(t, ErrClosed, c.Raw([]byte{0x05, 0x00}))
	_, err := c.Capabilities(context.Background())
	require.True(t, errors.Is(err, ErrClosed))
}

func TestDialRejectsUnknownTargets(t *testing.T) {
	_, err := Dial(context.Background(), "can://bus0")
	require.Error(t, err)
	_, err = Dial(context.Background(), "serial:///dev/null?baud=fast")
	require.Error(t, err)
}

func TestClientSkipsUnparsableInput(t *testing.T) {
	hostEnd, devEnd := net.Pipe()
	c := NewClient(hostEnd)
	defer c.Close()
	defer devEnd.Close()
	go devEnd.Write([]byte("\xff\x00noise}" +
		`{"buttons":{"a":true,"b":false}}` +
		"]]" +
		`{"display":{"matrix":true}}` +
		" 42 " +
		`{"buttons":{"a":false,"b":false}}`))

	next := func(ch <-chan json.RawMessage) json.RawMessage {
		select {
		case doc := <-ch:
			return doc
		case <-time.After(waitFor):
			t.Fatal("no document")
		}
		return nil
	}
	require.JSONEq(t, `{"buttons":{"a":true,"b":false}}`, string(next(c.Telemetry())))
	require.JSONEq(t, `{"display":{"matrix":true}}`, string(next(c.caps)))
	require.JSONEq(t, `{"buttons":{"a":false,"b":false}}`, string(next(c.Telemetry())))
	require.NoError(t, c.Err())
}

func TestClientFireRejectsTooManyCoords(t *testing.T) {
	c, _, _ := newPipeClient(t, nil)
	err := c.Fire(make([]comm.Coord, comm.MaxCoords+1)...)
	require.ErrorIs(t, err, comm.ErrMalformed)
}
