package comm

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type dispatcherTestEnv struct {
	backend *fakeBackend
	display *fakeDisplay
	gpio    *fakeGPIO
	buf     *RecvBuffer
	disp    *Dispatcher
}

func newDispatcherTestEnv(caps []byte) *dispatcherTestEnv {
	env := &dispatcherTestEnv{
		backend: newFakeBackend(KindWired),
		display: &fakeDisplay{},
		gpio:    &fakeGPIO{},
		buf:     NewRecvBuffer(DefaultBufferCap),
	}
	env.backend.opened, env.backend.active = true, true
	env.disp = NewDispatcher(Actuators{Display: env.display, GPIO: env.gpio, Capabilities: caps})
	return env
}

func TestDispatcherRoutesCommands(t *testing.T) {
	env := newDispatcherTestEnv(nil)
	var stream []byte
	stream = append(stream, Encode(&NeuronFiring{Coords: []Coord{{1, 2}}})...)
	stream = append(stream, Encode(&SetGpio{Pin: 13, Mode: PinDigitalOutput, Value: 1})...)
	stream = append(stream, Encode(&SetPwm{Pin: 0, Duty: 77})...)
	stream = append(stream, Encode(&SetLedMatrix{Brightness: allOnes()})...)
	env.backend.feed(stream)

	require.NoError(t, env.disp.Poll(env.backend, env.buf))
	require.Equal(t, [][]Coord{{{1, 2}}}, env.display.neurons)
	require.Equal(t, [][MatrixSize]byte{allOnes()}, env.display.frames)
	require.Equal(t, []pinWrite{
		{pin: 13, mode: PinDigitalOutput, value: 1},
		{pin: 0, value: 77, pwm: true},
	}, env.gpio.writes)
	require.Zero(t, env.buf.Len())
	stats := env.disp.Stats()
	require.Equal(t, uint64(1), stats.Commands[IDSetLedMatrix])
}

func TestDispatcherIgnoresOutOfMatrixCoords(t *testing.T) {
	env := newDispatcherTestEnv(nil)
	env.backend.feed([]byte{0x01, 0x04, 0, 0, 5, 0, 0, 5, 4, 4})
	require.NoError(t, env.disp.Poll(env.backend, env.buf))
	require.Len(t, env.display.neurons, 1)
	require.Equal(t, []Coord{{0, 0}, {4, 4}}, env.display.neurons[0])
	for _, c := range env.display.neurons[0] {
		require.True(t, c.InMatrix())
	}
	require.Equal(t, uint64(2), env.disp.Stats().Ignored)
}

func TestDispatcherFragmentedAcrossPolls(t *testing.T) {
	env := newDispatcherTestEnv(nil)
	env.backend.feed([]byte{0x03}, []byte{0x02, 0x01}, []byte{0x09})
	require.NoError(t, env.disp.Poll(env.backend, env.buf))
	require.NoError(t, env.disp.Poll(env.backend, env.buf))
	require.Empty(t, env.gpio.writes)
	require.Equal(t, 3, env.buf.Len())
	require.NoError(t, env.disp.Poll(env.backend, env.buf))
	require.Equal(t, []pinWrite{{pin: 1, value: 9, pwm: true}}, env.gpio.writes)
}

func TestDispatcherDropsMalformed(t *testing.T) {
	env := newDispatcherTestEnv(nil)
	env.backend.feed([]byte{0x03, 0x02, 0x01, 0x09, 0xee, 0x03, 0x02, 0x02, 0x02}, []byte{0x03, 0x02, 0x00, 0x01})
	require.NoError(t, env.disp.Poll(env.backend, env.buf))
	require.Zero(t, env.buf.Len())
	require.NoError(t, env.disp.Poll(env.backend, env.buf))
	require.Equal(t, []pinWrite{
		{pin: 1, value: 9, pwm: true},
		{pin: 0, value: 1, pwm: true},
	}, env.gpio.writes)
	require.Equal(t, uint64(1), env.disp.Stats().Malformed)
}

func TestDispatcherCapabilities(t *testing.T) {
	caps := []byte(`{"sensors":{"accel":true}}`)
	env := newDispatcherTestEnv(caps)
	env.backend.feed([]byte{0x05, 0x00})
	require.NoError(t, env.disp.Poll(env.backend, env.buf))
	require.Len(t, env.backend.sent, 1)
	require.True(t, bytes.Equal(caps, env.backend.sent[0]))

	env = newDispatcherTestEnv(nil)
	env.backend.feed([]byte{0x05, 0x00})
	require.NoError(t, env.disp.Poll(env.backend, env.buf))
	require.Empty(t, env.backend.sent)
}

func TestDispatcherCapabilitiesSendError(t *testing.T) {
	env := newDispatcherTestEnv([]byte("caps"))
	env.backend.sendErr = ErrUnsupported
	env.backend.feed([]byte{0x05, 0x00, 0x05, 0x00, 0x03, 0x02, 0x04, 0x05})
	err := env.disp.Poll(env.backend, env.buf)
	require.True(t, errors.Is(err, ErrUnsupported))
	require.Equal(t, []pinWrite{{pin: 4, value: 5, pwm: true}}, env.gpio.writes)
	require.Equal(t, uint64(2), env.disp.Stats().SendErrors)
}

func TestDispatcherReadsAtMostFree(t *testing.T) {
	env := newDispatcherTestEnv(nil)
	require.NoError(t, env.buf.Append([]byte{0x01, 25}))
	env.backend.feed(make([]byte, 300))
	require.NoError(t, env.disp.Poll(env.backend, env.buf))
	require.Equal(t, DefaultBufferCap-2, env.backend.lastRead)
	require.Zero(t, env.disp.Stats().Overflows)
}

func TestDispatcherReceiveError(t *testing.T) {
	env := newDispatcherTestEnv(nil)
	env.backend.recvErr = errRadio
	require.Equal(t, errRadio, env.disp.Poll(env.backend, env.buf))
}

func TestDispatcherRecoversFromCollaboratorPanic(t *testing.T) {
	env := newDispatcherTestEnv(nil)
	env.gpio.panics = true
	env.backend.feed(Encode(&SetGpio{Pin: 1, Value: 1}), Encode(&SetPwm{Pin: 2, Duty: 3}))
	require.NotPanics(t, func() {
		require.NoError(t, env.disp.Poll(env.backend, env.buf))
		require.NoError(t, env.disp.Poll(env.backend, env.buf))
	})
	require.Equal(t, []pinWrite{{pin: 2, value: 3, pwm: true}}, env.gpio.writes)
}
