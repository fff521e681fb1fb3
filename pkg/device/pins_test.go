package device

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/neurolink/pkg/l0/comm"
)

func TestPinBankWrites(t *testing.T) {
	var writes []PinState
	b := NewPinBank(EdgePins, func(s PinState) { writes = append(writes, s) })
	require.Equal(t, []byte{0, 1, 2, 8, 13, 14, 15, 16}, b.Pins())

	b.SetPin(13, comm.PinDigitalOutput, 7)
	s, ok := b.Pin(13)
	require.True(t, ok)
	require.Equal(t, byte(1), s.Value)
	require.True(t, s.High())

	b.SetPin(2, comm.PinPwmOutput, 128)
	b.SetPWM(1, 64)
	s, _ = b.Pin(1)
	require.Equal(t, comm.PinPwmOutput, s.Mode)
	require.Equal(t, byte(64), s.Value)
	require.False(t, s.High())
	require.Len(t, writes, 3)
}

func TestPinBankIgnoresUnknownPins(t *testing.T) {
	b := NewPinBank([]int{0}, nil)
	b.SetPin(3, comm.PinDigitalOutput, 1)
	b.SetPWM(200, 10)
	require.Equal(t, uint64(2), b.Ignored())
	_, ok := b.Pin(3)
	require.False(t, ok)
}

func TestPinBankReset(t *testing.T) {
	b := NewPinBank([]int{0, 8}, nil)
	b.SetPWM(8, 255)
	b.SetPin(0, comm.PinDigitalOutput, 1)
	b.Reset()
	for _, pin := range b.Pins() {
		s, _ := b.Pin(pin)
		require.Equal(t, comm.PinDigitalOutput, s.Mode)
		require.Zero(t, s.Value)
	}
}
