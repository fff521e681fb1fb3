package device

import (
	"sort"
	"sync"

	"github.com/golang/glog"

	"github.com/robotalks/neurolink/pkg/l0/comm"
)

// EdgePins are the micro:bit edge connector pins.
var EdgePins = []int{0, 1, 2, 8, 13, 14, 15, 16}

// AnalogPins are the edge pins with analog input.
var AnalogPins = []int{0, 1, 2}

// PinState is the last output written to a pin.
type PinState struct {
	Pin    byte
	Mode   comm.PinMode
	Value  byte
	Writes uint64
}

// High reports whether a digital output is driven high.
func (s PinState) High() bool {
	return s.Mode == comm.PinDigitalOutput && s.Value != 0
}

// PinWriteFunc receives every accepted pin write.
type PinWriteFunc func(PinState)

// PinBank is the table of configured output pins. It implements comm.GPIO.
type PinBank struct {
	lock    sync.Mutex
	pins    map[byte]*PinState
	ignored uint64
	write   PinWriteFunc
}

// NewPinBank creates a PinBank with the specified pins, write may be nil.
func NewPinBank(pins []int, write PinWriteFunc) *PinBank {
	b := &PinBank{pins: make(map[byte]*PinState), write: write}
	for _, pin := range pins {
		b.pins[byte(pin)] = &PinState{Pin: byte(pin)}
	}
	return b
}

// SetPin implements comm.GPIO. Digital values are normalized to 0/1.
func (b *PinBank) SetPin(pin byte, mode comm.PinMode, value byte) {
	if mode == comm.PinDigitalOutput && value != 0 {
		value = 1
	}
	b.update(pin, mode, value)
}

// SetPWM implements comm.GPIO.
func (b *PinBank) SetPWM(pin byte, duty byte) {
	b.update(pin, comm.PinPwmOutput, duty)
}

// Pin returns the state of a configured pin.
func (b *PinBank) Pin(pin byte) (PinState, bool) {
	b.lock.Lock()
	defer b.lock.Unlock()
	s, ok := b.pins[pin]
	if !ok {
		return PinState{}, false
	}
	return *s, true
}

// Pins lists configured pins in ascending order.
func (b *PinBank) Pins() []byte {
	b.lock.Lock()
	defer b.lock.Unlock()
	pins := make([]byte, 0, len(b.pins))
	for pin := range b.pins {
		pins = append(pins, pin)
	}
	sort.Slice(pins, func(i, j int) bool { return pins[i] < pins[j] })
	return pins
}

// Ignored counts writes to unknown pins.
func (b *PinBank) Ignored() uint64 {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.ignored
}

// Reset drives every pin low.
func (b *PinBank) Reset() {
	for _, pin := range b.Pins() {
		b.update(pin, comm.PinDigitalOutput, 0)
	}
}

func (b *PinBank) update(pin byte, mode comm.PinMode, value byte) {
	b.lock.Lock()
	s, ok := b.pins[pin]
	if !ok {
		b.ignored++
		b.lock.Unlock()
		glog.Warningf("ignore %s write to unknown pin %d", mode, pin)
		return
	}
	s.Mode, s.Value = mode, value
	s.Writes++
	state, write := *s, b.write
	b.lock.Unlock()
	glog.V(3).Infof("pin %d %s = %d", pin, mode, value)
	if write != nil {
		write(state)
	}
}
