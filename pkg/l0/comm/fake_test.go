package comm

import (
	"context"
	"errors"
)

type fakeBackend struct {
	kind     Kind
	active   bool
	opened   bool
	openErr  error
	sendErr  error
	recvErr  error
	inbound  [][]byte
	sent     [][]byte
	opens    int
	closes   int
	flushes  int
	session  uint64
	maxRead  int
	lastRead int
}

func newFakeBackend(kind Kind) *fakeBackend {
	return &fakeBackend{kind: kind}
}

func (b *fakeBackend) Kind() Kind { return b.kind }

func (b *fakeBackend) Open() error {
	b.opens++
	if b.openErr != nil {
		return b.openErr
	}
	b.opened = true
	return nil
}

func (b *fakeBackend) Close() error {
	b.closes++
	b.opened = false
	b.active = false
	return nil
}

func (b *fakeBackend) ResetInput() error {
	b.flushes++
	b.inbound = nil
	return nil
}

func (b *fakeBackend) Send(p []byte) error {
	if b.sendErr != nil {
		return b.sendErr
	}
	if !b.active {
		return ErrNotConnected
	}
	b.sent = append(b.sent, append([]byte(nil), p...))
	return nil
}

func (b *fakeBackend) TryReceive(p []byte) (int, error) {
	b.lastRead = len(p)
	if b.recvErr != nil {
		return 0, b.recvErr
	}
	if len(b.inbound) == 0 {
		return 0, nil
	}
	chunk := b.inbound[0]
	n := copy(p, chunk)
	if n < len(chunk) {
		b.inbound[0] = chunk[n:]
	} else {
		b.inbound = b.inbound[1:]
	}
	return n, nil
}

func (b *fakeBackend) IsLinkActive() bool {
	return b.opened && b.active
}

func (b *fakeBackend) SessionID() uint64 {
	return b.session
}

func (b *fakeBackend) feed(chunks ...[]byte) {
	b.inbound = append(b.inbound, chunks...)
}

type fakeDisplay struct {
	neurons [][]Coord
	frames  [][MatrixSize]byte
}

func (d *fakeDisplay) ShowNeurons(coords []Coord) {
	d.neurons = append(d.neurons, coords)
}

func (d *fakeDisplay) SetMatrix(brightness [MatrixSize]byte) {
	d.frames = append(d.frames, brightness)
}

type pinWrite struct {
	pin   byte
	mode  PinMode
	value byte
	pwm   bool
}

type fakeGPIO struct {
	writes []pinWrite
	panics bool
}

func (g *fakeGPIO) SetPin(pin byte, mode PinMode, value byte) {
	if g.panics {
		panic("pin driver fault")
	}
	g.writes = append(g.writes, pinWrite{pin: pin, mode: mode, value: value})
}

func (g *fakeGPIO) SetPWM(pin byte, duty byte) {
	g.writes = append(g.writes, pinWrite{pin: pin, value: duty, pwm: true})
}

type stateRecorder struct {
	states []State
}

func (r *stateRecorder) StateChanged(ctx context.Context, state State) {
	r.states = append(r.states, state)
}

var errRadio = errors.New("radio failure")
