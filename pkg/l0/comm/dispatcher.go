package comm

import (
	"fmt"

	"github.com/golang/glog"
)

// Display is the actuator collaborator for visual output.
type Display interface {
	// ShowNeurons lights fired neurons. Coordinates are always inside the matrix.
	ShowNeurons(coords []Coord)
	// SetMatrix sets raw brightness, row-major.
	SetMatrix(brightness [MatrixSize]byte)
}

// GPIO is the actuator collaborator for pin control.
type GPIO interface {
	SetPin(pin byte, mode PinMode, value byte)
	SetPWM(pin byte, duty byte)
}

// Actuators groups the collaborators commands are dispatched to.
type Actuators struct {
	Display Display
	GPIO    GPIO
	// Capabilities is the opaque descriptor returned on GetCapabilities.
	Capabilities []byte
}

// DispatchStats counts dispatched commands.
type DispatchStats struct {
	Commands   map[CommandID]uint64
	Malformed  uint64
	Overflows  uint64
	Ignored    uint64
	SendErrors uint64
}

// Dispatcher consumes complete packets and drives the actuators.
type Dispatcher struct {
	Actuators Actuators

	scratch []byte
	stats   DispatchStats
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(actuators Actuators) *Dispatcher {
	return &Dispatcher{
		Actuators: actuators,
		scratch:   make([]byte, DefaultBufferCap),
		stats:     DispatchStats{Commands: make(map[CommandID]uint64)},
	}
}

// Stats returns a copy of the counters.
func (d *Dispatcher) Stats() DispatchStats {
	s := d.stats
	s.Commands = make(map[CommandID]uint64, len(d.stats.Commands))
	for id, n := range d.stats.Commands {
		s.Commands[id] = n
	}
	return s
}

// Poll performs one receive attempt and executes every complete packet.
// Only as many bytes as the buffer can take are read, so nothing read
// from the transport is lost to overflow. Malformed input is dropped.
// The returned error comes from the transport only.
func (d *Dispatcher) Poll(t Transport, buf *RecvBuffer) error {
	free := buf.Free()
	if free > len(d.scratch) {
		free = len(d.scratch)
	}
	if free > 0 {
		n, err := t.TryReceive(d.scratch[:free])
		if err != nil {
			return err
		}
		if n > 0 {
			if buf.Append(d.scratch[:n]) != nil {
				d.stats.Overflows++
			}
		}
	}
	return d.Drain(t, buf)
}

// Drain executes complete packets already in buffer. The first send
// error is returned after all packets are executed.
func (d *Dispatcher) Drain(t Transport, buf *RecvBuffer) error {
	var sendErr error
	for {
		pkt, err := buf.TryExtractPacket()
		if err != nil {
			d.stats.Malformed++
			return sendErr
		}
		if pkt == nil {
			return sendErr
		}
		if err := d.Execute(pkt.Command, t); err != nil && sendErr == nil {
			sendErr = err
		}
	}
}

// Execute runs a single command. Only GetCapabilities produces a
// response; its send error is returned.
func (d *Dispatcher) Execute(cmd Command, t Transport) (err error) {
	defer func() {
		if r := recover(); r != nil {
			glog.Errorf("dispatch %s panic: %v", cmd.ID(), r)
			err = nil
		}
	}()
	d.stats.Commands[cmd.ID()]++
	switch c := cmd.(type) {
	case *NeuronFiring:
		if disp := d.Actuators.Display; disp != nil {
			disp.ShowNeurons(d.filterCoords(c.Coords))
		}
	case *SetGpio:
		if gpio := d.Actuators.GPIO; gpio != nil {
			gpio.SetPin(c.Pin, c.Mode, c.Value)
		}
	case *SetPwm:
		if gpio := d.Actuators.GPIO; gpio != nil {
			gpio.SetPWM(c.Pin, c.Duty)
		}
	case *SetLedMatrix:
		if disp := d.Actuators.Display; disp != nil {
			disp.SetMatrix(c.Brightness)
		}
	case *GetCapabilities:
		if len(d.Actuators.Capabilities) == 0 {
			glog.Warning("capabilities requested but no descriptor configured")
			return nil
		}
		if err = t.Send(d.Actuators.Capabilities); err != nil {
			d.stats.SendErrors++
			return fmt.Errorf("send capabilities: %w", err)
		}
	default:
		glog.Warningf("unhandled command %s", cmd.ID())
	}
	return nil
}

// Pairs outside the matrix are dropped, the rest of the packet is kept.
func (d *Dispatcher) filterCoords(coords []Coord) []Coord {
	valid := coords[:0:0]
	for _, c := range coords {
		if c.InMatrix() {
			valid = append(valid, c)
		} else {
			d.stats.Ignored++
		}
	}
	return valid
}
