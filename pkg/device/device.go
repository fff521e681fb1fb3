// Package device assembles the device side of the link: the transport
// backend, the link core, the actuators (LED matrix and output pins), the
// simulated sensors and their telemetry, all driven by one control loop.
package device

import (
	"context"

	"github.com/golang/glog"

	"github.com/robotalks/neurolink/pkg/framework"
	"github.com/robotalks/neurolink/pkg/l0/comm"
)

// Device is the assembled device.
type Device struct {
	ID           string
	Capabilities []byte

	Matrix    *Matrix
	Pins      *PinBank
	Sensors   *SimulatedSensors
	Core      *comm.Core
	Telemetry *Telemetry
	Status    *StatusIndicator

	poster *LinkStatePoster
}

// New assembles a device on a backend. Extra notifiers receive every
// link state change.
func New(conf *Config, backend comm.Backend, caps []byte, notifiers ...comm.StateNotifier) *Device {
	d := &Device{
		ID:           conf.ID,
		Capabilities: caps,
		Matrix:       NewMatrix(logFrame),
		Pins:         NewPinBank(conf.Pins, nil),
		Sensors:      &SimulatedSensors{},
	}
	d.poster = &LinkStatePoster{Matrix: d.Matrix}
	opts := conf.LinkOptions()
	opts.Notifier = append(comm.StateNotifiers{d.poster}, notifiers...)
	d.Core = comm.NewCore(backend, comm.Actuators{
		Display:      d.Matrix,
		GPIO:         d.Pins,
		Capabilities: caps,
	}, comm.CoreOptions{BufferCap: conf.BufferCap, Link: opts})
	d.Telemetry = NewTelemetry(d.Sensors, d.Core, conf.TelemetryInterval)
	d.Status = &StatusIndicator{Matrix: d.Matrix, Pins: d.Pins}
	d.Matrix.ShowGlyph(GlyphHeart)
	return d
}

// NewFromConfig creates the backend and the capability descriptor from
// a resolved config and assembles the device.
func NewFromConfig(conf *Config, notifiers ...comm.StateNotifier) (*Device, error) {
	caps, err := conf.CapabilityDescriptor()
	if err != nil {
		return nil, err
	}
	backend, err := conf.NewBackend(caps)
	if err != nil {
		return nil, err
	}
	return New(conf, backend, caps, notifiers...), nil
}

// AddToLoop implements framework.LoopAdder.
func (d *Device) AddToLoop(l *framework.Loop) {
	d.poster.Loop = l
	l.Add(d.Core, d.Status, d.Telemetry)
}

// State returns the link state.
func (d *Device) State() comm.State {
	return d.Core.Link.State()
}

// Close shuts the link down and turns outputs off.
func (d *Device) Close(ctx context.Context) error {
	err := d.Core.Close(ctx)
	d.Pins.Reset()
	d.Matrix.Clear()
	return err
}

func logFrame(f Frame) {
	if glog.V(3) {
		glog.Infof("matrix:\n%s", f.String())
	}
}
