package device

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/neurolink/pkg/framework"
	"github.com/robotalks/neurolink/pkg/l0/comm"
)

// Buttons is the state of the A/B buttons.
type Buttons struct {
	A bool `json:"a"`
	B bool `json:"b"`
}

// SensorData is one telemetry sample. Absent sensors are omitted.
type SensorData struct {
	Accel   *[3]float32 `json:"accel,omitempty"`
	Mag     *[3]float32 `json:"mag,omitempty"`
	Temp    *float32    `json:"temp,omitempty"`
	Buttons Buttons     `json:"buttons"`
}

// SensorSource reads all sensors at once.
type SensorSource interface {
	ReadAll() SensorData
}

// SimulatedSensors generates a slow tilt on a resting board. Each read
// advances the phase by 1/100.
type SimulatedSensors struct {
	lock    sync.Mutex
	tick    uint32
	buttons Buttons
}

// ReadAll implements SensorSource.
func (s *SimulatedSensors) ReadAll() SensorData {
	s.lock.Lock()
	s.tick++
	t, buttons := s.tick, s.buttons
	s.lock.Unlock()

	phase := float32(t%100) / 100
	var x, y float32
	if phase < 0.5 {
		x, y = phase*2-0.5, 0.5-phase*2
	} else {
		x, y = 1.5-phase*2, phase*2-1.5
	}
	temp := 23.5 + (phase - 0.5)
	return SensorData{
		Accel:   &[3]float32{x * 0.3, y * 0.3, 0.8},
		Mag:     &[3]float32{20, 30, -45},
		Temp:    &temp,
		Buttons: buttons,
	}
}

// SetButtons sets the simulated button state.
func (s *SimulatedSensors) SetButtons(a, b bool) {
	s.lock.Lock()
	s.buttons = Buttons{A: a, B: b}
	s.lock.Unlock()
}

// TelemetrySender sends a telemetry payload on the current session.
type TelemetrySender interface {
	SendTelemetry(ctx context.Context, now time.Time, p []byte) error
}

// Telemetry periodically samples a SensorSource and sends the JSON
// encoded sample while a session is up.
type Telemetry struct {
	Source   SensorSource
	Sender   TelemetrySender
	Interval time.Duration

	next    time.Time
	sent    uint64
	skipped uint64
}

// NewTelemetry creates a Telemetry controller.
func NewTelemetry(source SensorSource, sender TelemetrySender, interval time.Duration) *Telemetry {
	return &Telemetry{Source: source, Sender: sender, Interval: interval}
}

// Sent counts payloads handed to the link.
func (t *Telemetry) Sent() uint64 { return t.sent }

// Skipped counts samples dropped because no session could take them.
func (t *Telemetry) Skipped() uint64 { return t.skipped }

// Control implements framework.Controller.
func (t *Telemetry) Control(cc framework.ControlContext) error {
	return t.Sample(cc.Context(), cc.Time())
}

// Sample reads and sends one sample if the interval elapsed.
func (t *Telemetry) Sample(ctx context.Context, now time.Time) error {
	if t.Interval <= 0 || now.Before(t.next) {
		return nil
	}
	t.next = now.Add(t.Interval)
	payload, err := json.Marshal(t.Source.ReadAll())
	if err != nil {
		return err
	}
	err = t.Sender.SendTelemetry(ctx, now, payload)
	switch {
	case err == nil:
		t.sent++
		glog.V(4).Infof("telemetry %s", payload)
	case errors.Is(err, comm.ErrNotConnected), errors.Is(err, comm.ErrUnsupported):
		t.skipped++
	default:
		t.skipped++
		return err
	}
	return nil
}

// AddToLoop implements framework.LoopAdder.
func (t *Telemetry) AddToLoop(l *framework.Loop) {
	l.AddController(framework.PrLvAcuate, t)
}
