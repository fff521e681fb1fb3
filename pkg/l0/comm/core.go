package comm

import (
	"context"
	"fmt"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/neurolink/pkg/framework"
)

// CoreOptions configures a Core.
type CoreOptions struct {
	BufferCap int
	Link      LinkOptions
}

// Core ties one backend, the receive buffer, the dispatcher and the
// link state machine together as a single loop controller.
type Core struct {
	Backend    Backend
	Buffer     *RecvBuffer
	Dispatcher *Dispatcher
	Link       *Link
}

// NewCore creates a Core.
func NewCore(backend Backend, actuators Actuators, opts CoreOptions) *Core {
	buf := NewRecvBuffer(opts.BufferCap)
	return &Core{
		Backend:    backend,
		Buffer:     buf,
		Dispatcher: NewDispatcher(actuators),
		Link:       NewLink(backend, buf, opts.Link),
	}
}

// Tick advances the link and, while connected, polls the transport once.
func (c *Core) Tick(ctx context.Context, now time.Time) State {
	if c.Link.Step(ctx, now) != StateConnected {
		return c.Link.State()
	}
	if err := c.Dispatcher.Poll(c.Backend, c.Buffer); err != nil {
		c.Link.ReportError(ctx, now, err)
	}
	return c.Link.State()
}

// Control implements framework.Controller.
func (c *Core) Control(cc framework.ControlContext) error {
	c.Tick(cc.Context(), cc.Time())
	return nil
}

// AddToLoop implements framework.LoopAdder.
func (c *Core) AddToLoop(l *framework.Loop) {
	l.AddController(framework.PrLvControl, c)
}

// SendTelemetry pushes a best-effort outbound payload. It is skipped
// with ErrNotConnected or ErrUnsupported when the session can't carry it.
func (c *Core) SendTelemetry(ctx context.Context, now time.Time, p []byte) error {
	if !c.Link.State().IsConnected() {
		return ErrNotConnected
	}
	if c.Link.Degraded() {
		return ErrUnsupported
	}
	if err := c.Backend.Send(p); err != nil {
		c.Link.ReportError(ctx, now, err)
		return fmt.Errorf("send telemetry: %w", err)
	}
	glog.V(4).Infof("telemetry %d bytes sent", len(p))
	return nil
}

// Close shuts the link down.
func (c *Core) Close(ctx context.Context) error {
	return c.Link.Close(ctx)
}
