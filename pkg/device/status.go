package device

import (
	"context"

	"github.com/golang/glog"

	"github.com/robotalks/neurolink/pkg/framework"
	"github.com/robotalks/neurolink/pkg/l0/comm"
)

// LinkStateMessage is posted to the loop on every link state change.
// HostFrames is the matrix host frame count when the change happened.
type LinkStateMessage struct {
	State      comm.State
	HostFrames uint64
}

// NewMessage implements framework.Message.
func (m *LinkStateMessage) NewMessage() framework.Message {
	return &LinkStateMessage{}
}

// LinkStatePoster is a comm.StateNotifier posting LinkStateMessage to a loop.
type LinkStatePoster struct {
	Loop   framework.LoopControl
	Matrix *Matrix
}

// StateChanged implements comm.StateNotifier.
func (p *LinkStatePoster) StateChanged(ctx context.Context, state comm.State) {
	if p.Loop == nil {
		return
	}
	msg := &LinkStateMessage{State: state}
	if p.Matrix != nil {
		msg.HostFrames = p.Matrix.HostFrames()
	}
	p.Loop.PostMessage(msg)
}

// StatusIndicator reflects the link state on the actuators: an arrow
// while waiting for a host, a checkmark when a session starts, and
// everything off once the session is gone. The checkmark is skipped
// when the host already drew a frame after the session started, since
// state changes are handled one iteration after they happen.
type StatusIndicator struct {
	Matrix *Matrix
	Pins   *PinBank

	last comm.State
}

// Control implements framework.Controller.
func (s *StatusIndicator) Control(cc framework.ControlContext) error {
	cc.Messages().ProcessMessages(framework.ProcessMessageFunc(func(mc framework.MessageProcessingContext) {
		if msg, ok := mc.CurrentMessage().(*LinkStateMessage); ok {
			if msg.State == comm.StateConnected && s.Matrix.HostFrames() != msg.HostFrames {
				s.last = msg.State
				glog.V(2).Infof("status indicator: %s, host frame kept", msg.State)
			} else {
				s.Show(msg.State)
			}
			mc.MessageTaken()
		}
	}))
	return nil
}

// Show updates the actuators for the state.
func (s *StatusIndicator) Show(state comm.State) {
	prev := s.last
	s.last = state
	switch state {
	case comm.StateAdvertising, comm.StateWaitingForHost:
		if prev == comm.StateConnected || prev == comm.StateLinkLost {
			s.safeOutputs()
		}
		s.Matrix.ShowGlyph(GlyphArrowUp)
	case comm.StateConnected:
		s.Matrix.ShowGlyph(GlyphCheckmark)
	case comm.StateLinkLost, comm.StateDisconnected:
		s.safeOutputs()
		s.Matrix.Clear()
	}
	glog.V(2).Infof("status indicator: %s", state)
}

func (s *StatusIndicator) safeOutputs() {
	if s.Pins != nil {
		s.Pins.Reset()
	}
}

// AddToLoop implements framework.LoopAdder. It runs ahead of the link
// core so commands in the same iteration draw over the indicator.
func (s *StatusIndicator) AddToLoop(l *framework.Loop) {
	l.AddController(framework.PrLvHigh, s)
}
