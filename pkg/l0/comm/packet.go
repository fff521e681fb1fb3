package comm

import (
	"fmt"
	"io"
)

// CommandID is the first byte of every packet.
type CommandID byte

// Command IDs.
const (
	IDNeuronFiring    CommandID = 0x01
	IDSetGpio         CommandID = 0x02
	IDSetPwm          CommandID = 0x03
	IDSetLedMatrix    CommandID = 0x04
	IDGetCapabilities CommandID = 0x05
)

// Framing limits.
const (
	// HeaderLen is the size of command id + count/length.
	HeaderLen = 2
	// MatrixSide is the width/height of the LED matrix.
	MatrixSide = 5
	// MatrixSize is the number of LEDs in the matrix.
	MatrixSize = MatrixSide * MatrixSide
	// MaxCoords is the maximum number of coordinate pairs in NeuronFiring.
	MaxCoords = MatrixSize
	// MaxPacketLen is the longest packet on the wire (NeuronFiring with MaxCoords).
	MaxPacketLen = HeaderLen + MaxCoords*2

	gpioPayloadLen = 3
	pwmPayloadLen  = 2
)

// String returns the command name.
func (id CommandID) String() string {
	switch id {
	case IDNeuronFiring:
		return "NeuronFiring"
	case IDSetGpio:
		return "SetGpio"
	case IDSetPwm:
		return "SetPwm"
	case IDSetLedMatrix:
		return "SetLedMatrix"
	case IDGetCapabilities:
		return "GetCapabilities"
	}
	return fmt.Sprintf("CommandID(0x%02x)", byte(id))
}

// IsValid indicates the id is a known command.
func (id CommandID) IsValid() bool {
	return id >= IDNeuronFiring && id <= IDGetCapabilities
}

// PinMode selects how SetGpio drives a pin.
type PinMode byte

// Pin modes.
const (
	PinDigitalOutput PinMode = 0
	PinPwmOutput     PinMode = 1
)

// String returns the mode name.
func (m PinMode) String() string {
	switch m {
	case PinDigitalOutput:
		return "digital"
	case PinPwmOutput:
		return "pwm"
	}
	return fmt.Sprintf("PinMode(%d)", byte(m))
}

// Coord is an (x, y) position of a fired neuron on the LED matrix.
type Coord struct {
	X, Y byte
}

// InMatrix reports whether the coordinate addresses an LED.
func (c Coord) InMatrix() bool {
	return c.X < MatrixSide && c.Y < MatrixSide
}

// Command is one of NeuronFiring, SetGpio, SetPwm, SetLedMatrix or GetCapabilities.
type Command interface {
	// ID returns the wire identifier.
	ID() CommandID
	// appendTo appends header and payload to b.
	appendTo(b []byte) []byte
}

// NeuronFiring lights the LEDs of fired neurons.
type NeuronFiring struct {
	Coords []Coord
}

// SetGpio drives a pin.
type SetGpio struct {
	Pin   byte
	Mode  PinMode
	Value byte
}

// SetPwm sets the PWM duty cycle of a pin.
type SetPwm struct {
	Pin  byte
	Duty byte
}

// SetLedMatrix sets the brightness of every LED, row-major.
type SetLedMatrix struct {
	Brightness [MatrixSize]byte
}

// GetCapabilities requests the capability descriptor.
type GetCapabilities struct{}

// ID implements Command.
func (c *NeuronFiring) ID() CommandID { return IDNeuronFiring }

// ID implements Command.
func (c *SetGpio) ID() CommandID { return IDSetGpio }

// ID implements Command.
func (c *SetPwm) ID() CommandID { return IDSetPwm }

// ID implements Command.
func (c *SetLedMatrix) ID() CommandID { return IDSetLedMatrix }

// ID implements Command.
func (c *GetCapabilities) ID() CommandID { return IDGetCapabilities }

// Validate rejects more coordinates than a packet can carry.
func (c *NeuronFiring) Validate() error {
	if len(c.Coords) > MaxCoords {
		return malformed(byte(IDNeuronFiring), "coordinate count %d exceeds %d", len(c.Coords), MaxCoords)
	}
	return nil
}

// At most MaxCoords pairs are encoded.
func (c *NeuronFiring) appendTo(b []byte) []byte {
	coords := c.Coords
	if len(coords) > MaxCoords {
		coords = coords[:MaxCoords]
	}
	b = append(b, byte(IDNeuronFiring), byte(len(coords)))
	for _, pt := range coords {
		b = append(b, pt.X, pt.Y)
	}
	return b
}

func (c *SetGpio) appendTo(b []byte) []byte {
	return append(b, byte(IDSetGpio), gpioPayloadLen, c.Pin, byte(c.Mode), c.Value)
}

func (c *SetPwm) appendTo(b []byte) []byte {
	return append(b, byte(IDSetPwm), pwmPayloadLen, c.Pin, c.Duty)
}

func (c *SetLedMatrix) appendTo(b []byte) []byte {
	b = append(b, byte(IDSetLedMatrix), MatrixSize)
	return append(b, c.Brightness[:]...)
}

func (c *GetCapabilities) appendTo(b []byte) []byte {
	return append(b, byte(IDGetCapabilities), 0)
}

// Encode returns the wire bytes of a command. It never fails: a
// NeuronFiring with more than MaxCoords coordinates is cut to the first
// MaxCoords, call Validate first to reject it instead.
func Encode(cmd Command) []byte {
	return AppendEncode(make([]byte, 0, MaxPacketLen), cmd)
}

// AppendEncode appends the wire bytes of a command to b.
func AppendEncode(b []byte, cmd Command) []byte {
	return cmd.appendTo(b)
}

// EncodedLen returns the number of bytes Encode produces for cmd.
func EncodedLen(cmd Command) int {
	switch c := cmd.(type) {
	case *NeuronFiring:
		n := len(c.Coords)
		if n > MaxCoords {
			n = MaxCoords
		}
		return HeaderLen + n*2
	case *SetGpio:
		return HeaderLen + gpioPayloadLen
	case *SetPwm:
		return HeaderLen + pwmPayloadLen
	case *SetLedMatrix:
		return HeaderLen + MatrixSize
	}
	return HeaderLen
}

// PayloadLen computes the payload size from the header bytes.
func PayloadLen(id CommandID, count byte) (int, error) {
	switch id {
	case IDNeuronFiring:
		if count > MaxCoords {
			return 0, malformed(byte(id), "coordinate count %d exceeds %d", count, MaxCoords)
		}
		return int(count) * 2, nil
	case IDSetGpio:
		return fixedLen(id, count, gpioPayloadLen)
	case IDSetPwm:
		return fixedLen(id, count, pwmPayloadLen)
	case IDSetLedMatrix:
		return fixedLen(id, count, MatrixSize)
	case IDGetCapabilities:
		return fixedLen(id, count, 0)
	}
	return 0, malformed(byte(id), "unknown command")
}

func fixedLen(id CommandID, count byte, expect int) (int, error) {
	if int(count) != expect {
		return 0, malformed(byte(id), "length %d, expect %d", count, expect)
	}
	return expect, nil
}

// Decode parses the packet at the head of b. It only looks at the prefix
// it needs and returns the number of bytes consumed. ErrIncomplete is
// returned when the prefix is shorter than the declared packet; a
// *MalformedError when the header can't be trusted.
func Decode(b []byte) (Command, int, error) {
	if len(b) == 0 {
		return nil, 0, ErrIncomplete
	}
	id := CommandID(b[0])
	if !id.IsValid() {
		return nil, 0, malformed(b[0], "unknown command")
	}
	if len(b) < HeaderLen {
		return nil, 0, ErrIncomplete
	}
	payloadLen, err := PayloadLen(id, b[1])
	if err != nil {
		return nil, 0, err
	}
	size := HeaderLen + payloadLen
	if len(b) < size {
		return nil, 0, ErrIncomplete
	}
	payload := b[HeaderLen:size]

	var cmd Command
	switch id {
	case IDNeuronFiring:
		var coords []Coord
		if len(payload) > 0 {
			coords = make([]Coord, len(payload)/2)
			for n := range coords {
				coords[n] = Coord{X: payload[n*2], Y: payload[n*2+1]}
			}
		}
		cmd = &NeuronFiring{Coords: coords}
	case IDSetGpio:
		mode := PinMode(payload[1])
		if mode != PinDigitalOutput && mode != PinPwmOutput {
			return nil, 0, malformed(b[0], "invalid pin mode %d", payload[1])
		}
		cmd = &SetGpio{Pin: payload[0], Mode: mode, Value: payload[2]}
	case IDSetPwm:
		cmd = &SetPwm{Pin: payload[0], Duty: payload[1]}
	case IDSetLedMatrix:
		m := &SetLedMatrix{}
		copy(m.Brightness[:], payload)
		cmd = m
	case IDGetCapabilities:
		cmd = &GetCapabilities{}
	}
	return cmd, size, nil
}

// Packet is a complete packet extracted from the receive buffer.
type Packet struct {
	ID      CommandID
	Length  byte
	Payload []byte
	Command Command
}

// ParsePacket decodes the packet at the head of b and keeps a copy of its raw fields.
func ParsePacket(b []byte) (*Packet, int, error) {
	cmd, n, err := Decode(b)
	if err != nil {
		return nil, 0, err
	}
	return &Packet{
		ID:      cmd.ID(),
		Length:  b[1],
		Payload: append([]byte(nil), b[HeaderLen:n]...),
		Command: cmd,
	}, n, nil
}

// Bytes returns encoded bytes for sending.
func (p *Packet) Bytes() []byte {
	b := make([]byte, 0, HeaderLen+len(p.Payload))
	b = append(b, byte(p.ID), p.Length)
	return append(b, p.Payload...)
}

// WriteTo writes encoded bytes.
func (p *Packet) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(p.Bytes())
	return int64(n), err
}
