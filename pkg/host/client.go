// Package host is the host side of the link: it encodes commands for a
// device and reads back its capability descriptor and telemetry.
package host

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/golang/glog"

	"github.com/robotalks/neurolink/pkg/l0/comm"
)

// DefaultTelemetryQueueLen bounds telemetry samples not yet consumed.
const DefaultTelemetryQueueLen = 16

// ErrClosed indicates the client is closed or its connection is gone.
var ErrClosed = errors.New("client closed")

// Client sends commands over a connection to a device. Everything the
// device sends back is a JSON object: telemetry samples carry a
// "buttons" key, anything else is a capability descriptor. Bytes which
// don't parse, like line noise or a sample cut short, are skipped up to
// the next '{'.
type Client struct {
	conn io.ReadWriteCloser

	writeLock sync.Mutex
	telemetry chan json.RawMessage
	caps      chan json.RawMessage
	done      chan struct{}
	err       error
	closeOnce sync.Once
}

// NewClient wraps a connection and starts reading from it.
func NewClient(conn io.ReadWriteCloser) *Client {
	c := &Client{
		conn:      conn,
		telemetry: make(chan json.RawMessage, DefaultTelemetryQueueLen),
		caps:      make(chan json.RawMessage, 1),
		done:      make(chan struct{}),
	}
	go c.readLoop()
	return c
}

// Telemetry delivers telemetry samples. Samples are dropped when it is
// not drained.
func (c *Client) Telemetry() <-chan json.RawMessage {
	return c.telemetry
}

// Done is closed when the connection is gone.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Err returns the reason the connection is gone.
func (c *Client) Err() error {
	select {
	case <-c.done:
		return c.err
	default:
		return nil
	}
}

// Send encodes and writes a command.
func (c *Client) Send(cmd comm.Command) error {
	return c.Raw(comm.Encode(cmd))
}

// Raw writes bytes as is.
func (c *Client) Raw(p []byte) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	c.writeLock.Lock()
	defer c.writeLock.Unlock()
	glog.V(4).Infof("write % x", p)
	_, err := c.conn.Write(p)
	return err
}

// Fire sends NeuronFiring. More than comm.MaxCoords coordinates is an error.
func (c *Client) Fire(coords ...comm.Coord) error {
	cmd := &comm.NeuronFiring{Coords: coords}
	if err := cmd.Validate(); err != nil {
		return err
	}
	return c.Send(cmd)
}

// SetGpio sends SetGpio.
func (c *Client) SetGpio(pin byte, mode comm.PinMode, value byte) error {
	return c.Send(&comm.SetGpio{Pin: pin, Mode: mode, Value: value})
}

// SetPwm sends SetPwm.
func (c *Client) SetPwm(pin, duty byte) error {
	return c.Send(&comm.SetPwm{Pin: pin, Duty: duty})
}

// SetMatrix sends SetLedMatrix.
func (c *Client) SetMatrix(brightness [comm.MatrixSize]byte) error {
	return c.Send(&comm.SetLedMatrix{Brightness: brightness})
}

// Capabilities requests and waits for the capability descriptor.
func (c *Client) Capabilities(ctx context.Context) ([]byte, error) {
	// a stale descriptor from an earlier timed out request
	select {
	case <-c.caps:
	default:
	}
	if err := c.Send(&comm.GetCapabilities{}); err != nil {
		return nil, err
	}
	select {
	case caps := <-c.caps:
		return caps, nil
	case <-c.done:
		return nil, fmt.Errorf("%w: %v", ErrClosed, c.err)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// ReadCapabilities reads the descriptor directly when the connection
// exposes it, otherwise it falls back to Capabilities.
func (c *Client) ReadCapabilities(ctx context.Context) ([]byte, error) {
	if r, ok := c.conn.(CapabilitiesReader); ok {
		return r.ReadCapabilities()
	}
	return c.Capabilities(ctx)
}

// Close closes the connection.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() { err = c.conn.Close() })
	return err
}

func (c *Client) readLoop() {
	src := &resyncReader{r: bufio.NewReader(c.conn)}
	for {
		dec := json.NewDecoder(src)
		err := c.decodeAll(dec)
		var syntaxErr *json.SyntaxError
		if !errors.As(err, &syntaxErr) {
			c.err = err
			close(c.done)
			return
		}
		leftover, _ := io.ReadAll(dec.Buffered())
		glog.Warningf("skip unparsable input: %v", err)
		src.resync(leftover)
	}
}

func (c *Client) decodeAll(dec *json.Decoder) error {
	for {
		var doc json.RawMessage
		if err := dec.Decode(&doc); err != nil {
			return err
		}
		if len(doc) == 0 || doc[0] != '{' {
			glog.V(2).Infof("drop non-object document %d bytes", len(doc))
			continue
		}
		ch := c.caps
		if isTelemetry(doc) {
			ch = c.telemetry
		}
		select {
		case ch <- doc:
		default:
			glog.V(2).Infof("drop unread document %d bytes", len(doc))
		}
	}
}

// resyncReader replays bytes a decoder buffered but did not use, and
// can discard input up to the start of the next object.
type resyncReader struct {
	r       io.Reader
	pending []byte
	seeking bool
}

// resync puts back leftover, drops its first byte where parsing
// failed and seeks to the next '{'.
func (s *resyncReader) resync(leftover []byte) {
	s.pending = append(leftover, s.pending...)
	if len(s.pending) > 0 {
		s.pending = s.pending[1:]
	}
	s.seeking = true
}

func (s *resyncReader) Read(p []byte) (int, error) {
	for {
		if len(s.pending) == 0 {
			n, err := s.r.Read(p)
			if n == 0 || !s.seeking {
				return n, err
			}
			s.pending = append(s.pending, p[:n]...)
		}
		if s.seeking {
			if idx := bytes.IndexByte(s.pending, '{'); idx >= 0 {
				s.pending, s.seeking = s.pending[idx:], false
			} else {
				s.pending = s.pending[:0]
				continue
			}
		}
		n := copy(p, s.pending)
		s.pending = s.pending[n:]
		return n, nil
	}
}

func isTelemetry(doc json.RawMessage) bool {
	var keys map[string]json.RawMessage
	if err := json.Unmarshal(doc, &keys); err != nil {
		return false
	}
	_, ok := keys["buttons"]
	return ok
}

// FormatTelemetry compacts a telemetry sample for one-line display.
func FormatTelemetry(doc json.RawMessage) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, doc); err != nil {
		return string(doc)
	}
	return buf.String()
}
