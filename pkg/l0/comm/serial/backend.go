// Package serial implements the wired link backend on a serial/CDC port.
// Host presence is the DSR line, which follows the host's DTR on a
// null-modem or USB CDC gadget link.
package serial

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/golang/glog"
	goserial "go.bug.st/serial"

	"github.com/robotalks/neurolink/pkg/l0/comm"
)

// Defaults.
const (
	DefaultBaudRate     = 115200
	DefaultPollTimeout  = time.Millisecond
	DefaultWriteTimeout = time.Second
)

// Config configures the serial backend.
type Config struct {
	Port     string
	BaudRate int
	// PollTimeout bounds a single TryReceive.
	PollTimeout time.Duration
	// WriteTimeout bounds a Send stuck on a full transmit queue, e.g.
	// with hardware flow control held off by the host.
	WriteTimeout time.Duration
	// IgnoreHostSignal treats an open port as a present host, for
	// adapters without DTR/DSR wiring.
	IgnoreHostSignal bool
}

// port is the subset of serial.Port used by Backend.
type port interface {
	io.ReadWriteCloser
	SetReadTimeout(t time.Duration) error
	GetModemStatusBits() (*goserial.ModemStatusBits, error)
	ResetInputBuffer() error
}

var openPort = func(name string, baud int) (port, error) {
	return goserial.Open(name, &goserial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   goserial.NoParity,
		StopBits: goserial.OneStopBit,
	})
}

// Backend implements comm.Backend on a serial port.
type Backend struct {
	cfg  Config
	port port

	statusErrLogged bool
}

// New creates a Backend.
func New(cfg Config) (*Backend, error) {
	if cfg.Port == "" {
		return nil, errors.New("serial port is empty")
	}
	if cfg.BaudRate == 0 {
		cfg.BaudRate = DefaultBaudRate
	}
	if cfg.BaudRate < 0 {
		return nil, fmt.Errorf("invalid serial baud rate: %d", cfg.BaudRate)
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = DefaultPollTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}
	return &Backend{cfg: cfg}, nil
}

// Kind implements comm.Backend.
func (b *Backend) Kind() comm.Kind {
	return comm.KindWired
}

// Open implements comm.Backend.
func (b *Backend) Open() error {
	if b.port != nil {
		return nil
	}
	p, err := openPort(b.cfg.Port, b.cfg.BaudRate)
	if err != nil {
		return fmt.Errorf("open serial port %q: %w", b.cfg.Port, err)
	}
	if err := p.SetReadTimeout(b.cfg.PollTimeout); err != nil {
		p.Close()
		return fmt.Errorf("set serial read timeout: %w", err)
	}
	b.port, b.statusErrLogged = p, false
	glog.Infof("serial %s opened at %d baud", b.cfg.Port, b.cfg.BaudRate)
	return nil
}

// Close implements comm.Backend.
func (b *Backend) Close() error {
	if b.port == nil {
		return nil
	}
	err := b.port.Close()
	b.port = nil
	return err
}

// IsLinkActive implements comm.Transport.
func (b *Backend) IsLinkActive() bool {
	if b.port == nil {
		return false
	}
	if b.cfg.IgnoreHostSignal {
		return true
	}
	bits, err := b.port.GetModemStatusBits()
	if err != nil {
		if !b.statusErrLogged {
			glog.Warningf("serial %s modem status: %v", b.cfg.Port, err)
			b.statusErrLogged = true
		}
		return false
	}
	return bits.DSR
}

// Send implements comm.Transport. The port has no write deadline, so a
// write outlasting WriteTimeout closes the port to release it and the
// error is reported as link loss.
func (b *Backend) Send(p []byte) error {
	if b.port == nil {
		return comm.ErrNotConnected
	}
	port := b.port
	done := make(chan error, 1)
	go func() {
		done <- writeAll(port, p)
	}()
	timer := time.NewTimer(b.cfg.WriteTimeout)
	defer timer.Stop()
	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("serial write: %w", err)
		}
		return nil
	case <-timer.C:
		glog.Warningf("serial %s write stalled for %s, closing port", b.cfg.Port, b.cfg.WriteTimeout)
		port.Close()
		b.port = nil
		return fmt.Errorf("serial write: %w", os.ErrDeadlineExceeded)
	}
}

func writeAll(w io.Writer, p []byte) error {
	for len(p) > 0 {
		n, err := w.Write(p)
		if err != nil {
			return err
		}
		p = p[n:]
	}
	return nil
}

// TryReceive implements comm.Transport.
func (b *Backend) TryReceive(p []byte) (int, error) {
	if b.port == nil {
		return 0, comm.ErrNotConnected
	}
	n, err := b.port.Read(p)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return n, comm.ErrLinkClosed
		}
		return n, fmt.Errorf("serial read: %w", err)
	}
	return n, nil
}

// ResetInput implements comm.InputFlusher.
func (b *Backend) ResetInput() error {
	if b.port == nil {
		return nil
	}
	return b.port.ResetInputBuffer()
}
