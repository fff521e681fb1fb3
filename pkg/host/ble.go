package host

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/golang/glog"
	"tinygo.org/x/bluetooth"

	"github.com/robotalks/neurolink/pkg/l0/comm/ble"
)

const (
	bleNotifyQueueLen = 64
	bleMaxCapsLen     = 512
)

// CapabilitiesReader reads the descriptor without a request packet,
// e.g. from the BLE capabilities characteristic.
type CapabilitiesReader interface {
	ReadCapabilities() ([]byte, error)
}

// bleConn is a BLE central connection. Writes go to the neuron
// characteristic without response, reads return sensor notifications.
type bleConn struct {
	device bluetooth.Device
	write  bluetooth.DeviceCharacteristic
	notify bluetooth.DeviceCharacteristic
	caps   bluetooth.DeviceCharacteristic

	chunks  chan []byte
	pending []byte
	closed  chan struct{}
	once    sync.Once
}

func dialBLE(ctx context.Context, name, adapterID string) (io.ReadWriteCloser, error) {
	adapter := ble.ResolveAdapter(adapterID)
	if err := adapter.Enable(); err != nil {
		return nil, fmt.Errorf("enable bluetooth adapter: %w", err)
	}
	addr, err := scanFor(ctx, adapter, name)
	if err != nil {
		return nil, err
	}
	glog.Infof("found %s at %s", name, addr.String())
	device, err := adapter.Connect(addr, bluetooth.ConnectionParams{})
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", name, err)
	}
	services, err := device.DiscoverServices([]bluetooth.UUID{ble.ServiceUUID()})
	if err != nil || len(services) == 0 {
		device.Disconnect()
		return nil, fmt.Errorf("discover link service: %v", err)
	}
	chars, err := services[0].DiscoverCharacteristics([]bluetooth.UUID{
		ble.NeuronUUID(),
		ble.SensorUUID(),
		ble.CapabilitiesUUID(),
	})
	if err != nil || len(chars) != 3 {
		device.Disconnect()
		return nil, fmt.Errorf("discover link characteristics: %d found, %v", len(chars), err)
	}
	c := &bleConn{
		device: device,
		write:  chars[0],
		notify: chars[1],
		caps:   chars[2],
		chunks: make(chan []byte, bleNotifyQueueLen),
		closed: make(chan struct{}),
	}
	if err := c.notify.EnableNotifications(c.notified); err != nil {
		device.Disconnect()
		return nil, fmt.Errorf("enable sensor notifications: %w", err)
	}
	return c, nil
}

func scanFor(ctx context.Context, adapter *bluetooth.Adapter, name string) (bluetooth.Address, error) {
	found := make(chan bluetooth.Address, 1)
	scanErr := make(chan error, 1)
	go func() {
		scanErr <- adapter.Scan(func(a *bluetooth.Adapter, result bluetooth.ScanResult) {
			if result.LocalName() != name {
				return
			}
			select {
			case found <- result.Address:
				a.StopScan()
			default:
			}
		})
	}()
	select {
	case addr := <-found:
		<-scanErr
		return addr, nil
	case err := <-scanErr:
		select {
		case addr := <-found:
			return addr, nil
		default:
		}
		if err == nil {
			err = errors.New("scan stopped")
		}
		return bluetooth.Address{}, fmt.Errorf("scan for %s: %w", name, err)
	case <-ctx.Done():
		adapter.StopScan()
		<-scanErr
		return bluetooth.Address{}, ctx.Err()
	}
}

func (c *bleConn) notified(buf []byte) {
	select {
	case c.chunks <- append([]byte(nil), buf...):
	default:
		glog.Warningf("ble notification dropped, %d bytes", len(buf))
	}
}

// Read implements io.Reader.
func (c *bleConn) Read(p []byte) (int, error) {
	if len(c.pending) == 0 {
		select {
		case chunk := <-c.chunks:
			c.pending = chunk
		case <-c.closed:
			return 0, io.EOF
		}
	}
	n := copy(p, c.pending)
	c.pending = c.pending[n:]
	return n, nil
}

// Write implements io.Writer.
func (c *bleConn) Write(p []byte) (int, error) {
	select {
	case <-c.closed:
		return 0, io.ErrClosedPipe
	default:
	}
	n, err := c.write.WriteWithoutResponse(p)
	if err == nil && n != len(p) {
		err = io.ErrShortWrite
	}
	return n, err
}

// ReadCapabilities implements CapabilitiesReader.
func (c *bleConn) ReadCapabilities() ([]byte, error) {
	buf := make([]byte, bleMaxCapsLen)
	n, err := c.caps.Read(buf)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}

// Close implements io.Closer.
func (c *bleConn) Close() (err error) {
	c.once.Do(func() {
		close(c.closed)
		c.notify.EnableNotifications(nil)
		err = c.device.Disconnect()
	})
	return
}
