package ble

import (
	"fmt"
	"sync"

	"github.com/golang/glog"
	"tinygo.org/x/bluetooth"
)

// gattHandlers receive events from the GATT server. They may be called
// from the bluetooth stack's goroutines.
type gattHandlers struct {
	connected func(bool)
	written   func(data []byte)
}

// gattServer is the subset of a BLE peripheral stack used by Backend.
type gattServer interface {
	// Start enables the adapter and registers the service once.
	Start(name string, caps []byte, h gattHandlers) error
	Advertise() error
	StopAdvertising() error
	// Notify pushes one chunk through the sensor characteristic.
	Notify(p []byte) error
}

// peripheral implements gattServer on tinygo.org/x/bluetooth.
type peripheral struct {
	adapter *bluetooth.Adapter
	adv     *bluetooth.Advertisement
	sensor  bluetooth.Characteristic
	started bool
	lock    sync.Mutex
}

func newPeripheral(adapterID string) *peripheral {
	return &peripheral{adapter: ResolveAdapter(adapterID)}
}

func (p *peripheral) Start(name string, caps []byte, h gattHandlers) error {
	p.lock.Lock()
	defer p.lock.Unlock()
	if p.started {
		return nil
	}
	if err := p.adapter.Enable(); err != nil {
		return fmt.Errorf("enable bluetooth adapter: %w", err)
	}
	p.adapter.SetConnectHandler(func(device bluetooth.Device, connected bool) {
		glog.V(1).Infof("ble peer connected=%v", connected)
		h.connected(connected)
	})
	onWrite := func(client bluetooth.Connection, offset int, value []byte) {
		if offset != 0 {
			glog.Warningf("ble write with offset %d ignored", offset)
			return
		}
		h.written(value)
	}
	writeFlags := bluetooth.CharacteristicWritePermission | bluetooth.CharacteristicWriteWithoutResponsePermission
	err := p.adapter.AddService(&bluetooth.Service{
		UUID: serviceUUID,
		Characteristics: []bluetooth.CharacteristicConfig{
			{
				Handle: &p.sensor,
				UUID:   sensorUUID,
				Flags:  bluetooth.CharacteristicReadPermission | bluetooth.CharacteristicNotifyPermission,
			},
			{UUID: neuronUUID, Flags: writeFlags, WriteEvent: onWrite},
			{UUID: gpioUUID, Flags: writeFlags, WriteEvent: onWrite},
			{UUID: ledUUID, Flags: writeFlags, WriteEvent: onWrite},
			{
				UUID:  capabilitiesUUID,
				Value: caps,
				Flags: bluetooth.CharacteristicReadPermission,
			},
		},
	})
	if err != nil {
		return fmt.Errorf("add gatt service: %w", err)
	}
	p.adv = p.adapter.DefaultAdvertisement()
	err = p.adv.Configure(bluetooth.AdvertisementOptions{
		LocalName:    name,
		ServiceUUIDs: []bluetooth.UUID{serviceUUID},
	})
	if err != nil {
		return fmt.Errorf("configure advertisement: %w", err)
	}
	p.started = true
	return nil
}

func (p *peripheral) Advertise() error {
	return p.adv.Start()
}

func (p *peripheral) StopAdvertising() error {
	return p.adv.Stop()
}

func (p *peripheral) Notify(b []byte) error {
	n, err := p.sensor.Write(b)
	if err != nil {
		return err
	}
	if n != len(b) {
		return fmt.Errorf("short notify: %d of %d", n, len(b))
	}
	return nil
}
