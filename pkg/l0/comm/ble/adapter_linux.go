//go:build linux

package ble

import "tinygo.org/x/bluetooth"

// ResolveAdapter selects a BlueZ adapter (e.g. hci1) by id, the default
// adapter if id is empty.
func ResolveAdapter(adapterID string) *bluetooth.Adapter {
	if adapterID == "" {
		return bluetooth.DefaultAdapter
	}
	return bluetooth.NewAdapter(adapterID)
}
