//go:build !linux

package ble

import "tinygo.org/x/bluetooth"

// ResolveAdapter returns the default adapter, ids are only meaningful on BlueZ.
func ResolveAdapter(_ string) *bluetooth.Adapter {
	return bluetooth.DefaultAdapter
}
