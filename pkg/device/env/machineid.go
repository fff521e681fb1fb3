// Package env resolves facts about the machine the device runs on.
package env

import (
	"os"

	"github.com/denisbrodbeck/machineid"
	"github.com/golang/glog"
)

// AppID salts the machine ID so the raw one is never published.
const AppID = "neurolink"

// MachineID retrieves the unique ID identifying the machine. Hosts without
// a machine id (e.g. minimal containers) fall back to the hostname.
func MachineID() string {
	id, err := machineid.ProtectedID(AppID)
	if err == nil {
		return id
	}
	glog.Warningf("machine id unavailable: %v", err)
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "unknown"
}
