package ble

import (
	"fmt"
	"strings"

	"tinygo.org/x/bluetooth"
)

// DefaultName is the advertised local name.
const DefaultName = "FEAGI-microbit"

var (
	serviceUUID      = mustParseUUID("e95d0753-251d-470a-a062-fa1922dfa9a8")
	sensorUUID       = mustParseUUID("e95d0754-251d-470a-a062-fa1922dfa9a8")
	neuronUUID       = mustParseUUID("e95d0755-251d-470a-a062-fa1922dfa9a8")
	gpioUUID         = mustParseUUID("e95d0756-251d-470a-a062-fa1922dfa9a8")
	ledUUID          = mustParseUUID("e95d0757-251d-470a-a062-fa1922dfa9a8")
	capabilitiesUUID = mustParseUUID("e95d0758-251d-470a-a062-fa1922dfa9a8")
)

func mustParseUUID(raw string) bluetooth.UUID {
	uuid, err := bluetooth.ParseUUID(strings.TrimSpace(raw))
	if err != nil {
		panic(fmt.Sprintf("invalid bluetooth UUID %q: %v", raw, err))
	}
	return uuid
}

// ServiceUUID is the primary service exposed by the device.
func ServiceUUID() bluetooth.UUID { return serviceUUID }

// SensorUUID is the notify characteristic carrying telemetry and responses.
func SensorUUID() bluetooth.UUID { return sensorUUID }

// NeuronUUID is the write characteristic for neuron firing commands.
func NeuronUUID() bluetooth.UUID { return neuronUUID }

// GPIOUUID is the write characteristic for pin commands.
func GPIOUUID() bluetooth.UUID { return gpioUUID }

// LEDUUID is the write characteristic for LED matrix commands.
func LEDUUID() bluetooth.UUID { return ledUUID }

// CapabilitiesUUID is the read characteristic holding the capability descriptor.
func CapabilitiesUUID() bluetooth.UUID { return capabilitiesUUID }
