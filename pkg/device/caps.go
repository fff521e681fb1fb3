package device

import (
	"encoding/json"
	"fmt"

	"github.com/golang/glog"
)

// MaxCapabilitiesLen bounds the descriptor to one GATT attribute value.
const MaxCapabilitiesLen = 512

// Capabilities is the descriptor returned for GetCapabilities.
type Capabilities struct {
	Sensors struct {
		Accel   bool `json:"accel"`
		Mag     bool `json:"mag"`
		Temp    bool `json:"temp"`
		Buttons bool `json:"buttons"`
	} `json:"sensors"`
	GPIO struct {
		Digital int `json:"digital"`
		Analog  int `json:"analog"`
		PWM     int `json:"pwm"`
	} `json:"gpio"`
	Display struct {
		Matrix bool `json:"matrix"`
	} `json:"display"`
}

// DescribePins builds the descriptor of a device with all simulated
// sensors, the LED matrix and the specified output pins.
func DescribePins(pins []int) *Capabilities {
	c := &Capabilities{}
	c.Sensors.Accel, c.Sensors.Mag, c.Sensors.Temp, c.Sensors.Buttons = true, true, true, true
	c.Display.Matrix = true
	c.GPIO.Digital, c.GPIO.PWM = len(pins), len(pins)
	for _, pin := range pins {
		for _, analog := range AnalogPins {
			if pin == analog {
				c.GPIO.Analog++
			}
		}
	}
	return c
}

// DefaultCapabilities encodes the descriptor for the specified pins.
func DefaultCapabilities(pins []int) []byte {
	data, err := json.Marshal(DescribePins(pins))
	if err != nil {
		panic(err)
	}
	return data
}

// ValidateCapabilities checks a custom descriptor. The blob is opaque to the
// link; only its size is enforced and non-JSON content is just warned about.
func ValidateCapabilities(data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("empty capability descriptor")
	}
	if len(data) > MaxCapabilitiesLen {
		return fmt.Errorf("capability descriptor too long: %d > %d", len(data), MaxCapabilitiesLen)
	}
	if !json.Valid(data) {
		glog.Warningf("capability descriptor is not valid JSON, sent as is")
	}
	return nil
}
