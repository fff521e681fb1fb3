package device

import (
	"flag"
	"fmt"
	"io/ioutil"
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/robotalks/neurolink/pkg/device/env"
	"github.com/robotalks/neurolink/pkg/l0/comm"
	"github.com/robotalks/neurolink/pkg/l0/comm/ble"
	"github.com/robotalks/neurolink/pkg/l0/comm/serial"
	"github.com/robotalks/neurolink/pkg/l0/comm/stream"
)

// Transports.
const (
	TransportBLE    = "ble"
	TransportSerial = "serial"
	TransportTCP    = "tcp"
	TransportWS     = "ws"
)

// Config defines the configurations of the device.
type Config struct {
	Transport string `yaml:"transport"`
	Name      string `yaml:"name"`
	ID        string `yaml:"id"`

	AdvertiseTimeout time.Duration `yaml:"advertise-timeout"`
	RetryMin         time.Duration `yaml:"retry-min"`
	RetryMax         time.Duration `yaml:"retry-max"`
	BufferCap        int           `yaml:"buffer"`

	BLEAdapter     string        `yaml:"ble-adapter"`
	BLEIdleTimeout time.Duration `yaml:"ble-idle-timeout"`

	SerialPort       string `yaml:"serial-port"`
	BaudRate         int    `yaml:"baud"`
	IgnoreHostSignal bool   `yaml:"ignore-host-signal"`

	ListenAddr string `yaml:"listen"`
	WSPath     string `yaml:"ws-path"`

	Tick              time.Duration `yaml:"tick"`
	TelemetryInterval time.Duration `yaml:"telemetry"`
	Pins              []int         `yaml:"pins"`

	CapsFile     string `yaml:"caps-file"`
	Capabilities string `yaml:"capabilities"`

	// MQTTURL enables status publishing, e.g. mqtt://host:1883/neurolink/
	MQTTURL string `yaml:"mqtt"`

	// ConfigFile is only set from command line.
	ConfigFile string `yaml:"-"`
}

var defaultConfig = Config{
	Transport:         TransportBLE,
	Name:              ble.DefaultName,
	AdvertiseTimeout:  comm.DefaultWaitTimeout,
	RetryMin:          comm.DefaultRetryMin,
	RetryMax:          comm.DefaultRetryMax,
	BufferCap:         comm.DefaultBufferCap,
	BLEIdleTimeout:    ble.DefaultIdleTimeout,
	BaudRate:          serial.DefaultBaudRate,
	ListenAddr:        ":7070",
	WSPath:            stream.DefaultPath,
	Tick:              10 * time.Millisecond,
	TelemetryInterval: 100 * time.Millisecond,
}

func init() {
	if val := os.Getenv("NEUROLINK_TRANSPORT"); val != "" {
		defaultConfig.Transport = val
	}
	if val := os.Getenv("NEUROLINK_MQTT_URL"); val != "" {
		defaultConfig.MQTTURL = val
	}
}

// SetupFlags sets command line flags.
func SetupFlags() {
	flag.StringVar(&defaultConfig.ConfigFile, "config", defaultConfig.ConfigFile, "YAML config file, values override flags")
	flag.StringVar(&defaultConfig.Transport, "transport", defaultConfig.Transport, "Link transport: ble, serial, tcp, ws")
	flag.StringVar(&defaultConfig.Name, "name", defaultConfig.Name, "Advertised link name")
	flag.StringVar(&defaultConfig.ID, "id", defaultConfig.ID, "Device ID, machine id if empty")
	flag.DurationVar(&defaultConfig.AdvertiseTimeout, "advertise-timeout", defaultConfig.AdvertiseTimeout, "Restart advertising/waiting after this long, 0 waits forever")
	flag.DurationVar(&defaultConfig.RetryMin, "retry-min", defaultConfig.RetryMin, "Initial reconnect delay")
	flag.DurationVar(&defaultConfig.RetryMax, "retry-max", defaultConfig.RetryMax, "Maximum reconnect delay")
	flag.IntVar(&defaultConfig.BufferCap, "buffer", defaultConfig.BufferCap, "Receive buffer capacity in bytes")
	flag.StringVar(&defaultConfig.BLEAdapter, "ble-adapter", defaultConfig.BLEAdapter, "Bluetooth adapter ID, e.g. hci0")
	flag.DurationVar(&defaultConfig.BLEIdleTimeout, "ble-idle-timeout", defaultConfig.BLEIdleTimeout, "Drop a BLE peer silent for this long when the stack has no connect events")
	flag.StringVar(&defaultConfig.SerialPort, "serial-port", defaultConfig.SerialPort, "Serial device, e.g. /dev/ttyGS0")
	flag.IntVar(&defaultConfig.BaudRate, "baud", defaultConfig.BaudRate, "Serial baud rate")
	flag.BoolVar(&defaultConfig.IgnoreHostSignal, "ignore-host-signal", defaultConfig.IgnoreHostSignal, "Treat an open serial port as host present")
	flag.StringVar(&defaultConfig.ListenAddr, "listen", defaultConfig.ListenAddr, "Listen address for tcp/ws transports")
	flag.StringVar(&defaultConfig.WSPath, "ws-path", defaultConfig.WSPath, "Websocket endpoint path")
	flag.DurationVar(&defaultConfig.Tick, "tick", defaultConfig.Tick, "Main loop interval")
	flag.DurationVar(&defaultConfig.TelemetryInterval, "telemetry", defaultConfig.TelemetryInterval, "Sensor telemetry interval, 0 disables")
	flag.StringVar(&defaultConfig.CapsFile, "caps", defaultConfig.CapsFile, "Capability descriptor file")
	flag.StringVar(&defaultConfig.MQTTURL, "mqtt", defaultConfig.MQTTURL, "MQTT broker URL for status publishing")
}

// Default gets default config.
func Default() *Config {
	return &defaultConfig
}

// NewConfig creates a config with defaults.
func NewConfig() *Config {
	conf := defaultConfig
	conf.Pins = append([]int(nil), defaultConfig.Pins...)
	return &conf
}

// LoadFile merges a YAML file into the config. Unknown keys are errors.
func (c *Config) LoadFile(path string) error {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return err
	}
	if err = yaml.UnmarshalStrict(data, c); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

// Resolve loads ConfigFile if specified, fills derived defaults and validates.
func (c *Config) Resolve() error {
	if c.ConfigFile != "" {
		if err := c.LoadFile(c.ConfigFile); err != nil {
			return err
		}
	}
	if c.ID == "" {
		c.ID = env.MachineID()
	}
	if len(c.Pins) == 0 {
		c.Pins = append(c.Pins, EdgePins...)
	}
	switch c.Transport {
	case TransportBLE:
	case TransportSerial:
		if c.SerialPort == "" {
			return fmt.Errorf("serial transport requires -serial-port")
		}
	case TransportTCP, TransportWS:
		if c.ListenAddr == "" {
			return fmt.Errorf("%s transport requires -listen", c.Transport)
		}
	default:
		return fmt.Errorf("unknown transport %q", c.Transport)
	}
	if c.Tick <= 0 {
		return fmt.Errorf("invalid tick %s", c.Tick)
	}
	for _, pin := range c.Pins {
		if pin < 0 || pin > 255 {
			return fmt.Errorf("invalid pin %d", pin)
		}
	}
	return nil
}

// MustResolve resolves the config and fails on error.
func (c *Config) MustResolve() *Config {
	if err := c.Resolve(); err != nil {
		log.Fatalln(err)
	}
	return c
}

// CapabilityDescriptor returns the descriptor from inline config, file,
// or the one describing the configured pins.
func (c *Config) CapabilityDescriptor() (data []byte, err error) {
	switch {
	case c.Capabilities != "":
		data = []byte(c.Capabilities)
	case c.CapsFile != "":
		if data, err = ioutil.ReadFile(c.CapsFile); err != nil {
			return nil, err
		}
	default:
		return DefaultCapabilities(c.Pins), nil
	}
	if err = ValidateCapabilities(data); err != nil {
		return nil, err
	}
	return data, nil
}

// LinkOptions builds options of the connection state machine.
func (c *Config) LinkOptions() comm.LinkOptions {
	return comm.LinkOptions{
		WaitTimeout: c.AdvertiseTimeout,
		RetryMin:    c.RetryMin,
		RetryMax:    c.RetryMax,
	}
}

// NewBackend creates the link backend selected by Transport.
func (c *Config) NewBackend(caps []byte) (comm.Backend, error) {
	switch c.Transport {
	case TransportBLE:
		return ble.New(ble.Config{
			Name:         c.Name,
			AdapterID:    c.BLEAdapter,
			Capabilities: caps,
			IdleTimeout:  c.BLEIdleTimeout,
		}), nil
	case TransportSerial:
		return serial.New(serial.Config{
			Port:             c.SerialPort,
			BaudRate:         c.BaudRate,
			IgnoreHostSignal: c.IgnoreHostSignal,
		})
	case TransportTCP:
		return stream.New(stream.Config{Network: stream.NetworkTCP, Addr: c.ListenAddr})
	case TransportWS:
		return stream.New(stream.Config{Network: stream.NetworkWebsocket, Addr: c.ListenAddr, Path: c.WSPath})
	}
	return nil, fmt.Errorf("unknown transport %q", c.Transport)
}
