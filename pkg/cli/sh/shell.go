// Package sh is the interactive host shell talking to a device.
package sh

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/abiosoft/ishell"

	"github.com/robotalks/neurolink/pkg/host"
	"github.com/robotalks/neurolink/pkg/l0/comm"
)

// Config defines the configurations of the shell.
type Config struct {
	Target  string
	Timeout time.Duration
}

var defaultConfig = Config{
	Timeout: 2 * time.Second,
}

func init() {
	if val := os.Getenv("NEUROLINK_TARGET"); val != "" {
		defaultConfig.Target = val
	}
}

// SetupFlags sets command line flags.
func SetupFlags() {
	flag.StringVar(&defaultConfig.Target, "target", defaultConfig.Target, "Device to connect, e.g. serial:///dev/ttyACM0, tcp://host:7070, ble://FEAGI-microbit")
	flag.DurationVar(&defaultConfig.Timeout, "timeout", defaultConfig.Timeout, "Timeout of requests")
}

// NewConfig creates a config with defaults.
func NewConfig() *Config {
	conf := defaultConfig
	return &conf
}

// Shell provides ishell backed interactive shell.
type Shell struct {
	Interactive bool
	OutputJSON  bool
	AutoConnect bool

	Shell  *ishell.Shell
	Config *Config
	Client *host.Client
	Target string
}

const (
	shellKey          = "$shell"
	unconnectedPrompt = "[none] > "
)

var (
	// flags

	evalOnly   bool
	outputJSON bool

	// commands
	commands = []*ishell.Cmd{
		&ConnectCmd,
		&DisconnectCmd,
		&CapsCmd,
		&RawCmd,
		&WatchCmd,
	}
)

func init() {
	flag.BoolVar(&evalOnly, "e", evalOnly, "Evaluation only, no interactive shell.")
	flag.BoolVar(&outputJSON, "json", outputJSON, "Print output in JSON.")
}

// AddCmds is used by other commands providers during init func.
func AddCmds(cmds ...*ishell.Cmd) {
	commands = append(commands, cmds...)
}

// New creates a new shell.
func New(conf *Config) *Shell {
	s := &Shell{
		Interactive: !evalOnly,
		OutputJSON:  outputJSON,

		Shell:  ishell.New(),
		Config: conf,
	}
	s.Shell.Set(shellKey, s)
	s.Shell.SetPrompt(unconnectedPrompt)
	for _, cmd := range commands {
		s.Shell.AddCmd(cmd)
	}
	return s
}

// ShellFrom gets Shell from ishell context.
func ShellFrom(c *ishell.Context) *Shell {
	return c.Get(shellKey).(*Shell)
}

// MustBeConnected wraps command func requires a connection.
func MustBeConnected(fn func(c *ishell.Context)) func(c *ishell.Context) {
	return func(c *ishell.Context) {
		if ShellFrom(c).Client == nil {
			c.Err(fmt.Errorf("not connected"))
			return
		}
		fn(c)
	}
}

// Send sends a command and reports the result.
func Send(c *ishell.Context, cmd comm.Command) error {
	s := ShellFrom(c)
	if err := s.Client.Send(cmd); err != nil {
		c.Err(err)
		return err
	}
	s.Report(c, cmd.ID().String(), nil)
	return nil
}

// Report prints a result, out is printed as JSON document if not nil.
func (s *Shell) Report(c *ishell.Context, what string, out json.RawMessage) {
	switch {
	case s.OutputJSON && out != nil:
		c.Println(string(out))
	case s.OutputJSON:
		c.Printf("{\"sent\":%q}\n", what)
	case out != nil:
		c.Println(host.FormatTelemetry(out))
	default:
		c.Println("OK")
	}
}

// WithAutoConnect sets AutoConnect.
func (s *Shell) WithAutoConnect(en bool) *Shell {
	s.AutoConnect = en
	return s
}

// Connect connects a device.
func (s *Shell) Connect(target string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	client, err := host.Dial(ctx, target)
	if err != nil {
		return err
	}
	s.Disconnect()
	s.Client, s.Target = client, target
	s.Shell.SetPrompt(fmt.Sprintf("%s > ", target))
	return nil
}

// Disconnect disconnects current device.
func (s *Shell) Disconnect() {
	if s.Client != nil {
		s.Client.Close()
		s.Client, s.Target = nil, ""
		s.Shell.SetPrompt(unconnectedPrompt)
	}
}

// Run runs the shell.
func (s *Shell) Run(args ...string) {
	if s.AutoConnect && s.Config.Target != "" {
		if s.Interactive {
			s.Shell.Printf("Connecting %s ...\n", s.Config.Target)
		}
		if err := s.Connect(s.Config.Target); err != nil {
			log.Fatalf("connect %q failed: %v", s.Config.Target, err)
		}
	}
	defer s.Disconnect()

	if len(args) > 0 {
		if err := s.Shell.Process(args...); err != nil {
			log.Fatalln(err)
		}
		return
	}
	if s.Interactive {
		s.Shell.Run()
		return
	}
	log.Fatalln("command expected")
}

// ParseHex parses bytes like "05 00", "0x05,0x00" or "0500".
func ParseHex(args []string) ([]byte, error) {
	joined := strings.Join(args, "")
	joined = strings.NewReplacer(",", "", "0x", "", "0X", "", ":", "", " ", "").Replace(joined)
	if joined == "" {
		return nil, fmt.Errorf("no bytes")
	}
	return hex.DecodeString(joined)
}

var (
	// ConnectCmd connects a device.
	ConnectCmd = ishell.Cmd{
		Name:    "connect",
		Aliases: []string{"c"},
		Help:    "TARGET",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			target := s.Config.Target
			if len(c.Args) > 0 {
				target = c.Args[0]
			}
			if target == "" {
				c.Err(fmt.Errorf("TARGET required"))
				return
			}
			if err := s.Connect(target); err != nil {
				c.Err(err)
			}
		},
	}

	// DisconnectCmd disconnects current device.
	DisconnectCmd = ishell.Cmd{
		Name:    "disconnect",
		Aliases: []string{"d"},
		Help:    "",
		Func: func(c *ishell.Context) {
			ShellFrom(c).Disconnect()
		},
	}

	// CapsCmd requests the capability descriptor.
	CapsCmd = ishell.Cmd{
		Name:    "caps",
		Aliases: []string{"capabilities"},
		Help:    "[read]",
		Func: MustBeConnected(func(c *ishell.Context) {
			s := ShellFrom(c)
			ctx, cancel := context.WithTimeout(context.Background(), s.Config.Timeout)
			defer cancel()
			fetch := s.Client.Capabilities
			if len(c.Args) > 0 && c.Args[0] == "read" {
				fetch = s.Client.ReadCapabilities
			}
			caps, err := fetch(ctx)
			if err != nil {
				c.Err(err)
				return
			}
			s.Report(c, "caps", caps)
		}),
	}

	// RawCmd sends raw bytes.
	RawCmd = ishell.Cmd{
		Name: "raw",
		Help: "HEX...",
		Func: MustBeConnected(func(c *ishell.Context) {
			data, err := ParseHex(c.Args)
			if err != nil {
				c.Err(fmt.Errorf("Invalid HEX: %v", err))
				return
			}
			if err := ShellFrom(c).Client.Raw(data); err != nil {
				c.Err(err)
				return
			}
			ShellFrom(c).Report(c, "raw", nil)
		}),
	}

	// WatchCmd prints telemetry samples.
	WatchCmd = ishell.Cmd{
		Name:    "watch",
		Aliases: []string{"w"},
		Help:    "[COUNT]",
		Func: MustBeConnected(func(c *ishell.Context) {
			s := ShellFrom(c)
			count := 10
			if len(c.Args) > 0 {
				if _, err := fmt.Sscanf(c.Args[0], "%d", &count); err != nil {
					c.Err(fmt.Errorf("Invalid COUNT: %v", err))
					return
				}
			}
			for i := 0; i < count; i++ {
				select {
				case doc := <-s.Client.Telemetry():
					s.Report(c, "telemetry", doc)
				case <-s.Client.Done():
					c.Err(fmt.Errorf("connection gone: %v", s.Client.Err()))
					return
				case <-time.After(s.Config.Timeout):
					c.Err(fmt.Errorf("no telemetry"))
					return
				}
			}
		}),
	}
)

// Main is a helper to provide a single call in main.
func Main() {
	flag.Parse()
	New(NewConfig()).WithAutoConnect(true).Run(flag.Args()...)
}
