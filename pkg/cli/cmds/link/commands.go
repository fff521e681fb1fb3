package link

import (
	"fmt"
	"strings"

	"github.com/abiosoft/ishell"

	"github.com/robotalks/neurolink/pkg/cli/sh"
	"github.com/robotalks/neurolink/pkg/device"
	"github.com/robotalks/neurolink/pkg/l0/comm"
)

var (
	// FireCmd exposes NeuronFiring command.
	FireCmd = ishell.Cmd{
		Name:    "fire",
		Aliases: []string{"f"},
		Help:    "X,Y...",
		Func: sh.MustBeConnected(func(c *ishell.Context) {
			coords, err := ParseCoords(c.Args)
			if err != nil {
				c.Err(err)
				return
			}
			sh.Send(c, &comm.NeuronFiring{Coords: coords})
		}),
	}

	// GpioCmd exposes SetGpio command.
	GpioCmd = ishell.Cmd{
		Name:    "gpio",
		Aliases: []string{"g"},
		Help:    "PIN digital|pwm VALUE",
		Func: sh.MustBeConnected(func(c *ishell.Context) {
			if len(c.Args) < 3 {
				c.Err(fmt.Errorf("PIN MODE VALUE required"))
				return
			}
			var cmd comm.SetGpio
			var err error
			if cmd.Pin, err = parseByte(c.Args[0]); err != nil {
				c.Err(fmt.Errorf("Invalid PIN: %v", err))
				return
			}
			if cmd.Mode, err = ParsePinMode(c.Args[1]); err != nil {
				c.Err(err)
				return
			}
			if cmd.Value, err = parseByte(c.Args[2]); err != nil {
				c.Err(fmt.Errorf("Invalid VALUE: %v", err))
				return
			}
			sh.Send(c, &cmd)
		}),
	}

	// PwmCmd exposes SetPwm command.
	PwmCmd = ishell.Cmd{
		Name:    "pwm",
		Aliases: []string{"p"},
		Help:    "PIN DUTY(0-255)",
		Func: sh.MustBeConnected(func(c *ishell.Context) {
			if len(c.Args) < 2 {
				c.Err(fmt.Errorf("PIN DUTY required"))
				return
			}
			var cmd comm.SetPwm
			var err error
			if cmd.Pin, err = parseByte(c.Args[0]); err != nil {
				c.Err(fmt.Errorf("Invalid PIN: %v", err))
				return
			}
			if cmd.Duty, err = parseByte(c.Args[1]); err != nil {
				c.Err(fmt.Errorf("Invalid DUTY: %v", err))
				return
			}
			sh.Send(c, &cmd)
		}),
	}

	// MatrixCmd exposes SetLedMatrix command.
	MatrixCmd = ishell.Cmd{
		Name:    "matrix",
		Aliases: []string{"m"},
		Help:    "GLYPH | ROW*5 | VALUE*25",
		Func: sh.MustBeConnected(func(c *ishell.Context) {
			b, err := ParseMatrix(c.Args)
			if err != nil {
				c.Err(err)
				return
			}
			sh.Send(c, &comm.SetLedMatrix{Brightness: b})
		}),
	}

	// GlyphsCmd lists glyph names for matrix.
	GlyphsCmd = ishell.Cmd{
		Name: "glyphs",
		Help: "",
		Func: func(c *ishell.Context) {
			for name, g := range device.Glyphs {
				f := g.Frame()
				c.Printf("%s\n%s\n\n", name, strings.TrimSpace(f.String()))
			}
		},
	}
)

func init() {
	sh.AddCmds(
		&FireCmd,
		&GpioCmd,
		&PwmCmd,
		&MatrixCmd,
		&GlyphsCmd,
	)
}
