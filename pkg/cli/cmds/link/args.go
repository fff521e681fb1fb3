package link

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/robotalks/neurolink/pkg/device"
	"github.com/robotalks/neurolink/pkg/l0/comm"
)

// ParseCoords parses "X,Y" pairs.
func ParseCoords(args []string) ([]comm.Coord, error) {
	if len(args) > comm.MaxCoords {
		return nil, fmt.Errorf("at most %d coordinates", comm.MaxCoords)
	}
	coords := make([]comm.Coord, 0, len(args))
	for _, arg := range args {
		parts := strings.Split(arg, ",")
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid coordinate %q, X,Y expected", arg)
		}
		x, err := parseByte(parts[0])
		if err != nil {
			return nil, fmt.Errorf("invalid X in %q: %v", arg, err)
		}
		y, err := parseByte(parts[1])
		if err != nil {
			return nil, fmt.Errorf("invalid Y in %q: %v", arg, err)
		}
		c := comm.Coord{X: x, Y: y}
		if !c.InMatrix() {
			return nil, fmt.Errorf("coordinate %q outside %dx%d matrix", arg, comm.MatrixSide, comm.MatrixSide)
		}
		coords = append(coords, c)
	}
	return coords, nil
}

// ParsePinMode parses digital/pwm.
func ParsePinMode(s string) (comm.PinMode, error) {
	switch strings.ToLower(s) {
	case "digital", "d", "0":
		return comm.PinDigitalOutput, nil
	case "pwm", "p", "1":
		return comm.PinPwmOutput, nil
	}
	return 0, fmt.Errorf("invalid mode %q, digital or pwm expected", s)
}

// ParseMatrix parses a glyph name, 5 rows of '#'/'.' or 25 brightness values.
func ParseMatrix(args []string) (b [comm.MatrixSize]byte, err error) {
	switch len(args) {
	case 1:
		g, ok := device.Glyphs[strings.ToLower(args[0])]
		if !ok {
			return b, fmt.Errorf("unknown glyph %q", args[0])
		}
		return g.Frame(), nil
	case comm.MatrixSide:
		var g device.Glyph
		for n, row := range args {
			if len(row) != comm.MatrixSide || strings.Trim(row, "#.") != "" {
				return b, fmt.Errorf("invalid row %q, 5 of '#' or '.' expected", row)
			}
			g[n] = row
		}
		return g.Frame(), nil
	case comm.MatrixSize:
		for n, arg := range args {
			if b[n], err = parseByte(arg); err != nil {
				return b, fmt.Errorf("invalid brightness %q: %v", arg, err)
			}
		}
		return b, nil
	}
	return b, fmt.Errorf("GLYPH, 5 ROWS or 25 VALUES expected")
}

func parseByte(s string) (byte, error) {
	val, err := strconv.ParseUint(strings.TrimSpace(s), 0, 8)
	return byte(val), err
}
