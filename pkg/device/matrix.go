package device

import (
	"strings"
	"sync"

	"github.com/robotalks/neurolink/pkg/l0/comm"
)

// LitThreshold is the brightness above which an LED is rendered lit.
const LitThreshold = 127

// Frame is a row-major brightness snapshot of the LED matrix.
type Frame [comm.MatrixSize]byte

// Lit reports whether LED (x, y) renders lit.
func (f Frame) Lit(x, y int) bool {
	return f[y*comm.MatrixSide+x] > LitThreshold
}

// String renders the frame as 5 lines of '#' and '.'.
func (f Frame) String() string {
	var sb strings.Builder
	for y := 0; y < comm.MatrixSide; y++ {
		if y > 0 {
			sb.WriteByte('\n')
		}
		for x := 0; x < comm.MatrixSide; x++ {
			if f.Lit(x, y) {
				sb.WriteByte('#')
			} else {
				sb.WriteByte('.')
			}
		}
	}
	return sb.String()
}

// RenderFunc receives every new frame.
type RenderFunc func(Frame)

// Matrix is the in-memory 5x5 LED display. It implements comm.Display.
type Matrix struct {
	lock    sync.Mutex
	frame   Frame
	updates uint64
	drawn   uint64
	render  RenderFunc
}

// NewMatrix creates a Matrix, render may be nil.
func NewMatrix(render RenderFunc) *Matrix {
	return &Matrix{render: render}
}

// ShowNeurons implements comm.Display: the frame is cleared and each
// fired neuron is lit at full brightness.
func (m *Matrix) ShowNeurons(coords []comm.Coord) {
	var f Frame
	for _, c := range coords {
		if c.InMatrix() {
			f[int(c.Y)*comm.MatrixSide+int(c.X)] = 255
		}
	}
	m.draw(f)
}

// SetMatrix implements comm.Display.
func (m *Matrix) SetMatrix(brightness [comm.MatrixSize]byte) {
	m.draw(Frame(brightness))
}

// ShowGlyph displays a predefined glyph.
func (m *Matrix) ShowGlyph(g Glyph) {
	m.set(g.Frame())
}

// Clear turns off all LEDs.
func (m *Matrix) Clear() {
	m.set(Frame{})
}

// Frame returns the current frame.
func (m *Matrix) Frame() Frame {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.frame
}

// Updates counts frames set since creation.
func (m *Matrix) Updates() uint64 {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.updates
}

// HostFrames counts frames drawn by host commands.
func (m *Matrix) HostFrames() uint64 {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.drawn
}

func (m *Matrix) draw(f Frame) {
	m.lock.Lock()
	m.drawn++
	m.lock.Unlock()
	m.set(f)
}

func (m *Matrix) set(f Frame) {
	m.lock.Lock()
	m.frame = f
	m.updates++
	render := m.render
	m.lock.Unlock()
	if render != nil {
		render(f)
	}
}

// Glyph is a 5x5 picture, one string per row, '#' for lit.
type Glyph [comm.MatrixSide]string

// Frame converts the glyph to full brightness frame.
func (g Glyph) Frame() (f Frame) {
	for y, row := range g {
		for x := 0; x < len(row) && x < comm.MatrixSide; x++ {
			if row[x] == '#' {
				f[y*comm.MatrixSide+x] = 255
			}
		}
	}
	return
}

// Glyphs.
var (
	GlyphHeart = Glyph{
		".#.#.",
		"#####",
		"#####",
		".###.",
		"..#..",
	}
	GlyphF = Glyph{
		"#####",
		"#....",
		"####.",
		"#....",
		"#....",
	}
	GlyphE = Glyph{
		"#####",
		"#....",
		"####.",
		"#....",
		"#####",
	}
	GlyphA = Glyph{
		".###.",
		"#...#",
		"#####",
		"#...#",
		"#...#",
	}
	GlyphG = Glyph{
		".###.",
		"#....",
		"#.###",
		"#...#",
		".###.",
	}
	GlyphI = Glyph{
		"#####",
		"..#..",
		"..#..",
		"..#..",
		"#####",
	}
	GlyphArrowUp = Glyph{
		"..#..",
		".###.",
		"#.#.#",
		"..#..",
		"..#..",
	}
	GlyphCheckmark = Glyph{
		".....",
		"....#",
		"...#.",
		"#.#..",
		".#...",
	}
)

// Glyphs indexes glyphs by name.
var Glyphs = map[string]Glyph{
	"heart":     GlyphHeart,
	"f":         GlyphF,
	"e":         GlyphE,
	"a":         GlyphA,
	"g":         GlyphG,
	"i":         GlyphI,
	"arrow-up":  GlyphArrowUp,
	"checkmark": GlyphCheckmark,
}
