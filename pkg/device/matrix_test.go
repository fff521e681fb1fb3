package device

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/neurolink/pkg/l0/comm"
)

func TestMatrixShowNeuronsClearsFirst(t *testing.T) {
	var frames []Frame
	m := NewMatrix(func(f Frame) { frames = append(frames, f) })
	m.SetMatrix([comm.MatrixSize]byte{0: 200, 24: 90})
	m.ShowNeurons([]comm.Coord{{X: 1, Y: 0}, {X: 4, Y: 4}, {X: 5, Y: 1}})

	f := m.Frame()
	require.Equal(t, byte(0), f[0])
	require.Equal(t, byte(255), f[1])
	require.Equal(t, byte(255), f[24])
	require.Len(t, frames, 2)
	require.Equal(t, uint64(2), m.Updates())
	require.Equal(t, uint64(2), m.HostFrames())
	m.ShowGlyph(GlyphCheckmark)
	m.Clear()
	require.Equal(t, uint64(4), m.Updates())
	require.Equal(t, uint64(2), m.HostFrames(), "local glyphs are not host frames")
	require.Equal(t, ".#...\n.....\n.....\n.....\n....#", f.String())
}

func TestMatrixRowMajorAndThreshold(t *testing.T) {
	m := NewMatrix(nil)
	var b [comm.MatrixSize]byte
	b[7] = 128 // x=2, y=1
	b[8] = 127
	m.SetMatrix(b)
	f := m.Frame()
	require.True(t, f.Lit(2, 1))
	require.False(t, f.Lit(3, 1))
	require.False(t, f.Lit(1, 2))
}

func TestGlyphs(t *testing.T) {
	m := NewMatrix(nil)
	m.ShowGlyph(GlyphHeart)
	require.Equal(t, ".#.#.\n#####\n#####\n.###.\n..#..", m.Frame().String())
	m.Clear()
	require.Equal(t, Frame{}, m.Frame())

	for name, g := range Glyphs {
		f := g.Frame()
		lit := 0
		for _, v := range f {
			require.Contains(t, []byte{0, 255}, v, name)
			if v > 0 {
				lit++
			}
		}
		require.NotZero(t, lit, name)
	}
	f := GlyphCheckmark.Frame()
	require.False(t, f.Lit(4, 0))
	require.True(t, f.Lit(4, 1))
}
