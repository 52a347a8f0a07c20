package texture

import (
	"image"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kikiluvv/retroclip/internal/compositor"
)

func midGray(w, h int) *image.RGBA {
	s := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(s.Pix); i += 4 {
		s.Pix[i], s.Pix[i+1], s.Pix[i+2], s.Pix[i+3] = 180, 150, 120, 0xff
	}
	return s
}

func TestScanlinesPatternAndCache(t *testing.T) {
	g := NewGenerator(rand.New(rand.NewSource(1)))

	m := g.Scanlines(8, 10, 2)
	for y, want := range []uint8{0, 0, 0xff, 0xff, 0, 0, 0xff, 0xff, 0, 0} {
		assert.Equal(t, want, m.GrayAt(3, y).Y, "row %d", y)
	}

	assert.Same(t, m, g.Scanlines(8, 10, 2))
	assert.NotSame(t, m, g.Scanlines(8, 10, 3))
	assert.NotSame(t, m, g.Scanlines(16, 10, 2))
}

func TestNoiseIsBlockyAndRegenerated(t *testing.T) {
	g := NewGenerator(rand.New(rand.NewSource(2)))

	n := g.Noise(16, 8)
	require.Equal(t, image.Rect(0, 0, 16, 8), n.Bounds())
	for y := 0; y < 8; y += NoiseScale {
		for x := 0; x < 16; x += NoiseScale {
			v := n.GrayAt(x, y).Y
			for dy := 0; dy < NoiseScale; dy++ {
				for dx := 0; dx < NoiseScale; dx++ {
					assert.Equal(t, v, n.GrayAt(x+dx, y+dy).Y)
				}
			}
		}
	}

	before := append([]uint8(nil), n.Pix...)
	after := g.Noise(16, 8)
	assert.NotEqual(t, before, after.Pix)
}

func TestGrainBlockSize(t *testing.T) {
	g := NewGenerator(rand.New(rand.NewSource(3)))
	gr := g.Grain(24, 12, 3)
	// Block size is 6: every pixel in the first block matches its origin.
	for y := 0; y < 6; y++ {
		for x := 0; x < 6; x++ {
			assert.Equal(t, gr.GrayAt(0, 0).Y, gr.GrayAt(x, y).Y)
		}
	}
}

func TestVignetteStrengthZeroIsNoop(t *testing.T) {
	s := midGray(64, 36)
	want := append([]uint8(nil), s.Pix...)

	compositor.Apply(s, VignetteLayer(64, 36, 0))
	assert.Equal(t, want, s.Pix)
}

func TestVignetteFullStrengthDarkensCorners(t *testing.T) {
	s := midGray(64, 36)
	compositor.Apply(s, VignetteLayer(64, 36, 1))

	for _, p := range []image.Point{{0, 0}, {63, 0}, {0, 35}, {63, 35}} {
		c := s.RGBAAt(p.X, p.Y)
		assert.LessOrEqual(t, int(c.R), 12, "corner %v", p)
		assert.LessOrEqual(t, int(c.G), 12, "corner %v", p)
	}
	// The centre stays untouched.
	assert.Equal(t, uint8(180), s.RGBAAt(32, 18).R)
}

func TestTrackingSweepWraps(t *testing.T) {
	const h = 100
	assert.Equal(t, -20.0, TrackingY(0, h))
	assert.Equal(t, -5.0, TrackingY(10, h))
	assert.Equal(t, TrackingY(0, h), TrackingY(280, h))

	prev := TrackingY(0, h)
	for f := uint64(1); f < 90; f++ {
		y := TrackingY(f, h)
		assert.Greater(t, y, prev)
		prev = y
	}
}

func TestTrackingLineBrightensBand(t *testing.T) {
	s := midGray(32, 60)
	compositor.Apply(s, TrackingLine(32, 60, 40, 1))

	// Frame 40 puts the band centre at row 40.
	assert.Equal(t, uint8(0xff), s.RGBAAt(5, 40).B)
	assert.Equal(t, uint8(120), s.RGBAAt(5, 20).B)
}
