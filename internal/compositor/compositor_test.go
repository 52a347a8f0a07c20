package compositor

import (
	"image"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randomSurface(w, h int, seed int64) *image.RGBA {
	rng := rand.New(rand.NewSource(seed))
	s := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(s.Pix); i += 4 {
		s.Pix[i] = uint8(rng.Intn(256))
		s.Pix[i+1] = uint8(rng.Intn(256))
		s.Pix[i+2] = uint8(rng.Intn(256))
		s.Pix[i+3] = 0xff
	}
	return s
}

func clone(s *image.RGBA) *image.RGBA {
	c := image.NewRGBA(s.Bounds())
	copy(c.Pix, s.Pix)
	return c
}

func requirePremultiplied(t *testing.T, s *image.RGBA) {
	t.Helper()
	for i := 0; i < len(s.Pix); i += 4 {
		a := s.Pix[i+3]
		if s.Pix[i] > a || s.Pix[i+1] > a || s.Pix[i+2] > a {
			t.Fatalf("pixel %d exceeds alpha: %v", i/4, s.Pix[i:i+4])
		}
	}
}

func TestShiftChannelsZeroOffsetIsNoop(t *testing.T) {
	s := randomSurface(17, 5, 1)
	want := clone(s)

	ShiftChannels(s, 0)
	assert.Equal(t, want.Pix, s.Pix)
}

func TestShiftChannelsOffset(t *testing.T) {
	const w, h = 23, 4
	for _, k := range []int{1, 3, 22, 40} {
		in := randomSurface(w, h, int64(k))
		out := clone(in)
		ShiftChannels(out, k)

		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				o := out.RGBAAt(x, y)
				assert.Equal(t, in.RGBAAt(min(x+k, w-1), y).R, o.R, "red k=%d x=%d", k, x)
				assert.Equal(t, in.RGBAAt(max(x-k, 0), y).B, o.B, "blue k=%d x=%d", k, x)
				assert.Equal(t, in.RGBAAt(x, y).G, o.G)
				assert.Equal(t, in.RGBAAt(x, y).A, o.A)
			}
		}
	}
}

func TestBlendIdentities(t *testing.T) {
	base := randomSurface(8, 8, 7)

	tests := []struct {
		name  string
		layer Layer
	}{
		{"multiply by white", Layer{Mode: Multiply, Opacity: 1, Source: Solid(White)}},
		{"screen with black", Layer{Mode: Screen, Opacity: 1, Source: Solid(Black)}},
		{"zero opacity", Layer{Mode: Normal, Opacity: 0, Source: Solid(White)}},
		{"transparent source", Layer{Mode: Normal, Opacity: 1, Source: Solid(Transparent)}},
		{"destination-in opaque", Layer{Mode: DestinationIn, Opacity: 1, Source: Solid(White)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := clone(base)
			Apply(s, tt.layer)
			for i := range s.Pix {
				assert.InDelta(t, int(base.Pix[i]), int(s.Pix[i]), 1)
			}
		})
	}
}

func TestBlendModes(t *testing.T) {
	px := func(mode BlendMode, dst, src Color, opacity float64) Color {
		s := image.NewRGBA(image.Rect(0, 0, 1, 1))
		Apply(s, Layer{Mode: Normal, Opacity: 1, Source: Solid(dst)})
		Apply(s, Layer{Mode: mode, Opacity: opacity, Source: Solid(src)})
		return Texture{s}.ColorAt(0, 0)
	}

	gray := RGB(128, 128, 128)
	red := RGB(255, 0, 0)

	c := px(Multiply, gray, gray, 1)
	assert.InDelta(t, 0.25, c.R, 0.01)

	c = px(Screen, gray, gray, 1)
	assert.InDelta(t, 0.75, c.R, 0.01)

	c = px(Overlay, RGB(64, 64, 64), White, 1)
	assert.InDelta(t, 2*64.0/255, c.R, 0.01)

	c = px(Normal, Black, White, 0.5)
	assert.InDelta(t, 0.5, c.G, 0.01)

	// Saturation from a gray source removes chroma but keeps luminance.
	c = px(Saturation, red, gray, 1)
	assert.InDelta(t, c.R, c.G, 0.01)
	assert.InDelta(t, c.G, c.B, 0.01)
	assert.InDelta(t, 0.3, c.R, 0.01)

	// Partial saturation blend keeps red dominant.
	c = px(Saturation, red, gray, 0.2)
	assert.Greater(t, c.R, c.G)
}

func TestDestinationInClearsOutsideMask(t *testing.T) {
	s := randomSurface(20, 20, 3)
	Apply(s, Layer{Mode: DestinationIn, Opacity: 1, Source: RoundedRect{0, 0, 20, 20, 6, White}})

	assert.Equal(t, uint8(0), s.RGBAAt(0, 0).A)
	assert.Equal(t, uint8(0), s.RGBAAt(0, 0).R)
	assert.Equal(t, uint8(0xff), s.RGBAAt(10, 10).A)
	requirePremultiplied(t, s)
}

func TestApplyClampsForAllModes(t *testing.T) {
	modes := []BlendMode{Normal, Multiply, Screen, Overlay, Saturation, DestinationIn}
	sources := []Source{
		Solid(MustHex("#1a0a3e")),
		Texture{randomSurface(16, 16, 9)},
		RadialGradient{CX: 8, CY: 8, R0: 2, R1: 11, Stops: Stops{{0, White}, {0.5, White}, {1, Black}}},
		LinearGradient{0, 4, 0, 12, Stops{{0, Transparent}, {0.5, White.WithAlpha(0.8)}, {1, Transparent}}},
	}
	for _, m := range modes {
		for _, src := range sources {
			for _, op := range []float64{-1, 0, 0.3, 1, 2} {
				s := randomSurface(16, 16, 11)
				assert.NotPanics(t, func() { Apply(s, Layer{Mode: m, Opacity: op, Source: src}) })
				requirePremultiplied(t, s)
			}
		}
	}
}

func TestLayerRectIsClipped(t *testing.T) {
	s := NewSurface(10, 10)
	Apply(s, Layer{Mode: Normal, Opacity: 1, Source: Solid(White), Rect: image.Rect(-5, -5, 3, 3)})

	assert.Equal(t, uint8(0xff), s.RGBAAt(2, 2).R)
	assert.Equal(t, uint8(0), s.RGBAAt(3, 3).R)
}

func TestShapes(t *testing.T) {
	s := NewSurface(40, 40)
	Fill(s, Disc{CX: 20, CY: 20, R: 5, Color: White}, 1)
	assert.Equal(t, uint8(0xff), s.RGBAAt(20, 20).R)
	assert.Equal(t, uint8(0), s.RGBAAt(30, 30).R)

	s = NewSurface(40, 40)
	Fill(s, Segment{X0: 10.5, Y0: 0, X1: 10.5, Y1: 40, Width: 1, Color: White}, 1)
	assert.Equal(t, uint8(0xff), s.RGBAAt(10, 20).R)
	assert.Equal(t, uint8(0), s.RGBAAt(12, 20).R)

	s = NewSurface(40, 40)
	StrokeRect(s, 10, 10, 20, 10, 2, White, 1)
	assert.Equal(t, uint8(0xff), s.RGBAAt(15, 10).R)
	assert.Equal(t, uint8(0), s.RGBAAt(15, 15).R)
	requirePremultiplied(t, s)
}

func TestRegionReadWriteClamps(t *testing.T) {
	s := randomSurface(10, 10, 5)

	_, ok := ReadRegion(s, image.Rect(20, 20, 30, 30))
	assert.False(t, ok)

	strip, ok := ReadRegion(s, image.Rect(-4, 2, 14, 4))
	require.True(t, ok)
	assert.Equal(t, image.Rect(0, 2, 10, 4), strip.Bounds())

	orig := clone(s)
	WriteRegion(s, strip, 3, 0)
	assert.Equal(t, orig.RGBAAt(0, 2), s.RGBAAt(3, 2))
	assert.Equal(t, orig.RGBAAt(0, 0), s.RGBAAt(0, 0))

	assert.NotPanics(t, func() { WriteRegion(s, strip, 100, 100) })
}

func TestParseHex(t *testing.T) {
	c, err := ParseHex("#ffaa00")
	require.NoError(t, err)
	assert.Equal(t, RGB(255, 170, 0), c)

	c, err = ParseHex("#fff")
	require.NoError(t, err)
	assert.Equal(t, White, c)

	_, err = ParseHex("#zzzzzz")
	assert.Error(t, err)
}
