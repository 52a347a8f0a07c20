package typeface

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kikiluvv/retroclip/internal/compositor"
)

func TestMeasureMonoIsProportionalToLength(t *testing.T) {
	c := NewCache()
	st := Style{Family: Mono, Size: 20}

	one, err := c.Measure(st, "A")
	require.NoError(t, err)
	ten, err := c.Measure(st, "AAAAAAAAAA")
	require.NoError(t, err)

	assert.Greater(t, one, 0.0)
	assert.InDelta(t, one*10, ten, 0.5)

	wide, err := c.Measure(Style{Family: Mono, Size: 40}, "A")
	require.NoError(t, err)
	assert.Greater(t, wide, one)
}

func TestFaceIsCached(t *testing.T) {
	c := NewCache()
	a, err := c.Face(Style{Family: Sans, Bold: true, Size: 24})
	require.NoError(t, err)
	b, err := c.Face(Style{Family: Sans, Bold: true, Size: 24})
	require.NoError(t, err)
	assert.Same(t, a, b)
}

func TestDrawCentersText(t *testing.T) {
	dst := compositor.NewSurface(200, 60)
	c := NewCache()

	err := c.Draw(dst, Text{
		Content: "HELLO",
		Style:   Style{Family: Sans, Bold: true, Size: 24},
		X:       100, Y: 30,
		Align:   AlignCenter,
		Color:   compositor.White,
		Opacity: 1,
		Shadow:  &Shadow{Color: compositor.Black.WithAlpha(0.8), Blur: 4, DX: 1, DY: 1},
	})
	require.NoError(t, err)

	var lit image.Rectangle
	for y := 0; y < 60; y++ {
		for x := 0; x < 200; x++ {
			if dst.RGBAAt(x, y).R > 128 {
				lit = lit.Union(image.Rect(x, y, x+1, y+1))
			}
		}
	}
	require.False(t, lit.Empty())
	centre := (lit.Min.X + lit.Max.X) / 2
	assert.InDelta(t, 100, centre, 4)
	middle := (lit.Min.Y + lit.Max.Y) / 2
	assert.InDelta(t, 30, middle, 5)
}

func TestDrawSkipsEmptyOrInvisible(t *testing.T) {
	dst := compositor.NewSurface(20, 20)
	want := append([]uint8(nil), dst.Pix...)
	c := NewCache()

	require.NoError(t, c.Draw(dst, Text{Content: "", Style: Style{Size: 10}, Opacity: 1, Color: compositor.White}))
	require.NoError(t, c.Draw(dst, Text{Content: "x", Style: Style{Size: 10}, Opacity: 0, Color: compositor.White}))
	assert.Equal(t, want, dst.Pix)
}

func TestBoxBlurSpreadsCoverage(t *testing.T) {
	a := image.NewAlpha(image.Rect(0, 0, 9, 9))
	a.Pix[4*a.Stride+4] = 0xff

	b := boxBlur(a, 1)
	assert.Less(t, b.Pix[4*b.Stride+4], uint8(0xff))
	assert.Greater(t, b.Pix[4*b.Stride+5], uint8(0))
	assert.Greater(t, b.Pix[5*b.Stride+4], uint8(0))
	assert.Equal(t, uint8(0xff), a.Pix[4*a.Stride+4], "source must not change")
}
