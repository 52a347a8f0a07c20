package compositor

import (
	"image"
	"math"
	"sort"
)

// Source supplies a straight-alpha color for each surface pixel.
type Source interface {
	ColorAt(x, y int) Color
}

// Solid fills every pixel with one color.
type Solid Color

func (s Solid) ColorAt(int, int) Color { return Color(s) }

// Texture samples an image placed at the surface origin. Pixels outside the
// image are transparent.
type Texture struct {
	Img image.Image
}

func (t Texture) ColorAt(x, y int) Color {
	if !(image.Point{x, y}.In(t.Img.Bounds())) {
		return Transparent
	}
	switch img := t.Img.(type) {
	case *image.Gray:
		v := float64(img.Pix[img.PixOffset(x, y)]) / 255
		return Color{v, v, v, 1}
	case *image.RGBA:
		i := img.PixOffset(x, y)
		a := float64(img.Pix[i+3]) / 255
		if a == 0 {
			return Transparent
		}
		return Color{
			float64(img.Pix[i]) / 255 / a,
			float64(img.Pix[i+1]) / 255 / a,
			float64(img.Pix[i+2]) / 255 / a,
			a,
		}
	}
	r, g, b, a := t.Img.At(x, y).RGBA()
	if a == 0 {
		return Transparent
	}
	fa := float64(a)
	return Color{float64(r) / fa, float64(g) / fa, float64(b) / fa, fa / 0xffff}
}

// Mask paints Fill through the coverage of an alpha image positioned at Origin.
type Mask struct {
	Alpha  *image.Alpha
	Origin image.Point
	Fill   Color
}

func (m Mask) ColorAt(x, y int) Color {
	p := image.Point{x, y}.Sub(m.Origin)
	if !p.In(m.Alpha.Bounds()) {
		return Transparent
	}
	c := m.Fill
	c.A *= float64(m.Alpha.Pix[m.Alpha.PixOffset(p.X, p.Y)]) / 255
	return c
}

// Bounds is the area the mask can touch, in surface coordinates.
func (m Mask) Bounds() image.Rectangle {
	return m.Alpha.Bounds().Add(m.Origin)
}

// Stop is a gradient color stop at Offset in [0,1].
type Stop struct {
	Offset float64
	Color  Color
}

// Stops is an ordered gradient ramp.
type Stops []Stop

// At interpolates the ramp at t in premultiplied space.
func (s Stops) At(t float64) Color {
	if len(s) == 0 {
		return Transparent
	}
	if t <= s[0].Offset {
		return s[0].Color
	}
	last := s[len(s)-1]
	if t >= last.Offset {
		return last.Color
	}
	i := sort.Search(len(s), func(i int) bool { return s[i].Offset >= t })
	a, b := s[i-1], s[i]
	span := b.Offset - a.Offset
	if span <= 0 {
		return b.Color
	}
	k := (t - a.Offset) / span

	alpha := a.Color.A + (b.Color.A-a.Color.A)*k
	if alpha <= 0 {
		return Transparent
	}
	mix := func(ca, cb float64) float64 {
		return (ca*a.Color.A + (cb*b.Color.A-ca*a.Color.A)*k) / alpha
	}
	return Color{mix(a.Color.R, b.Color.R), mix(a.Color.G, b.Color.G), mix(a.Color.B, b.Color.B), alpha}
}

// RadialGradient is a concentric gradient from radius R0 to R1 around (CX, CY).
// Points inside R0 take the first stop, points beyond R1 the last.
type RadialGradient struct {
	CX, CY float64
	R0, R1 float64
	Stops  Stops
}

func (g RadialGradient) ColorAt(x, y int) Color {
	d := math.Hypot(float64(x)+0.5-g.CX, float64(y)+0.5-g.CY)
	span := g.R1 - g.R0
	if span <= 0 {
		if d < g.R1 {
			return g.Stops.At(0)
		}
		return g.Stops.At(1)
	}
	return g.Stops.At((d - g.R0) / span)
}

// LinearGradient varies along the segment (X0,Y0)-(X1,Y1).
type LinearGradient struct {
	X0, Y0, X1, Y1 float64
	Stops          Stops
}

func (g LinearGradient) ColorAt(x, y int) Color {
	dx, dy := g.X1-g.X0, g.Y1-g.Y0
	l2 := dx*dx + dy*dy
	if l2 == 0 {
		return g.Stops.At(0)
	}
	t := ((float64(x)+0.5-g.X0)*dx + (float64(y)+0.5-g.Y0)*dy) / l2
	return g.Stops.At(t)
}
