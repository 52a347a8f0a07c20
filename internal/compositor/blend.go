// Package compositor blends layers onto RGBA frame surfaces.
//
// Surfaces are *image.RGBA (alpha-premultiplied). Layers are applied in
// order, each with a blend mode, an opacity and a Source that supplies a
// straight-alpha color per pixel.
package compositor

import (
	"fmt"
	"image"
	"math"
)

// BlendMode selects how a layer combines with the accumulated frame.
type BlendMode int

const (
	Normal BlendMode = iota
	Multiply
	Screen
	Overlay
	Saturation
	// DestinationIn keeps the backdrop only where the layer is opaque.
	DestinationIn
)

func (m BlendMode) String() string {
	switch m {
	case Normal:
		return "normal"
	case Multiply:
		return "multiply"
	case Screen:
		return "screen"
	case Overlay:
		return "overlay"
	case Saturation:
		return "saturation"
	case DestinationIn:
		return "destination-in"
	}
	return fmt.Sprintf("BlendMode(%d)", int(m))
}

// Layer is one compositing operation.
type Layer struct {
	Mode    BlendMode
	Opacity float64
	Source  Source
	// Rect limits the operation; the zero value covers the whole surface.
	// DestinationIn ignores it, since uncovered pixels must be cleared too.
	Rect image.Rectangle
}

// Apply composites layers onto dst strictly in order.
func Apply(dst *image.RGBA, layers ...Layer) {
	for _, l := range layers {
		apply(dst, l)
	}
}

func apply(dst *image.RGBA, l Layer) {
	if l.Source == nil {
		return
	}
	opacity := Clamp01(l.Opacity)

	if l.Mode == DestinationIn {
		applyDestinationIn(dst, l.Source, opacity)
		return
	}
	if opacity == 0 {
		return
	}

	area := dst.Bounds()
	if !l.Rect.Empty() {
		area = area.Intersect(l.Rect)
	}
	if area.Empty() {
		return
	}

	solid, isSolid := l.Source.(Solid)
	for y := area.Min.Y; y < area.Max.Y; y++ {
		row := dst.Pix[dst.PixOffset(area.Min.X, y):]
		for x := area.Min.X; x < area.Max.X; x++ {
			var cs Color
			if isSolid {
				cs = Color(solid)
			} else {
				cs = l.Source.ColorAt(x, y)
			}
			as := cs.A * opacity
			if as <= 0 {
				row = row[4:]
				continue
			}
			blendPixel(row[:4:4], l.Mode, cs, as)
			row = row[4:]
		}
	}
}

// blendPixel mixes a source color with straight alpha as into the
// premultiplied pixel p using the separable/non-separable blend rules of
// the W3C compositing model with source-over composition.
func blendPixel(p []uint8, mode BlendMode, cs Color, as float64) {
	da := float64(p[3]) / 255
	dr := float64(p[0]) / 255
	dg := float64(p[1]) / 255
	db := float64(p[2]) / 255

	// Unpremultiplied backdrop.
	var br, bg, bb float64
	if da > 0 {
		br, bg, bb = dr/da, dg/da, db/da
	}

	var mr, mg, mb float64
	switch mode {
	case Multiply:
		mr, mg, mb = br*cs.R, bg*cs.G, bb*cs.B
	case Screen:
		mr, mg, mb = screen(br, cs.R), screen(bg, cs.G), screen(bb, cs.B)
	case Overlay:
		mr, mg, mb = overlay(br, cs.R), overlay(bg, cs.G), overlay(bb, cs.B)
	case Saturation:
		mr, mg, mb = setLum(setSat(br, bg, bb, sat(cs.R, cs.G, cs.B)), lum(br, bg, bb))
	default:
		mr, mg, mb = cs.R, cs.G, cs.B
	}

	// Where the backdrop is transparent the source shows unblended.
	mr = (1-da)*cs.R + da*mr
	mg = (1-da)*cs.G + da*mg
	mb = (1-da)*cs.B + da*mb

	p[0] = toByte(as*mr + (1-as)*dr)
	p[1] = toByte(as*mg + (1-as)*dg)
	p[2] = toByte(as*mb + (1-as)*db)
	p[3] = toByte(as + da*(1-as))
}

func applyDestinationIn(dst *image.RGBA, src Source, opacity float64) {
	b := dst.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := dst.Pix[dst.PixOffset(b.Min.X, y):]
		for x := b.Min.X; x < b.Max.X; x++ {
			k := src.ColorAt(x, y).A * opacity
			if k < 1 {
				row[0] = toByte(float64(row[0]) / 255 * k)
				row[1] = toByte(float64(row[1]) / 255 * k)
				row[2] = toByte(float64(row[2]) / 255 * k)
				row[3] = toByte(float64(row[3]) / 255 * k)
			}
			row = row[4:]
		}
	}
}

func screen(b, s float64) float64 {
	return b + s - b*s
}

func overlay(b, s float64) float64 {
	if b <= 0.5 {
		return 2 * s * b
	}
	return screen(s, 2*b-1)
}

func lum(r, g, b float64) float64 {
	return 0.3*r + 0.59*g + 0.11*b
}

func sat(r, g, b float64) float64 {
	return math.Max(r, math.Max(g, b)) - math.Min(r, math.Min(g, b))
}

type rgb struct{ r, g, b float64 }

func setSat(r, g, b, s float64) rgb {
	mx := math.Max(r, math.Max(g, b))
	mn := math.Min(r, math.Min(g, b))
	if mx <= mn {
		return rgb{}
	}
	scale := func(c float64) float64 { return (c - mn) * s / (mx - mn) }
	return rgb{scale(r), scale(g), scale(b)}
}

func setLum(c rgb, l float64) (float64, float64, float64) {
	d := l - lum(c.r, c.g, c.b)
	return clipColor(c.r+d, c.g+d, c.b+d)
}

func clipColor(r, g, b float64) (float64, float64, float64) {
	l := lum(r, g, b)
	n := math.Min(r, math.Min(g, b))
	x := math.Max(r, math.Max(g, b))
	if n < 0 {
		r = l + (r-l)*l/(l-n)
		g = l + (g-l)*l/(l-n)
		b = l + (b-l)*l/(l-n)
	}
	if x > 1 {
		r = l + (r-l)*(1-l)/(x-l)
		g = l + (g-l)*(1-l)/(x-l)
		b = l + (b-l)*(1-l)/(x-l)
	}
	return r, g, b
}
