package compositor

import (
	"image"
	"math"
)

// Shape is a Source with anti-aliased coverage confined to Bounds.
type Shape interface {
	Source
	Bounds() image.Rectangle
}

// Fill paints shape onto dst with normal blending.
func Fill(dst *image.RGBA, shape Shape, opacity float64) {
	apply(dst, Layer{Mode: Normal, Opacity: opacity, Source: shape, Rect: shape.Bounds()})
}

// Rect is an axis-aligned filled rectangle.
type Rect struct {
	X, Y, W, H float64
	Color      Color
}

func (r Rect) ColorAt(x, y int) Color {
	cov := span(float64(x), r.X, r.X+r.W) * span(float64(y), r.Y, r.Y+r.H)
	c := r.Color
	c.A *= cov
	return c
}

func (r Rect) Bounds() image.Rectangle {
	return floatRect(r.X, r.Y, r.X+r.W, r.Y+r.H)
}

// span returns how much of the unit pixel [p, p+1) lies within [lo, hi).
func span(p, lo, hi float64) float64 {
	return Clamp01(math.Min(p+1, hi) - math.Max(p, lo))
}

// RoundedRect is a filled rectangle with circular corners of radius R.
type RoundedRect struct {
	X, Y, W, H, R float64
	Color         Color
}

func (r RoundedRect) ColorAt(x, y int) Color {
	rad := math.Min(r.R, math.Min(r.W, r.H)/2)
	if rad < 0 {
		rad = 0
	}
	// Signed distance to a rounded box, sampled at the pixel centre.
	cx, cy := r.X+r.W/2, r.Y+r.H/2
	px := math.Abs(float64(x)+0.5-cx) - (r.W/2 - rad)
	py := math.Abs(float64(y)+0.5-cy) - (r.H/2 - rad)
	outside := math.Hypot(math.Max(px, 0), math.Max(py, 0))
	inside := math.Min(math.Max(px, py), 0)
	d := outside + inside - rad

	c := r.Color
	c.A *= Clamp01(0.5 - d)
	return c
}

func (r RoundedRect) Bounds() image.Rectangle {
	return floatRect(r.X, r.Y, r.X+r.W, r.Y+r.H)
}

// Disc is a filled circle.
type Disc struct {
	CX, CY, R float64
	Color     Color
}

func (d Disc) ColorAt(x, y int) Color {
	dist := math.Hypot(float64(x)+0.5-d.CX, float64(y)+0.5-d.CY)
	c := d.Color
	c.A *= Clamp01(d.R + 0.5 - dist)
	return c
}

func (d Disc) Bounds() image.Rectangle {
	return floatRect(d.CX-d.R-1, d.CY-d.R-1, d.CX+d.R+1, d.CY+d.R+1)
}

// Segment is a straight stroke of the given width with butt ends.
type Segment struct {
	X0, Y0, X1, Y1 float64
	Width          float64
	Color          Color
}

func (s Segment) ColorAt(x, y int) Color {
	px, py := float64(x)+0.5, float64(y)+0.5
	dx, dy := s.X1-s.X0, s.Y1-s.Y0
	l2 := dx*dx + dy*dy
	if l2 == 0 {
		return Transparent
	}
	t := ((px-s.X0)*dx + (py-s.Y0)*dy) / l2
	if t < 0 || t > 1 {
		return Transparent
	}
	qx, qy := s.X0+t*dx, s.Y0+t*dy
	dist := math.Hypot(px-qx, py-qy)

	c := s.Color
	c.A *= Clamp01(s.Width/2 + 0.5 - dist)
	return c
}

func (s Segment) Bounds() image.Rectangle {
	pad := s.Width/2 + 1
	return floatRect(
		math.Min(s.X0, s.X1)-pad, math.Min(s.Y0, s.Y1)-pad,
		math.Max(s.X0, s.X1)+pad, math.Max(s.Y0, s.Y1)+pad,
	)
}

// StrokeRect outlines a rectangle with a stroke centred on its edges.
func StrokeRect(dst *image.RGBA, x, y, w, h, lineWidth float64, c Color, opacity float64) {
	half := lineWidth / 2
	edges := []Rect{
		{x - half, y - half, w + lineWidth, lineWidth, c},
		{x - half, y + h - half, w + lineWidth, lineWidth, c},
		{x - half, y + half, lineWidth, h - lineWidth, c},
		{x + w - half, y + half, lineWidth, h - lineWidth, c},
	}
	for _, e := range edges {
		if e.W > 0 && e.H > 0 {
			Fill(dst, e, opacity)
		}
	}
}

func floatRect(x0, y0, x1, y1 float64) image.Rectangle {
	return image.Rect(
		int(math.Floor(x0)), int(math.Floor(y0)),
		int(math.Ceil(x1)), int(math.Ceil(y1)),
	)
}
