// Package overlay draws the title and timestamp text layers and publishes
// their on-screen bounding boxes for hit-testing.
package overlay

import (
	"image"
	"math"

	"github.com/kikiluvv/retroclip/internal/compositor"
	"github.com/kikiluvv/retroclip/internal/state"
	"github.com/kikiluvv/retroclip/internal/typeface"
)

// DesignWidth is the frame width at which configured font sizes apply as is.
const DesignWidth = 1920

var plateColor = compositor.Color{A: 0.55}

// Box is a rectangle in frame pixels.
type Box struct {
	X, Y, W, H float64
}

// Contains reports whether p lies inside b, edges included.
func (b Box) Contains(p state.Point) bool {
	return p.X >= b.X && p.X <= b.X+b.W && p.Y >= b.Y && p.Y <= b.Y+b.H
}

// layerSpec carries the per-layer constants.
type layerSpec struct {
	minFont    float64
	padding    float64
	radius     float64
	bold       bool
	shadowBlur float64
}

var (
	titleSpec     = layerSpec{minFont: 10, padding: 0.35, radius: 0.5, bold: true, shadowBlur: 4}
	timestampSpec = layerSpec{minFont: 8, padding: 0.3, radius: 0.4, bold: false, shadowBlur: 3}
)

// Placement is the computed geometry of one visible text layer.
type Placement struct {
	Text    string
	Style   typeface.Style
	Anchor  state.Point
	Box     Box
	Padding float64
	Color   compositor.Color
	Plate   bool
	spec    layerSpec
}

// Layout holds the placements for one frame. A nil entry means the layer is
// hidden.
type Layout struct {
	Title     *Placement
	Timestamp *Placement
}

// Renderer draws overlays and remembers the boxes of the last frame.
type Renderer struct {
	fonts *typeface.Cache
	last  Layout
}

// NewRenderer returns a renderer with its own face cache.
func NewRenderer() *Renderer {
	return &Renderer{fonts: typeface.NewCache()}
}

// Fonts exposes the face cache so other painters on the same loop can share it.
func (r *Renderer) Fonts() *typeface.Cache {
	return r.fonts
}

// Layout computes the placements for a w x h frame without drawing.
func (r *Renderer) Layout(w, h int, e *state.Editor) (Layout, error) {
	var out Layout

	if e.Title.Text != "" {
		family := typeface.Sans
		if e.Filter.Tape() {
			family = typeface.Mono
		}
		p, err := r.place(w, h, e.Title, e.Title.Text, family, titleSpec)
		if err != nil {
			return Layout{}, err
		}
		out.Title = p
	}

	if e.Timestamp.Text != "" {
		shown := FormatTimestamp(e.Timestamp.Text, e.TimestampFormat)
		p, err := r.place(w, h, e.Timestamp, shown, typeface.Mono, timestampSpec)
		if err != nil {
			return Layout{}, err
		}
		out.Timestamp = p
	}

	return out, nil
}

func (r *Renderer) place(w, h int, l state.TextLayer, text string, family typeface.Family, spec layerSpec) (*Placement, error) {
	size := math.Max(spec.minFont, math.Round(float64(l.Size)*float64(w)/DesignWidth))
	style := typeface.Style{Family: family, Bold: spec.bold, Size: size}

	tw, err := r.fonts.Measure(style, text)
	if err != nil {
		return nil, err
	}

	anchor := state.Point{X: l.Pos.X * float64(w), Y: l.Pos.Y * float64(h)}
	pad := size * spec.padding
	col, err := compositor.ParseHex(l.Color)
	if err != nil {
		col = compositor.White
	}

	return &Placement{
		Text:   text,
		Style:  style,
		Anchor: anchor,
		Box: Box{
			X: anchor.X - tw/2 - pad,
			Y: anchor.Y - size/2 - pad,
			W: tw + pad*2,
			H: size + pad*2,
		},
		Padding: pad,
		Color:   col,
		Plate:   l.Background,
		spec:    spec,
	}, nil
}

// Render draws both layers onto dst and publishes their boxes. On error the
// published boxes are cleared.
func (r *Renderer) Render(dst *image.RGBA, e *state.Editor) error {
	b := dst.Bounds()
	layout, err := r.Layout(b.Dx(), b.Dy(), e)
	if err != nil {
		r.last = Layout{}
		return err
	}
	r.last = layout

	for _, p := range []*Placement{layout.Title, layout.Timestamp} {
		if p == nil {
			continue
		}
		if err := r.draw(dst, p); err != nil {
			return err
		}
	}
	return nil
}

func (r *Renderer) draw(dst *image.RGBA, p *Placement) error {
	if p.Plate {
		compositor.Fill(dst, compositor.RoundedRect{
			X: p.Box.X, Y: p.Box.Y, W: p.Box.W, H: p.Box.H,
			R:     p.Padding * p.spec.radius,
			Color: plateColor,
		}, 1)
	}

	return r.fonts.Draw(dst, typeface.Text{
		Content: p.Text,
		Style:   p.Style,
		X:       p.Anchor.X,
		Y:       p.Anchor.Y,
		Align:   typeface.AlignCenter,
		Color:   p.Color,
		Opacity: 1,
		Shadow: &typeface.Shadow{
			Color: compositor.Color{A: 0.8},
			Blur:  p.spec.shadowBlur,
			DX:    1,
			DY:    1,
		},
	})
}

// TitleBounds returns the title box of the last rendered frame.
func (r *Renderer) TitleBounds() (Box, bool) {
	if r.last.Title == nil {
		return Box{}, false
	}
	return r.last.Title.Box, true
}

// TimestampBounds returns the timestamp box of the last rendered frame.
func (r *Renderer) TimestampBounds() (Box, bool) {
	if r.last.Timestamp == nil {
		return Box{}, false
	}
	return r.last.Timestamp.Box, true
}
