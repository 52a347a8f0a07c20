package compositor

import (
	"image"

	"golang.org/x/image/draw"
)

// NewSurface allocates an opaque black surface.
func NewSurface(w, h int) *image.RGBA {
	s := image.NewRGBA(image.Rect(0, 0, w, h))
	Clear(s)
	return s
}

// Clear resets s to opaque black.
func Clear(s *image.RGBA) {
	for i := 0; i < len(s.Pix); i += 4 {
		s.Pix[i] = 0
		s.Pix[i+1] = 0
		s.Pix[i+2] = 0
		s.Pix[i+3] = 0xff
	}
}

// ShiftChannels displaces the red channel offset pixels to the left and the
// blue channel offset pixels to the right: each output pixel takes red from
// x+offset and blue from x-offset, clamped to the row edges. Green and alpha
// are untouched. An offset of zero leaves s as is.
func ShiftChannels(s *image.RGBA, offset int) {
	if offset < 0 {
		offset = -offset
	}
	b := s.Bounds()
	w := b.Dx()
	if offset == 0 || w == 0 {
		return
	}

	row := make([]uint8, w*4)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		line := s.Pix[s.PixOffset(b.Min.X, y) : s.PixOffset(b.Min.X, y)+w*4]
		copy(row, line)
		for x := 0; x < w; x++ {
			rx := min(x+offset, w-1)
			bx := max(x-offset, 0)
			a := line[x*4+3]
			line[x*4] = min(row[rx*4], a)
			line[x*4+2] = min(row[bx*4+2], a)
		}
	}
}

// ReadRegion copies the part of r that lies inside s. ok is false when
// nothing of r is readable.
func ReadRegion(s *image.RGBA, r image.Rectangle) (region *image.RGBA, ok bool) {
	r = r.Intersect(s.Bounds())
	if r.Empty() {
		return nil, false
	}
	region = image.NewRGBA(r)
	draw.Draw(region, r, s, r.Min, draw.Src)
	return region, true
}

// WriteRegion pastes region back onto s displaced by (dx, dy), dropping
// whatever falls outside s.
func WriteRegion(s *image.RGBA, region *image.RGBA, dx, dy int) {
	target := region.Bounds().Add(image.Pt(dx, dy)).Intersect(s.Bounds())
	if target.Empty() {
		return
	}
	draw.Draw(s, target, region, target.Min.Sub(image.Pt(dx, dy)), draw.Src)
}
