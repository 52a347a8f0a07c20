// Package texture generates the procedural layers used by the retro
// presets: scanline masks, noise and grain fields, the vignette gradient and
// the tracking-line sweep.
package texture

import (
	"image"
	"math"
	"math/rand"

	"golang.org/x/image/draw"

	"github.com/kikiluvv/retroclip/internal/compositor"
)

// NoiseScale is the downscale factor of the full-frame noise field.
const NoiseScale = 4

type scanKey struct {
	w, h, gap int
}

type field struct {
	small *image.Gray
	full  *image.Gray
}

// Generator owns the texture caches for one render surface. It is not safe
// for concurrent use; each render loop owns its own Generator.
type Generator struct {
	rng       *rand.Rand
	scanlines map[scanKey]*image.Gray
	fields    map[int]*field
}

// NewGenerator returns a generator drawing randomness from rng.
func NewGenerator(rng *rand.Rand) *Generator {
	return &Generator{
		rng:       rng,
		scanlines: make(map[scanKey]*image.Gray),
		fields:    make(map[int]*field),
	}
}

// Scanlines returns a white mask with black bands gap rows tall every 2*gap
// rows. Masks are cached per (w, h, gap).
func (g *Generator) Scanlines(w, h, gap int) *image.Gray {
	if gap < 1 {
		gap = 1
	}
	key := scanKey{w, h, gap}
	if m, ok := g.scanlines[key]; ok {
		return m
	}

	m := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		v := uint8(0xff)
		if y%(gap*2) < gap {
			v = 0
		}
		row := m.Pix[y*m.Stride : y*m.Stride+w]
		for x := range row {
			row[x] = v
		}
	}
	g.scanlines[key] = m
	return m
}

// Noise returns a fresh full-frame noise field (regenerated every call).
func (g *Generator) Noise(w, h int) *image.Gray {
	return g.field(w, h, NoiseScale)
}

// Grain returns a fresh grain field whose speckles are grainSize*2 pixels.
func (g *Generator) Grain(w, h, grainSize int) *image.Gray {
	if grainSize < 1 {
		grainSize = 1
	}
	return g.field(w, h, grainSize*2)
}

// field fills a reduced-resolution buffer with uniform gray noise and
// upscales it with nearest-neighbour sampling. Buffers are reused per scale
// until the frame size changes.
func (g *Generator) field(w, h, scale int) *image.Gray {
	nw := (w + scale - 1) / scale
	nh := (h + scale - 1) / scale

	f, ok := g.fields[scale]
	if !ok || f.full.Bounds().Dx() != w || f.full.Bounds().Dy() != h {
		f = &field{
			small: image.NewGray(image.Rect(0, 0, nw, nh)),
			full:  image.NewGray(image.Rect(0, 0, w, h)),
		}
		g.fields[scale] = f
	}

	for i := range f.small.Pix {
		f.small.Pix[i] = uint8(g.rng.Intn(256))
	}
	draw.NearestNeighbor.Scale(f.full, f.full.Bounds(), f.small, f.small.Bounds(), draw.Src, nil)
	return f.full
}

// Vignette returns the radial vignette for a w x h frame: white out to half
// way between 30% of the corner distance and the corner, fading to black at
// the corner.
func Vignette(w, h int) compositor.RadialGradient {
	cx, cy := float64(w)/2, float64(h)/2
	r := math.Hypot(cx, cy)
	return compositor.RadialGradient{
		CX: cx, CY: cy,
		R0: r * 0.3, R1: r,
		Stops: compositor.Stops{
			{Offset: 0, Color: compositor.White},
			{Offset: 0.5, Color: compositor.White},
			{Offset: 1, Color: compositor.Black},
		},
	}
}

// VignetteLayer multiplies the vignette in at the given strength.
func VignetteLayer(w, h int, strength float64) compositor.Layer {
	return compositor.Layer{Mode: compositor.Multiply, Opacity: strength, Source: Vignette(w, h)}
}

// TrackingY is the centre row of the tracking sweep for a frame counter. The
// line starts 20 rows above the frame and wraps after passing 20 rows below.
func TrackingY(frame uint64, h int) float64 {
	return math.Mod(float64(frame)*1.5, float64(h+40)) - 20
}

// TrackingLine returns the soft white band of the tracking sweep.
func TrackingLine(w, h int, frame uint64, opacity float64) compositor.Layer {
	y := TrackingY(frame, h)
	fade := compositor.White.WithAlpha(0)
	return compositor.Layer{
		Mode:    compositor.Normal,
		Opacity: opacity,
		Source: compositor.LinearGradient{
			X0: 0, Y0: y - 6, X1: 0, Y1: y + 6,
			Stops: compositor.Stops{
				{Offset: 0, Color: fade},
				{Offset: 0.3, Color: compositor.White},
				{Offset: 0.5, Color: compositor.White},
				{Offset: 0.7, Color: compositor.White},
				{Offset: 1, Color: fade},
			},
		},
		Rect: image.Rect(0, int(math.Floor(y-6)), w, int(math.Ceil(y+6))),
	}
}
