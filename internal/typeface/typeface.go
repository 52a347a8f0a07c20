// Package typeface measures and draws overlay text using the Go font family.
package typeface

import (
	"fmt"
	"image"
	"math"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/gomono"
	"golang.org/x/image/font/gofont/gomonobold"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"

	"github.com/kikiluvv/retroclip/internal/compositor"
)

// Family is a font family choice.
type Family int

const (
	Sans Family = iota
	Mono
)

func (f Family) String() string {
	if f == Mono {
		return "mono"
	}
	return "sans"
}

// Style selects a face.
type Style struct {
	Family Family
	Bold   bool
	// Size is the em size in pixels.
	Size float64
}

// Align is horizontal text alignment relative to the anchor.
type Align int

const (
	AlignLeft Align = iota
	AlignCenter
)

// Shadow is a blurred offset copy drawn beneath the text.
type Shadow struct {
	Color  compositor.Color
	Blur   float64
	DX, DY float64
}

// Text describes one draw call. Y is the vertical middle of the em box.
type Text struct {
	Content string
	Style   Style
	X, Y    float64
	Align   Align
	Color   compositor.Color
	Opacity float64
	Shadow  *Shadow
}

type fontKey struct {
	family Family
	bold   bool
}

var (
	parseOnce sync.Once
	parsed    map[fontKey]*opentype.Font
	parseErr  error
)

func loadFonts() (map[fontKey]*opentype.Font, error) {
	parseOnce.Do(func() {
		sources := map[fontKey][]byte{
			{Sans, false}: goregular.TTF,
			{Sans, true}:  gobold.TTF,
			{Mono, false}: gomono.TTF,
			{Mono, true}:  gomonobold.TTF,
		}
		parsed = make(map[fontKey]*opentype.Font, len(sources))
		for k, ttf := range sources {
			f, err := opentype.Parse(ttf)
			if err != nil {
				parseErr = fmt.Errorf("failed to parse %s font: %w", k.family, err)
				return
			}
			parsed[k] = f
		}
	})
	return parsed, parseErr
}

type faceKey struct {
	fontKey
	size float64
}

// Cache holds sized faces. Faces are stateful, so a Cache belongs to a
// single render loop.
type Cache struct {
	faces map[faceKey]font.Face
}

// NewCache returns an empty face cache.
func NewCache() *Cache {
	return &Cache{faces: make(map[faceKey]font.Face)}
}

// Face returns the face for st, creating it on first use.
func (c *Cache) Face(st Style) (font.Face, error) {
	key := faceKey{fontKey{st.Family, st.Bold}, st.Size}
	if f, ok := c.faces[key]; ok {
		return f, nil
	}

	fonts, err := loadFonts()
	if err != nil {
		return nil, err
	}
	face, err := opentype.NewFace(fonts[key.fontKey], &opentype.FaceOptions{
		Size:    st.Size,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create %s face at %.1fpx: %w", st.Family, st.Size, err)
	}
	c.faces[key] = face
	return face, nil
}

// Measure returns the advance width of s in pixels.
func (c *Cache) Measure(st Style, s string) (float64, error) {
	face, err := c.Face(st)
	if err != nil {
		return 0, err
	}
	return fromFixed(font.MeasureString(face, s)), nil
}

// Draw renders t onto dst.
func (c *Cache) Draw(dst *image.RGBA, t Text) error {
	if t.Content == "" || t.Opacity <= 0 {
		return nil
	}
	face, err := c.Face(t.Style)
	if err != nil {
		return err
	}

	width := fromFixed(font.MeasureString(face, t.Content))
	m := face.Metrics()
	ascent, descent := fromFixed(m.Ascent), fromFixed(m.Descent)

	left := t.X
	if t.Align == AlignCenter {
		left -= width / 2
	}
	baseline := t.Y + (ascent-descent)/2

	margin := 2
	if t.Shadow != nil {
		margin += int(math.Ceil(t.Shadow.Blur))
	}
	originX := int(math.Floor(left)) - margin
	originY := int(math.Floor(baseline-ascent)) - margin

	mask := image.NewAlpha(image.Rect(0, 0,
		int(math.Ceil(width))+2*margin+1,
		int(math.Ceil(ascent+descent))+2*margin+1))
	d := &font.Drawer{
		Dst:  mask,
		Src:  image.Opaque,
		Face: face,
		Dot: fixed.Point26_6{
			X: toFixed(left - float64(originX)),
			Y: toFixed(baseline - float64(originY)),
		},
	}
	d.DrawString(t.Content)

	if s := t.Shadow; s != nil {
		blurred := boxBlur(mask, int(math.Round(s.Blur/2)))
		shadowOrigin := image.Pt(originX+int(math.Round(s.DX)), originY+int(math.Round(s.DY)))
		fillMask(dst, blurred, shadowOrigin, s.Color, t.Opacity)
	}
	fillMask(dst, mask, image.Pt(originX, originY), t.Color, t.Opacity)
	return nil
}

func fillMask(dst *image.RGBA, a *image.Alpha, origin image.Point, c compositor.Color, opacity float64) {
	compositor.Fill(dst, compositor.Mask{Alpha: a, Origin: origin, Fill: c}, opacity)
}

// boxBlur applies a separable box blur of the given radius twice, which
// approximates the gaussian shadow of a canvas.
func boxBlur(src *image.Alpha, radius int) *image.Alpha {
	if radius <= 0 {
		return src
	}
	out := image.NewAlpha(src.Bounds())
	copy(out.Pix, src.Pix)
	tmp := make([]uint8, len(out.Pix))
	for pass := 0; pass < 2; pass++ {
		blurAxis(out.Pix, tmp, out.Rect.Dy(), out.Rect.Dx(), out.Stride, 1, radius)
		blurAxis(tmp, out.Pix, out.Rect.Dx(), out.Rect.Dy(), 1, out.Stride, radius)
	}
	return out
}

// blurAxis runs a moving average along lines of n samples. step is the
// distance between samples in a line and lineStride between lines.
func blurAxis(src, dst []uint8, lines, n, lineStride, step, radius int) {
	window := 2*radius + 1
	for l := 0; l < lines; l++ {
		base := l * lineStride
		sum := 0
		for i := -radius; i <= radius; i++ {
			if i >= 0 && i < n {
				sum += int(src[base+i*step])
			}
		}
		for i := 0; i < n; i++ {
			dst[base+i*step] = uint8(sum / window)
			if out := i - radius; out >= 0 {
				sum -= int(src[base+out*step])
			}
			if in := i + radius + 1; in < n {
				sum += int(src[base+in*step])
			}
		}
	}
}

func fromFixed(v fixed.Int26_6) float64 {
	return float64(v) / 64
}

func toFixed(v float64) fixed.Int26_6 {
	return fixed.Int26_6(math.Round(v * 64))
}
