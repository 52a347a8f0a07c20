package effects

import (
	"image"
	"math"

	"github.com/kikiluvv/retroclip/internal/compositor"
	"github.com/kikiluvv/retroclip/internal/texture"
	"github.com/kikiluvv/retroclip/internal/typeface"
	"github.com/kikiluvv/retroclip/pkg/util"
)

// TimecodeFPS is the frame rate the camcorder timecode counts in.
const TimecodeFPS = 30

func tint(name string, mode compositor.BlendMode, hex string, weight float64) Step {
	c := compositor.MustHex(hex)
	return Step{Name: name, Weight: weight, Apply: func(_ *Engine, f *Frame, k float64) error {
		compositor.Apply(f.Surface, compositor.Layer{Mode: mode, Opacity: k, Source: compositor.Solid(c)})
		return nil
	}}
}

func chromaShift(weight float64) Step {
	return Step{Name: "chroma-shift", Weight: weight, Apply: func(_ *Engine, f *Frame, k float64) error {
		if k <= 0 {
			return nil
		}
		w, _ := f.size()
		compositor.ShiftChannels(f.Surface, max(1, int(math.Round(float64(w)*k))))
		return nil
	}}
}

func scanlines(gap int, weight float64) Step {
	return Step{Name: "scanlines", Weight: weight, Apply: func(e *Engine, f *Frame, k float64) error {
		if k <= 0 {
			return nil
		}
		w, h := f.size()
		compositor.Apply(f.Surface, compositor.Layer{
			Mode: compositor.Multiply, Opacity: k,
			Source: compositor.Texture{Img: e.tex.Scanlines(w, h, gap)},
		})
		return nil
	}}
}

func noise(weight float64) Step {
	return Step{Name: "noise", Weight: weight, Apply: func(e *Engine, f *Frame, k float64) error {
		if k <= 0 {
			return nil
		}
		w, h := f.size()
		compositor.Apply(f.Surface, compositor.Layer{
			Mode: compositor.Overlay, Opacity: k,
			Source: compositor.Texture{Img: e.tex.Noise(w, h)},
		})
		return nil
	}}
}

func grain(size int, weight float64) Step {
	return Step{Name: "grain", Weight: weight, Apply: func(e *Engine, f *Frame, k float64) error {
		if k <= 0 {
			return nil
		}
		w, h := f.size()
		compositor.Apply(f.Surface, compositor.Layer{
			Mode: compositor.Overlay, Opacity: k,
			Source: compositor.Texture{Img: e.tex.Grain(w, h, size)},
		})
		return nil
	}}
}

func vignette(weight float64) Step {
	return Step{Name: "vignette", Weight: weight, Apply: func(_ *Engine, f *Frame, k float64) error {
		w, h := f.size()
		compositor.Apply(f.Surface, texture.VignetteLayer(w, h, k))
		return nil
	}}
}

// trackingGlitch re-pastes a random horizontal strip shifted sideways, with
// probability equal to the step strength.
func trackingGlitch(weight float64) Step {
	return Step{Name: "tracking-glitch", Weight: weight, Apply: func(e *Engine, f *Frame, k float64) error {
		if e.rng.Float64() >= k {
			return nil
		}
		w, h := f.size()
		gy := int(math.Floor(e.rng.Float64() * float64(h)))
		gh := int(math.Ceil(4 + e.rng.Float64()*20))
		shift := (e.rng.Float64() - 0.5) * float64(w) * 0.1

		strip, ok := compositor.ReadRegion(f.Surface, image.Rect(0, gy, w, gy+min(gh, h-gy)))
		if !ok {
			return nil
		}
		compositor.WriteRegion(f.Surface, strip, int(math.Round(shift)), 0)
		return nil
	}}
}

func trackingLine(weight float64) Step {
	return Step{Name: "tracking-line", Weight: weight, Apply: func(_ *Engine, f *Frame, k float64) error {
		w, h := f.size()
		compositor.Apply(f.Surface, texture.TrackingLine(w, h, f.Count, k))
		return nil
	}}
}

func bottomBar(weight float64) Step {
	return Step{Name: "bottom-bar", Weight: weight, Apply: func(_ *Engine, f *Frame, k float64) error {
		w, h := f.size()
		barH := float64(h) * 0.02
		compositor.Fill(f.Surface, compositor.Rect{X: 0, Y: float64(h) - barH, W: float64(w), H: barH, Color: compositor.Black}, k)
		return nil
	}}
}

// lightLeak flares an orange glow in the top right during the first 30
// frames of every 120-frame cycle, fading out linearly.
func lightLeak(weight float64) Step {
	return Step{Name: "light-leak", Weight: weight, Apply: func(_ *Engine, f *Frame, k float64) error {
		phase := f.Count % 120
		if phase >= 30 {
			return nil
		}
		w, h := f.size()
		compositor.Apply(f.Surface, compositor.Layer{
			Mode:    compositor.Screen,
			Opacity: k * (1 - float64(phase)/30),
			Source: compositor.RadialGradient{
				CX: float64(w) * 0.8, CY: float64(h) * 0.2,
				R0: 0, R1: float64(w) * 0.5,
				Stops: compositor.Stops{
					{Offset: 0, Color: compositor.MustHex("#ff8800")},
					{Offset: 0.5, Color: compositor.MustHex("#ff440044")},
					{Offset: 1, Color: compositor.Transparent},
				},
			},
		})
		return nil
	}}
}

var scratchColor = compositor.White.WithAlpha(0.3)

// scratches draws up to two faint near-vertical lines. chance gates the
// whole step per frame.
func scratches(chance, weight float64) Step {
	return Step{Name: "scratches", Weight: weight, Apply: func(e *Engine, f *Frame, k float64) error {
		if chance < 1 && e.rng.Float64() >= chance {
			return nil
		}
		w, h := f.size()
		for i := 0; i < 2; i++ {
			if e.rng.Float64() <= 0.5 {
				continue
			}
			x := e.rng.Float64() * float64(w)
			top := x + (e.rng.Float64()-0.5)*3
			bottom := x + (e.rng.Float64()-0.5)*10
			compositor.Fill(f.Surface, compositor.Segment{
				X0: top, Y0: 0, X1: bottom, Y1: float64(h),
				Width: 1, Color: scratchColor,
			}, k)
		}
		return nil
	}}
}

var dustColor = compositor.RGB(255, 255, 240).WithAlpha(0.6)

func dust(weight float64) Step {
	return Step{Name: "dust", Weight: weight, Apply: func(e *Engine, f *Frame, k float64) error {
		w, h := f.size()
		count := int(math.Floor(k))
		for i := 0; i < count; i++ {
			if e.rng.Float64() >= 0.4 {
				continue
			}
			x := e.rng.Float64() * float64(w)
			y := e.rng.Float64() * float64(h)
			r := 0.5 + e.rng.Float64()*1.5
			compositor.Fill(f.Surface, compositor.Disc{CX: x, CY: y, R: r, Color: dustColor}, 1)
		}
		return nil
	}}
}

// flicker nudges the whole frame brighter (towards bright) or darker by a
// random amount up to half the strength.
func flicker(bright compositor.Color, weight float64) Step {
	return Step{Name: "flicker", Weight: weight, Apply: func(e *Engine, f *Frame, k float64) error {
		amount := (e.rng.Float64() - 0.5) * k
		c := compositor.Black
		if amount > 0 {
			c = bright
		}
		compositor.Apply(f.Surface, compositor.Layer{Mode: compositor.Normal, Opacity: math.Abs(amount), Source: compositor.Solid(c)})
		return nil
	}}
}

// roundedMask clears everything outside a rounded frame. It does not scale
// with intensity.
func roundedMask(radiusFrac float64) Step {
	return Step{Name: "rounded-mask", Weight: 1, Apply: func(_ *Engine, f *Frame, _ float64) error {
		w, h := f.size()
		compositor.Apply(f.Surface, compositor.Layer{
			Mode:    compositor.DestinationIn,
			Opacity: 1,
			Source: compositor.RoundedRect{
				W: float64(w), H: float64(h), R: float64(w) * radiusFrac,
				Color: compositor.White,
			},
		})
		return nil
	}}
}

func border(weight float64) Step {
	return Step{Name: "border", Weight: weight, Apply: func(_ *Engine, f *Frame, k float64) error {
		if k <= 0 {
			return nil
		}
		w, h := f.size()
		compositor.StrokeRect(f.Surface, 0, 0, float64(w), float64(h), float64(w)*0.01, compositor.Black, k)
		return nil
	}}
}

var recRed = compositor.MustHex("#ff0000")

// recIndicator draws the blinking REC dot, its label and a running
// HH:MM:SS:FF timecode in the top left.
func recIndicator(weight float64) Step {
	return Step{Name: "rec-indicator", Weight: weight, Apply: func(e *Engine, f *Frame, k float64) error {
		if k <= 0 {
			return nil
		}
		w, h := f.size()
		size := math.Round(float64(h) * 0.025)
		if size < 1 {
			return nil
		}
		x, y := float64(w)*0.05, float64(h)*0.06

		if (f.Count/30)%2 == 0 {
			compositor.Fill(f.Surface, compositor.Disc{CX: x, CY: y, R: size * 0.4, Color: recRed}, k)
		}

		if err := e.fonts.Draw(f.Surface, typeface.Text{
			Content: "REC",
			Style:   typeface.Style{Family: typeface.Mono, Bold: true, Size: size},
			X:       x + size*0.7, Y: y,
			Color:   compositor.White,
			Opacity: k,
		}); err != nil {
			return err
		}

		return e.fonts.Draw(f.Surface, typeface.Text{
			Content: util.FormatTimecode(f.MediaTime, TimecodeFPS),
			Style:   typeface.Style{Family: typeface.Mono, Size: size * 0.8},
			X:       x, Y: y + size*1.5,
			Color:   compositor.White,
			Opacity: k,
		})
	}}
}

// focusBrackets draws four corner brackets around the frame centre.
func focusBrackets(weight float64) Step {
	return Step{Name: "focus-brackets", Weight: weight, Apply: func(_ *Engine, f *Frame, k float64) error {
		if k <= 0 {
			return nil
		}
		w, h := f.size()
		cx, cy := float64(w)/2, float64(h)/2
		bw, bh := float64(w)*0.15, float64(h)*0.15
		length := math.Min(bw, bh) * 0.3
		lw := math.Max(1, float64(w)*0.002)

		for _, corner := range []struct{ x, y, dx, dy float64 }{
			{cx - bw, cy - bh, 1, 1},
			{cx + bw, cy - bh, -1, 1},
			{cx - bw, cy + bh, 1, -1},
			{cx + bw, cy + bh, -1, -1},
		} {
			for _, leg := range bracketLegs(corner.x, corner.y, corner.dx, corner.dy, length, lw) {
				compositor.Fill(f.Surface, leg, k)
			}
		}
		return nil
	}}
}

// bracketLegs returns the horizontal and vertical legs of a bracket with its
// corner at (x, y), pointing along (dx, dy). The legs do not overlap.
func bracketLegs(x, y, dx, dy, length, lw float64) [2]compositor.Rect {
	half := lw / 2
	hx0, hx1 := x-dx*half, x+dx*length
	vy0, vy1 := y+dy*half, y+dy*length
	return [2]compositor.Rect{
		{X: math.Min(hx0, hx1), Y: y - half, W: math.Abs(hx1 - hx0), H: lw, Color: compositor.White},
		{X: x - half, Y: math.Min(vy0, vy1), W: lw, H: math.Abs(vy1 - vy0), Color: compositor.White},
	}
}

// BatteryLevel is the fixed charge shown by the camcorder battery gauge.
const BatteryLevel = 0.7

func battery(weight float64) Step {
	return Step{Name: "battery", Weight: weight, Apply: func(_ *Engine, f *Frame, k float64) error {
		if k <= 0 {
			return nil
		}
		w, h := f.size()
		bw, bh := float64(w)*0.04, float64(h)*0.02
		x, y := float64(w)*0.92, float64(h)*0.05

		compositor.StrokeRect(f.Surface, x, y, bw, bh, math.Max(1, float64(w)*0.0015), compositor.White, k)
		compositor.Fill(f.Surface, compositor.Rect{X: x + bw, Y: y + bh*0.25, W: bw * 0.08, H: bh * 0.5, Color: compositor.White}, k)

		level := compositor.MustHex("#00ff00")
		if BatteryLevel <= 0.3 {
			level = compositor.MustHex("#ff0000")
		}
		if fw, fh := (bw-2)*BatteryLevel, bh-2; fw > 0 && fh > 0 {
			compositor.Fill(f.Surface, compositor.Rect{X: x + 1, Y: y + 1, W: fw, H: fh, Color: level}, k)
		}
		return nil
	}}
}
