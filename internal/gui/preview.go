package gui

import (
	"image"
	"sync"
	"sync/atomic"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/driver/desktop"
	"fyne.io/fyne/v2/driver/mobile"
	"fyne.io/fyne/v2/widget"

	"github.com/kikiluvv/retroclip/internal/drag"
	"github.com/kikiluvv/retroclip/internal/state"
)

// Preview shows rendered frames and lets the overlays be dragged around.
// Pointer input is turned into commands on the scheduler queue, so the drag
// controller only ever runs between ticks.
type Preview struct {
	widget.BaseWidget

	queue *state.Queue
	drag  *drag.Controller
	image *canvas.Image

	mu     sync.Mutex
	frameW float32
	frameH float32
	bufs   [3]*image.RGBA
	next   int

	hover   atomic.Int32
	pressed atomic.Bool
}

// NewPreview builds a preview whose drag controller reads overlay boxes from
// bounds.
func NewPreview(queue *state.Queue, bounds drag.BoundsSource) *Preview {
	p := &Preview{
		queue: queue,
		drag:  drag.New(bounds),
		image: canvas.NewImageFromImage(image.NewRGBA(image.Rect(0, 0, 16, 9))),
	}
	p.image.FillMode = canvas.ImageFillContain
	p.image.ScaleMode = canvas.ImageScaleFastest
	p.ExtendBaseWidget(p)
	return p
}

func (p *Preview) CreateRenderer() fyne.WidgetRenderer {
	return widget.NewSimpleRenderer(p.image)
}

func (p *Preview) MinSize() fyne.Size {
	return fyne.NewSize(480, 270)
}

// SetFrame copies frame into a display buffer. It may be called from any
// goroutine; the returned function must run on the UI thread.
func (p *Preview) SetFrame(frame *image.RGBA) func() {
	b := frame.Bounds()
	p.mu.Lock()
	buf := p.bufs[p.next]
	if buf == nil || buf.Bounds().Dx() != b.Dx() || buf.Bounds().Dy() != b.Dy() {
		buf = image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
		p.bufs[p.next] = buf
	}
	p.next = (p.next + 1) % len(p.bufs)
	p.frameW, p.frameH = float32(b.Dx()), float32(b.Dy())
	p.mu.Unlock()

	for y := 0; y < b.Dy(); y++ {
		src := frame.PixOffset(b.Min.X, b.Min.Y+y)
		copy(buf.Pix[y*buf.Stride:y*buf.Stride+b.Dx()*4], frame.Pix[src:src+b.Dx()*4])
	}
	return func() {
		p.image.Image = buf
		p.image.Refresh()
	}
}

// viewport maps widget coordinates onto the frame shown with
// ImageFillContain.
func (p *Preview) viewport(pos fyne.Position) (drag.Viewport, state.Point) {
	p.mu.Lock()
	fw, fh := p.frameW, p.frameH
	p.mu.Unlock()
	return fitViewport(p.Size(), fw, fh, pos)
}

// fitViewport letterboxes a fw x fh frame into size and returns the display
// viewport plus pos relative to the displayed frame.
func fitViewport(size fyne.Size, fw, fh float32, pos fyne.Position) (drag.Viewport, state.Point) {
	if fw <= 0 || fh <= 0 || size.Width <= 0 || size.Height <= 0 {
		return drag.Viewport{}, state.Point{}
	}
	scale := min(size.Width/fw, size.Height/fh)
	dw, dh := fw*scale, fh*scale
	offX, offY := (size.Width-dw)/2, (size.Height-dh)/2
	v := drag.Viewport{
		DisplayW: float64(dw),
		DisplayH: float64(dh),
		FrameW:   float64(fw),
		FrameH:   float64(fh),
	}
	return v, state.Point{X: float64(pos.X - offX), Y: float64(pos.Y - offY)}
}

func (p *Preview) push(cmd state.Command) {
	p.queue.Push(cmd)
}

func (p *Preview) down(pos fyne.Position) {
	p.pressed.Store(true)
	v, pt := p.viewport(pos)
	p.push(func(e *state.Editor) {
		if e.Exporting {
			return
		}
		p.drag.PointerDown(e, v, v.ToFrame(pt))
		p.hover.Store(int32(p.drag.Hover()))
	})
}

func (p *Preview) move(pos fyne.Position) {
	v, pt := p.viewport(pos)
	p.push(func(e *state.Editor) {
		p.drag.PointerMove(e, v, v.ToFrame(pt))
		p.hover.Store(int32(p.drag.Hover()))
	})
}

// up and leave end a drag, so they are delivered even when the queue is full.
func (p *Preview) up() {
	p.pressed.Store(false)
	p.queue.Deliver(func(e *state.Editor) {
		p.drag.PointerUp(e)
	})
}

func (p *Preview) leave() {
	p.pressed.Store(false)
	p.queue.Deliver(func(e *state.Editor) {
		p.drag.PointerLeave(e)
		p.hover.Store(int32(state.DragNone))
	})
}

// MouseDown implements desktop.Mouseable.
func (p *Preview) MouseDown(ev *desktop.MouseEvent) {
	if ev.Button == desktop.MouseButtonPrimary {
		p.down(ev.Position)
	}
}

// MouseUp implements desktop.Mouseable.
func (p *Preview) MouseUp(*desktop.MouseEvent) {
	p.up()
}

// MouseIn implements desktop.Hoverable.
func (p *Preview) MouseIn(ev *desktop.MouseEvent) {
	p.move(ev.Position)
}

// MouseMoved implements desktop.Hoverable.
func (p *Preview) MouseMoved(ev *desktop.MouseEvent) {
	p.move(ev.Position)
}

// MouseOut implements desktop.Hoverable.
func (p *Preview) MouseOut() {
	p.leave()
}

// TouchDown implements mobile.Touchable.
func (p *Preview) TouchDown(ev *mobile.TouchEvent) {
	p.down(ev.Position)
}

// TouchUp implements mobile.Touchable.
func (p *Preview) TouchUp(*mobile.TouchEvent) {
	p.up()
}

// TouchCancel implements mobile.Touchable.
func (p *Preview) TouchCancel(*mobile.TouchEvent) {
	p.up()
}

// Dragged implements fyne.Draggable. A drag that arrives without a press,
// as some drivers deliver touch input, starts where the gesture began.
func (p *Preview) Dragged(ev *fyne.DragEvent) {
	if !p.pressed.Load() {
		p.down(fyne.NewPos(ev.Position.X-ev.Dragged.DX, ev.Position.Y-ev.Dragged.DY))
	}
	p.move(ev.Position)
}

// DragEnd implements fyne.Draggable.
func (p *Preview) DragEnd() {
	p.up()
}

// Cursor implements desktop.Cursorable.
func (p *Preview) Cursor() desktop.Cursor {
	if state.DragTarget(p.hover.Load()) != state.DragNone {
		return desktop.PointerCursor
	}
	return desktop.DefaultCursor
}

var (
	_ desktop.Mouseable  = (*Preview)(nil)
	_ desktop.Hoverable  = (*Preview)(nil)
	_ desktop.Cursorable = (*Preview)(nil)
	_ fyne.Draggable     = (*Preview)(nil)
	_ mobile.Touchable   = (*Preview)(nil)
)
