// Package drag moves the overlay text layers in response to pointer input.
package drag

import (
	"github.com/kikiluvv/retroclip/internal/overlay"
	"github.com/kikiluvv/retroclip/internal/state"
)

// BoundsSource publishes the boxes of the most recently rendered overlays.
type BoundsSource interface {
	TitleBounds() (overlay.Box, bool)
	TimestampBounds() (overlay.Box, bool)
}

// Viewport relates the displayed size of the preview to the frame surface.
type Viewport struct {
	DisplayW, DisplayH float64
	FrameW, FrameH     float64
}

// ToFrame maps a point in display pixels to frame pixels.
func (v Viewport) ToFrame(p state.Point) state.Point {
	sx, sy := 1.0, 1.0
	if v.DisplayW > 0 {
		sx = v.FrameW / v.DisplayW
	}
	if v.DisplayH > 0 {
		sy = v.FrameH / v.DisplayH
	}
	return state.Point{X: p.X * sx, Y: p.Y * sy}
}

// Controller implements the idle / dragging-title / dragging-timestamp
// machine. The current drag target lives in the editor; the controller only
// keeps the hover indication.
type Controller struct {
	bounds BoundsSource
	hover  state.DragTarget
}

// New returns a controller reading boxes from bounds.
func New(bounds BoundsSource) *Controller {
	return &Controller{bounds: bounds}
}

// HitTest returns the layer under p, title first.
func (c *Controller) HitTest(p state.Point) state.DragTarget {
	if b, ok := c.bounds.TitleBounds(); ok && b.Contains(p) {
		return state.DragTitle
	}
	if b, ok := c.bounds.TimestampBounds(); ok && b.Contains(p) {
		return state.DragTimestamp
	}
	return state.DragNone
}

// PointerDown starts a drag when p (frame pixels) hits a layer. It reports
// whether a drag started.
func (c *Controller) PointerDown(e *state.Editor, v Viewport, p state.Point) bool {
	target := c.HitTest(p)
	if target == state.DragNone {
		return false
	}
	pos := e.Layer(target).Pos
	e.Dragging = target
	e.DragOffset = state.Point{X: p.X - pos.X*v.FrameW, Y: p.Y - pos.Y*v.FrameH}
	c.hover = target
	return true
}

// PointerMove follows the pointer while dragging; otherwise it only updates
// the hover indication.
func (c *Controller) PointerMove(e *state.Editor, v Viewport, p state.Point) {
	if e.Dragging == state.DragNone {
		c.hover = c.HitTest(p)
		return
	}
	if v.FrameW <= 0 || v.FrameH <= 0 {
		return
	}
	e.MoveLayer(e.Dragging, state.Position{
		X: (p.X - e.DragOffset.X) / v.FrameW,
		Y: (p.Y - e.DragOffset.Y) / v.FrameH,
	})
}

// PointerUp ends any drag.
func (c *Controller) PointerUp(e *state.Editor) {
	e.Dragging = state.DragNone
	e.DragOffset = state.Point{}
}

// PointerLeave ends any drag and clears the hover indication.
func (c *Controller) PointerLeave(e *state.Editor) {
	c.PointerUp(e)
	c.hover = state.DragNone
}

// Hover reports which layer the pointer is over, for cursor feedback.
func (c *Controller) Hover() state.DragTarget {
	return c.hover
}
