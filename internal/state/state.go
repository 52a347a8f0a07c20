// Package state holds the editor state that every render and event handler
// reads and mutates.
package state

import (
	"fmt"
	"strings"
)

// Filter names a retro preset.
type Filter string

const (
	FilterNone      Filter = "none"
	FilterVHS       Filter = "vhs"
	FilterSuper8    Filter = "super8"
	FilterCamcorder Filter = "camcorder"
	Filter8mm       Filter = "8mm"
	Filter16mm      Filter = "16mm"
)

// Filters lists every selectable filter in display order.
var Filters = []Filter{FilterNone, FilterVHS, FilterSuper8, FilterCamcorder, Filter8mm, Filter16mm}

// ParseFilter validates a filter name.
func ParseFilter(s string) (Filter, error) {
	f := Filter(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Filters {
		if f == known {
			return f, nil
		}
	}
	return "", fmt.Errorf("unknown filter %q", s)
}

// Tape reports whether the filter imitates a video tape format.
func (f Filter) Tape() bool {
	return f == FilterVHS || f == FilterCamcorder
}

// TimestampFormat selects how the timestamp overlay is displayed.
type TimestampFormat string

const (
	FormatUS       TimestampFormat = "us"
	FormatEU       TimestampFormat = "eu"
	FormatISO      TimestampFormat = "iso"
	FormatDateOnly TimestampFormat = "date-only"
	FormatTimeOnly TimestampFormat = "time-only"
)

// TimestampFormats lists the supported display formats.
var TimestampFormats = []TimestampFormat{FormatUS, FormatEU, FormatISO, FormatDateOnly, FormatTimeOnly}

// ParseTimestampFormat validates a format name.
func ParseTimestampFormat(s string) (TimestampFormat, error) {
	f := TimestampFormat(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range TimestampFormats {
		if f == known {
			return f, nil
		}
	}
	return "", fmt.Errorf("unknown timestamp format %q", s)
}

// DragTarget is the overlay currently being dragged.
type DragTarget int

const (
	DragNone DragTarget = iota
	DragTitle
	DragTimestamp
)

func (d DragTarget) String() string {
	switch d {
	case DragTitle:
		return "title"
	case DragTimestamp:
		return "timestamp"
	}
	return "none"
}

// Position bounds, as fractions of the frame size.
const (
	MinPos = 0.05
	MaxPos = 0.95
)

// Position is a normalized anchor point.
type Position struct {
	X, Y float64
}

// Clamped limits both axes to [MinPos, MaxPos].
func (p Position) Clamped() Position {
	return Position{clamp(p.X), clamp(p.Y)}
}

func clamp(v float64) float64 {
	if !(v >= MinPos) {
		return MinPos
	}
	if v > MaxPos {
		return MaxPos
	}
	return v
}

// Point is a location in frame pixels.
type Point struct {
	X, Y float64
}

// TextLayer is the configuration of one text overlay.
type TextLayer struct {
	Text       string
	Size       int
	Color      string
	Background bool
	Pos        Position
}

// Editor is the single mutable aggregate driving rendering. It is owned by
// one render/event loop and is not safe for concurrent use.
type Editor struct {
	Loaded    bool
	Playing   bool
	Exporting bool

	Filter    Filter
	Intensity int

	Title           TextLayer
	Timestamp       TextLayer
	TimestampFormat TimestampFormat

	// FrameCount advances once per rendered frame and drives time-varying
	// artifacts.
	FrameCount uint64

	Dragging   DragTarget
	DragOffset Point
}

// New returns an editor with the default settings.
func New() *Editor {
	return &Editor{
		Filter:    FilterNone,
		Intensity: 75,
		Title: TextLayer{
			Size:       48,
			Color:      "#ffffff",
			Background: true,
			Pos:        Position{0.5, 0.88},
		},
		Timestamp: TextLayer{
			Size:       28,
			Color:      "#ffaa00",
			Background: true,
			Pos:        Position{0.82, 0.92},
		},
		TimestampFormat: FormatUS,
	}
}

// IntensityFraction returns the intensity as a fraction in [0,1].
func (e *Editor) IntensityFraction() float64 {
	return float64(e.Intensity) / 100
}

// SetIntensity stores v clamped to 0..100.
func (e *Editor) SetIntensity(v int) {
	e.Intensity = max(0, min(100, v))
}

// Layer returns the text layer a drag target refers to.
func (e *Editor) Layer(t DragTarget) *TextLayer {
	switch t {
	case DragTitle:
		return &e.Title
	case DragTimestamp:
		return &e.Timestamp
	}
	return nil
}

// MoveLayer writes a clamped position into the layer.
func (e *Editor) MoveLayer(t DragTarget, p Position) {
	if l := e.Layer(t); l != nil {
		l.Pos = p.Clamped()
	}
}

// Snapshot returns a copy safe to hand to another goroutine.
func (e *Editor) Snapshot() Editor {
	return *e
}
