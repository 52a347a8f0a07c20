package overlay

import (
	"sort"

	"github.com/kikiluvv/retroclip/internal/state"
)

// Named position presets
const (
	TopLeft      = "top-left"
	TopCenter    = "top-center"
	TopRight     = "top-right"
	Center       = "center"
	BottomLeft   = "bottom-left"
	BottomCenter = "bottom-center"
	BottomRight  = "bottom-right"
)

// Registry manages named overlay positions
type Registry struct {
	positions map[string]state.Position
}

// NewRegistry creates a registry holding the built-in presets
func NewRegistry() *Registry {
	r := &Registry{positions: make(map[string]state.Position)}
	r.Register(TopLeft, state.Position{X: 0.12, Y: 0.08})
	r.Register(TopCenter, state.Position{X: 0.5, Y: 0.08})
	r.Register(TopRight, state.Position{X: 0.88, Y: 0.08})
	r.Register(Center, state.Position{X: 0.5, Y: 0.5})
	r.Register(BottomLeft, state.Position{X: 0.12, Y: 0.92})
	r.Register(BottomCenter, state.Position{X: 0.5, Y: 0.88})
	r.Register(BottomRight, state.Position{X: 0.82, Y: 0.92})
	return r
}

// Register adds a position, clamped to the safe margin
func (r *Registry) Register(name string, pos state.Position) {
	r.positions[name] = pos.Clamped()
}

// Get retrieves a position by name
func (r *Registry) Get(name string) (state.Position, bool) {
	pos, ok := r.positions[name]
	return pos, ok
}

// List returns all registered names, sorted
func (r *Registry) List() []string {
	names := make([]string, 0, len(r.positions))
	for name := range r.positions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
