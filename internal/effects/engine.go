// Package effects implements the retro presets as fixed recipes of
// compositor steps, scaled by a single intensity value.
package effects

import (
	"fmt"
	"image"
	"math/rand"
	"time"

	"github.com/rs/zerolog"

	"github.com/kikiluvv/retroclip/internal/state"
	"github.com/kikiluvv/retroclip/internal/texture"
	"github.com/kikiluvv/retroclip/internal/typeface"
)

// Frame is the per-frame input to a recipe.
type Frame struct {
	Surface *image.RGBA
	// Count is the editor frame counter.
	Count uint64
	// Intensity is in [0,1].
	Intensity float64
	// MediaTime is the playback position of the source.
	MediaTime time.Duration
}

func (f *Frame) size() (int, int) {
	b := f.Surface.Bounds()
	return b.Dx(), b.Dy()
}

// Step is one weighted sub-effect of a recipe. Apply receives the weight
// multiplied by the frame intensity.
type Step struct {
	Name   string
	Weight float64
	Apply  func(e *Engine, f *Frame, strength float64) error
}

// Recipe is the immutable, ordered list of steps for one preset.
type Recipe struct {
	Filter      state.Filter
	Description string
	Steps       []Step
}

// Engine evaluates recipes. It owns the randomness and texture caches of one
// render loop and must not be shared between goroutines.
type Engine struct {
	logger zerolog.Logger
	rng    *rand.Rand
	tex    *texture.Generator
	fonts  *typeface.Cache
}

// NewEngine creates an engine. fonts may be shared with the overlay renderer
// of the same loop; rng may be nil for a time-seeded source.
func NewEngine(logger zerolog.Logger, rng *rand.Rand, fonts *typeface.Cache) *Engine {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if fonts == nil {
		fonts = typeface.NewCache()
	}
	return &Engine{
		logger: logger.With().Str("component", "effects").Logger(),
		rng:    rng,
		tex:    texture.NewGenerator(rng),
		fonts:  fonts,
	}
}

// Apply runs the recipe for filter over f. The none filter leaves the frame
// untouched.
func (e *Engine) Apply(filter state.Filter, f *Frame) error {
	if filter == state.FilterNone || filter == "" {
		return nil
	}
	recipe, ok := Lookup(filter)
	if !ok {
		return fmt.Errorf("no recipe for filter %q", filter)
	}

	intensity := f.Intensity
	if intensity < 0 {
		intensity = 0
	} else if intensity > 1 {
		intensity = 1
	}

	for _, step := range recipe.Steps {
		if err := step.Apply(e, f, step.Weight*intensity); err != nil {
			return fmt.Errorf("%s/%s: %w", filter, step.Name, err)
		}
	}
	return nil
}
