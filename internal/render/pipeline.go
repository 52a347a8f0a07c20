// Package render runs the per-frame pipeline (effects, then overlays) and
// schedules preview and export ticks.
package render

import (
	"fmt"
	"image"
	"math/rand"
	"time"

	"github.com/rs/zerolog"

	"github.com/kikiluvv/retroclip/internal/effects"
	"github.com/kikiluvv/retroclip/internal/overlay"
	"github.com/kikiluvv/retroclip/internal/state"
)

// Pipeline composites one frame. Each render surface gets its own pipeline
// so that the preview's published overlay boxes are never overwritten by an
// export pass at a different resolution.
type Pipeline struct {
	effects  *effects.Engine
	overlays *overlay.Renderer
}

// NewPipeline builds a pipeline. rng may be nil.
func NewPipeline(logger zerolog.Logger, rng *rand.Rand) *Pipeline {
	ov := overlay.NewRenderer()
	return &Pipeline{
		effects:  effects.NewEngine(logger, rng, ov.Fonts()),
		overlays: ov,
	}
}

// Render treats dst as holding the decoded frame and draws the active preset
// and the text layers over it.
func (p *Pipeline) Render(dst *image.RGBA, e *state.Editor, mediaTime time.Duration) error {
	if e.Filter != state.FilterNone {
		err := p.effects.Apply(e.Filter, &effects.Frame{
			Surface:   dst,
			Count:     e.FrameCount,
			Intensity: e.IntensityFraction(),
			MediaTime: mediaTime,
		})
		if err != nil {
			return fmt.Errorf("effects: %w", err)
		}
	}
	if err := p.overlays.Render(dst, e); err != nil {
		return fmt.Errorf("overlays: %w", err)
	}
	return nil
}

// Overlays returns the renderer whose boxes describe the last rendered frame.
func (p *Pipeline) Overlays() *overlay.Renderer {
	return p.overlays
}
