package effects

import (
	"github.com/kikiluvv/retroclip/internal/compositor"
	"github.com/kikiluvv/retroclip/internal/state"
)

var recipes = []Recipe{
	{
		Filter:      state.FilterVHS,
		Description: "VHS tape: colour bleed, scanlines, noise and tracking errors",
		Steps: []Step{
			chromaShift(0.003),
			tint("desaturate", compositor.Saturation, "#808080", 0.2),
			tint("purple-tint", compositor.Overlay, "#1a0a3e", 0.08),
			scanlines(2, 0.15),
			noise(0.12),
			trackingGlitch(0.04),
			trackingLine(0.15),
			bottomBar(0.3),
		},
	},
	{
		Filter:      state.FilterSuper8,
		Description: "Super 8 film: warm cast, grain, light leaks and rounded gate",
		Steps: []Step{
			tint("amber-tint", compositor.Overlay, "#cc6600", 0.18),
			tint("overexpose", compositor.Screen, "#ffddaa", 0.06),
			grain(3, 0.2),
			vignette(0.4),
			lightLeak(0.12),
			scratches(1, 0.25),
			flicker(compositor.White, 0.04),
			roundedMask(0.015),
		},
	},
	{
		Filter:      state.FilterCamcorder,
		Description: "Home camcorder: washed colour, REC overlay, focus brackets, battery",
		Steps: []Step{
			tint("wash", compositor.Overlay, "#888888", 0.06),
			tint("green-tint", compositor.Overlay, "#004422", 0.05),
			scanlines(2, 0.06),
			recIndicator(0.9),
			focusBrackets(0.3),
			battery(0.6),
		},
	},
	{
		Filter:      state.Filter8mm,
		Description: "8mm film: sepia, heavy grain, dust, scratches and dark gate",
		Steps: []Step{
			tint("desaturate", compositor.Saturation, "#808080", 0.7),
			tint("sepia", compositor.Overlay, "#704214", 0.3),
			grain(4, 0.3),
			vignette(0.55),
			dust(3),
			scratches(1, 0.3),
			flicker(compositor.RGB(255, 255, 200), 0.08),
			roundedMask(0.025),
			border(0.6),
		},
	},
	{
		Filter:      state.Filter16mm,
		Description: "16mm film: cool tone, moderate grain, occasional scratches",
		Steps: []Step{
			tint("desaturate", compositor.Saturation, "#808080", 0.15),
			tint("cool-tint", compositor.Overlay, "#1a2a44", 0.06),
			grain(2, 0.14),
			vignette(0.25),
			tint("contrast", compositor.Overlay, "#000000", 0.04),
			scratches(0.3, 0.15),
		},
	},
}

// Recipes returns every preset recipe in display order.
func Recipes() []Recipe {
	out := make([]Recipe, len(recipes))
	copy(out, recipes)
	return out
}

// Lookup returns the recipe for a filter.
func Lookup(f state.Filter) (Recipe, bool) {
	for _, r := range recipes {
		if r.Filter == f {
			return r, true
		}
	}
	return Recipe{}, false
}
