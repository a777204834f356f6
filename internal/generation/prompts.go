package generation

import (
	"strings"

	"github.com/renderyard/backend/internal/models"
)

// typeEnhancements prefixes the user prompt when enhancement is requested.
var typeEnhancements = map[string]string{
	models.ToolLandscape: "Professional landscape architecture visualization, ",
	models.ToolGarden:    "Beautiful garden design rendering, ",
	models.ToolSketch:    "Architectural sketch to photorealistic rendering, ",
	models.ToolExterior:  "Exterior architectural design visualization, ",
	models.ToolInterior:  "Interior design rendering, ",
}

// styleEnhancements appends a style-specific suffix. Unrecognized styles
// pass through unmodified.
var styleEnhancements = map[string]string{
	"realistic":     "photorealistic, high detail, professional photography",
	"night":         "dramatic night scene, atmospheric lighting, moonlight",
	"snow":          "winter scene, snow covered, cold atmosphere",
	"rain":          "rainy weather, wet surfaces, dramatic clouds",
	"modern":        "modern contemporary style, clean lines",
	"minimalist":    "minimalist design, simple elegant",
	"neoclassical":  "neoclassical style, classical elegance",
	"industrial":    "industrial style, raw materials",
	"zen":           "Japanese zen garden, peaceful, minimalist",
	"cottage":       "English cottage garden, colorful flowers, natural",
	"tropical":      "tropical paradise, lush vegetation, exotic plants",
	"mediterranean": "Mediterranean style, terracotta, olive trees",
}

// EnhancePrompt builds the prompt actually sent to the provider: a fixed
// type prefix plus the user prompt plus an optional style suffix.
func EnhancePrompt(prompt, toolType, style string) string {
	enhanced := typeEnhancements[toolType] + prompt
	if suffix, ok := styleEnhancements[strings.ToLower(style)]; ok && style != "" {
		enhanced += ", " + suffix
	}
	return enhanced
}

const baseNegativePrompt = "low quality, blurry, distorted, ugly, bad anatomy, watermark, text"

type sketchStyle struct {
	suffix   string
	negative string
}

// sketchStyles maps rendering styles for the sketch-to-rendering flow to a
// prompt suffix and a negative prompt. Unknown styles fall back to
// photorealistic.
var sketchStyles = map[string]sketchStyle{
	"photorealistic": {
		suffix:   "professional architectural photography, ultra realistic, high detail, natural lighting, 8k resolution, photorealistic rendering",
		negative: baseNegativePrompt + ", cartoon, painting, illustration, sketch",
	},
	"artistic": {
		suffix:   "artistic architectural rendering, beautiful composition, painterly style, atmospheric, professional concept art",
		negative: baseNegativePrompt + ", photo, photorealistic",
	},
	"conceptual": {
		suffix:   "architectural concept art, modern design visualization, clean lines, professional presentation",
		negative: baseNegativePrompt + ", cluttered, messy",
	},
	"technical": {
		suffix:   "technical architectural drawing, precise details, professional CAD rendering, clean presentation",
		negative: baseNegativePrompt + ", artistic, painterly, abstract",
	},
}

// SketchStylePrompt returns the full prompt and negative prompt for a
// sketch-rendering style.
func SketchStylePrompt(style, userPrompt string) (prompt, negativePrompt string) {
	cfg, ok := sketchStyles[style]
	if !ok {
		cfg = sketchStyles["photorealistic"]
	}
	return userPrompt + ", " + cfg.suffix, cfg.negative
}
