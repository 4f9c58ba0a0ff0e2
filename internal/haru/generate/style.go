package generate

import "strings"

// Style names a rendering style for entry images.
type Style string

// The supported image styles.
const (
	StyleWatercolor  Style = "watercolor"
	StylePixel       Style = "pixel"
	StyleRealistic   Style = "realistic"
	StyleAnime       Style = "anime"
	StyleOilPainting Style = "oil_painting"
	StyleSketch      Style = "sketch"
)

// DefaultStyle is used when a request names no style or an unknown one.
const DefaultStyle = StyleWatercolor

var stylePrompts = map[Style]string{
	StyleWatercolor:  "in beautiful watercolor painting style, soft colors, artistic brush strokes",
	StylePixel:       "in retro pixel art style, 16-bit aesthetic, vibrant colors",
	StyleRealistic:   "photorealistic, high quality photograph, natural lighting",
	StyleAnime:       "in anime illustration style, vibrant colors, expressive",
	StyleOilPainting: "in classical oil painting style, rich textures, dramatic lighting",
	StyleSketch:      "in pencil sketch style, detailed line work, artistic",
}

// Styles returns the supported style names in declaration order.
func Styles() []Style {
	return []Style{
		StyleWatercolor, StylePixel, StyleRealistic,
		StyleAnime, StyleOilPainting, StyleSketch,
	}
}

// Normalize maps a raw style name onto the catalogue, falling back to
// DefaultStyle for unknown names.
func Normalize(raw string) Style {
	s := Style(strings.ToLower(strings.TrimSpace(raw)))
	if _, ok := stylePrompts[s]; ok {
		return s
	}
	return DefaultStyle
}

// ImagePrompt composes the full rendering prompt from the entry's prompt
// seed and the chosen style.
func ImagePrompt(seed string, style Style) string {
	suffix, ok := stylePrompts[style]
	if !ok {
		suffix = stylePrompts[DefaultStyle]
	}
	return "Generate an artistic image: " + seed + ", " + suffix +
		". Create a single beautiful image without any text."
}
