package styles

import "sort"

// prompts is the fixed style catalog. The key is what clients send; the
// value is the instruction forwarded to the generation provider together
// with the captured photo.
var prompts = map[string]string{
	"anime":       "Redraw this photo as a vibrant anime illustration with clean line art and cel shading. Keep the person's likeness and pose.",
	"watercolor":  "Repaint this photo as a soft watercolor portrait with visible paper texture and loose brush strokes. Keep the person's likeness.",
	"cyberpunk":   "Restyle this photo as a neon-lit cyberpunk scene with holographic signage and rain-slick streets. Keep the person's likeness.",
	"popart":      "Redraw this photo in bold pop-art style with halftone dots, thick outlines and a limited saturated palette. Keep the person's likeness.",
	"sketch":      "Convert this photo into a detailed graphite pencil sketch with cross-hatching and soft smudged shading. Keep the person's likeness.",
	"renaissance": "Repaint this photo as a Renaissance oil portrait with dramatic chiaroscuro lighting and period clothing. Keep the person's likeness.",
	"claymation":  "Remodel the subject of this photo as a claymation character with visible fingerprints in the clay and studio lighting.",
	"pixel":       "Convert this photo into 32-bit pixel art with a limited palette and chunky dithering. Keep the person's likeness readable.",
}

// Prompt returns the provider instruction for a style key.
func Prompt(style string) (string, bool) {
	p, ok := prompts[style]
	return p, ok
}

// Known reports whether style is part of the catalog.
func Known(style string) bool {
	_, ok := prompts[style]
	return ok
}

// Names returns the catalog keys in stable order.
func Names() []string {
	names := make([]string, 0, len(prompts))
	for name := range prompts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
