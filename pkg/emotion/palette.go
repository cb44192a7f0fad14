package emotion

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Descriptor is the presentation data attached to a label.
type Descriptor struct {
	Color string `yaml:"color" json:"color"` // #RRGGBB
	Glyph string `yaml:"glyph" json:"glyph"`
}

// Palette maps labels to descriptors.
type Palette map[Label]Descriptor

// DefaultPalette returns the built-in colors and glyphs.
func DefaultPalette() Palette {
	return Palette{
		Happy:     {Color: "#10B981", Glyph: "😊"},
		Sad:       {Color: "#6B7280", Glyph: "😢"},
		Angry:     {Color: "#EF4444", Glyph: "😠"},
		Surprised: {Color: "#F59E0B", Glyph: "😲"},
		Neutral:   {Color: "#8B5CF6", Glyph: "😐"},
		Fearful:   {Color: "#EC4899", Glyph: "😨"},
		Disgusted: {Color: "#84CC16", Glyph: "🤢"},
	}
}

// Lookup returns the descriptor for l, falling back to the default palette.
func (p Palette) Lookup(l Label) Descriptor {
	if d, ok := p[l]; ok {
		return d
	}
	return DefaultPalette()[l]
}

// LoadPalette reads a YAML file of label overrides, e.g.
//
//	happy: { color: "#00FF00", glyph: "🙂" }
//
// Labels missing from the file keep their default descriptor.
func LoadPalette(path string) (Palette, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read palette: %w", err)
	}
	return ParsePalette(data)
}

// ParsePalette decodes YAML palette overrides onto the default palette.
func ParsePalette(data []byte) (Palette, error) {
	var raw map[string]Descriptor
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPalette, err)
	}

	p := DefaultPalette()
	for name, d := range raw {
		l, err := Parse(name)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPalette, err)
		}
		base := p[l]
		if d.Color != "" {
			base.Color = d.Color
		}
		if d.Glyph != "" {
			base.Glyph = d.Glyph
		}
		p[l] = base
	}
	return p, nil
}
