// parser.go - Preset JSON parsing, the embedded default and init examples.
package template

import (
	"embed"
	"encoding/json"
	"fmt"
	"os"
)

//go:embed defaults/poster.json defaults/form.yaml
var defaults embed.FS

// Default returns the embedded poster preset.
func Default() (*Preset, error) {
	data, err := defaults.ReadFile("defaults/poster.json")
	if err != nil {
		return nil, fmt.Errorf("read embedded preset: %w", err)
	}
	return ParsePreset(data)
}

// GetExamples returns the embedded preset.json and a sample form.yaml for
// goposter init.
func GetExamples() (presetJSON, formYAML string) {
	p, _ := defaults.ReadFile("defaults/poster.json")
	f, _ := defaults.ReadFile("defaults/form.yaml")
	return string(p), string(f)
}

// ParsePresetFile loads a standalone preset JSON file (no ZIP bundle).
func ParsePresetFile(path string) (*Preset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read preset: %w", err)
	}
	return ParsePreset(data)
}

// ParsePreset decodes preset JSON and applies canvas and style defaults.
func ParsePreset(data []byte) (*Preset, error) {
	var preset Preset
	if err := json.Unmarshal(data, &preset); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPreset, err)
	}
	if err := normalize(&preset); err != nil {
		return nil, err
	}
	return &preset, nil
}

// normalize applies the canvas preset and component style defaults.
func normalize(preset *Preset) error {
	if dims, ok := Presets[preset.Canvas.Preset]; ok {
		preset.Canvas.Width = dims[0]
		preset.Canvas.Height = dims[1]
	}
	if preset.Canvas.Width == 0 && preset.Canvas.Height == 0 {
		dims := Presets["poster"]
		preset.Canvas.Width, preset.Canvas.Height = dims[0], dims[1]
	}
	if preset.Canvas.Width <= 0 || preset.Canvas.Height <= 0 {
		return fmt.Errorf("%w: canvas %dx%d", ErrInvalidPreset, preset.Canvas.Width, preset.Canvas.Height)
	}

	if preset.Background.Color == "" {
		preset.Background.Color = "#ffffff"
	}

	for i := range preset.Components {
		applyComponentDefaults(&preset.Components[i])
	}
	return nil
}

var defaultStyle = ComponentStyle{
	FontSize:      24,
	Color:         "#262626",
	LineHeight:    1.4,
	TextAlign:     "left",
	VerticalAlign: "top",
	BackgroundFit: "stretch",
	Shape:         "rect",
}

// applyComponentDefaults sets sane fallbacks for component style fields.
func applyComponentDefaults(c *Component) {
	s := defaultStyle
	mergeComponentStyle(&s, c.Style)
	if s.LabelFontSize <= 0 {
		s.LabelFontSize = s.FontSize * 0.4
	}
	if s.LabelColor == "" {
		s.LabelColor = s.Color
	}
	c.Style = s
}
