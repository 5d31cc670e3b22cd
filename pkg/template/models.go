// Package template describes the poster layout, loads it from JSON or a
// .gspresets bundle, and rasterizes visual trees built from it.
package template

// ── Preset types ──

// Preset is the top-level structure of a preset.json file.
type Preset struct {
	Meta       Meta        `json:"meta"`
	Canvas     Canvas      `json:"canvas"`
	Background Background  `json:"background"`
	Font       FontConfig  `json:"font"`
	Components []Component `json:"components"`
}

// Meta holds preset metadata.
type Meta struct {
	Name        string `json:"name"`
	Version     string `json:"version"`
	Author      string `json:"author"`
	Description string `json:"description"`
}

// Canvas defines output dimensions. Preset overrides explicit Width/Height.
type Canvas struct {
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Preset string `json:"preset"`
}

// Background defines the canvas fill.
type Background struct {
	Type   string `json:"type"`   // "image" or "color"
	Source string `json:"source"` // path or asset ID of the image
	Color  string `json:"color"`  // hex fallback
}

// FontConfig specifies the font source.
type FontConfig struct {
	Path     string `json:"path"`     // custom TTF path (resolved from assets)
	Fallback string `json:"fallback"` // "embedded" for default
}

// ── Component types ──

// Binding names what a component displays.
type Binding string

// Bindings understood by the preview.
const (
	BindStatic   Binding = ""         // Text from the layout itself
	BindTitle    Binding = "title"    // "{trainingName}训练营_第{trainingNo}期"
	BindAvatar   Binding = "avatar"   // uploaded avatar image
	BindUserName Binding = "userName" // user name
	BindMetrics  Binding = "metrics"  // the three derived metrics
)

// Component is a positioned region of the template.
type Component struct {
	ID      string         `json:"id"`
	Bind    Binding        `json:"bind"`
	X       float64        `json:"x"`      // relative 0.0–1.0
	Y       float64        `json:"y"`      // relative 0.0–1.0
	Width   float64        `json:"width"`  // relative 0.0–1.0
	Height  float64        `json:"height"` // relative 0.0–1.0
	ZIndex  int            `json:"zIndex"` // rendering order (higher = on top)
	Padding int            `json:"padding"`
	Text    string         `json:"text"` // static text, BindStatic only
	Style   ComponentStyle `json:"style"`
}

// ComponentStyle defines the visual appearance of a component.
type ComponentStyle struct {
	BackgroundColor string  `json:"backgroundColor"` // "#rrggbb" or "#rrggbbaa"
	BackgroundImage string  `json:"backgroundImage"` // path or asset ID of a PNG/JPG sticker
	BackgroundFit   string  `json:"backgroundFit"`   // "stretch" (default), "contain", "cover"
	BorderColor     string  `json:"borderColor"`
	BorderWidth     int     `json:"borderWidth"`
	CornerRadius    int     `json:"cornerRadius"`
	Shape           string  `json:"shape"`    // "rect" (default) or "circle"; clips images
	FontPath        string  `json:"fontPath"` // per-component custom font (asset ID or path)
	FontSize        float64 `json:"fontSize"`
	Color           string  `json:"color"`      // text color
	LineHeight      float64 `json:"lineHeight"` // multiplier
	TextAlign       string  `json:"textAlign"`  // "left", "center", "right"
	VerticalAlign   string  `json:"verticalAlign"`
	LabelFontSize   float64 `json:"labelFontSize"` // metrics labels
	LabelColor      string  `json:"labelColor"`
}

// ResolvedComponent is a component with absolute pixel geometry.
type ResolvedComponent struct {
	Component
	PX, PY int // absolute pixels
	PW, PH int
}

// Presets maps preset names to [width, height].
var Presets = map[string][2]int{
	"poster":           {750, 1000},
	"a4_portrait":      {1240, 1754},
	"instagram_square": {1080, 1080},
	"instagram_story":  {1080, 1920},
	"720p":             {1280, 720},
	"1080p":            {1920, 1080},
}
