// layout.go - Resolve relative component geometry onto the canvas.
package template

import (
	"image"
	"sort"
)

// Resolve converts every component of the preset to absolute pixels.
// Position and size are always taken from the preset.
func Resolve(preset *Preset) []ResolvedComponent {
	w := preset.Canvas.Width
	h := preset.Canvas.Height

	result := make([]ResolvedComponent, 0, len(preset.Components))
	for _, comp := range preset.Components {
		comp.Padding = max(comp.Padding, 0)
		result = append(result, ResolvedComponent{
			Component: comp,
			PX:        int(comp.X * float64(w)),
			PY:        int(comp.Y * float64(h)),
			PW:        int(comp.Width * float64(w)),
			PH:        int(comp.Height * float64(h)),
		})
	}

	// Sort by z-index (lower renders first, higher renders on top).
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].ZIndex < result[j].ZIndex
	})

	return result
}

// Rect returns the component's absolute rectangle.
func (rc ResolvedComponent) Rect() image.Rectangle {
	return image.Rect(rc.PX, rc.PY, rc.PX+rc.PW, rc.PY+rc.PH)
}

// Columns splits r into n equal-width columns, left to right.
func Columns(r image.Rectangle, n int) []image.Rectangle {
	if n <= 0 {
		return nil
	}
	cols := make([]image.Rectangle, n)
	w := r.Dx()
	for i := range cols {
		x0 := r.Min.X + w*i/n
		x1 := r.Min.X + w*(i+1)/n
		cols[i] = image.Rect(x0, r.Min.Y, x1, r.Max.Y)
	}
	return cols
}

// SplitRows splits r horizontally so the top part takes frac of its height.
func SplitRows(r image.Rectangle, frac float64) (top, bottom image.Rectangle) {
	cut := r.Min.Y + int(float64(r.Dy())*frac)
	return image.Rect(r.Min.X, r.Min.Y, r.Max.X, cut), image.Rect(r.Min.X, cut, r.Max.X, r.Max.Y)
}

// mergeComponentStyle applies non-zero style overrides.
func mergeComponentStyle(base *ComponentStyle, over ComponentStyle) {
	if over.BackgroundColor != "" {
		base.BackgroundColor = over.BackgroundColor
	}
	if over.BackgroundImage != "" {
		base.BackgroundImage = over.BackgroundImage
	}
	if over.BackgroundFit != "" {
		base.BackgroundFit = over.BackgroundFit
	}
	if over.BorderColor != "" {
		base.BorderColor = over.BorderColor
	}
	if over.BorderWidth > 0 {
		base.BorderWidth = over.BorderWidth
	}
	if over.CornerRadius > 0 {
		base.CornerRadius = over.CornerRadius
	}
	if over.Shape != "" {
		base.Shape = over.Shape
	}
	if over.FontPath != "" {
		base.FontPath = over.FontPath
	}
	if over.FontSize > 0 {
		base.FontSize = over.FontSize
	}
	if over.Color != "" {
		base.Color = over.Color
	}
	if over.LineHeight > 0 {
		base.LineHeight = over.LineHeight
	}
	if over.TextAlign != "" {
		base.TextAlign = over.TextAlign
	}
	if over.VerticalAlign != "" {
		base.VerticalAlign = over.VerticalAlign
	}
	if over.LabelFontSize > 0 {
		base.LabelFontSize = over.LabelFontSize
	}
	if over.LabelColor != "" {
		base.LabelColor = over.LabelColor
	}
}

// LabelStyle derives the style of a metric label from the component style.
func (s ComponentStyle) LabelStyle() ComponentStyle {
	out := TextStyle(s)
	out.FontSize = s.LabelFontSize
	out.Color = s.LabelColor
	return out
}

// TextStyle strips box decoration from s so it can style a text child
// drawn on top of the component's own box.
func TextStyle(s ComponentStyle) ComponentStyle {
	return ComponentStyle{
		FontPath:      s.FontPath,
		FontSize:      s.FontSize,
		Color:         s.Color,
		LineHeight:    s.LineHeight,
		TextAlign:     s.TextAlign,
		VerticalAlign: s.VerticalAlign,
	}
}
