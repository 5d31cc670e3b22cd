// validator.go - Sanity checks on a loaded preset.
package template

import (
	"fmt"
	"strings"
)

var knownBindings = map[Binding]struct{}{
	BindStatic:   {},
	BindTitle:    {},
	BindAvatar:   {},
	BindUserName: {},
	BindMetrics:  {},
}

// ValidatePreset checks component IDs, bindings and geometry.
// Returns warnings (never fatal errors) for graceful degradation: a poster
// with a missing binding still renders, it just lacks that element.
func ValidatePreset(preset *Preset) []string {
	var warnings []string

	seen := make(map[string]struct{}, len(preset.Components))
	bound := make(map[Binding]int)
	for _, c := range preset.Components {
		switch {
		case c.ID == "":
			warnings = append(warnings, "component without id: it cannot be exported on its own")
		case c.ID == RootID:
			warnings = append(warnings, fmt.Sprintf("component id %q is reserved for the poster root", c.ID))
		default:
			if _, dup := seen[c.ID]; dup {
				warnings = append(warnings, fmt.Sprintf("duplicate component id %q: lookups return the first", c.ID))
			}
			seen[c.ID] = struct{}{}
		}

		if _, ok := knownBindings[c.Bind]; !ok {
			warnings = append(warnings, fmt.Sprintf("component %q has unknown binding %q; rendered as static", c.ID, c.Bind))
		} else {
			bound[c.Bind]++
		}

		if c.Width <= 0 || c.Height <= 0 {
			warnings = append(warnings, fmt.Sprintf("component %q has no area", c.ID))
		}
		if c.X < 0 || c.Y < 0 || c.X+c.Width > 1.0001 || c.Y+c.Height > 1.0001 {
			warnings = append(warnings, fmt.Sprintf("component %q extends past the canvas", c.ID))
		}
	}

	for _, b := range []Binding{BindTitle, BindAvatar, BindUserName, BindMetrics} {
		if bound[b] == 0 {
			warnings = append(warnings, fmt.Sprintf("no component is bound to %q", b))
		}
	}

	return warnings
}

// FormatPreset returns a human-readable description of the preset and its
// bound components.
func FormatPreset(preset *Preset) string {
	var s strings.Builder
	fmt.Fprintf(&s, "Preset: %s (v%s) by %s\n", preset.Meta.Name, preset.Meta.Version, preset.Meta.Author)
	if preset.Meta.Description != "" {
		s.WriteString(preset.Meta.Description + "\n")
	}
	fmt.Fprintf(&s, "Canvas: %dx%d\n", preset.Canvas.Width, preset.Canvas.Height)

	s.WriteString("\nComponents:\n")
	for _, rc := range Resolve(preset) {
		bind := string(rc.Bind)
		if bind == "" {
			bind = "static"
		}
		fmt.Fprintf(&s, "  [%s] %-9s at %d,%d size %dx%d\n", rc.ID, bind, rc.PX, rc.PY, rc.PW, rc.PH)
	}
	return s.String()
}
