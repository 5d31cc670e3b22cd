// fonts.go - Font management with custom TTF support and embedded fallback font.
// Faces come from gogpu/gg's text package. Go Regular backs every custom
// font and is used alone when none is specified or loading fails.
package template

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"unicode"

	"github.com/gogpu/gg/text"
	"golang.org/x/image/font/gofont/goregular"

	"github.com/xob0t/GoPoster/pkg/logger"
)

// FontManager handles font loading with fallback and caches faces by size.
// A custom font is tried first for every rune and the embedded Go font
// second.
type FontManager struct {
	primary  *text.FontSource // nil without a custom font
	fallback *text.FontSource

	mu    sync.Mutex
	faces map[float64]text.Face
}

// NewFontManager creates a font manager with the specified font.
// If customPath is empty or invalid, uses embedded Go font.
func NewFontManager(customPath string) (*FontManager, error) {
	var fontData []byte

	// Try custom font first
	if customPath != "" {
		data, err := os.ReadFile(customPath)
		if err != nil {
			logger.Named("fonts").Warn(context.Background(), "could not load custom font, using default",
				logger.String("path", customPath), logger.Error(err))
		} else {
			fontData = data
		}
	}

	return NewFontManagerFromBytes(fontData)
}

// NewFontManagerFromBytes parses fontData as the primary font. The embedded
// Go font is always loaded as the fallback.
func NewFontManagerFromBytes(fontData []byte) (*FontManager, error) {
	fallback, err := text.NewFontSource(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("failed to parse embedded font: %w", err)
	}

	fm := &FontManager{fallback: fallback, faces: make(map[float64]text.Face)}
	if len(fontData) > 0 {
		primary, err := text.NewFontSource(fontData)
		if err != nil {
			fallback.Close()
			return nil, fmt.Errorf("failed to parse font: %w", err)
		}
		fm.primary = primary
	}
	return fm, nil
}

// GetFace returns a face at the specified size in pixels. With a custom
// font the face falls back to the Go font rune by rune.
func (fm *FontManager) GetFace(size float64) text.Face {
	if size <= 0 {
		size = defaultStyle.FontSize
	}

	fm.mu.Lock()
	defer fm.mu.Unlock()
	if f, ok := fm.faces[size]; ok {
		return f
	}

	var f text.Face = fm.fallback.Face(size)
	if fm.primary != nil {
		if multi, err := text.NewMultiFace(fm.primary.Face(size), f); err == nil {
			f = multi
		} else {
			f = fm.primary.Face(size)
		}
	}
	fm.faces[size] = f
	return f
}

// Missing lists, once each and in order, the runes of s that no loaded
// font can draw. Spaces and control characters are ignored.
func (fm *FontManager) Missing(s string) []rune {
	face := fm.GetFace(defaultStyle.FontSize)
	var out []rune
	seen := make(map[rune]struct{})
	for _, r := range s {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			continue
		}
		if _, ok := seen[r]; ok || face.HasGlyph(r) {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	return out
}

// Name returns the font family name.
func (fm *FontManager) Name() string {
	if fm.primary != nil {
		return fm.primary.Name()
	}
	return fm.fallback.Name()
}

// Close releases the parsed fonts.
func (fm *FontManager) Close() error {
	fm.mu.Lock()
	fm.faces = make(map[float64]text.Face)
	fm.mu.Unlock()

	var err error
	if fm.primary != nil {
		err = fm.primary.Close()
	}
	return errors.Join(err, fm.fallback.Close())
}
