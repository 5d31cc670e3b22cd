// Package generator encodes rendered posters as JPEG or PNG.
//
// All output follows a unified pipeline: resolve an image.Image first,
// then encode it in the format named by the file extension.
package generator

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// DefaultQuality is the JPEG quality used when Config.Quality is unset.
// It matches the 0.92 default of the browser canvas encoder.
const DefaultQuality = 92

// ErrUnsupportedFormat is returned for extensions other than .jpg, .jpeg and .png.
var ErrUnsupportedFormat = errors.New("unsupported format")

// Config holds parameters for image generation.
type Config struct {
	Width   int         // Pixel width of the solid fill (default: 750)
	Height  int         // Pixel height of the solid fill (default: 1000)
	Color   string      // Hex "#rrggbb" or "random"
	Quality int         // JPEG quality 1-100 (default: 92)
	Image   image.Image // Pre-rendered image; overrides Width/Height/Color
}

// Generate creates an output file. The format is inferred from the file extension:
//   - ".jpg", ".jpeg" → JPEG image
//   - ".png" → PNG image
//
// If cfg.Image is nil, a solid-color image is created from cfg.Color/Width/Height.
func Generate(output string, cfg Config) error {
	ext := strings.ToLower(filepath.Ext(output))
	if !Supported(ext) {
		return fmt.Errorf("%w %q: use .jpg or .png", ErrUnsupportedFormat, ext)
	}

	f, err := os.Create(output)
	if err != nil {
		return fmt.Errorf("create %s: %w", output, err)
	}
	if err := GenerateToWriter(f, ext, cfg); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// GenerateToWriter writes an image to an io.Writer. The format is specified by
// ext (".jpg", ".jpeg" or ".png"). This is useful for in-memory generation
// (HTTP responses, WASM).
func GenerateToWriter(w io.Writer, ext string, cfg Config) error {
	img, err := resolveImage(cfg)
	if err != nil {
		return err
	}

	switch strings.ToLower(ext) {
	case ".jpg", ".jpeg":
		return writeJPEG(w, img, cfg.Quality)
	case ".png":
		return writePNG(w, img)
	default:
		return fmt.Errorf("%w %q: use .jpg or .png", ErrUnsupportedFormat, ext)
	}
}

// Encode returns the encoded bytes of cfg's image.
func Encode(ext string, cfg Config) ([]byte, error) {
	var buf bytes.Buffer
	if err := GenerateToWriter(&buf, ext, cfg); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Supported reports whether ext names a format this package can write.
func Supported(ext string) bool {
	switch strings.ToLower(ext) {
	case ".jpg", ".jpeg", ".png":
		return true
	}
	return false
}

// resolveImage returns the source image from config, creating a solid-color
// image if none is provided.
func resolveImage(cfg Config) (image.Image, error) {
	if cfg.Image != nil {
		return cfg.Image, nil
	}

	w := cfg.Width
	if w <= 0 {
		w = 750
	}
	h := cfg.Height
	if h <= 0 {
		h = 1000
	}

	r, g, b, err := ParseColor(cfg.Color)
	if err != nil {
		return nil, err
	}

	return NewSolidImage(w, h, toRGBA(r, g, b)), nil
}
