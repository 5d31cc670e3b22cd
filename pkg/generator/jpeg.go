// jpeg.go - JPEG writer.
package generator

import (
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"
	"io"
)

// writeJPEG encodes img as JPEG into w. JPEG has no alpha channel, so
// translucent pixels are flattened onto white first.
func writeJPEG(w io.Writer, img image.Image, quality int) error {
	if quality <= 0 {
		quality = DefaultQuality
	}
	quality = min(quality, 100)

	if err := jpeg.Encode(w, flatten(img), &jpeg.Options{Quality: quality}); err != nil {
		return fmt.Errorf("encode JPEG: %w", err)
	}
	return nil
}

// flatten composites img over an opaque white background.
func flatten(img image.Image) image.Image {
	if o, ok := img.(interface{ Opaque() bool }); ok && o.Opaque() {
		return img
	}
	b := img.Bounds()
	dst := NewSolidImage(b.Dx(), b.Dy(), toRGBA(255, 255, 255))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Over)
	return dst
}
