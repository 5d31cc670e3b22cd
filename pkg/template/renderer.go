// renderer.go - Rasterizes visual trees with gogpu/gg.
// Uses a layered approach per node: box fill -> background image ->
// content (text or image) -> border -> children.
package template

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"slices"
	"sync"

	"github.com/disintegration/imaging"
	"github.com/gogpu/gg"
	"github.com/gogpu/gg/text"
	xdraw "golang.org/x/image/draw"

	"github.com/xob0t/GoPoster/pkg/logger"
)

// AssetResolver maps an asset reference to its bytes, or nil when the
// reference is not an in-memory asset.
type AssetResolver func(ref string) []byte

// Renderer handles image composition from visual trees. A Renderer may be
// shared; calls to Render are serialized.
type Renderer struct {
	mu      sync.Mutex
	fonts   *FontManager
	custom  map[string]*FontManager
	resolve AssetResolver
	images  map[string]image.Image
	log     logger.Logger

	// missing collects runes no font could draw during one Render.
	missing []rune
}

// NewRenderer creates a renderer whose default font is loaded from
// fontPath, falling back to the embedded Go font.
func NewRenderer(fontPath string) (*Renderer, error) {
	fm, err := NewFontManager(fontPath)
	if err != nil {
		return nil, err
	}
	return newRenderer(fm), nil
}

// NewRendererFromBytes creates a renderer from in-memory font data.
func NewRendererFromBytes(fontData []byte) (*Renderer, error) {
	fm, err := NewFontManagerFromBytes(fontData)
	if err != nil {
		return nil, err
	}
	return newRenderer(fm), nil
}

func newRenderer(fm *FontManager) *Renderer {
	return &Renderer{
		fonts:  fm,
		custom: make(map[string]*FontManager),
		images: make(map[string]image.Image),
		log:    logger.Named("renderer"),
	}
}

// SetAssetResolver makes the renderer consult fn before the filesystem
// when loading background images and fonts.
func (r *Renderer) SetAssetResolver(fn AssetResolver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resolve = fn
	r.images = make(map[string]image.Image)
}

// SetLogger replaces the renderer's logger.
func (r *Renderer) SetLogger(l logger.Logger) {
	if l == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.log = l
}

// Missing lists the runes of s the default font cannot draw.
func (r *Renderer) Missing(s string) []rune {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.fonts.Missing(s)
}

// Render rasterizes root and its subtree into an image the size of root.Rect.
func (r *Renderer) Render(root *Node) (*image.RGBA, error) {
	if root == nil {
		return nil, ErrNilNode
	}
	w, h := root.Rect.Dx(), root.Rect.Dy()
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("%w: %q is %dx%d", ErrEmptyNode, root.ID, w, h)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	dc := gg.NewContext(w, h)
	defer dc.Close()

	r.missing = r.missing[:0]
	if err := r.drawNode(dc, root, root.Rect.Min); err != nil {
		return nil, err
	}
	if len(r.missing) > 0 {
		r.log.Warn(context.Background(), "text has glyphs no font can draw, set a CJK font with -font or font_path",
			logger.String("node", root.ID), logger.String("runes", string(r.missing)))
	}

	if img, ok := dc.Image().(*image.RGBA); ok {
		return img, nil
	}
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), dc.Image(), image.Point{}, draw.Src)
	return img, nil
}

// Close releases the fonts held by the renderer.
func (r *Renderer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for path, fm := range r.custom {
		if fm != r.fonts {
			fm.Close()
		}
		delete(r.custom, path)
	}
	return r.fonts.Close()
}

// drawNode paints n translated by -origin, then its children.
func (r *Renderer) drawNode(dc *gg.Context, n *Node, origin image.Point) error {
	rect := n.Rect.Sub(origin)
	if rect.Empty() {
		return nil
	}
	s := n.Style

	if s.BackgroundColor != "" {
		x, y, w, h := rectF(rect)
		dc.SetHexColor(s.BackgroundColor)
		shapePath(dc, x, y, w, h, s)
		if err := dc.Fill(); err != nil {
			return fmt.Errorf("fill %q: %w", n.ID, err)
		}
	}

	if s.BackgroundImage != "" {
		img, err := r.loadImage(s.BackgroundImage)
		if err != nil {
			r.log.Warn(context.Background(), "could not load background image, skipping",
				logger.String("node", n.ID), logger.String("source", s.BackgroundImage), logger.Error(err))
		} else {
			r.drawImage(dc, img, rect, s, s.BackgroundFit)
		}
	}

	switch n.Kind {
	case KindText:
		r.drawText(dc, n, rect)
	case KindImage:
		if n.Image != nil {
			r.drawImage(dc, n.Image, rect, s, "cover")
		}
	}

	if s.BorderWidth > 0 && s.BorderColor != "" {
		bw := float64(s.BorderWidth)
		x, y, w, h := rectF(rect)
		dc.SetHexColor(s.BorderColor)
		dc.SetLineWidth(bw)
		shapePath(dc, x+bw/2, y+bw/2, w-bw, h-bw, s)
		if err := dc.Stroke(); err != nil {
			return fmt.Errorf("stroke %q: %w", n.ID, err)
		}
	}

	for _, c := range n.Children {
		if err := r.drawNode(dc, c, origin); err != nil {
			return err
		}
	}
	return nil
}

// drawImage fits img into rect, clips it to the node's shape and draws it.
func (r *Renderer) drawImage(dc *gg.Context, img image.Image, rect image.Rectangle, s ComponentStyle, fit string) {
	w, h := rect.Dx(), rect.Dy()
	fitted := maskShape(fitImage(img, w, h, fit), w, h, s)
	dc.DrawImage(gg.ImageBufFromImage(fitted), float64(rect.Min.X), float64(rect.Min.Y))
}

// drawText renders wrapped, aligned text inside the padded rect.
func (r *Renderer) drawText(dc *gg.Context, n *Node, rect image.Rectangle) {
	if n.Text == "" {
		return
	}
	s := n.Style
	fm := r.fontFor(s.FontPath)
	r.noteMissing(fm.Missing(n.Text))
	face := fm.GetFace(s.FontSize)
	dc.SetFont(face)
	dc.SetHexColor(s.Color)

	pad := float64(n.Padding)
	x, y, w, h := rectF(rect)
	x, y, w, h = x+pad, y+pad, w-2*pad, h-2*pad

	lines := wrapText(n.Text, w, face)
	lineHeight := face.Size() * max(s.LineHeight, 1)
	m := face.Metrics()
	blockH := lineHeight * float64(len(lines))

	top := y
	switch s.VerticalAlign {
	case "middle":
		top = y + (h-blockH)/2
	case "bottom":
		top = y + h - blockH
	}

	for i, line := range lines {
		baseline := top + float64(i)*lineHeight + (lineHeight-(m.Ascent+m.Descent))/2 + m.Ascent
		lw, _ := dc.MeasureString(line)
		lx := x
		switch s.TextAlign {
		case "center":
			lx = x + (w-lw)/2
		case "right":
			lx = x + w - lw
		}
		dc.DrawString(line, lx, baseline)
	}
}

func (r *Renderer) noteMissing(runes []rune) {
	for _, c := range runes {
		if !slices.Contains(r.missing, c) {
			r.missing = append(r.missing, c)
		}
	}
}

// wrapText breaks text into lines that each fit within maxWidth pixels.
// Breaks prefer word boundaries and fall back to characters, which keeps
// CJK text (no spaces) wrapping correctly.
func wrapText(s string, maxWidth float64, face text.Face) []string {
	if s == "" {
		return nil
	}
	results := text.WrapText(s, face, maxWidth, text.WrapWordChar)
	lines := make([]string, 0, len(results))
	for _, res := range results {
		lines = append(lines, res.Text)
	}
	return lines
}

// fontFor returns the font manager for a per-component font path.
func (r *Renderer) fontFor(path string) *FontManager {
	if path == "" {
		return r.fonts
	}
	if fm, ok := r.custom[path]; ok {
		return fm
	}

	fm := r.fonts
	data, err := r.readAsset(path)
	if err == nil {
		fm, err = NewFontManagerFromBytes(data)
	}
	if err != nil {
		r.log.Warn(context.Background(), "could not load component font, using default",
			logger.String("path", path), logger.Error(err))
		fm = r.fonts
	}
	r.custom[path] = fm
	return fm
}

// loadImage decodes a PNG/JPEG asset, caching the result by reference.
func (r *Renderer) loadImage(ref string) (image.Image, error) {
	if img, ok := r.images[ref]; ok {
		return img, nil
	}
	data, err := r.readAsset(ref)
	if err != nil {
		return nil, err
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", ref, err)
	}
	r.images[ref] = img
	return img, nil
}

func (r *Renderer) readAsset(ref string) ([]byte, error) {
	if r.resolve != nil {
		if data := r.resolve(ref); data != nil {
			return data, nil
		}
	}
	return os.ReadFile(ref)
}

// fitImage scales img into a w×h image according to fit.
func fitImage(img image.Image, w, h int, fit string) image.Image {
	switch fit {
	case "cover":
		return imaging.Fill(img, w, h, imaging.Center, imaging.Lanczos)
	case "contain":
		fitted := imaging.Fit(img, w, h, imaging.Lanczos)
		return imaging.PasteCenter(imaging.New(w, h, color.Transparent), fitted)
	default:
		dst := image.NewRGBA(image.Rect(0, 0, w, h))
		xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, img.Bounds(), xdraw.Src, nil)
		return dst
	}
}

// maskShape clips img to a circle or rounded rectangle. gg draws images
// without honouring the clip path, so the mask is applied to the pixels.
func maskShape(img image.Image, w, h int, s ComponentStyle) image.Image {
	if s.Shape != "circle" && s.CornerRadius <= 0 {
		return img
	}

	mc := gg.NewContext(w, h)
	defer mc.Close()
	mc.SetHexColor("#ffffff")
	shapePath(mc, 0, 0, float64(w), float64(h), s)
	if err := mc.Fill(); err != nil {
		return img
	}

	out := image.NewNRGBA(image.Rect(0, 0, w, h))
	xdraw.DrawMask(out, out.Bounds(), img, img.Bounds().Min, mc.Image(), image.Point{}, xdraw.Src)
	return out
}

// shapePath appends the node's outline to the current path.
func shapePath(dc *gg.Context, x, y, w, h float64, s ComponentStyle) {
	switch {
	case s.Shape == "circle":
		dc.DrawCircle(x+w/2, y+h/2, min(w, h)/2)
	case s.CornerRadius > 0:
		dc.DrawRoundedRectangle(x, y, w, h, min(float64(s.CornerRadius), w/2, h/2))
	default:
		dc.DrawRectangle(x, y, w, h)
	}
}

func rectF(r image.Rectangle) (x, y, w, h float64) {
	return float64(r.Min.X), float64(r.Min.Y), float64(r.Dx()), float64(r.Dy())
}
