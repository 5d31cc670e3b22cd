// loader.go - Load .gspresets (ZIP) bundles and parse preset.json.
package template

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// Load returns the preset named by path: "" selects the embedded default,
// a .json file is parsed directly, anything else is opened as a bundle.
// The returned cleanup function is never nil.
func Load(path string) (*Preset, func(), error) {
	noop := func() {}
	switch {
	case path == "":
		p, err := Default()
		return p, noop, err
	case strings.EqualFold(filepath.Ext(path), ".json"):
		p, err := ParsePresetFile(path)
		if err != nil {
			return nil, noop, err
		}
		resolveAssetPaths(p, filepath.Dir(path))
		return p, noop, nil
	default:
		return LoadPreset(path)
	}
}

// LoadPreset opens a .gspresets ZIP, extracts it to a temp directory,
// parses preset.json, resolves all asset paths, and returns the preset.
// The returned cleanup function removes the temp directory.
func LoadPreset(path string) (*Preset, func(), error) {
	noop := func() {}

	r, err := zip.OpenReader(path)
	if err != nil {
		return nil, noop, fmt.Errorf("open %s: %w", path, err)
	}
	defer r.Close()

	// Extract to temp dir.
	tmpDir, err := os.MkdirTemp("", "gspresets-*")
	if err != nil {
		return nil, noop, fmt.Errorf("create temp dir: %w", err)
	}
	cleanup := func() { os.RemoveAll(tmpDir) }

	if err := extractZip(&r.Reader, tmpDir); err != nil {
		cleanup()
		return nil, noop, fmt.Errorf("extract %s: %w", path, err)
	}

	preset, err := ParsePresetFile(filepath.Join(tmpDir, "preset.json"))
	if err != nil {
		cleanup()
		return nil, noop, err
	}

	// Resolve asset paths relative to tmpDir.
	resolveAssetPaths(preset, tmpDir)

	return preset, cleanup, nil
}

// LoadPresetBytes reads a bundle held in memory. Assets stay in memory and
// are keyed by their slash-separated path inside the archive, ready to be
// served by an AssetResolver.
func LoadPresetBytes(data []byte) (*Preset, map[string][]byte, error) {
	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, nil, fmt.Errorf("open bundle: %w", err)
	}

	assets := make(map[string][]byte, len(r.File))
	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}
		b, err := readZipFile(f)
		if err != nil {
			return nil, nil, fmt.Errorf("read %s: %w", f.Name, err)
		}
		assets[path.Clean(f.Name)] = b
	}

	raw, ok := assets["preset.json"]
	if !ok {
		return nil, nil, fmt.Errorf("%w: bundle has no preset.json", ErrInvalidPreset)
	}
	delete(assets, "preset.json")

	preset, err := ParsePreset(raw)
	if err != nil {
		return nil, nil, err
	}
	return preset, assets, nil
}

// resolveAssetPaths makes all relative asset paths absolute using baseDir.
func resolveAssetPaths(preset *Preset, baseDir string) {
	resolve := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(baseDir, p)
	}

	preset.Font.Path = resolve(preset.Font.Path)
	preset.Background.Source = resolve(preset.Background.Source)

	for i := range preset.Components {
		s := &preset.Components[i].Style
		s.BackgroundImage = resolve(s.BackgroundImage)
		s.FontPath = resolve(s.FontPath)
	}
}

// extractZip extracts all files from a zip reader into destDir.
func extractZip(r *zip.Reader, destDir string) error {
	for _, f := range r.File {
		target := filepath.Join(destDir, f.Name)

		// Guard against zip slip.
		if !strings.HasPrefix(filepath.Clean(target), filepath.Clean(destDir)+string(os.PathSeparator)) {
			return fmt.Errorf("illegal path in zip: %s", f.Name)
		}

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0755); err != nil {
				return err
			}
			continue
		}

		// Ensure parent directory exists.
		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return err
		}

		if err := extractFile(f, target); err != nil {
			return err
		}
	}
	return nil
}

// extractFile writes a single zip entry to disk.
func extractFile(f *zip.File, target string) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	out, err := os.Create(target)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, rc)
	return err
}

func readZipFile(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
