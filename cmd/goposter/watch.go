// watch.go - Re-render the preview when the form or avatar changes.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/xob0t/GoPoster/internal/app"
	"github.com/xob0t/GoPoster/pkg/generator"
	"github.com/xob0t/GoPoster/pkg/logger"
	"github.com/xob0t/GoPoster/pkg/poster"
)

// watcher re-renders the preview whenever the form file or its avatar
// changes.
type watcher struct {
	rt          *app.Runtime
	formPath    string
	previewPath string
	debounce    time.Duration

	// watched holds the cleaned paths whose events trigger a render.
	watched map[string]struct{}
}

func (w *watcher) run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fsw.Close()

	// Watch the directory: editors often replace the file instead of
	// writing it in place.
	if err := fsw.Add(filepath.Dir(w.formPath)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(w.formPath), err)
	}

	log := logger.Named("watch")
	w.refresh(ctx, fsw, log)

	var pending time.Time
	ticker := time.NewTicker(w.debounce / 3)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			if _, ok := w.watched[filepath.Clean(event.Name)]; ok {
				pending = time.Now()
			}

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			log.Warn(ctx, "watcher error", logger.Error(err))

		case now := <-ticker.C:
			// Wait for the writes to settle before rendering.
			if !pending.IsZero() && now.Sub(pending) >= w.debounce {
				pending = time.Time{}
				w.refresh(ctx, fsw, log)
			}
		}
	}
}

// refresh renders once and updates the watched set to the current avatar.
func (w *watcher) refresh(ctx context.Context, fsw *fsnotify.Watcher, log logger.Logger) {
	w.watched = map[string]struct{}{filepath.Clean(w.formPath): {}}

	form, err := w.render(ctx)
	if form != nil && form.Avatar != "" {
		w.watched[filepath.Clean(form.Avatar)] = struct{}{}
		if dir := filepath.Dir(form.Avatar); dir != filepath.Dir(w.formPath) {
			_ = fsw.Add(dir)
		}
	}
	if err != nil {
		log.Warn(ctx, "preview not updated", logger.Error(err))
		fmt.Fprintf(os.Stderr, "%s: %v\n", time.Now().Format("15:04:05"), err)
		return
	}
	fmt.Printf("%s: updated %s\n", time.Now().Format("15:04:05"), w.previewPath)
}

// render writes the preview for the current form file. Incomplete forms
// still render with placeholders; their problems are printed.
func (w *watcher) render(ctx context.Context) (*Form, error) {
	form, err := loadForm(w.formPath)
	if err != nil {
		return nil, err
	}

	sess := w.rt.NewSession()
	defer sess.Close()
	if err := form.apply(ctx, sess); err != nil && !isFieldError(err) {
		return form, err
	}

	img, err := sess.RenderPreview()
	if err != nil {
		return form, fmt.Errorf("render preview: %w", err)
	}
	if err := generator.Generate(w.previewPath, generator.Config{Image: img, Quality: w.rt.Config.JPEGQuality}); err != nil {
		return form, err
	}

	if err := sess.Validate(); err != nil {
		printProblems(err)
	}
	return form, nil
}

// isFieldError reports errors that leave the rest of the form usable.
func isFieldError(err error) bool {
	return errors.Is(err, poster.ErrInvalidValue) ||
		errors.Is(err, poster.ErrUnsupportedType) ||
		errors.Is(err, poster.ErrTooLarge) ||
		errors.Is(err, os.ErrNotExist)
}

func previewExt(path string) string {
	return strings.ToLower(filepath.Ext(path))
}
