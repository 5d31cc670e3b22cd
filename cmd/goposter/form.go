// form.go - YAML/JSON form files applied to a session.
package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/xob0t/GoPoster/internal/app"
	"github.com/xob0t/GoPoster/pkg/poster"
)

// avatarKey names the avatar file in a form file, the way the upload control
// reports its picked file. The store allow-list drops it; only ingestion
// writes userAvatar.
const avatarKey = "userAvatarUpload"

// Form is a form file: field values plus an optional avatar path.
type Form struct {
	Values map[string]any
	Avatar string // absolute, or empty
}

// loadForm reads a YAML or JSON form file. A relative avatar path is taken
// relative to the form file.
func loadForm(path string) (*Form, error) {
	k := koanf.New(".")
	// The YAML parser reads JSON too.
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("load form %s: %w", path, err)
	}

	f := &Form{Values: k.Raw()}
	if avatar := k.String(avatarKey); avatar != "" {
		if !filepath.IsAbs(avatar) {
			avatar = filepath.Join(filepath.Dir(path), avatar)
		}
		f.Avatar = avatar
	}
	return f, nil
}

// apply writes the form into the session: field values first, then the
// avatar through the ingestor. Every problem is returned joined; what could
// be applied is applied.
func (f *Form) apply(ctx context.Context, sess *app.Session) error {
	var errs []error
	if _, err := sess.Update(f.Values); err != nil {
		errs = append(errs, err)
	}
	if f.Avatar != "" {
		if err := f.ingest(ctx, sess); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f *Form) ingest(ctx context.Context, sess *app.Session) error {
	file, closeFile, err := poster.FileFromPath(f.Avatar)
	if err != nil {
		return err
	}
	defer closeFile()
	_, err = sess.Ingestor.Ingest(ctx, file)
	return err
}
