// Package bridge is the in-browser side of GoPoster: one session driven by
// JavaScript callbacks, with template assets held in memory.
package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/xob0t/GoPoster/internal/app"
	"github.com/xob0t/GoPoster/internal/config"
	"github.com/xob0t/GoPoster/pkg/export"
	"github.com/xob0t/GoPoster/pkg/generator"
	"github.com/xob0t/GoPoster/pkg/logger"
	"github.com/xob0t/GoPoster/pkg/poster"
	"github.com/xob0t/GoPoster/pkg/template"
)

// State is what the page needs to redraw its form.
type State struct {
	State    poster.FormState `json:"state"`
	Revision uint64           `json:"revision"`
	Title    string           `json:"title"`
	Error    string           `json:"error,omitempty"`
}

// Failure is reported to the page when an action cannot complete.
type Failure struct {
	Error    string                  `json:"error"`
	Stage    export.Stage            `json:"stage,omitempty"`
	Messages map[poster.Field]string `json:"messages,omitempty"`
	Rejected []string                `json:"rejected,omitempty"`
}

// Bridge owns the page's single session.
type Bridge struct {
	cfg    *config.Config
	logger logger.Logger

	mu       sync.RWMutex
	assets   map[string][]byte
	preset   *template.Preset
	renderer *template.Renderer
	session  *app.Session
	saver    *export.DataURLSaver
}

// New starts a bridge on the embedded template.
func New(cfg *config.Config) (*Bridge, error) {
	preset, err := template.Default()
	if err != nil {
		return nil, err
	}
	b := &Bridge{cfg: cfg, logger: logger.Named("wasm"), assets: make(map[string][]byte)}
	if err := b.use(preset); err != nil {
		return nil, err
	}
	return b, nil
}

// LoadTemplate replaces the template with a .gspresets bundle. The form
// starts over.
func (b *Bridge) LoadTemplate(bundle []byte) error {
	preset, assets, err := template.LoadPresetBytes(bundle)
	if err != nil {
		return err
	}
	b.mu.Lock()
	for name, data := range assets {
		b.assets[name] = data
	}
	b.mu.Unlock()
	return b.use(preset)
}

func (b *Bridge) use(preset *template.Preset) error {
	var (
		renderer *template.Renderer
		err      error
	)
	if font := b.resolve(preset.Font.Path); font != nil {
		renderer, err = template.NewRendererFromBytes(font)
	} else {
		renderer, err = template.NewRenderer("")
	}
	if err != nil {
		return fmt.Errorf("renderer: %w", err)
	}
	renderer.SetAssetResolver(b.resolve)

	saver := &export.DataURLSaver{}
	session := app.NewSession(preset, renderer,
		app.WithLogger(b.logger),
		app.WithMaxAvatarBytes(b.cfg.MaxAvatarBytes),
		app.WithQuality(b.cfg.JPEGQuality),
		app.WithSaver(saver))

	b.mu.Lock()
	oldSession, oldRenderer := b.session, b.renderer
	b.preset, b.renderer, b.session, b.saver = preset, renderer, session, saver
	b.mu.Unlock()

	if oldSession != nil {
		oldSession.Close()
		_ = oldRenderer.Close()
	}
	return nil
}

// RegisterAsset stores data under id for the renderer to find.
func (b *Bridge) RegisterAsset(id string, data []byte) {
	b.mu.Lock()
	b.assets[id] = data
	b.mu.Unlock()
}

// RemoveAsset forgets id.
func (b *Bridge) RemoveAsset(id string) {
	b.mu.Lock()
	delete(b.assets, id)
	b.mu.Unlock()
}

func (b *Bridge) resolve(id string) []byte {
	if id == "" {
		return nil
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.assets[id]
}

func (b *Bridge) current() (*app.Session, *export.DataURLSaver) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.session, b.saver
}

// Schema returns the form controls as JSON.
func (b *Bridge) Schema() string {
	return mustJSON(poster.Schema)
}

// State returns the current form as JSON.
func (b *Bridge) State() string {
	s, _ := b.current()
	return mustJSON(stateOf(s))
}

// UpdateFields merges a JSON object of changed fields.
func (b *Bridge) UpdateFields(changedJSON string) (string, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(changedJSON)))
	dec.UseNumber()
	var changed map[string]any
	if err := dec.Decode(&changed); err != nil {
		return "", fmt.Errorf("decode fields: %w", err)
	}

	s, _ := b.current()
	_, err := s.Update(changed)
	st := stateOf(s)
	if err != nil {
		st.Error = err.Error()
	}
	return mustJSON(st), nil
}

// Reset clears the form.
func (b *Bridge) Reset() string {
	s, _ := b.current()
	s.Store.Reset()
	return mustJSON(stateOf(s))
}

// IngestAvatar validates the picked file and ingests it off the caller's
// goroutine. done receives the new state JSON or a Failure JSON.
func (b *Bridge) IngestAvatar(ctx context.Context, name, typ string, data []byte, done func(result string, failed bool)) {
	s, _ := b.current()
	f := poster.File{Name: name, Type: typ, Size: int64(len(data)), Content: bytes.NewReader(data)}

	var rejected []string
	s.Ingestor.BeforeUpload(f, func(err error) {
		var re *poster.RejectionError
		if errors.As(err, &re) {
			rejected = append(rejected, re.Message())
		}
	})
	if len(rejected) > 0 {
		done(mustJSON(Failure{Error: "avatar rejected", Rejected: rejected}), true)
		return
	}

	s.Ingestor.IngestAsync(ctx, f, func(_ string, err error) {
		if err != nil {
			done(mustJSON(Failure{Error: err.Error()}), true)
			return
		}
		done(mustJSON(stateOf(s)), false)
	})
}

// RenderPNG rasterizes the current preview.
func (b *Bridge) RenderPNG() ([]byte, error) {
	s, _ := b.current()
	img, err := s.RenderPreview()
	if err != nil {
		return nil, err
	}
	return generator.Encode(".png", generator.Config{Image: img})
}

// Export validates the form and captures the poster. done receives the
// download href and file name, or a Failure JSON in failure.
func (b *Bridge) Export(ctx context.Context, done func(href, fileName, failure string)) {
	s, saver := b.current()
	task, err := s.Submit(ctx, nil)
	if err != nil {
		f := Failure{Error: err.Error()}
		var ve *poster.ValidationError
		if errors.As(err, &ve) {
			f.Messages = ve.Messages()
		}
		done("", "", mustJSON(f))
		return
	}

	go func() {
		<-task.Done()
		if err := task.Err(); err != nil {
			f := Failure{Error: err.Error()}
			var ce *export.CaptureError
			if errors.As(err, &ce) {
				f.Stage = ce.Stage
			}
			done("", "", mustJSON(f))
			return
		}
		href, name := saver.Href()
		done(href, name, "")
	}()
}

// OnChange forwards preview rebuilds; the returned func cancels.
func (b *Bridge) OnChange(fn func(revision uint64, title string)) (cancel func()) {
	s, _ := b.current()
	return s.Preview.OnChange(func(rev uint64) {
		fn(rev, s.Preview.Title())
	})
}

func stateOf(s *app.Session) State {
	return State{State: s.Preview.State(), Revision: s.Preview.Revision(), Title: s.Preview.Title()}
}

func mustJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf(`{"error":%q}`, err.Error())
	}
	return string(data)
}
