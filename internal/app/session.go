// session.go - One editing session composed from the pipeline parts.
package app

import (
	"context"
	"image"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/xob0t/GoPoster/pkg/export"
	"github.com/xob0t/GoPoster/pkg/logger"
	"github.com/xob0t/GoPoster/pkg/metrics"
	"github.com/xob0t/GoPoster/pkg/poster"
	"github.com/xob0t/GoPoster/pkg/preview"
	"github.com/xob0t/GoPoster/pkg/template"
)

// Session is one editing session: its own store, projector, ingestor,
// preview and exporter. Sessions share nothing but the template and the
// renderer.
type Session struct {
	ID        string
	Store     *poster.Store
	Projector *poster.Projector
	Ingestor  *poster.Ingestor
	Preview   *preview.Preview
	Exporter  *export.Exporter

	renderer *template.Renderer
	metrics  *metrics.Manager
	logger   logger.Logger
	lastSeen atomic.Int64
}

type sessionOptions struct {
	logger   logger.Logger
	metrics  *metrics.Manager
	maxBytes int64
	quality  int
	saver    export.Saver
}

// SessionOption configures a Session.
type SessionOption func(*sessionOptions)

// WithLogger sets the parent logger; the session logs under its own name.
func WithLogger(l logger.Logger) SessionOption {
	return func(o *sessionOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMetrics sets the metrics manager.
func WithMetrics(m *metrics.Manager) SessionOption {
	return func(o *sessionOptions) { o.metrics = m }
}

// WithMaxAvatarBytes sets the exclusive avatar size limit.
func WithMaxAvatarBytes(n int64) SessionOption {
	return func(o *sessionOptions) { o.maxBytes = n }
}

// WithQuality sets the export JPEG quality.
func WithQuality(q int) SessionOption {
	return func(o *sessionOptions) { o.quality = q }
}

// WithSaver sets the default saver used by Submit.
func WithSaver(s export.Saver) SessionOption {
	return func(o *sessionOptions) { o.saver = s }
}

// NewSession composes a session explicitly; nothing is global.
func NewSession(preset *template.Preset, renderer *template.Renderer, opts ...SessionOption) *Session {
	o := sessionOptions{logger: logger.Named("app"), maxBytes: poster.DefaultMaxAvatarBytes}
	for _, opt := range opts {
		opt(&o)
	}

	id := uuid.NewString()
	log := o.logger.Named("session")

	store := poster.NewStore()
	projector := poster.NewProjector()
	s := &Session{
		ID:        id,
		Store:     store,
		Projector: projector,
		Ingestor: poster.NewIngestor(store,
			poster.WithMaxBytes(o.maxBytes),
			poster.WithIngestLogger(log),
			poster.WithIngestMetrics(o.metrics)),
		Preview: preview.New(store, preset,
			preview.WithProjector(projector),
			preview.WithLogger(log),
			preview.WithMetrics(o.metrics)),
		Exporter: export.New(renderer,
			export.WithQuality(o.quality),
			export.WithSaver(o.saver),
			export.WithLogger(log),
			export.WithMetrics(o.metrics)),
		renderer: renderer,
		metrics:  o.metrics,
		logger:   log,
	}
	s.Touch()
	return s
}

// Update merges field changes from a front end into the store.
func (s *Session) Update(changed map[string]any) ([]poster.Field, error) {
	s.Touch()
	fields, err := s.Store.Update(changed)
	s.metrics.RecordFieldUpdates(len(fields))
	return fields, err
}

// Validate checks the current form state.
func (s *Session) Validate() error {
	return poster.Validate(s.Preview.State())
}

// Submit validates the current form state and starts exporting the poster
// root to saver, or to the session's default saver when saver is nil.
// A *poster.ValidationError is returned when the form is incomplete.
func (s *Session) Submit(ctx context.Context, saver export.Saver) (*export.Task, error) {
	s.Touch()
	state := s.Preview.State()
	if err := poster.Validate(state); err != nil {
		return nil, err
	}
	if saver == nil {
		return s.Exporter.Export(ctx, s.Preview, template.RootID, state), nil
	}
	return s.Exporter.ExportTo(ctx, s.Preview, template.RootID, state, saver), nil
}

// RenderPreview rasterizes the current tree.
func (s *Session) RenderPreview() (*image.RGBA, error) {
	s.Touch()
	return s.renderer.Render(s.Preview.Tree())
}

// Touch marks the session as used now.
func (s *Session) Touch() {
	s.lastSeen.Store(time.Now().UnixNano())
}

// IdleSince reports when the session was last used.
func (s *Session) IdleSince() time.Time {
	return time.Unix(0, s.lastSeen.Load())
}

// Close detaches the preview; the session must not be used afterwards.
func (s *Session) Close() {
	s.Preview.Close()
}
