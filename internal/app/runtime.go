// Package app wires the poster pipeline together: a Runtime holds what is
// shared by the process (template, renderer, metrics) and hands out
// independent Sessions.
package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/xob0t/GoPoster/internal/config"
	"github.com/xob0t/GoPoster/pkg/logger"
	"github.com/xob0t/GoPoster/pkg/metrics"
	"github.com/xob0t/GoPoster/pkg/poster"
	"github.com/xob0t/GoPoster/pkg/template"
)

// Runtime is the process-wide part of the pipeline.
type Runtime struct {
	Config   *config.Config
	Preset   *template.Preset
	Renderer *template.Renderer
	Metrics  *metrics.Manager

	// MissingGlyphs lists the runes of the fixed poster text (title frame,
	// metric labels) the configured fonts cannot draw.
	MissingGlyphs []rune

	logger  logger.Logger
	cleanup func()
}

// RuntimeOption configures a Runtime.
type RuntimeOption func(*Runtime)

// WithRuntimeMetrics sets the metrics manager shared by every session.
func WithRuntimeMetrics(m *metrics.Manager) RuntimeOption {
	return func(r *Runtime) { r.Metrics = m }
}

// NewMetrics builds the metrics manager described by cfg: custom latency
// buckets, and the Go runtime collectors on the same registry when enabled.
func NewMetrics(cfg *config.Config) *metrics.Manager {
	reg := prometheus.NewRegistry()
	if cfg.MetricsRuntime {
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	return metrics.NewManager(
		metrics.WithRegistry(reg),
		metrics.WithHistogramBuckets(cfg.MetricsBuckets),
	)
}

// WithPreset uses p instead of loading cfg.Template.
func WithPreset(p *template.Preset) RuntimeOption {
	return func(r *Runtime) { r.Preset = p }
}

// NewRuntime loads the template named by cfg and builds the renderer.
// Layout problems are logged as warnings and never fatal.
func NewRuntime(ctx context.Context, cfg *config.Config, opts ...RuntimeOption) (*Runtime, error) {
	r := &Runtime{
		Config:  cfg,
		logger:  logger.Named("app"),
		cleanup: func() {},
	}
	for _, opt := range opts {
		opt(r)
	}

	if r.Preset == nil {
		preset, cleanup, err := template.Load(cfg.Template)
		if err != nil {
			return nil, fmt.Errorf("load template: %w", err)
		}
		r.Preset, r.cleanup = preset, cleanup
	}
	for _, w := range template.ValidatePreset(r.Preset) {
		r.logger.Warn(ctx, "template warning", logger.String("warning", w))
	}

	fontPath := cfg.FontPath
	if fontPath == "" {
		fontPath = r.Preset.Font.Path
	}
	renderer, err := template.NewRenderer(fontPath)
	if err != nil {
		r.cleanup()
		return nil, fmt.Errorf("create renderer: %w", err)
	}
	r.Renderer = renderer

	if r.MissingGlyphs = renderer.Missing(fixedText()); len(r.MissingGlyphs) > 0 {
		r.logger.Warn(ctx, "font cannot draw the poster text, set a CJK font with -font or font_path",
			logger.String("font", fontPath), logger.String("runes", string(r.MissingGlyphs)))
	}

	r.logger.Info(ctx, "template loaded",
		logger.String("name", r.Preset.Meta.Name),
		logger.Int("width", r.Preset.Canvas.Width),
		logger.Int("height", r.Preset.Canvas.Height))
	return r, nil
}

// fixedText is the text every poster draws whatever the form holds.
func fixedText() string {
	var b strings.Builder
	b.WriteString(poster.Title(poster.FormState{}))
	for _, m := range poster.NewProjector().Project(poster.FormState{}) {
		b.WriteString(m.Label)
	}
	return b.String()
}

// NewSession creates a session on the runtime's template and renderer with
// the configured limits.
func (r *Runtime) NewSession(opts ...SessionOption) *Session {
	base := []SessionOption{
		WithLogger(r.logger),
		WithMetrics(r.Metrics),
		WithMaxAvatarBytes(r.Config.MaxAvatarBytes),
		WithQuality(r.Config.JPEGQuality),
	}
	return NewSession(r.Preset, r.Renderer, append(base, opts...)...)
}

// Close releases the renderer and any extracted template bundle.
func (r *Runtime) Close() error {
	defer r.cleanup()
	return r.Renderer.Close()
}
