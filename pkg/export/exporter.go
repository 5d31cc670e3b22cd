// Package export captures a subtree of the poster as a JPEG and hands it
// to a Saver, reporting completion or failure through a Task.
package export

import (
	"context"
	"fmt"
	"image"
	"time"

	"github.com/google/uuid"

	"github.com/xob0t/GoPoster/pkg/generator"
	"github.com/xob0t/GoPoster/pkg/logger"
	"github.com/xob0t/GoPoster/pkg/metrics"
	"github.com/xob0t/GoPoster/pkg/poster"
	"github.com/xob0t/GoPoster/pkg/template"
)

// Rasterizer turns a visual tree into pixels.
type Rasterizer interface {
	Render(root *template.Node) (*image.RGBA, error)
}

// Source resolves subtrees of the current visual tree.
type Source interface {
	Find(id string) *template.Node
}

// Option configures an Exporter.
type Option func(*Exporter)

// WithQuality sets the JPEG quality (1-100).
func WithQuality(q int) Option {
	return func(e *Exporter) {
		if q > 0 && q <= 100 {
			e.quality = q
		}
	}
}

// WithSaver sets the saver used by Export.
func WithSaver(s Saver) Option {
	return func(e *Exporter) { e.saver = s }
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(e *Exporter) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithMetrics sets the metrics manager.
func WithMetrics(m *metrics.Manager) Option {
	return func(e *Exporter) { e.metrics = m }
}

// Exporter runs captures. It holds no per-capture state and may be shared.
type Exporter struct {
	raster  Rasterizer
	quality int
	saver   Saver
	logger  logger.Logger
	metrics *metrics.Manager
}

// New returns an exporter rasterizing with r.
func New(r Rasterizer, opts ...Option) *Exporter {
	e := &Exporter{
		raster:  r,
		quality: generator.DefaultQuality,
		logger:  logger.Named("export"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Export captures rootID from src with the configured saver.
func (e *Exporter) Export(ctx context.Context, src Source, rootID string, state poster.FormState) *Task {
	return e.ExportTo(ctx, src, rootID, state, e.saver)
}

// ExportTo resolves rootID in src and, on a goroutine, rasterizes it,
// encodes it as JPEG named after state and calls saver once. ctx bounds
// the saver only; a started rasterization always runs to completion.
func (e *Exporter) ExportTo(ctx context.Context, src Source, rootID string, state poster.FormState, saver Saver) *Task {
	t := newTask(poster.FileName(state))

	node := src.Find(rootID)
	if node == nil {
		t.finish(fmt.Errorf("%w: %q", ErrNodeNotFound, rootID))
		return t
	}
	if saver == nil {
		t.finish(&CaptureError{Stage: StageSave, Err: ErrNoSaver})
		return t
	}

	go e.run(ctx, t, node, saver)
	return t
}

func (e *Exporter) run(ctx context.Context, t *Task, node *template.Node, saver Saver) {
	start := time.Now()
	log := e.logger
	size := 0
	var failed *CaptureError

	defer func() {
		stage := ""
		if failed != nil {
			stage = string(failed.Stage)
			log.Error(ctx, "export failed",
				logger.String("task", t.ID), logger.String("stage", stage), logger.Error(failed.Err))
			t.finish(failed)
		} else {
			log.Info(ctx, "export finished",
				logger.String("task", t.ID), logger.String("file", t.FileName), logger.Int("bytes", size))
			t.finish(nil)
		}
		e.metrics.RecordExport(time.Since(start), size, stage)
	}()

	img, err := e.rasterize(node)
	if err != nil {
		failed = &CaptureError{Stage: StageRasterize, Err: err}
		return
	}

	data, err := generator.Encode(".jpg", generator.Config{Image: img, Quality: e.quality})
	if err != nil {
		failed = &CaptureError{Stage: StageEncode, Err: err}
		return
	}
	size = len(data)

	d := Download{FileName: t.FileName, ContentType: ContentTypeOctetStream, Data: data}
	if err := saver.Save(ctx, d); err != nil {
		failed = &CaptureError{Stage: StageSave, Err: err}
	}
}

// rasterize renders node, turning a panic inside the rasterizer into an error.
func (e *Exporter) rasterize(node *template.Node) (img *image.RGBA, err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			img, err = nil, fmt.Errorf("panic: %v", r)
		}
		e.metrics.RecordRasterize(time.Since(start))
	}()
	return e.raster.Render(node)
}

// Task tracks one capture.
type Task struct {
	ID       string
	FileName string

	done chan struct{}
	err  error
}

func newTask(fileName string) *Task {
	return &Task{
		ID:       uuid.NewString(),
		FileName: fileName,
		done:     make(chan struct{}),
	}
}

func (t *Task) finish(err error) {
	t.err = err
	close(t.done)
}

// Done is closed when the capture has finished.
func (t *Task) Done() <-chan struct{} { return t.done }

// Wait blocks until the capture finishes or ctx ends.
func (t *Task) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return t.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Err returns the capture's error once Done is closed, and nil before.
func (t *Task) Err() error {
	select {
	case <-t.done:
		return t.err
	default:
		return nil
	}
}
