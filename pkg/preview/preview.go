// Package preview keeps a visual tree of the poster in step with a form
// store. It is a pure projection: it reads the store and never writes it.
package preview

import (
	"bytes"
	"context"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"strconv"
	"sync"

	"github.com/xob0t/GoPoster/pkg/logger"
	"github.com/xob0t/GoPoster/pkg/metrics"
	"github.com/xob0t/GoPoster/pkg/poster"
	"github.com/xob0t/GoPoster/pkg/template"
)

// Listener receives the revision of each rebuilt tree.
type Listener func(revision uint64)

// Option configures a Preview.
type Option func(*Preview)

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(p *Preview) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithMetrics sets the metrics manager.
func WithMetrics(m *metrics.Manager) Option {
	return func(p *Preview) { p.metrics = m }
}

// WithProjector shares a projector instead of creating one.
func WithProjector(pr *poster.Projector) Option {
	return func(p *Preview) {
		if pr != nil {
			p.projector = pr
		}
	}
}

// Preview is the live visual tree of one session.
type Preview struct {
	store     *poster.Store
	projector *poster.Projector
	preset    *template.Preset
	layout    []template.ResolvedComponent
	bound     []poster.Field
	logger    logger.Logger
	metrics   *metrics.Manager

	mu       sync.RWMutex
	state    poster.FormState
	tree     *template.Node
	revision uint64
	avatar   avatarCache

	lmu       sync.Mutex
	listeners map[int]Listener
	nextID    int

	unsubscribe func()
}

type avatarCache struct {
	uri string
	img image.Image
}

// New builds the initial tree from the store's current state and
// subscribes to further changes.
func New(store *poster.Store, preset *template.Preset, opts ...Option) *Preview {
	p := &Preview{
		store:     store,
		projector: poster.NewProjector(),
		preset:    preset,
		layout:    template.Resolve(preset),
		logger:    logger.Named("preview"),
		listeners: make(map[int]Listener),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.bound = boundFields(p.layout)

	// Subscribe under the lock so no change between the first snapshot and
	// the subscription is lost; early notifications wait for the build.
	p.mu.Lock()
	p.unsubscribe = store.Subscribe(p.onChange)
	p.state = store.Snapshot()
	p.tree = p.build(p.state)
	p.mu.Unlock()
	return p
}

// boundFields lists the form fields displayed by the layout.
func boundFields(layout []template.ResolvedComponent) []poster.Field {
	seen := make(map[poster.Field]struct{})
	add := func(fs ...poster.Field) {
		for _, f := range fs {
			seen[f] = struct{}{}
		}
	}
	for _, rc := range layout {
		switch rc.Bind {
		case template.BindTitle:
			add(poster.TitleFields...)
		case template.BindAvatar:
			add(poster.FieldUserAvatar)
		case template.BindUserName:
			add(poster.FieldUserName)
		case template.BindMetrics:
			add(poster.MetricFields...)
		}
	}
	out := make([]poster.Field, 0, len(seen))
	for _, f := range poster.Fields {
		if _, ok := seen[f]; ok {
			out = append(out, f)
		}
	}
	return out
}

// Bound reports the fields whose changes rebuild the tree.
func (p *Preview) Bound() []poster.Field {
	return append([]poster.Field(nil), p.bound...)
}

// onChange tracks every store change in p.state; only changes to bound
// fields rebuild the tree and bump the revision.
func (p *Preview) onChange(poster.Change) {
	p.mu.Lock()
	// Re-read the store so concurrent updates cannot leave an older state
	// as the last one seen.
	next := p.store.Snapshot()
	if !p.affects(next) {
		p.state = next
		p.mu.Unlock()
		return
	}
	p.state = next
	p.tree = p.build(next)
	p.revision++
	rev := p.revision
	p.mu.Unlock()

	p.metrics.RecordPreviewRebuild()
	p.logger.Debug(context.Background(), "preview rebuilt", logger.Any("revision", rev))

	for _, fn := range p.snapshotListeners() {
		fn(rev)
	}
}

// affects reports whether next differs from the built state in a bound field.
func (p *Preview) affects(next poster.FormState) bool {
	for _, f := range poster.Diff(p.state, next) {
		for _, b := range p.bound {
			if f == b {
				return true
			}
		}
	}
	return false
}

// Tree returns the current visual tree. Trees are never mutated after they
// are built, so the result may be used without further locking.
func (p *Preview) Tree() *template.Node {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.tree
}

// State returns the latest form state. Fields the layout does not display
// are current even when they did not cause a rebuild.
func (p *Preview) State() poster.FormState {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state.Clone()
}

// Revision counts rebuilds since construction.
func (p *Preview) Revision() uint64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.revision
}

// Find resolves a subtree of the current tree by ID.
func (p *Preview) Find(id string) *template.Node {
	return p.Tree().Find(id)
}

// Title returns the title text currently displayed.
func (p *Preview) Title() string {
	return poster.Title(p.State())
}

// OnChange registers fn for rebuild notifications and returns its cancel func.
func (p *Preview) OnChange(fn Listener) (cancel func()) {
	p.lmu.Lock()
	id := p.nextID
	p.nextID++
	p.listeners[id] = fn
	p.lmu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			p.lmu.Lock()
			delete(p.listeners, id)
			p.lmu.Unlock()
		})
	}
}

func (p *Preview) snapshotListeners() []Listener {
	p.lmu.Lock()
	defer p.lmu.Unlock()
	out := make([]Listener, 0, len(p.listeners))
	for id := 0; id < p.nextID; id++ {
		if fn, ok := p.listeners[id]; ok {
			out = append(out, fn)
		}
	}
	return out
}

// Close detaches the preview from its store.
func (p *Preview) Close() {
	p.unsubscribe()
}

// build projects state onto the layout. Callers hold p.mu.
func (p *Preview) build(state poster.FormState) *template.Node {
	c := p.preset.Canvas
	root := &template.Node{
		ID:   template.RootID,
		Kind: template.KindBox,
		Rect: image.Rect(0, 0, c.Width, c.Height),
		Style: template.ComponentStyle{
			BackgroundColor: p.preset.Background.Color,
			BackgroundFit:   "stretch",
		},
	}
	if p.preset.Background.Type == "image" {
		root.Style.BackgroundImage = p.preset.Background.Source
	}

	for _, rc := range p.layout {
		n := &template.Node{
			ID:      rc.ID,
			Kind:    template.KindBox,
			Rect:    rc.Rect(),
			Padding: rc.Padding,
			Style:   rc.Style,
		}
		switch rc.Bind {
		case template.BindTitle:
			n.Kind, n.Text = template.KindText, poster.Title(state)
		case template.BindUserName:
			n.Kind, n.Text = template.KindText, orPlaceholder(state.UserName)
		case template.BindAvatar:
			n.Kind, n.Image = template.KindImage, p.decodeAvatar(state.UserAvatar)
		case template.BindMetrics:
			n.Children = p.metricCells(rc, state)
		default:
			if rc.Text != "" {
				n.Kind, n.Text = template.KindText, rc.Text
			}
		}
		root.Children = append(root.Children, n)
	}
	return root
}

// metricCells lays the derived metrics out as equal columns, each with the
// value above its label.
func (p *Preview) metricCells(rc template.ResolvedComponent, state poster.FormState) []*template.Node {
	values := p.projector.Project(state)
	cols := template.Columns(rc.Rect().Inset(rc.Padding), len(values))
	cells := make([]*template.Node, len(values))
	for i, m := range values {
		id := rc.ID + "." + string(poster.MetricFields[i])
		valueRect, labelRect := template.SplitRows(cols[i], 0.6)
		cells[i] = &template.Node{
			ID:   id,
			Kind: template.KindBox,
			Rect: cols[i],
			Children: []*template.Node{
				{ID: id + ".value", Kind: template.KindText, Rect: valueRect, Text: strconv.Itoa(m.Value), Style: template.TextStyle(rc.Style)},
				{ID: id + ".label", Kind: template.KindText, Rect: labelRect, Text: m.Label, Style: rc.Style.LabelStyle()},
			},
		}
	}
	return cells
}

// decodeAvatar turns the stored data URI into an image, caching the last
// decode. Undecodable values render as an empty slot.
func (p *Preview) decodeAvatar(uri string) image.Image {
	if uri == "" {
		return nil
	}
	if uri == p.avatar.uri {
		return p.avatar.img
	}

	_, data, err := poster.DecodeDataURI(uri)
	var img image.Image
	if err == nil {
		img, _, err = image.Decode(bytes.NewReader(data))
	}
	if err != nil {
		p.logger.Warn(context.Background(), "avatar cannot be decoded, rendering empty slot", logger.Error(err))
		img = nil
	}
	p.avatar = avatarCache{uri: uri, img: img}
	return img
}

func orPlaceholder(s string) string {
	if s == "" {
		return poster.Placeholder
	}
	return s
}
