// Package tui is a terminal form editor for the poster: one session, field
// editing with the keyboard, avatar by file path and export into a directory.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"

	"github.com/xob0t/GoPoster/internal/app"
	"github.com/xob0t/GoPoster/pkg/export"
	"github.com/xob0t/GoPoster/pkg/logger"
	"github.com/xob0t/GoPoster/pkg/poster"
)

var (
	styleDefault = tcell.StyleDefault
	styleTitle   = tcell.StyleDefault.Bold(true)
	styleLabel   = tcell.StyleDefault.Foreground(tcell.ColorGray)
	styleCursor  = tcell.StyleDefault.Reverse(true)
	styleError   = tcell.StyleDefault.Foreground(tcell.ColorRed)
	styleOK      = tcell.StyleDefault.Foreground(tcell.ColorGreen)
	styleHelp    = tcell.StyleDefault.Foreground(tcell.ColorDarkCyan)
)

// Events posted back to the loop by background work.
type (
	avatarDone struct{ err error }
	exportDone struct {
		path string
		err  error
	}
)

// Editor is the terminal form.
type Editor struct {
	screen tcell.Screen
	sess   *app.Session
	saver  export.DirSaver
	logger logger.Logger

	fields   []poster.FieldSpec
	cursor   int
	inputs   map[poster.Field]string
	problems map[poster.Field]string

	status    string
	statusErr bool
	exporting bool
}

// New returns an editor drawing on screen, which must be initialised.
func New(screen tcell.Screen, sess *app.Session, outDir string) *Editor {
	e := &Editor{
		screen:   screen,
		sess:     sess,
		saver:    export.DirSaver{Dir: outDir},
		logger:   logger.Named("tui"),
		fields:   poster.Schema,
		inputs:   make(map[poster.Field]string),
		problems: make(map[poster.Field]string),
	}
	st := sess.Preview.State()
	for _, f := range poster.Fields {
		e.inputs[f] = displayValue(st, f)
	}
	e.inputs[poster.FieldUserAvatar] = ""
	return e
}

// Run opens the terminal and edits until the user quits.
func Run(ctx context.Context, sess *app.Session, outDir string) error {
	screen, err := tcell.NewScreen()
	if err != nil {
		return fmt.Errorf("create screen: %w", err)
	}
	if err := screen.Init(); err != nil {
		return fmt.Errorf("init screen: %w", err)
	}
	defer screen.Fini()

	e := New(screen, sess, outDir)
	cancel := sess.Preview.OnChange(func(uint64) {
		_ = screen.PostEvent(tcell.NewEventInterrupt(nil))
	})
	defer cancel()

	go func() {
		<-ctx.Done()
		_ = screen.PostEvent(tcell.NewEventInterrupt(ctx.Err()))
	}()

	e.Loop()
	return nil
}

// Loop draws and handles events until quit.
func (e *Editor) Loop() {
	for {
		e.draw()
		e.screen.Show()

		if e.handleEvent(e.screen.PollEvent()) {
			return
		}
	}
}

// handleEvent applies one event and reports whether to quit.
func (e *Editor) handleEvent(ev tcell.Event) bool {
	switch ev := ev.(type) {
	case nil:
		return true
	case *tcell.EventResize:
		e.screen.Sync()
	case *tcell.EventKey:
		return e.handleKey(ev)
	case *tcell.EventInterrupt:
		switch d := ev.Data().(type) {
		case avatarDone:
			e.onAvatarDone(d)
		case exportDone:
			e.onExportDone(d)
		case error:
			return true
		}
	}
	return false
}

func (e *Editor) handleKey(ev *tcell.EventKey) bool {
	field := e.fields[e.cursor]
	switch ev.Key() {
	case tcell.KeyCtrlC, tcell.KeyEscape:
		return true
	case tcell.KeyUp, tcell.KeyBacktab:
		e.commit(field)
		e.cursor = (e.cursor + len(e.fields) - 1) % len(e.fields)
	case tcell.KeyDown, tcell.KeyTab:
		e.commit(field)
		e.cursor = (e.cursor + 1) % len(e.fields)
	case tcell.KeyEnter:
		e.commit(field)
	case tcell.KeyBackspace, tcell.KeyBackspace2:
		r := []rune(e.inputs[field.Field])
		if len(r) > 0 {
			e.inputs[field.Field] = string(r[:len(r)-1])
		}
	case tcell.KeyCtrlU:
		e.inputs[field.Field] = ""
	case tcell.KeyCtrlS:
		e.commit(field)
		e.export()
	case tcell.KeyCtrlR:
		e.sess.Store.Reset()
		for f := range e.inputs {
			e.inputs[f] = ""
		}
		clear(e.problems)
		e.setStatus("已重置", false)
	case tcell.KeyRune:
		r := ev.Rune()
		if field.Kind == "number" && (r < '0' || r > '9') {
			return false
		}
		e.inputs[field.Field] += string(r)
	}
	return false
}

// commit writes the edit buffer of spec into the session.
func (e *Editor) commit(spec poster.FieldSpec) {
	raw := e.inputs[spec.Field]
	if spec.Kind == "image" {
		if raw != "" {
			e.ingest(raw)
		}
		return
	}

	var value any
	switch {
	case raw == "":
		value = nil
	case spec.Kind == "number":
		n, err := strconv.Atoi(raw)
		if err != nil {
			e.problems[spec.Field] = err.Error()
			return
		}
		value = n
	default:
		value = raw
	}
	if _, err := e.sess.Update(map[string]any{string(spec.Field): value}); err != nil {
		e.problems[spec.Field] = err.Error()
		return
	}
	delete(e.problems, spec.Field)
	// Show the clamped value.
	e.inputs[spec.Field] = displayValue(e.sess.Preview.State(), spec.Field)
}

func (e *Editor) ingest(path string) {
	file, closeFile, err := poster.FileFromPath(path)
	if err != nil {
		e.problems[poster.FieldUserAvatar] = err.Error()
		return
	}

	var messages []string
	e.sess.Ingestor.BeforeUpload(file, func(err error) {
		var re *poster.RejectionError
		if errors.As(err, &re) {
			messages = append(messages, re.Message())
		}
	})
	if len(messages) > 0 {
		_ = closeFile()
		e.problems[poster.FieldUserAvatar] = strings.Join(messages, "；")
		return
	}

	e.setStatus("正在读取头像...", false)
	e.sess.Ingestor.IngestAsync(context.Background(), file, func(_ string, err error) {
		_ = closeFile()
		e.post(avatarDone{err: err})
	})
}

func (e *Editor) onAvatarDone(d avatarDone) {
	switch {
	case errors.Is(d.err, poster.ErrSuperseded):
		return
	case d.err != nil:
		e.problems[poster.FieldUserAvatar] = d.err.Error()
		e.setStatus("头像读取失败", true)
	default:
		delete(e.problems, poster.FieldUserAvatar)
		e.inputs[poster.FieldUserAvatar] = ""
		e.setStatus("头像已上传", false)
	}
}

func (e *Editor) export() {
	if e.exporting {
		return
	}
	task, err := e.sess.Submit(context.Background(), e.saver)
	if err != nil {
		var ve *poster.ValidationError
		if errors.As(err, &ve) {
			clear(e.problems)
			for f, msg := range ve.Messages() {
				e.problems[f] = msg
			}
			e.setStatus("请完善表单后再生成", true)
			return
		}
		e.setStatus(err.Error(), true)
		return
	}

	e.exporting = true
	e.setStatus("正在生成海报...", false)
	path := e.saver.PathFor(task.FileName)
	go func() {
		<-task.Done()
		e.post(exportDone{path: path, err: task.Err()})
	}()
}

func (e *Editor) onExportDone(d exportDone) {
	e.exporting = false
	if d.err != nil {
		e.logger.Error(context.Background(), "export failed", logger.Error(d.err))
		e.setStatus("生成失败："+d.err.Error(), true)
		return
	}
	clear(e.problems)
	e.setStatus("已保存 "+d.path, false)
}

func (e *Editor) post(data any) {
	if err := e.screen.PostEvent(tcell.NewEventInterrupt(data)); err != nil {
		// Queue full: retry shortly rather than drop a completion.
		time.AfterFunc(50*time.Millisecond, func() { e.post(data) })
	}
}

func (e *Editor) setStatus(msg string, isErr bool) {
	e.status, e.statusErr = msg, isErr
}

func displayValue(st poster.FormState, f poster.Field) string {
	switch f {
	case poster.FieldTrainingName:
		return st.TrainingName
	case poster.FieldUserName:
		return st.UserName
	case poster.FieldTrainingNo:
		return intString(st.TrainingNo)
	case poster.FieldClockDays:
		return intString(st.ClockDays)
	case poster.FieldTotalTargetCount:
		return intString(st.TotalTargetCount)
	case poster.FieldTotalPoints:
		return intString(st.TotalPoints)
	}
	return ""
}

func intString(p *int) string {
	if p == nil {
		return ""
	}
	return strconv.Itoa(*p)
}
